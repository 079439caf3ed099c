package types

import "time"

// State is a position in the per-request pipeline state machine.
type State string

const (
	StateReceived             State = "received"
	StateParsing              State = "parsing"
	StateResolving            State = "resolving"
	StateFallback             State = "fallback"
	StateDisambiguating       State = "disambiguating"
	StateAutoSelected         State = "auto_selected"
	StateAmbiguous            State = "ambiguous"
	StateDrafting             State = "drafting"
	StateDrafted              State = "drafted"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateExecuting            State = "executing"
	StateCompleted            State = "completed"
	StateFailed               State = "failed"
	StateRejected             State = "rejected"
)

// Terminal reports whether a request can end in this state.
func (s State) Terminal() bool {
	switch s {
	case StateAmbiguous, StateAwaitingConfirmation, StateCompleted, StateFailed, StateRejected, StateDrafted:
		return true
	}
	return false
}

type Operation string

const (
	OpInterpret Operation = "interpret"
	OpAct       Operation = "act"
)

// IntentHistoryRecord is an append-only audit entry for one interpret or act call.
type IntentHistoryRecord struct {
	ID            string         `json:"id"`
	RequestID     string         `json:"requestId"`
	Operation     Operation      `json:"operation"`
	Utterance     string         `json:"utterance,omitempty"`
	TenantID      string         `json:"tenantId"`
	UserID        string         `json:"userId"`
	State         State          `json:"state"`
	ErrorKind     ErrorKind      `json:"errorKind,omitempty"`
	IntentResult  *IntentResult  `json:"intentResult,omitempty"`
	ActionCommand *ActionCommand `json:"actionCommand,omitempty"`
	ActionResult  *ActionResult  `json:"actionResult,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}
