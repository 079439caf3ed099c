package types

import "time"

// EntityRef is a caller-supplied pointer to a work item already in view.
type EntityRef struct {
	ID   string     `json:"id"`
	Type EntityType `json:"type"`
}

// InterpretRequest is an immutable utterance request.
// Tenant and user are set from the verified identity, never from the body.
type InterpretRequest struct {
	RequestID       string      `json:"-"`
	TenantID        string      `json:"-"`
	UserID          string      `json:"-"`
	Utterance       string      `json:"utterance"`
	ContextEntities []EntityRef `json:"contextEntities,omitempty"`
	// SelectedEntityID is the candidate the user picked after an ambiguous
	// result. It is resolved within the caller's tenant like any other id.
	SelectedEntityID string    `json:"selectedEntityId,omitempty"`
	ReceivedAt       time.Time `json:"-"`
}

type ActRequest struct {
	RequestID     string        `json:"-"`
	TenantID      string        `json:"-"`
	UserID        string        `json:"-"`
	ActionCommand ActionCommand `json:"actionCommand"`
	Confirmed     bool          `json:"confirmed"`
	ReceivedAt    time.Time     `json:"-"`
}

// RateLimitInfo is surfaced to callers as response metadata.
type RateLimitInfo struct {
	Limit     int64     `json:"limit"`
	Remaining int64     `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

type InterpretResponse struct {
	RequestID string         `json:"requestId"`
	State     State          `json:"state"`
	Intent    IntentResult   `json:"intent"`
	Action    *ActionCommand `json:"action,omitempty"`
	Result    *ActionResult  `json:"result,omitempty"`
	RateLimit RateLimitInfo  `json:"rateLimit"`
}

type ActResponse struct {
	RequestID string        `json:"requestId"`
	State     State         `json:"state"`
	Result    ActionResult  `json:"result"`
	RateLimit RateLimitInfo `json:"rateLimit"`
}
