package types

type StepType string

const (
	StepAPICall          StepType = "api_call"
	StepUpdateStatus     StepType = "update_status"
	StepCreateItem       StepType = "create_item"
	StepSendNotification StepType = "send_notification"
	StepValidation       StepType = "validation"
)

type ActionStep struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Type        StepType       `json:"type"`
	Details     map[string]any `json:"details,omitempty"`
	CanSkip     bool           `json:"canSkip"`
}

// ActionDraft describes every side effect of an action before any of them happen.
type ActionDraft struct {
	Summary         string       `json:"summary"`
	Steps           []ActionStep `json:"steps"`
	Reasoning       string       `json:"reasoning"`
	ExpectedOutcome string       `json:"expectedOutcome"`
	PotentialIssues []string     `json:"potentialIssues,omitempty"`
	EstimatedTime   string       `json:"estimatedTime,omitempty"`
}

// ActionCommand is a drafted, risk-classified action.
// RiskLevel high always implies ConfirmationRequired.
type ActionCommand struct {
	ID                   string         `json:"id"`
	Type                 Intent         `json:"type"`
	EntityID             string         `json:"entityId"`
	EntityType           EntityType     `json:"entityType"`
	Parameters           map[string]any `json:"parameters,omitempty"`
	RiskLevel            RiskLevel      `json:"riskLevel"`
	Description          string         `json:"description"`
	ConfirmationRequired bool           `json:"confirmationRequired"`
	Draft                ActionDraft    `json:"draft"`
}

// ReadOnly reports whether the command performs no mutation.
func (c ActionCommand) ReadOnly() bool {
	return c.Type == IntentShowStatus
}

type ActionResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
	Errors  []string       `json:"errors,omitempty"`
}
