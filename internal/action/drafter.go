// Package action drafts risk-classified commands and gates their execution
// behind confirmation.
package action

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/af-corp/intentd/internal/config"
	"github.com/af-corp/intentd/internal/types"
)

// DraftInput is everything the drafter needs. Target is nil for
// create_item without a parent.
type DraftInput struct {
	RequestID  string
	TenantID   string
	UserID     string
	Intent     types.Intent
	Parameters map[string]any
	Target     *types.CandidateEntity
	Source     types.ParseSource
}

// Draft is a drafted command plus the policy verdict. A denied command is
// returned for display only and must never be executed.
type Draft struct {
	Command types.ActionCommand
	Denied  bool
	NoOp    bool
}

// Drafter builds ActionCommands. Drafting performs no side effects.
type Drafter struct {
	policy *Policy
	cfg    func() config.ActionsConfig
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewDrafter creates a drafter. policy may be nil.
func NewDrafter(policy *Policy, cfg func() config.ActionsConfig, logger *slog.Logger) *Drafter {
	return &Drafter{
		policy: policy,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

func (d *Drafter) Draft(ctx context.Context, in DraftInput) (Draft, error) {
	if _, ok := baseRisk[in.Intent]; !ok {
		return Draft{}, types.NewError(types.KindInvalidRequest, fmt.Sprintf("no action for intent %q", in.Intent))
	}
	if err := checkParameters(in.Intent, in.Parameters); err != nil {
		return Draft{}, err
	}

	t := targetOf(in.Target)
	if err := checkTarget(in.Intent, t, in.UserID); err != nil {
		return Draft{}, err
	}
	risk, noop := Classify(in.Intent, t, in.Parameters, in.UserID)

	cmd := types.ActionCommand{
		ID:          d.newID(),
		Type:        in.Intent,
		EntityID:    t.ID,
		EntityType:  t.Type,
		Parameters:  copyParams(in.Parameters),
		RiskLevel:   risk,
		Description: describe(in.Intent, t, in.Parameters),
	}
	cmd.Draft = buildDraft(in, t, risk, noop)
	cmd.ConfirmationRequired = risk == types.RiskHigh ||
		(risk == types.RiskMedium && d.cfg().ConfirmMedium)

	out := Draft{NoOp: noop}
	if d.policy != nil && d.policy.Enabled() && !cmd.ReadOnly() {
		dec, err := d.policy.Evaluate(ctx, policyInput(
			in.TenantID, in.UserID, string(cmd.Type), string(cmd.EntityType), cmd.EntityID, string(risk), d.now()))
		if err != nil {
			d.logger.Error("action policy evaluation failed",
				"request_id", in.RequestID,
				"tenant_id", in.TenantID,
				"action", cmd.Type,
				"error", err,
			)
		}
		if !dec.Allow {
			out.Denied = true
			cmd.Draft.PotentialIssues = append(cmd.Draft.PotentialIssues, "Denied by policy: "+dec.Reason)
		}
		if dec.RequireConfirmation {
			cmd.ConfirmationRequired = true
		}
	}

	out.Command = cmd
	return out, nil
}

func checkParameters(intent types.Intent, params map[string]any) error {
	switch intent {
	case types.IntentUpdateStatus:
		if s, _ := params["status"].(string); s == "" {
			return types.NewError(types.KindInvalidRequest, "update_status needs a target status")
		}
	case types.IntentCreateItem:
		if s, _ := params["title"].(string); strings.TrimSpace(s) == "" {
			return types.NewError(types.KindInvalidRequest, "create_item needs a title")
		}
	}
	return nil
}

// checkTarget rejects actions whose target cannot take them. Unassign only
// removes the caller; another user's assignment is not theirs to clear.
func checkTarget(intent types.Intent, t Target, userID string) error {
	switch intent {
	case types.IntentUnassign:
		if t.AssigneeID != "" && t.AssigneeID != userID {
			return types.NewError(types.KindInvalidRequest,
				fmt.Sprintf("%s is assigned to someone else; only the assignee can unassign it", t.label()))
		}
	case types.IntentCloseSprint:
		if t.State == stateClosed {
			return types.NewError(types.KindInvalidRequest, fmt.Sprintf("%s is already closed", t.label()))
		}
	}
	return nil
}

func targetOf(c *types.CandidateEntity) Target {
	if c == nil {
		return Target{}
	}
	t := Target{ID: c.ID, Type: c.Type, Title: c.Title}
	t.State, _ = c.Metadata["state"].(string)
	t.Key, _ = c.Metadata["key"].(string)
	t.AssigneeID, _ = c.Metadata["assigneeId"].(string)
	return t
}

func copyParams(p map[string]any) map[string]any {
	if len(p) == 0 {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func (t Target) label() string {
	switch {
	case t.Key != "" && t.Title != "":
		return fmt.Sprintf("%s %q", t.Key, t.Title)
	case t.Title != "":
		return fmt.Sprintf("%q", t.Title)
	case t.ID != "":
		return t.ID
	default:
		return "the backlog"
	}
}

func describe(intent types.Intent, t Target, params map[string]any) string {
	switch intent {
	case types.IntentShowStatus:
		return "Show the status of " + t.label()
	case types.IntentTakeOwnership:
		return "Assign " + t.label() + " to you"
	case types.IntentUnassign:
		return "Remove yourself from " + t.label()
	case types.IntentMarkComplete:
		return "Mark " + t.label() + " as done"
	case types.IntentUpdateStatus:
		return fmt.Sprintf("Move %s to %v", t.label(), params["status"])
	case types.IntentCreateItem:
		kind, _ := params["type"].(string)
		if kind == "" {
			kind = "item"
		}
		return fmt.Sprintf("Create %s %q in %s", kind, params["title"], t.label())
	case types.IntentCloseSprint:
		return "Close sprint " + t.label()
	case types.IntentDeleteItem:
		return "Delete " + t.label()
	}
	return string(intent)
}

// buildDraft enumerates every side effect before any of them run.
func buildDraft(in DraftInput, t Target, risk types.RiskLevel, noop bool) types.ActionDraft {
	step := 0
	next := func(typ types.StepType, desc string, canSkip bool, details map[string]any) types.ActionStep {
		step++
		return types.ActionStep{
			ID:          fmt.Sprintf("step-%d", step),
			Description: desc,
			Type:        typ,
			Details:     details,
			CanSkip:     canSkip,
		}
	}
	verify := func(what string) types.ActionStep {
		return next(types.StepValidation, "Verify "+t.label()+" "+what, false, map[string]any{"entityId": t.ID})
	}

	d := types.ActionDraft{Summary: describe(in.Intent, t, in.Parameters)}
	switch in.Intent {
	case types.IntentShowStatus:
		d.Steps = []types.ActionStep{
			next(types.StepAPICall, "Fetch current details of "+t.label(), false,
				map[string]any{"method": "GET", "entityId": t.ID}),
		}
		d.ExpectedOutcome = "Current status of " + t.label() + " is shown; nothing changes"
	case types.IntentTakeOwnership:
		d.Steps = []types.ActionStep{
			verify("still exists and is assignable"),
			next(types.StepAPICall, "Set assignee of "+t.label()+" to you", false,
				map[string]any{"method": "PUT", "entityId": t.ID, "assigneeId": in.UserID}),
		}
		if t.AssigneeID != "" && t.AssigneeID != in.UserID {
			d.Steps = append(d.Steps, next(types.StepSendNotification, "Notify the previous assignee", true,
				map[string]any{"recipient": t.AssigneeID}))
		}
		d.ExpectedOutcome = "You own " + t.label()
	case types.IntentUnassign:
		d.Steps = []types.ActionStep{
			verify("is assigned to you"),
			next(types.StepAPICall, "Clear assignee of "+t.label(), false,
				map[string]any{"method": "DELETE", "entityId": t.ID}),
		}
		d.ExpectedOutcome = t.label() + " has no assignee"
	case types.IntentMarkComplete, types.IntentUpdateStatus:
		status := stateDone
		if in.Intent == types.IntentUpdateStatus {
			status, _ = in.Parameters["status"].(string)
		}
		d.Steps = []types.ActionStep{
			verify("allows the transition"),
			next(types.StepUpdateStatus, fmt.Sprintf("Change status from %s to %s", orUnknown(t.State), status), false,
				map[string]any{"entityId": t.ID, "from": t.State, "to": status}),
			next(types.StepSendNotification, "Notify watchers of the status change", true, nil),
		}
		d.ExpectedOutcome = t.label() + " is " + status
	case types.IntentCreateItem:
		kind, _ := in.Parameters["type"].(string)
		details := map[string]any{"type": kind, "title": in.Parameters["title"]}
		if t.ID != "" {
			details["parentId"] = t.ID
		}
		d.Steps = []types.ActionStep{
			next(types.StepValidation, "Check that the title is not empty", false, nil),
			next(types.StepCreateItem, fmt.Sprintf("Create %s %q", orUnknown(kind), in.Parameters["title"]), false, details),
		}
		d.ExpectedOutcome = "A new " + orUnknown(kind) + " exists in " + t.label()
	case types.IntentCloseSprint:
		d.Steps = []types.ActionStep{
			verify("is the active sprint"),
			next(types.StepAPICall, "Move unfinished stories of "+t.label()+" to the backlog", false,
				map[string]any{"method": "POST", "entityId": t.ID, "operation": "carry_over"}),
			next(types.StepUpdateStatus, "Set "+t.label()+" to closed", false,
				map[string]any{"entityId": t.ID, "from": t.State, "to": "closed"}),
			next(types.StepSendNotification, "Notify the team that the sprint closed", true, nil),
		}
		d.ExpectedOutcome = t.label() + " is closed and unfinished work is back in the backlog"
		d.PotentialIssues = append(d.PotentialIssues, "Affects every story in the sprint")
	case types.IntentDeleteItem:
		d.Steps = []types.ActionStep{
			verify("exists"),
			next(types.StepAPICall, "Delete "+t.label(), false,
				map[string]any{"method": "DELETE", "entityId": t.ID}),
			next(types.StepSendNotification, "Notify the assignee", true, nil),
		}
		d.ExpectedOutcome = t.label() + " no longer exists"
		d.PotentialIssues = append(d.PotentialIssues, "Deletion cannot be undone from here")
	}

	switch {
	case in.Target == nil:
		d.Reasoning = fmt.Sprintf("Interpreted as %s with no existing item referenced", in.Intent)
	default:
		d.Reasoning = fmt.Sprintf("Interpreted as %s; %s matched with confidence %.2f",
			in.Intent, t.label(), in.Target.Confidence)
	}
	if noop {
		d.PotentialIssues = append(d.PotentialIssues, "Already in the requested state; applying is a no-op")
	}
	if in.Source == types.SourceHeuristic {
		d.PotentialIssues = append(d.PotentialIssues, "Interpreted without the language model; check the target")
	}
	if risk == types.RiskHigh {
		d.EstimatedTime = "a few seconds"
	} else {
		d.EstimatedTime = "under a second"
	}
	return d
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
