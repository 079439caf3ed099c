package action

import (
	"github.com/af-corp/intentd/internal/types"
)

// Target is the work item an action applies to, as seen at drafting time.
// The owning service remains authoritative; State and AssigneeID only steer
// risk and wording.
type Target struct {
	ID         string
	Type       types.EntityType
	Title      string
	Key        string
	State      string
	AssigneeID string
}

// baseRisk is the fixed risk of each intent on a single work item.
var baseRisk = map[types.Intent]types.RiskLevel{
	types.IntentShowStatus:    types.RiskLow,
	types.IntentTakeOwnership: types.RiskMedium,
	types.IntentUnassign:      types.RiskMedium,
	types.IntentMarkComplete:  types.RiskMedium,
	types.IntentUpdateStatus:  types.RiskMedium,
	types.IntentCreateItem:    types.RiskMedium,
	types.IntentCloseSprint:   types.RiskHigh,
	types.IntentDeleteItem:    types.RiskHigh,
}

const (
	stateDone   = "done"
	stateActive = "active"
	stateClosed = "closed"
)

// requiredState is the state a target must be in for the action to apply.
var requiredState = map[types.Intent]string{
	types.IntentCloseSprint: stateActive,
}

// RequiredState returns the state an action's target must be in, or "" when
// any state will do.
func RequiredState(intent types.Intent) string {
	return requiredState[intent]
}

// Classify maps (intent, entity type, entity state) to a risk level. noop
// reports that the target already satisfies the action, which lowers a
// medium action to low. Mutations of a sprint or project reach every item
// inside it and are always high.
func Classify(intent types.Intent, t Target, params map[string]any, userID string) (risk types.RiskLevel, noop bool) {
	risk, ok := baseRisk[intent]
	if !ok {
		return types.RiskHigh, false
	}
	if intent == types.IntentShowStatus {
		return types.RiskLow, false
	}
	if t.Type == types.EntitySprint || t.Type == types.EntityProject {
		if intent != types.IntentCreateItem {
			return types.RiskHigh, intent == types.IntentCloseSprint && t.State == stateClosed
		}
	}

	switch intent {
	case types.IntentTakeOwnership:
		noop = userID != "" && t.AssigneeID == userID
	case types.IntentUnassign:
		noop = t.AssigneeID == ""
	case types.IntentMarkComplete:
		noop = t.State == stateDone
	case types.IntentUpdateStatus:
		s, _ := params["status"].(string)
		noop = s != "" && t.State == s
	}
	if noop && risk == types.RiskMedium {
		risk = types.RiskLow
	}
	return risk, noop
}

// idempotent intents leave the same end state when applied twice.
var idempotent = map[types.Intent]bool{
	types.IntentShowStatus:    true,
	types.IntentTakeOwnership: true,
	types.IntentUnassign:      true,
	types.IntentMarkComplete:  true,
	types.IntentUpdateStatus:  true,
}

// Idempotent reports whether an action type may be retried safely.
func Idempotent(intent types.Intent) bool {
	return idempotent[intent]
}
