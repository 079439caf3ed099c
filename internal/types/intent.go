package types

// Intent is the classified action family of an utterance.
type Intent string

const (
	IntentShowStatus    Intent = "show_status"
	IntentTakeOwnership Intent = "take_ownership"
	IntentUnassign      Intent = "unassign"
	IntentMarkComplete  Intent = "mark_complete"
	IntentUpdateStatus  Intent = "update_status"
	IntentCreateItem    Intent = "create_item"
	IntentCloseSprint   Intent = "close_sprint"
	IntentDeleteItem    Intent = "delete_item"
	IntentUnknown       Intent = "unknown"
)

// KnownIntents lists every intent the parser may emit, in a stable order.
var KnownIntents = []Intent{
	IntentShowStatus,
	IntentTakeOwnership,
	IntentUnassign,
	IntentMarkComplete,
	IntentUpdateStatus,
	IntentCreateItem,
	IntentCloseSprint,
	IntentDeleteItem,
	IntentUnknown,
}

func ParseIntent(s string) (Intent, bool) {
	for _, i := range KnownIntents {
		if string(i) == s {
			return i, true
		}
	}
	return "", false
}

type EntityType string

const (
	EntityStory   EntityType = "story"
	EntityTask    EntityType = "task"
	EntitySprint  EntityType = "sprint"
	EntityProject EntityType = "project"
)

func ParseEntityType(s string) (EntityType, bool) {
	switch EntityType(s) {
	case EntityStory, EntityTask, EntitySprint, EntityProject:
		return EntityType(s), true
	default:
		return "", false
	}
}

// ParseSource records which parser produced an intent.
type ParseSource string

const (
	SourceLLM       ParseSource = "llm"
	SourceHeuristic ParseSource = "heuristic"
)

// EntityDescriptor is a free-text phrase naming a work item, as extracted by a parser.
type EntityDescriptor struct {
	Phrase string     `json:"phrase"`
	Type   EntityType `json:"type,omitempty"`
}

// ParsedIntent is the parser stage output, before any entity resolution.
type ParsedIntent struct {
	Intent      Intent             `json:"intent"`
	Confidence  float64            `json:"confidence"`
	Descriptors []EntityDescriptor `json:"entityDescriptors"`
	Parameters  map[string]any     `json:"parameters,omitempty"`
	Source      ParseSource        `json:"source"`
}

type EvidenceType string

const (
	EvidencePR         EvidenceType = "pr"
	EvidenceCommit     EvidenceType = "commit"
	EvidenceAssignment EvidenceType = "assignment"
	EvidenceTime       EvidenceType = "time"
	EvidenceMention    EvidenceType = "mention"
	EvidenceState      EvidenceType = "state"
	EvidenceSelected   EvidenceType = "selected"
)

// EvidenceChip explains why a candidate matched. It is display-only.
type EvidenceChip struct {
	Type  EvidenceType `json:"type"`
	Label string       `json:"label"`
	Value string       `json:"value"`
	URL   string       `json:"url,omitempty"`
}

type CandidateEntity struct {
	ID         string         `json:"id"`
	Type       EntityType     `json:"type"`
	Title      string         `json:"title"`
	Confidence float64        `json:"confidence"`
	Evidence   []EvidenceChip `json:"evidence"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// IntentResult is the user-facing outcome of interpretation.
// AutoSelect and Ambiguous are never both true.
type IntentResult struct {
	Intent     Intent            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Entities   []CandidateEntity `json:"entities"`
	AutoSelect bool              `json:"autoSelect"`
	Ambiguous  bool              `json:"ambiguous"`
	NoMatches  bool              `json:"noMatches,omitempty"`
	Source     ParseSource       `json:"source"`
}

// Selected returns the auto-selected candidate, if any.
func (r IntentResult) Selected() (CandidateEntity, bool) {
	if !r.AutoSelect || len(r.Entities) == 0 {
		return CandidateEntity{}, false
	}
	return r.Entities[0], true
}
