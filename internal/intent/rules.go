package intent

import (
	"regexp"

	"github.com/af-corp/intentd/internal/types"
)

// Rule maps a verb pattern to an intent. Named groups: "target" is the
// entity phrase, "status" and "kind" become parameters.
type Rule struct {
	Name       string
	Regex      *regexp.Regexp
	Intent     types.Intent
	Confidence float64
	EntityType types.EntityType // implied type when the phrase carries none
}

// DefaultRules returns the built-in heuristic rules. Order breaks confidence ties.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:       "close_sprint",
			Regex:      regexp.MustCompile(`(?i)\b(?:close|end|finish|wrap\s+up|complete)\s+(?:out\s+)?(?P<target>(?:the\s+|this\s+|our\s+)?(?:current\s+|active\s+)?sprint\b.*)`),
			Intent:     types.IntentCloseSprint,
			Confidence: 0.55,
			EntityType: types.EntitySprint,
		},
		{
			Name:       "take_ownership",
			Regex:      regexp.MustCompile(`(?i)\b(?:take\s+ownership\s+of|take\s+over|i(?:'ll|\s+will)\s+take|claim|pick\s+up|grab)\s+(?P<target>.+)`),
			Intent:     types.IntentTakeOwnership,
			Confidence: 0.55,
		},
		{
			Name:       "assign_to_me",
			Regex:      regexp.MustCompile(`(?i)\bassign\s+(?P<target>.+?)\s+to\s+me\b`),
			Intent:     types.IntentTakeOwnership,
			Confidence: 0.55,
		},
		{
			Name:       "unassign",
			Regex:      regexp.MustCompile(`(?i)\b(?:unassign\s+me\s+from|unassign|remove\s+me\s+from|take\s+me\s+off|release)\s+(?P<target>.+)`),
			Intent:     types.IntentUnassign,
			Confidence: 0.5,
		},
		{
			Name:       "mark_complete",
			Regex:      regexp.MustCompile(`(?i)\bmark\s+(?P<target>.+?)\s+(?:as\s+)?(?:complete|completed|done|finished|resolved)\b`),
			Intent:     types.IntentMarkComplete,
			Confidence: 0.55,
		},
		{
			Name:       "finish_item",
			Regex:      regexp.MustCompile(`(?i)\b(?:i(?:'ve|\s+have)\s+)?(?:finished|completed|resolved)\s+(?P<target>.+)`),
			Intent:     types.IntentMarkComplete,
			Confidence: 0.45,
		},
		{
			Name:       "update_status",
			Regex:      regexp.MustCompile(`(?i)\b(?:move|set|change|put)\s+(?P<target>.+?)\s+(?:status\s+)?(?:to|into|as|in)\s+(?P<status>in\s+progress|in\s+review|review|todo|to\s+do|blocked|backlog|qa)\b`),
			Intent:     types.IntentUpdateStatus,
			Confidence: 0.5,
		},
		{
			Name:       "create_item",
			Regex:      regexp.MustCompile(`(?i)\b(?:create|add|open|start)\s+(?:a\s+|an\s+)?(?:new\s+)?(?P<kind>story|task|sprint|project)\b(?:\s+(?:called|named|titled|for|to)\s+(?P<title>.+))?`),
			Intent:     types.IntentCreateItem,
			Confidence: 0.5,
		},
		{
			Name:       "delete_item",
			Regex:      regexp.MustCompile(`(?i)\b(?:delete|remove|trash)\s+(?P<target>.+)`),
			Intent:     types.IntentDeleteItem,
			Confidence: 0.45,
		},
		{
			Name:       "show_status",
			Regex:      regexp.MustCompile(`(?i)\b(?:(?:what(?:'s|\s+is)\s+)?(?:the\s+)?(?:status|state|progress)\s+(?:of|on|for)|show(?:\s+me)?|how\s+is|where\s+is|details?\s+(?:of|for|on))\s+(?P<target>.+)`),
			Intent:     types.IntentShowStatus,
			Confidence: 0.5,
		},
	}
}
