package intent

import (
	"regexp"
	"strings"

	"github.com/af-corp/intentd/internal/types"
)

// HeuristicParser classifies utterances with a fixed rule table. It has no
// external dependencies and is deterministic for a given utterance.
type HeuristicParser struct {
	rules   []Rule
	ceiling func() float64
}

// NewHeuristicParser creates a parser whose confidences never exceed ceiling().
func NewHeuristicParser(ceiling func() float64) *HeuristicParser {
	return &HeuristicParser{rules: DefaultRules(), ceiling: ceiling}
}

type match struct {
	rule   Rule
	groups map[string]string
}

// Parse returns the best matching rule's intent. No match yields
// IntentUnknown with zero confidence.
func (h *HeuristicParser) Parse(utterance string) types.ParsedIntent {
	text := normalizeSpace(utterance)

	var best *match
	for _, r := range h.rules {
		sub := r.Regex.FindStringSubmatch(text)
		if sub == nil {
			continue
		}
		if best != nil && r.Confidence <= best.rule.Confidence {
			continue
		}
		best = &match{rule: r, groups: namedGroups(r.Regex, sub)}
	}

	if best == nil {
		return types.ParsedIntent{Intent: types.IntentUnknown, Source: types.SourceHeuristic}
	}

	conf := best.rule.Confidence
	if h.ceiling != nil {
		if c := h.ceiling(); conf > c {
			conf = c
		}
	}

	parsed := types.ParsedIntent{
		Intent:     best.rule.Intent,
		Confidence: conf,
		Source:     types.SourceHeuristic,
	}

	if target := best.groups["target"]; target != "" {
		if d, ok := toDescriptor(target, best.rule.EntityType); ok {
			parsed.Descriptors = []types.EntityDescriptor{d}
		}
	}

	params := map[string]any{}
	if s := best.groups["status"]; s != "" {
		params["status"] = canonicalStatus(s)
	}
	if k := best.groups["kind"]; k != "" {
		params["type"] = strings.ToLower(k)
		if t := cleanPhrase(best.groups["title"]); t != "" {
			params["title"] = t
		}
	}
	if len(params) > 0 {
		parsed.Parameters = params
	}
	return parsed
}

func namedGroups(re *regexp.Regexp, sub []string) map[string]string {
	out := make(map[string]string, len(sub))
	for i, name := range re.SubexpNames() {
		if name != "" && i < len(sub) {
			out[name] = sub[i]
		}
	}
	return out
}

var (
	leadingArticle = regexp.MustCompile(`(?i)^(?:the|a|an|my|our|this|that)\s+`)
	leadingFiller  = regexp.MustCompile(`(?i)^(?:status|state|progress|details?)\s+(?:of|on|for)\s+`)
	trailingType   = regexp.MustCompile(`(?i)\s*\b(story|task|sprint|project|ticket)$`)
	pronoun        = regexp.MustCompile(`(?i)^(?:it|this|that|this\s+one|that\s+one|them)$`)
	qualifier      = regexp.MustCompile(`(?i)^(?:current|active|next|last|previous|open)$`)
	trailingNoise  = regexp.MustCompile(`(?i)(?:\s+(?:please|for\s+me|now|today))+$`)
)

// toDescriptor turns a captured target into an entity descriptor, peeling
// articles and a trailing type noun ("the login bug task" -> "login bug", task).
func toDescriptor(target string, implied types.EntityType) (types.EntityDescriptor, bool) {
	phrase := cleanPhrase(target)
	if phrase == "" || pronoun.MatchString(phrase) {
		return types.EntityDescriptor{}, false
	}

	et := implied
	if m := trailingType.FindStringSubmatch(phrase); m != nil {
		word := strings.ToLower(m[1])
		if word == "ticket" {
			word = string(types.EntityTask)
		}
		if t, ok := types.ParseEntityType(word); ok {
			et = t
		}
		if rest := strings.TrimSpace(phrase[:len(phrase)-len(m[0])]); rest != "" && !qualifier.MatchString(rest) {
			phrase = rest
		}
	}
	return types.EntityDescriptor{Phrase: phrase, Type: et}, true
}

func cleanPhrase(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ".!?,;: ")
	s = trailingNoise.ReplaceAllString(s, "")
	for {
		next := leadingFiller.ReplaceAllString(leadingArticle.ReplaceAllString(s, ""), "")
		if next == s {
			break
		}
		s = next
	}
	return strings.TrimSpace(s)
}

func canonicalStatus(s string) string {
	s = strings.ToLower(normalizeSpace(s))
	switch s {
	case "to do":
		return "todo"
	case "review":
		return "in_review"
	}
	return strings.ReplaceAll(s, " ", "_")
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
