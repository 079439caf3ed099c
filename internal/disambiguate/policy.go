// Package disambiguate decides whether the top candidate can be acted on
// without asking the user to choose.
package disambiguate

import (
	"github.com/af-corp/intentd/internal/config"
	"github.com/af-corp/intentd/internal/types"
)

// epsilon absorbs float error when confidences are compared against
// configured thresholds (0.95 - 0.80 must satisfy a 0.15 margin).
const epsilon = 1e-9

type Thresholds struct {
	MinConfidence float64
	MinMargin     float64
}

// ThresholdsFor returns the thresholds for a parse source. Heuristic parses
// use the stricter fallback pair.
func ThresholdsFor(cfg config.DisambiguationConfig, source types.ParseSource) Thresholds {
	t := Thresholds{MinConfidence: cfg.MinConfidence, MinMargin: cfg.MinMargin}
	if source == types.SourceHeuristic {
		if cfg.FallbackMinConfidence > t.MinConfidence {
			t.MinConfidence = cfg.FallbackMinConfidence
		}
		if cfg.FallbackMinMargin > t.MinMargin {
			t.MinMargin = cfg.FallbackMinMargin
		}
	}
	return t
}

// Margin is the confidence gap between rank 1 and rank 2. A single
// candidate has a margin equal to its own confidence.
func Margin(candidates []types.CandidateEntity) float64 {
	switch len(candidates) {
	case 0:
		return 0
	case 1:
		return candidates[0].Confidence
	default:
		return candidates[0].Confidence - candidates[1].Confidence
	}
}

// Decide builds the IntentResult for a ranked candidate list. It never sets
// AutoSelect and Ambiguous together, and zero candidates is always
// ambiguous with NoMatches set.
func Decide(parsed types.ParsedIntent, candidates []types.CandidateEntity, th Thresholds) types.IntentResult {
	res := types.IntentResult{
		Intent:     parsed.Intent,
		Confidence: parsed.Confidence,
		Entities:   candidates,
		Source:     parsed.Source,
	}
	if res.Entities == nil {
		res.Entities = []types.CandidateEntity{}
	}

	if parsed.Intent == types.IntentUnknown || len(candidates) == 0 {
		res.Ambiguous = true
		res.NoMatches = len(candidates) == 0
		return res
	}

	top := candidates[0].Confidence
	if top+epsilon >= th.MinConfidence && Margin(candidates)+epsilon >= th.MinMargin {
		res.AutoSelect = true
		return res
	}
	res.Ambiguous = true
	return res
}

// Choose builds the IntentResult for an explicit user choice among
// candidates. The chosen candidate is moved to rank 1 and auto-selected
// regardless of thresholds. ok is false when id is not a candidate.
func Choose(parsed types.ParsedIntent, candidates []types.CandidateEntity, id string) (types.IntentResult, bool) {
	idx := -1
	for i, c := range candidates {
		if c.ID == id {
			idx = i
			break
		}
	}
	if parsed.Intent == types.IntentUnknown || idx < 0 {
		return types.IntentResult{}, false
	}

	ranked := make([]types.CandidateEntity, 0, len(candidates))
	ranked = append(ranked, candidates[idx])
	ranked = append(ranked, candidates[:idx]...)
	ranked = append(ranked, candidates[idx+1:]...)
	return types.IntentResult{
		Intent:     parsed.Intent,
		Confidence: parsed.Confidence,
		Entities:   ranked,
		AutoSelect: true,
		Source:     parsed.Source,
	}, true
}
