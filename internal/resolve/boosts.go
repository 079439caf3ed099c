package resolve

import (
	"fmt"
	"strings"
	"time"

	"github.com/af-corp/intentd/internal/config"
	"github.com/af-corp/intentd/internal/types"
)

// signals are the ranking inputs observed for one candidate.
type signals struct {
	mentioned  bool
	mention    string
	assigned   bool
	linked     bool
	recent     bool
	inState    bool
	selected   bool
	similarity float64
}

// score folds similarity and boosts into one confidence. Boost weights are
// ordered mention > assignment > linkage > recency by configuration.
func score(s signals, b config.BoostConfig) float64 {
	c := s.similarity
	if s.mentioned {
		c += b.Mention
	}
	if s.assigned {
		c += b.Assignment
	}
	if s.linked {
		c += b.Linkage
	}
	if s.recent {
		c += b.Recency
	}
	if s.inState {
		c += b.State
	}
	return clamp01(c)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// observe derives signals for h as seen by userID at now.
func observe(h Hit, userID string, window time.Duration, now time.Time) signals {
	s := signals{similarity: clamp01(h.Similarity)}
	within := func(t time.Time) bool {
		return !t.IsZero() && now.Sub(t) <= window
	}
	s.assigned = userID != "" && h.AssigneeID == userID && within(h.AssignedAt)
	for _, l := range h.PRs {
		if within(l.At) {
			s.linked = true
		}
	}
	for _, l := range h.Commits {
		if within(l.At) {
			s.linked = true
		}
	}
	s.recent = within(h.UpdatedAt)
	return s
}

// isMention reports whether phrase names h directly by key or exact title.
func isMention(phrase string, h Hit) bool {
	p := strings.TrimSpace(phrase)
	if p == "" {
		return false
	}
	if h.Key != "" && strings.EqualFold(p, h.Key) {
		return true
	}
	return strings.EqualFold(p, h.Title)
}

// evidence builds display chips for h. Chips never influence ranking.
func evidence(h Hit, s signals, now time.Time) []types.EvidenceChip {
	var chips []types.EvidenceChip
	if s.selected {
		chips = append(chips, types.EvidenceChip{
			Type:  types.EvidenceSelected,
			Label: "Chosen by you",
		})
	}
	if s.mentioned {
		chips = append(chips, types.EvidenceChip{
			Type:  types.EvidenceMention,
			Label: "Mentioned",
			Value: s.mention,
		})
	}
	if s.inState {
		chips = append(chips, types.EvidenceChip{
			Type:  types.EvidenceState,
			Label: "State",
			Value: h.State,
		})
	}
	if s.assigned {
		chips = append(chips, types.EvidenceChip{
			Type:  types.EvidenceAssignment,
			Label: "Assigned to you",
			Value: ago(now, h.AssignedAt),
		})
	}
	if l, ok := latest(h.PRs); ok {
		chips = append(chips, types.EvidenceChip{
			Type:  types.EvidencePR,
			Label: "Linked PR",
			Value: l.Ref,
			URL:   l.URL,
		})
	}
	if l, ok := latest(h.Commits); ok {
		chips = append(chips, types.EvidenceChip{
			Type:  types.EvidenceCommit,
			Label: "Linked commit",
			Value: shortRef(l.Ref),
			URL:   l.URL,
		})
	}
	if !h.UpdatedAt.IsZero() {
		chips = append(chips, types.EvidenceChip{
			Type:  types.EvidenceTime,
			Label: "Updated",
			Value: ago(now, h.UpdatedAt),
		})
	}
	return chips
}

func latest(links []Link) (Link, bool) {
	if len(links) == 0 {
		return Link{}, false
	}
	best := links[0]
	for _, l := range links[1:] {
		if l.At.After(best.At) {
			best = l
		}
	}
	return best, true
}

func shortRef(ref string) string {
	if len(ref) > 7 {
		return ref[:7]
	}
	return ref
}

func ago(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
