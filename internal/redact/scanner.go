// Package redact masks credentials in utterances before they reach a
// language-model provider, a log line or the audit store.
package redact

import (
	"sort"
	"strings"
)

// Detection represents a detected secret in text.
type Detection struct {
	PatternName string
	Start       int // byte offset
	End         int // byte offset
}

// Scanner scans text for secrets using pre-compiled regex patterns.
type Scanner struct {
	patterns []Pattern
}

// NewScanner creates a scanner with the default secret patterns.
func NewScanner() *Scanner {
	return &Scanner{patterns: DefaultPatterns()}
}

// Scan checks a single text string for secrets and returns all detections.
func (s *Scanner) Scan(text string) []Detection {
	var detections []Detection
	for _, p := range s.patterns {
		for _, loc := range p.Regex.FindAllStringIndex(text, -1) {
			detections = append(detections, Detection{
				PatternName: p.Name,
				Start:       loc[0],
				End:         loc[1],
			})
		}
	}
	return detections
}

// Redact replaces every detected secret with a [REDACTED:<pattern>] marker.
// Overlapping detections are merged and take the name of the earliest match.
func (s *Scanner) Redact(text string) (string, []Detection) {
	detections := s.Scan(text)
	if len(detections) == 0 {
		return text, nil
	}

	sort.Slice(detections, func(i, j int) bool {
		if detections[i].Start != detections[j].Start {
			return detections[i].Start < detections[j].Start
		}
		return detections[i].End > detections[j].End
	})

	merged := []Detection{detections[0]}
	for _, d := range detections[1:] {
		last := &merged[len(merged)-1]
		if d.Start < last.End {
			if d.End > last.End {
				last.End = d.End
			}
			continue
		}
		merged = append(merged, d)
	}

	var b strings.Builder
	prev := 0
	for _, d := range merged {
		b.WriteString(text[prev:d.Start])
		b.WriteString("[REDACTED:")
		b.WriteString(d.PatternName)
		b.WriteString("]")
		prev = d.End
	}
	b.WriteString(text[prev:])
	return b.String(), merged
}
