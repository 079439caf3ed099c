package llm

import (
	"context"
	"errors"
	"fmt"
)

// CompletionRequest is a single-turn structured-output request.
type CompletionRequest struct {
	Model       string
	System      string
	User        string
	MaxTokens   int
	Temperature float64
	// JSON asks the provider to constrain output to a JSON object where supported.
	JSON bool
}

type Completion struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Adapter talks to one language-model provider.
type Adapter interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// StatusError is returned when a provider answers with a non-2xx status.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Retryable reports whether err is worth retrying on another provider.
// Client errors other than 408 and 429 are not.
func Retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == 408 || se.StatusCode == 429
	}
	return true
}

// truncate bounds provider error bodies kept in error messages.
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
