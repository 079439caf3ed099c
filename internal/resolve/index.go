package resolve

import (
	"context"
	"time"

	"github.com/af-corp/intentd/internal/types"
)

// Query is one tenant-scoped similarity lookup. TenantID is mandatory and
// is applied by the index itself.
type Query struct {
	TenantID  string
	Phrase    string
	Type      types.EntityType // empty matches every type
	Embedding []float32        // nil selects lexical ranking
	Limit     int
}

// Link is a pull request or commit attached to a work item.
type Link struct {
	Ref string    `json:"ref"`
	URL string    `json:"url,omitempty"`
	At  time.Time `json:"at"`
}

// Hit is a work item returned by an index with its raw similarity.
type Hit struct {
	TenantID   string
	ID         string
	Key        string // human key such as PROJ-142, may be empty
	Type       types.EntityType
	Title      string
	State      string
	AssigneeID string
	AssignedAt time.Time
	UpdatedAt  time.Time
	PRs        []Link
	Commits    []Link
	Similarity float64
}

// Index is the vector-similarity store of work items.
type Index interface {
	Search(ctx context.Context, q Query) ([]Hit, error)
	// Get loads items by id within one tenant. Unknown ids are skipped.
	Get(ctx context.Context, tenantID string, ids []string) ([]Hit, error)
	Ping(ctx context.Context) error
}
