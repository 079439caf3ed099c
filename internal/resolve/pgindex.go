package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/af-corp/intentd/internal/types"
)

// PGIndex searches work_items in PostgreSQL with pgvector cosine distance,
// or pg_trgm similarity when no embedding is available. Every statement
// filters on tenant_id; there is no unscoped query path.
type PGIndex struct {
	db *pgxpool.Pool
}

func NewPGIndex(db *pgxpool.Pool) *PGIndex {
	return &PGIndex{db: db}
}

const hitColumns = `tenant_id, id, key, type, title, state, assignee_id, assigned_at, updated_at, linked_prs, linked_commits`

const vectorSearchSQL = `
	SELECT ` + hitColumns + `, 1 - (embedding <=> $2::vector) AS similarity
	FROM work_items
	WHERE tenant_id = $1
	  AND embedding IS NOT NULL
	  AND ($3 = '' OR type = $3)
	ORDER BY embedding <=> $2::vector
	LIMIT $4`

const lexicalSearchSQL = `
	SELECT ` + hitColumns + `, GREATEST(similarity(title, $2), similarity(key, $2)) AS similarity
	FROM work_items
	WHERE tenant_id = $1
	  AND ($3 = '' OR type = $3)
	  AND (title % $2 OR key ILIKE $2)
	ORDER BY similarity DESC
	LIMIT $4`

const getSQL = `
	SELECT ` + hitColumns + `, 0::float8 AS similarity
	FROM work_items
	WHERE tenant_id = $1 AND id = ANY($2)`

func (p *PGIndex) Search(ctx context.Context, q Query) ([]Hit, error) {
	if q.TenantID == "" {
		return nil, fmt.Errorf("search work_items: tenant id is required")
	}
	var rows pgx.Rows
	var err error
	if q.Embedding != nil {
		rows, err = p.db.Query(ctx, vectorSearchSQL, q.TenantID, vectorLiteral(q.Embedding), string(q.Type), q.Limit)
	} else {
		rows, err = p.db.Query(ctx, lexicalSearchSQL, q.TenantID, q.Phrase, string(q.Type), q.Limit)
	}
	if err != nil {
		return nil, fmt.Errorf("search work_items: %w", err)
	}
	return scanHits(rows)
}

func (p *PGIndex) Get(ctx context.Context, tenantID string, ids []string) ([]Hit, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("get work_items: tenant id is required")
	}
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := p.db.Query(ctx, getSQL, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("get work_items: %w", err)
	}
	return scanHits(rows)
}

func (p *PGIndex) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

func scanHits(rows pgx.Rows) ([]Hit, error) {
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var key, assignee *string
		var assignedAt *time.Time
		var prs, commits []byte
		var typ string
		if err := rows.Scan(
			&h.TenantID, &h.ID, &key, &typ, &h.Title, &h.State,
			&assignee, &assignedAt, &h.UpdatedAt, &prs, &commits, &h.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scan work_item: %w", err)
		}
		h.Type = types.EntityType(typ)
		if key != nil {
			h.Key = *key
		}
		if assignee != nil {
			h.AssigneeID = *assignee
		}
		if assignedAt != nil {
			h.AssignedAt = *assignedAt
		}
		if len(prs) > 0 {
			if err := json.Unmarshal(prs, &h.PRs); err != nil {
				return nil, fmt.Errorf("decode linked_prs for %s: %w", h.ID, err)
			}
		}
		if len(commits) > 0 {
			if err := json.Unmarshal(commits, &h.Commits); err != nil {
				return nil, fmt.Errorf("decode linked_commits for %s: %w", h.ID, err)
			}
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate work_items: %w", err)
	}
	return hits, nil
}

// vectorLiteral formats v in pgvector's text input form: [x,y,...].
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
