// Package audit appends one history record per interpret or act call.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/af-corp/intentd/internal/types"
)

// Store is an append-only sink for history records.
type Store interface {
	Append(ctx context.Context, rec types.IntentHistoryRecord) error
	Ping(ctx context.Context) error
}

// PGStore writes to the intent_history table. It only ever inserts.
type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const insertSQL = `
	INSERT INTO intent_history (
		id, request_id, operation, tenant_id, user_id, utterance, state, error_kind,
		intent_result, action_command, action_result, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

func (s *PGStore) Append(ctx context.Context, rec types.IntentHistoryRecord) error {
	intent, err := jsonOrNil(rec.IntentResult)
	if err != nil {
		return err
	}
	cmd, err := jsonOrNil(rec.ActionCommand)
	if err != nil {
		return err
	}
	result, err := jsonOrNil(rec.ActionResult)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, insertSQL,
		rec.ID, rec.RequestID, string(rec.Operation), rec.TenantID, rec.UserID, rec.Utterance,
		string(rec.State), string(rec.ErrorKind), intent, cmd, result, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert intent_history: %w", err)
	}
	return nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// jsonOrNil encodes v for a jsonb column; nil pointers become NULL.
func jsonOrNil[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return b, nil
}

// MemoryStore keeps records in process. Used for local runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records []types.IntentHistoryRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(_ context.Context, rec types.IntentHistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

// Records returns a copy of everything appended so far.
func (m *MemoryStore) Records() []types.IntentHistoryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.IntentHistoryRecord, len(m.records))
	copy(out, m.records)
	return out
}
