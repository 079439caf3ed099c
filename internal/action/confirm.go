package action

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/af-corp/intentd/internal/types"
)

const draftKeyPrefix = "intentd:draft:"

// ErrConfirmationMismatch is returned when a confirmation does not match a
// pending draft, either because none exists or because it differs.
var ErrConfirmationMismatch = types.NewError(types.KindConfirmationMismatch,
	"action does not match a pending draft; request a fresh draft")

// Fingerprint hashes the canonical JSON of cmd bound to its tenant and user.
// encoding/json sorts map keys, so equal commands hash equally.
func Fingerprint(tenantID, userID string, cmd types.ActionCommand) (string, error) {
	b, err := json.Marshal(cmd)
	if err != nil {
		return "", fmt.Errorf("marshal command: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(tenantID))
	h.Write([]byte{0})
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DraftStore holds fingerprints of commands awaiting confirmation. Consume
// is atomic, so a draft executes at most once.
type DraftStore struct {
	rdb    *redis.Client
	local  *localDrafts
	ttl    func() time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewDraftStore creates a draft store. With a nil client drafts are held
// in process memory only.
func NewDraftStore(rdb *redis.Client, ttl func() time.Duration, logger *slog.Logger) *DraftStore {
	return &DraftStore{
		rdb:    rdb,
		local:  &localDrafts{entries: make(map[string]localDraft)},
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

func draftKey(tenantID, commandID string) string {
	return draftKeyPrefix + strconv.Itoa(len(tenantID)) + ":" + tenantID + ":" + commandID
}

// Save records cmd as the pending draft for its id.
func (s *DraftStore) Save(ctx context.Context, tenantID, userID string, cmd types.ActionCommand) error {
	fp, err := Fingerprint(tenantID, userID, cmd)
	if err != nil {
		return err
	}
	key := draftKey(tenantID, cmd.ID)
	ttl := s.ttl()
	if s.rdb != nil {
		err := s.rdb.Set(ctx, key, fp, ttl).Err()
		if err == nil {
			return nil
		}
		s.logger.Warn("draft store unavailable, keeping draft in memory",
			"tenant_id", tenantID,
			"command_id", cmd.ID,
			"error", err,
		)
	}
	s.local.put(key, fp, s.now().Add(ttl))
	return nil
}

// Consume removes the pending draft for cmd.ID and checks that cmd matches
// it. A mismatch still consumes the draft.
func (s *DraftStore) Consume(ctx context.Context, tenantID, userID string, cmd types.ActionCommand) error {
	if cmd.ID == "" {
		return ErrConfirmationMismatch
	}
	fp, err := Fingerprint(tenantID, userID, cmd)
	if err != nil {
		return types.WrapError(types.KindInvalidRequest, "action command cannot be encoded", err)
	}
	key := draftKey(tenantID, cmd.ID)

	stored, ok := "", false
	if s.rdb != nil {
		v, err := s.rdb.GetDel(ctx, key).Result()
		switch {
		case err == nil:
			stored, ok = v, true
		case errors.Is(err, redis.Nil):
		default:
			s.logger.Warn("draft store unavailable, checking memory",
				"tenant_id", tenantID,
				"command_id", cmd.ID,
				"error", err,
			)
		}
	}
	if !ok {
		stored, ok = s.local.take(key, s.now())
	}
	if !ok || stored != fp {
		return ErrConfirmationMismatch
	}
	return nil
}

type localDraft struct {
	fingerprint string
	expiresAt   time.Time
}

type localDrafts struct {
	mu      sync.Mutex
	entries map[string]localDraft
}

func (l *localDrafts) put(key, fp string, expiresAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[key] = localDraft{fingerprint: fp, expiresAt: expiresAt}
}

func (l *localDrafts) take(key string, now time.Time) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, e := range l.entries {
		if now.After(e.expiresAt) {
			delete(l.entries, k)
		}
	}
	e, ok := l.entries[key]
	if !ok {
		return "", false
	}
	delete(l.entries, key)
	return e.fingerprint, true
}
