package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/af-corp/intentd/internal/config"
	"github.com/af-corp/intentd/internal/telemetry"
	"github.com/af-corp/intentd/internal/types"
)

// Writer appends records in the background so responses never wait on the
// store. Records that cannot be written are logged and counted.
type Writer struct {
	store   Store
	cfg     func() config.AuditConfig
	metrics *telemetry.Metrics
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	ch     chan types.IntentHistoryRecord
	done   chan struct{}
}

// NewWriter starts the background writer. Call Close to drain it.
func NewWriter(store Store, cfg func() config.AuditConfig, metrics *telemetry.Metrics, logger *slog.Logger) *Writer {
	size := cfg().BufferSize
	if size <= 0 {
		size = 1024
	}
	w := &Writer{
		store:   store,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		ch:      make(chan types.IntentHistoryRecord, size),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Record enqueues rec without blocking. It fills ID and Timestamp when unset.
func (w *Writer) Record(rec types.IntentHistoryRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.drop(rec, "writer closed")
		return
	}
	select {
	case w.ch <- rec:
	default:
		w.drop(rec, "buffer full")
	}
}

func (w *Writer) drop(rec types.IntentHistoryRecord, reason string) {
	w.metrics.RecordAuditDropped()
	w.logger.Warn("audit record dropped",
		"reason", reason,
		"record_id", rec.ID,
		"request_id", rec.RequestID,
		"tenant_id", rec.TenantID,
		"operation", rec.Operation,
		"state", rec.State,
	)
}

func (w *Writer) run() {
	defer close(w.done)
	for rec := range w.ch {
		w.write(rec)
	}
}

func (w *Writer) write(rec types.IntentHistoryRecord) {
	timeout := w.cfg().WriteTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := w.store.Append(ctx, rec); err != nil {
		w.metrics.RecordAuditFailure()
		w.logger.Warn("audit write failed",
			"record_id", rec.ID,
			"request_id", rec.RequestID,
			"tenant_id", rec.TenantID,
			"operation", rec.Operation,
			"error", err,
		)
	}
}

// Ping checks the underlying store.
func (w *Writer) Ping(ctx context.Context) error {
	return w.store.Ping(ctx)
}

// Close stops accepting records and waits for queued ones to be written,
// or for ctx to end.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
