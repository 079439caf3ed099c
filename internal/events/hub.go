// Package events fans out action lifecycle events to subscribers of the
// same tenant.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/af-corp/intentd/internal/telemetry"
	"github.com/af-corp/intentd/internal/types"
)

type Type string

const (
	TypeAwaitingConfirmation Type = "action.awaiting_confirmation"
	TypeCompleted            Type = "action.completed"
	TypeFailed               Type = "action.failed"
)

type Event struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	TenantID  string          `json:"tenantId"`
	UserID    string          `json:"userId"`
	CommandID string          `json:"commandId"`
	Action    types.Intent    `json:"action"`
	EntityID  string          `json:"entityId,omitempty"`
	Risk      types.RiskLevel `json:"risk,omitempty"`
	Message   string          `json:"message,omitempty"`
	At        time.Time       `json:"at"`
}

// Publisher forwards events to other instances.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Hub is an in-process fan-out. Each process only reaches its own
// subscribers; multi-instance deployments attach a relay.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[*Subscription]struct{}
	buffer  func() int
	relay   Publisher
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

func NewHub(buffer func() int, metrics *telemetry.Metrics, logger *slog.Logger) *Hub {
	return &Hub{
		subs:    make(map[string]map[*Subscription]struct{}),
		buffer:  buffer,
		metrics: metrics,
		logger:  logger,
	}
}

// SetRelay attaches a cross-instance publisher. Call before serving.
func (h *Hub) SetRelay(p Publisher) {
	h.relay = p
}

// Subscription receives events for one tenant until Close.
type Subscription struct {
	C        <-chan Event
	ch       chan Event
	tenantID string
	hub      *Hub
	once     sync.Once
}

func (h *Hub) Subscribe(tenantID string) *Subscription {
	size := h.buffer()
	if size <= 0 {
		size = 32
	}
	ch := make(chan Event, size)
	s := &Subscription{C: ch, ch: ch, tenantID: tenantID, hub: h}

	h.mu.Lock()
	set, ok := h.subs[tenantID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[tenantID] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()

	h.metrics.SubscriberDelta(1)
	return s
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		if set, ok := h.subs[s.tenantID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, s.tenantID)
			}
		}
		close(s.ch)
		h.mu.Unlock()
		h.metrics.SubscriberDelta(-1)
	})
}

// Publish delivers ev locally and hands it to the relay, if any.
func (h *Hub) Publish(ctx context.Context, ev Event) {
	h.Deliver(ev)
	if h.relay == nil {
		return
	}
	if err := h.relay.Publish(ctx, ev); err != nil {
		h.logger.Warn("event relay publish failed",
			"tenant_id", ev.TenantID,
			"event", ev.Type,
			"error", err,
		)
	}
}

// Deliver sends ev to local subscribers of its tenant. Slow subscribers
// miss events rather than block the pipeline.
func (h *Hub) Deliver(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[ev.TenantID] {
		select {
		case s.ch <- ev:
		default:
			h.logger.Warn("event subscriber too slow, dropping event",
				"tenant_id", ev.TenantID,
				"event", ev.Type,
				"event_id", ev.ID,
			)
		}
	}
}

// Subscribers returns the number of local subscribers for a tenant.
func (h *Hub) Subscribers(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[tenantID])
}
