// Package engine runs the interpret and act pipelines: rate limiting,
// parsing, resolution, disambiguation, drafting, confirmation, execution
// and audit.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/af-corp/intentd/internal/action"
	"github.com/af-corp/intentd/internal/config"
	"github.com/af-corp/intentd/internal/events"
	"github.com/af-corp/intentd/internal/executor"
	"github.com/af-corp/intentd/internal/identity"
	"github.com/af-corp/intentd/internal/intent"
	"github.com/af-corp/intentd/internal/ratelimit"
	"github.com/af-corp/intentd/internal/redact"
	"github.com/af-corp/intentd/internal/resolve"
	"github.com/af-corp/intentd/internal/telemetry"
	"github.com/af-corp/intentd/internal/types"
)

const (
	maxUtteranceRunes  = 2000
	maxContextEntities = 10
)

// Executor performs a confirmed action and always returns one result.
type Executor interface {
	Execute(ctx context.Context, req executor.Request) types.ActionResult
}

// Recorder accepts history records without blocking.
type Recorder interface {
	Record(rec types.IntentHistoryRecord)
}

type Deps struct {
	Config   func() *config.Config
	Limiter  *ratelimit.Limiter
	Parser   *intent.Parser
	Resolver *resolve.Resolver
	Drafter  *action.Drafter
	Drafts   *action.DraftStore
	Executor Executor
	Audit    Recorder
	Events   *events.Hub // optional
	Scanner  *redact.Scanner
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
}

// Engine holds no per-request state; concurrent calls share only the
// rate limiter, draft store and audit writer.
type Engine struct {
	cfg      func() *config.Config
	limiter  *ratelimit.Limiter
	parser   *intent.Parser
	resolver *resolve.Resolver
	drafter  *action.Drafter
	drafts   *action.DraftStore
	executor Executor
	audit    Recorder
	events   *events.Hub
	scanner  *redact.Scanner
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

func New(d Deps) *Engine {
	return &Engine{
		cfg:      d.Config,
		limiter:  d.Limiter,
		parser:   d.Parser,
		resolver: d.Resolver,
		drafter:  d.Drafter,
		drafts:   d.Drafts,
		executor: d.Executor,
		audit:    d.Audit,
		events:   d.Events,
		scanner:  d.Scanner,
		metrics:  d.Metrics,
		logger:   d.Logger,
		now:      time.Now,
	}
}

// admit applies the (tenant, user) rate limit. A per-key limit from the
// caller's identity overrides the configured default.
func (e *Engine) admit(ctx context.Context, tenantID, userID string) ratelimit.LimitResult {
	cfg := e.cfg().RateLimit
	limit := cfg.Limit
	if id, ok := identity.FromContext(ctx); ok && id.RateLimit != nil && *id.RateLimit > 0 {
		limit = *id.RateLimit
	}
	res := e.limiter.Allow(ctx, tenantID, userID, limit, cfg.Window)
	if !res.Allowed {
		e.metrics.RecordRateLimited()
	}
	return res
}

var errRateLimited = types.NewError(types.KindRateLimited, "rate limit exceeded; retry after the reset time")

// stage opens a span for one pipeline stage and returns its finisher,
// which also records the stage duration.
func (e *Engine) stage(ctx context.Context, name, requestID, tenantID string) (context.Context, func(error)) {
	start := e.now()
	ctx, span := telemetry.StartStage(ctx, name,
		attribute.String("request_id", requestID),
		attribute.String("tenant_id", tenantID),
	)
	return ctx, func(err error) {
		telemetry.EndStage(span, err)
		e.metrics.ObserveStage(name, float64(e.now().Sub(start).Milliseconds()))
	}
}

// execute runs cmd to completion even if the caller goes away, so a
// confirmed action is never abandoned half way.
func (e *Engine) execute(ctx context.Context, requestID, tenantID, userID string, cmd types.ActionCommand) types.ActionResult {
	ctx, end := e.stage(context.WithoutCancel(ctx), "execute", requestID, tenantID)
	res := e.executor.Execute(ctx, executor.Request{
		RequestID: requestID,
		TenantID:  tenantID,
		UserID:    userID,
		Command:   cmd,
	})
	var err error
	if !res.Success {
		err = errors.New(res.Message)
	}
	end(err)

	typ := events.TypeCompleted
	if !res.Success {
		typ = events.TypeFailed
	}
	e.publish(ctx, typ, tenantID, userID, cmd, res.Message)
	return res
}

func (e *Engine) publish(ctx context.Context, typ events.Type, tenantID, userID string, cmd types.ActionCommand, message string) {
	if e.events == nil {
		return
	}
	e.events.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		TenantID:  tenantID,
		UserID:    userID,
		CommandID: cmd.ID,
		Action:    cmd.Type,
		EntityID:  cmd.EntityID,
		Risk:      cmd.RiskLevel,
		Message:   message,
		At:        e.now().UTC(),
	})
}

func validateInterpret(req types.InterpretRequest) error {
	u := strings.TrimSpace(req.Utterance)
	if u == "" {
		return types.NewError(types.KindInvalidRequest, "utterance is required")
	}
	if utf8.RuneCountInString(u) > maxUtteranceRunes {
		return types.NewError(types.KindInvalidRequest, fmt.Sprintf("utterance exceeds %d characters", maxUtteranceRunes))
	}
	if len(req.ContextEntities) > maxContextEntities {
		return types.NewError(types.KindInvalidRequest, fmt.Sprintf("at most %d context entities are allowed", maxContextEntities))
	}
	for _, ref := range req.ContextEntities {
		if ref.ID == "" {
			return types.NewError(types.KindInvalidRequest, "context entity id is required")
		}
		if ref.Type != "" {
			if _, ok := types.ParseEntityType(string(ref.Type)); !ok {
				return types.NewError(types.KindInvalidRequest, fmt.Sprintf("unknown context entity type %q", ref.Type))
			}
		}
	}
	if req.SelectedEntityID != "" && strings.TrimSpace(req.SelectedEntityID) != req.SelectedEntityID {
		return types.NewError(types.KindInvalidRequest, "selected entity id must not contain surrounding whitespace")
	}
	return nil
}
