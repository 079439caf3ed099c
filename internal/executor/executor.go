// Package executor performs confirmed actions against the work-item service.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/af-corp/intentd/internal/action"
	"github.com/af-corp/intentd/internal/config"
	"github.com/af-corp/intentd/internal/telemetry"
	"github.com/af-corp/intentd/internal/types"
)

// Request identifies who an action runs on behalf of.
type Request struct {
	RequestID string
	TenantID  string
	UserID    string
	Command   types.ActionCommand
}

// Executor calls the owning service's mutation endpoints. It never writes
// to that service's storage directly.
type Executor struct {
	client  *http.Client
	cfg     func() config.ExecutorConfig
	limiter *rate.Limiter
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

func New(cfg func() config.ExecutorConfig, client *http.Client, metrics *telemetry.Metrics, logger *slog.Logger) *Executor {
	if client == nil {
		client = &http.Client{}
	}
	c := cfg()
	limit := rate.Inf
	if c.MaxRPS > 0 {
		limit = rate.Limit(c.MaxRPS)
	}
	burst := int(c.MaxRPS)
	if burst < 1 {
		burst = 1
	}
	return &Executor{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		metrics: metrics,
		logger:  logger,
	}
}

// endpoint is the downstream call for one action type.
type endpoint struct {
	method string
	path   string
	body   map[string]any
}

func route(req Request) (endpoint, error) {
	cmd := req.Command
	item := "/v1/items/" + url.PathEscape(cmd.EntityID)
	switch cmd.Type {
	case types.IntentShowStatus:
		return endpoint{method: http.MethodGet, path: item}, nil
	case types.IntentTakeOwnership:
		return endpoint{method: http.MethodPut, path: item + "/assignee", body: map[string]any{"assigneeId": req.UserID}}, nil
	case types.IntentUnassign:
		return endpoint{method: http.MethodDelete, path: item + "/assignee"}, nil
	case types.IntentMarkComplete:
		return endpoint{method: http.MethodPut, path: item + "/status", body: map[string]any{"status": "done"}}, nil
	case types.IntentUpdateStatus:
		return endpoint{method: http.MethodPut, path: item + "/status", body: map[string]any{"status": cmd.Parameters["status"]}}, nil
	case types.IntentCreateItem:
		body := map[string]any{
			"type":      cmd.Parameters["type"],
			"title":     cmd.Parameters["title"],
			"createdBy": req.UserID,
		}
		if cmd.EntityID != "" {
			body["parentId"] = cmd.EntityID
		}
		return endpoint{method: http.MethodPost, path: "/v1/items", body: body}, nil
	case types.IntentCloseSprint:
		return endpoint{method: http.MethodPost, path: "/v1/sprints/" + url.PathEscape(cmd.EntityID) + "/close",
			body: map[string]any{"carryOver": true}}, nil
	case types.IntentDeleteItem:
		return endpoint{method: http.MethodDelete, path: item}, nil
	}
	return endpoint{}, fmt.Errorf("no endpoint for action %q", cmd.Type)
}

// Execute runs the command and always returns exactly one ActionResult.
// Idempotent actions are retried on network errors and 5xx responses;
// everything else runs at most once.
func (e *Executor) Execute(ctx context.Context, req Request) (res types.ActionResult) {
	cmd := req.Command
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("executor panic",
				"request_id", req.RequestID,
				"tenant_id", req.TenantID,
				"action", cmd.Type,
				"panic", r,
			)
			res = failure(cmd, "internal executor error")
		}
	}()

	ep, err := route(req)
	if err != nil {
		return failure(cmd, err.Error())
	}

	cfg := e.cfg()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	tries := uint(1)
	if action.Idempotent(cmd.Type) && cfg.MaxRetries > 0 {
		tries = uint(cfg.MaxRetries) + 1
	}
	b := backoff.NewExponentialBackOff()
	if cfg.InitialBackoff > 0 {
		b.InitialInterval = cfg.InitialBackoff
	}
	b.MaxInterval = 2 * time.Second

	attempt := 0
	data, err := backoff.Retry(ctx, func() (map[string]any, error) {
		attempt++
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		data, err := e.call(ctx, req, ep)
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		e.metrics.RecordExecutorAttempt(string(cmd.Type), outcome)
		return data, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(tries))

	if err != nil {
		e.logger.Warn("action execution failed",
			"request_id", req.RequestID,
			"tenant_id", req.TenantID,
			"action", cmd.Type,
			"entity_id", cmd.EntityID,
			"attempts", attempt,
			"error", err,
		)
		return failure(cmd, downstreamDetail(err))
	}
	return types.ActionResult{
		Success: true,
		Message: successMessage(cmd),
		Data:    data,
	}
}

// StatusError is a non-2xx response from the work-item service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("work-item service returned %d: %s", e.StatusCode, e.Body)
}

func (e *Executor) call(ctx context.Context, req Request, ep endpoint) (map[string]any, error) {
	cfg := e.cfg()
	var body io.Reader
	if ep.body != nil {
		b, err := json.Marshal(ep.body)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("marshal request: %w", err))
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, ep.method, strings.TrimRight(cfg.BaseURL, "/")+ep.path, body)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", req.TenantID)
	httpReq.Header.Set("X-User-ID", req.UserID)
	httpReq.Header.Set("X-Request-ID", req.RequestID)
	httpReq.Header.Set("Idempotency-Key", req.Command.ID)
	if cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		serr := &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 512)}
		if resp.StatusCode >= 500 {
			return nil, serr
		}
		return nil, backoff.Permanent(serr)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return data, nil
}

func failure(cmd types.ActionCommand, detail string) types.ActionResult {
	return types.ActionResult{
		Success: false,
		Message: "Could not " + strings.ToLower(firstOr(cmd.Description, string(cmd.Type))),
		Errors:  []string{detail},
	}
}

func downstreamDetail(err error) string {
	var serr *StatusError
	if errors.As(err, &serr) {
		return serr.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "work-item service timed out"
	}
	if errors.Is(err, context.Canceled) {
		return "request cancelled"
	}
	return err.Error()
}

func successMessage(cmd types.ActionCommand) string {
	if cmd.Description == "" {
		return "Done"
	}
	return "Done: " + cmd.Description
}

func firstOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
