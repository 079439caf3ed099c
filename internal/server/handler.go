// Package server exposes the interpret and act pipelines over HTTP and
// reports readiness over HTTP and gRPC health.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/af-corp/intentd/internal/events"
	"github.com/af-corp/intentd/internal/httputil"
	"github.com/af-corp/intentd/internal/identity"
	"github.com/af-corp/intentd/internal/ratelimit"
	"github.com/af-corp/intentd/internal/types"
)

const maxBodyBytes = 64 << 10

// Pipeline is the engine as seen by the HTTP layer.
type Pipeline interface {
	Interpret(ctx context.Context, req types.InterpretRequest) (types.InterpretResponse, error)
	Act(ctx context.Context, req types.ActRequest) (types.ActResponse, error)
}

// Handler holds dependencies for the HTTP handlers.
type Handler struct {
	pipeline Pipeline
	hub      *events.Hub
	logger   *slog.Logger
	now      func() time.Time
}

// NewHandler creates a Handler. hub may be nil, which disables /v1/events.
func NewHandler(pipeline Pipeline, hub *events.Hub, logger *slog.Logger) *Handler {
	return &Handler{pipeline: pipeline, hub: hub, logger: logger, now: time.Now}
}

// Interpret handles POST /v1/interpret
func (h *Handler) Interpret(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := h.now()

	id, ok := identity.FromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	var req types.InterpretRequest
	if !h.decode(w, r, reqID, &req) {
		return
	}
	req.RequestID = reqID
	req.TenantID = id.TenantID
	req.UserID = id.UserID
	req.ReceivedAt = receivedAt

	resp, err := h.pipeline.Interpret(r.Context(), req)
	h.respond(w, reqID, resp.RateLimit, resp, err)
}

// Act handles POST /v1/act
func (h *Handler) Act(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := h.now()

	id, ok := identity.FromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	var req types.ActRequest
	if !h.decode(w, r, reqID, &req) {
		return
	}
	req.RequestID = reqID
	req.TenantID = id.TenantID
	req.UserID = id.UserID
	req.ReceivedAt = receivedAt

	resp, err := h.pipeline.Act(r.Context(), req)
	h.respond(w, reqID, resp.RateLimit, resp, err)
}

// Events handles GET /v1/events
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	id, ok := identity.FromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}
	if h.hub == nil {
		httputil.WriteServiceUnavailableError(w, reqID, "Event stream is disabled")
		return
	}
	events.ServeSSE(w, r, h.hub, id.TenantID, reqID)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, reqID string, v any) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteBadRequestError(w, reqID, "Request body too large")
			return false
		}
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return false
	}
	return true
}

// respond writes rate-limit headers on every outcome. Execution failures
// carry the full response so the caller sees the downstream detail.
func (h *Handler) respond(w http.ResponseWriter, reqID string, rl types.RateLimitInfo, body any, err error) {
	ratelimit.SetHeaders(w.Header(), rl)
	if err == nil {
		httputil.WriteJSON(w, reqID, http.StatusOK, body)
		return
	}

	switch kind := types.KindOf(err); kind {
	case types.KindRateLimited:
		ratelimit.SetRetryAfter(w.Header(), rl, h.now())
	case types.KindExecutionFailed:
		httputil.WriteJSON(w, reqID, http.StatusBadGateway, body)
		return
	case types.KindTenantIsolationViolation, types.KindInternal:
		h.logger.Error("request failed", "request_id", reqID, "kind", kind, "error", err)
	}
	httputil.WriteKindError(w, reqID, err)
}
