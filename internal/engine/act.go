package engine

import (
	"context"

	"github.com/af-corp/intentd/internal/types"
)

// Act executes, or cancels, a previously drafted command. The command must
// match a stored draft for the same tenant and user; each draft is usable
// once, so replays are rejected with ConfirmationMismatch.
func (e *Engine) Act(ctx context.Context, req types.ActRequest) (resp types.ActResponse, err error) {
	resp = types.ActResponse{RequestID: req.RequestID, State: types.StateReceived}
	cmd := req.ActionCommand
	start := e.now()

	defer func() {
		rec := types.IntentHistoryRecord{
			RequestID: req.RequestID,
			Operation: types.OpAct,
			TenantID:  req.TenantID,
			UserID:    req.UserID,
			State:     resp.State,
		}
		if cmd.ID != "" {
			c := cmd
			rec.ActionCommand = &c
		}
		if resp.Result.Message != "" {
			r := resp.Result
			rec.ActionResult = &r
		}
		if err != nil {
			rec.ErrorKind = types.KindOf(err)
		}
		e.audit.Record(rec)
		e.metrics.RecordAct(actOutcome(resp.State, err))
		e.logger.Info("act finished",
			"request_id", req.RequestID,
			"tenant_id", req.TenantID,
			"user_id", req.UserID,
			"command_id", cmd.ID,
			"action", cmd.Type,
			"confirmed", req.Confirmed,
			"state", resp.State,
			"duration_ms", e.now().Sub(start).Milliseconds(),
			"error_kind", rec.ErrorKind,
		)
	}()

	rl := e.admit(ctx, req.TenantID, req.UserID)
	resp.RateLimit = rl.Info()
	if !rl.Allowed {
		resp.State = types.StateRejected
		return resp, errRateLimited
	}

	if cmd.ID == "" {
		resp.State = types.StateRejected
		return resp, types.NewError(types.KindInvalidRequest, "actionCommand.id is required")
	}

	// The draft is consumed even when the caller declines it.
	cctx, end := e.stage(context.WithoutCancel(ctx), "confirm", req.RequestID, req.TenantID)
	cerr := e.drafts.Consume(cctx, req.TenantID, req.UserID, cmd)
	end(cerr)
	if cerr != nil {
		resp.State = types.StateRejected
		e.logger.Warn("confirmation rejected",
			"request_id", req.RequestID,
			"tenant_id", req.TenantID,
			"command_id", cmd.ID,
			"error", cerr,
		)
		return resp, cerr
	}

	if !req.Confirmed {
		resp.State = types.StateRejected
		resp.Result = types.ActionResult{Success: false, Message: "Action cancelled"}
		return resp, nil
	}

	resp.State = types.StateExecuting
	resp.Result = e.execute(ctx, req.RequestID, req.TenantID, req.UserID, cmd)
	if !resp.Result.Success {
		resp.State = types.StateFailed
		return resp, types.NewError(types.KindExecutionFailed, resp.Result.Message)
	}
	resp.State = types.StateCompleted
	return resp, nil
}

func actOutcome(state types.State, err error) string {
	switch types.KindOf(err) {
	case types.KindRateLimited:
		return "rate_limited"
	case types.KindConfirmationMismatch:
		return "mismatch"
	case types.KindInvalidRequest:
		return "invalid"
	}
	if err == nil && state == types.StateRejected {
		return "cancelled"
	}
	return string(state)
}
