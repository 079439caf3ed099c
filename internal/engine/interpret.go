package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/af-corp/intentd/internal/action"
	"github.com/af-corp/intentd/internal/disambiguate"
	"github.com/af-corp/intentd/internal/events"
	"github.com/af-corp/intentd/internal/intent"
	"github.com/af-corp/intentd/internal/resolve"
	"github.com/af-corp/intentd/internal/types"
)

// Interpret turns an utterance into an IntentResult and, when a target is
// selected, a drafted ActionCommand. Low-risk commands that need no
// confirmation are executed immediately if auto-execute is enabled.
//
// The returned response is always populated, even alongside an error, and
// exactly one history record is written per call.
func (e *Engine) Interpret(ctx context.Context, req types.InterpretRequest) (resp types.InterpretResponse, err error) {
	resp = types.InterpretResponse{
		RequestID: req.RequestID,
		State:     types.StateReceived,
		Intent:    types.IntentResult{Entities: []types.CandidateEntity{}},
	}

	utterance, detections := e.scanner.Redact(req.Utterance)
	parsed := false
	start := e.now()

	defer func() {
		rec := types.IntentHistoryRecord{
			RequestID:     req.RequestID,
			Operation:     types.OpInterpret,
			Utterance:     utterance,
			TenantID:      req.TenantID,
			UserID:        req.UserID,
			State:         resp.State,
			ActionCommand: resp.Action,
			ActionResult:  resp.Result,
		}
		if err != nil {
			rec.ErrorKind = types.KindOf(err)
		}
		if parsed {
			ir := resp.Intent
			rec.IntentResult = &ir
		}
		e.audit.Record(rec)
		e.metrics.RecordInterpret(string(resp.State), string(resp.Intent.Source))
		e.logger.Info("interpret finished",
			"request_id", req.RequestID,
			"tenant_id", req.TenantID,
			"user_id", req.UserID,
			"state", resp.State,
			"intent", resp.Intent.Intent,
			"source", resp.Intent.Source,
			"candidates", len(resp.Intent.Entities),
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

	if err := validateInterpret(req); err != nil {
		resp.State = types.StateRejected
		return resp, err
	}
	if len(detections) > 0 {
		e.logger.Warn("secrets redacted from utterance",
			"request_id", req.RequestID,
			"tenant_id", req.TenantID,
			"count", len(detections),
		)
	}

	// Parse. Never fails: provider trouble falls back to heuristics.
	resp.State = types.StateParsing
	pctx, end := e.stage(ctx, "parse", req.RequestID, req.TenantID)
	out := e.parser.Parse(pctx, intent.Input{
		RequestID: req.RequestID,
		TenantID:  req.TenantID,
		Utterance: utterance,
		Context:   req.ContextEntities,
	})
	end(out.Err)
	parsed = true

	p := out.Parsed
	resp.Intent = types.IntentResult{
		Intent:     p.Intent,
		Confidence: p.Confidence,
		Entities:   []types.CandidateEntity{},
		Source:     p.Source,
	}
	if out.Reason != "" {
		resp.State = types.StateFallback
	}

	th := disambiguate.ThresholdsFor(e.cfg().Disambiguation, p.Source)
	if p.Intent == types.IntentUnknown {
		resp.Intent = disambiguate.Decide(p, nil, th)
		resp.State = types.StateAmbiguous
		return resp, nil
	}

	// Resolve and disambiguate. Creating an item with nothing to attach it
	// to needs no target.
	var target *types.CandidateEntity
	if p.Intent != types.IntentCreateItem || len(p.Descriptors) > 0 || len(req.ContextEntities) > 0 || req.SelectedEntityID != "" {
		if resp.State != types.StateFallback {
			resp.State = types.StateResolving
		}
		rctx, end := e.stage(ctx, "resolve", req.RequestID, req.TenantID)
		res, rerr := e.resolver.Resolve(rctx, resolve.Request{
			RequestID:   req.RequestID,
			TenantID:    req.TenantID,
			UserID:      req.UserID,
			Descriptors: p.Descriptors,
			Context:     req.ContextEntities,
			Selected:    req.SelectedEntityID,
			PreferState: action.RequiredState(p.Intent),
		})
		end(rerr)
		if rerr != nil {
			if types.KindOf(rerr) == types.KindTenantIsolationViolation {
				resp.State = types.StateFailed
				return resp, rerr
			}
			e.logger.Warn("candidate resolution failed",
				"request_id", req.RequestID,
				"tenant_id", req.TenantID,
				"error", rerr,
			)
		}

		resp.State = types.StateDisambiguating
		resp.Intent = disambiguate.Decide(p, res.Candidates, th)
		if req.SelectedEntityID != "" {
			chosen, ok := disambiguate.Choose(p, res.Candidates, req.SelectedEntityID)
			if !ok {
				resp.State = types.StateRejected
				return resp, types.NewError(types.KindInvalidRequest, "selected entity is not a candidate for this request")
			}
			resp.Intent = chosen
		}
		if resp.Intent.Ambiguous {
			resp.State = types.StateAmbiguous
			return resp, nil
		}
		resp.State = types.StateAutoSelected
		sel, _ := resp.Intent.Selected()
		target = &sel
	}

	// Draft.
	resp.State = types.StateDrafting
	dctx, end := e.stage(ctx, "draft", req.RequestID, req.TenantID)
	d, derr := e.drafter.Draft(dctx, action.DraftInput{
		RequestID:  req.RequestID,
		TenantID:   req.TenantID,
		UserID:     req.UserID,
		Intent:     p.Intent,
		Parameters: p.Parameters,
		Target:     target,
		Source:     p.Source,
	})
	end(derr)
	if derr != nil {
		if types.KindOf(derr) == types.KindInvalidRequest {
			resp.State = types.StateRejected
			resp.Result = &types.ActionResult{
				Success: false,
				Message: "Could not draft an action",
				Errors:  []string{errorMessage(derr)},
			}
			return resp, nil
		}
		resp.State = types.StateFailed
		return resp, types.WrapError(types.KindInternal, "drafting failed", derr)
	}

	cmd := d.Command
	resp.Action = &cmd
	if d.Denied {
		resp.State = types.StateRejected
		resp.Result = &types.ActionResult{
			Success: false,
			Message: "Action denied by policy",
			Errors:  deniedReasons(cmd),
		}
		return resp, nil
	}
	resp.State = types.StateDrafted

	if cmd.ConfirmationRequired || !e.cfg().Actions.AutoExecute {
		if serr := e.drafts.Save(ctx, req.TenantID, req.UserID, cmd); serr != nil {
			resp.State = types.StateFailed
			return resp, types.WrapError(types.KindInternal, "could not store draft", serr)
		}
		if cmd.ConfirmationRequired {
			resp.State = types.StateAwaitingConfirmation
			e.publish(ctx, events.TypeAwaitingConfirmation, req.TenantID, req.UserID, cmd, cmd.Description)
		}
		return resp, nil
	}

	// Auto-execute.
	resp.State = types.StateExecuting
	result := e.execute(ctx, req.RequestID, req.TenantID, req.UserID, cmd)
	resp.Result = &result
	if !result.Success {
		resp.State = types.StateFailed
		return resp, types.NewError(types.KindExecutionFailed, result.Message)
	}
	resp.State = types.StateCompleted
	return resp, nil
}

func errorMessage(err error) string {
	var te *types.Error
	if errors.As(err, &te) {
		return te.Message
	}
	return err.Error()
}

func deniedReasons(cmd types.ActionCommand) []string {
	var out []string
	for _, issue := range cmd.Draft.PotentialIssues {
		if strings.HasPrefix(issue, "Denied by policy") {
			out = append(out, issue)
		}
	}
	if len(out) == 0 {
		out = []string{fmt.Sprintf("%s is not permitted for this tenant", cmd.Type)}
	}
	return out
}
