package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/af-corp/intentd/internal/config"
	"github.com/af-corp/intentd/internal/provider"
	"github.com/af-corp/intentd/internal/provider/llm"
	"github.com/af-corp/intentd/internal/ratelimit"
	"github.com/af-corp/intentd/internal/telemetry"
	"github.com/af-corp/intentd/internal/types"
)

// Fallback reasons, also used as metric labels.
const (
	ReasonTimeout       = "timeout"
	ReasonInvalid       = "invalid"
	ReasonLowConfidence = "low_confidence"
	ReasonProviderError = "provider_error"
	ReasonCircuitOpen   = "circuit_open"
	ReasonQuota         = "quota"
	ReasonNoProvider    = "no_provider"
)

// Input is what the parser sees of a request. Utterance must already be redacted.
type Input struct {
	RequestID string
	TenantID  string
	Utterance string
	Context   []types.EntityRef
}

// Outcome is the parse result plus how it was obtained.
type Outcome struct {
	Parsed   types.ParsedIntent
	Provider string
	// Reason is set when the heuristic path produced Parsed.
	Reason string
	// Err is the language-model failure that caused the fallback, if any.
	Err error
}

// Parser asks language-model providers for a structured intent and falls
// back to the heuristic parser whenever that fails. Parse never fails.
type Parser struct {
	registry  *llm.Registry
	health    *provider.HealthTracker
	quota     *ratelimit.TenantQuota
	heuristic *HeuristicParser
	cfg       func() config.ParserConfig
	quotaCfg  func() int64
	metrics   *telemetry.Metrics
	logger    *slog.Logger
}

func NewParser(
	registry *llm.Registry,
	health *provider.HealthTracker,
	quota *ratelimit.TenantQuota,
	cfg func() config.ParserConfig,
	quotaCfg func() int64,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
) *Parser {
	return &Parser{
		registry:  registry,
		health:    health,
		quota:     quota,
		heuristic: NewHeuristicParser(func() float64 { return cfg().HeuristicCeiling }),
		cfg:       cfg,
		quotaCfg:  quotaCfg,
		metrics:   metrics,
		logger:    logger,
	}
}

// Heuristic exposes the fallback parser.
func (p *Parser) Heuristic() *HeuristicParser { return p.heuristic }

func (p *Parser) Parse(ctx context.Context, in Input) Outcome {
	name, parsed, reason, err := p.parseLLM(ctx, in)
	if err == nil {
		return Outcome{Parsed: parsed, Provider: name}
	}

	p.metrics.RecordFallback(reason)
	p.logger.Info("intent parser falling back to heuristics",
		"request_id", in.RequestID,
		"tenant_id", in.TenantID,
		"reason", reason,
		"provider", name,
		"error", err,
	)
	return Outcome{
		Parsed:   p.heuristic.Parse(in.Utterance),
		Provider: name,
		Reason:   reason,
		Err:      err,
	}
}

// parseLLM walks the configured providers in order inside one timeout
// budget. Providers with an open circuit are skipped without a call.
func (p *Parser) parseLLM(ctx context.Context, in Input) (string, types.ParsedIntent, string, error) {
	cfg := p.cfg()
	if len(cfg.Providers) == 0 || p.registry == nil {
		return "", types.ParsedIntent{}, ReasonNoProvider, fmt.Errorf("%w: no providers configured", ErrParseInvalid)
	}

	if p.quota != nil && p.quotaCfg != nil {
		if q := p.quota.Take(ctx, in.TenantID, p.quotaCfg()); !q.Allowed {
			return "", types.ParsedIntent{}, ReasonQuota, fmt.Errorf("%w: tenant language-model quota exhausted (%d/%d)", ErrParseInvalid, q.Used, q.Limit)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	req := llm.CompletionRequest{
		Model:     cfg.Model,
		System:    systemPrompt(),
		User:      userPrompt(in.Utterance, in.Context),
		MaxTokens: cfg.MaxTokens,
		JSON:      true,
	}

	registered := 0
	lastName := ""
	lastReason := ReasonCircuitOpen
	lastErr := fmt.Errorf("%w: every provider circuit is open", ErrParseTimeout)

	for _, name := range cfg.Providers {
		adapter, ok := p.registry.Get(name)
		if !ok {
			continue
		}
		registered++
		if p.health != nil && !p.health.IsAvailable(name) {
			continue
		}
		lastName = name

		start := time.Now()
		completion, err := adapter.Complete(ctx, req)
		p.metrics.ObserveStage("llm_call", float64(time.Since(start).Milliseconds()))

		if err != nil {
			p.recordFailure(name)
			if ctx.Err() != nil {
				return name, types.ParsedIntent{}, ReasonTimeout, fmt.Errorf("%w: %s: %v", ErrParseTimeout, name, err)
			}
			lastReason, lastErr = ReasonProviderError, fmt.Errorf("%w: %s: %v", ErrParseInvalid, name, err)
			p.logger.Warn("language-model provider failed",
				"request_id", in.RequestID,
				"provider", name,
				"retryable", llm.Retryable(err),
				"error", err,
			)
			continue
		}
		if p.health != nil {
			p.health.RecordSuccess(name)
		}
		p.metrics.RecordTokens(name, completion.InputTokens, completion.OutputTokens)

		parsed, err := decodeOutput(completion.Content)
		if err != nil {
			lastReason, lastErr = ReasonInvalid, fmt.Errorf("%s: %w", name, err)
			continue
		}

		if floor := cfg.ConfidenceFloor; parsed.Confidence < floor {
			return name, types.ParsedIntent{}, ReasonLowConfidence,
				fmt.Errorf("%w: confidence %.2f below floor %.2f", ErrParseInvalid, parsed.Confidence, floor)
		}
		return name, parsed, "", nil
	}

	if registered == 0 {
		return "", types.ParsedIntent{}, ReasonNoProvider, fmt.Errorf("%w: none of %v is registered", ErrParseInvalid, cfg.Providers)
	}
	return lastName, types.ParsedIntent{}, lastReason, lastErr
}

func (p *Parser) recordFailure(name string) {
	if p.health != nil {
		p.health.RecordFailure(name)
	}
	p.metrics.RecordProviderFailure(name)
}

// ErrorKind maps a parser failure to its pipeline error kind.
func ErrorKind(err error) types.ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrParseTimeout):
		return types.KindParseTimeout
	default:
		return types.KindParseInvalid
	}
}
