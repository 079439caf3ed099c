package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for intentd. Record methods are safe
// on a nil receiver so components can run without metrics in tests.
type Metrics struct {
	InterpretTotal            *prometheus.CounterVec
	ActTotal                  *prometheus.CounterVec
	StageDurationMs           *prometheus.HistogramVec
	ParserFallbackTotal       *prometheus.CounterVec
	RateLimitedTotal          prometheus.Counter
	AuditWriteFailuresTotal   prometheus.Counter
	AuditDroppedTotal         prometheus.Counter
	TenantIsolationViolations prometheus.Counter
	ProviderFailuresTotal     *prometheus.CounterVec
	LLMTokensTotal            *prometheus.CounterVec
	ResolverDegradedTotal     prometheus.Counter
	ExecutorAttemptsTotal     *prometheus.CounterVec
	EventSubscribers          prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		InterpretTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "intentd_interpret_total",
			Help: "Interpret calls by terminal state and parse source.",
		}, []string{"state", "source"}),

		ActTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "intentd_act_total",
			Help: "Act calls by outcome.",
		}, []string{"status"}),

		StageDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "intentd_stage_duration_ms",
			Help:    "Pipeline stage duration in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"stage"}),

		ParserFallbackTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "intentd_parser_fallback_total",
			Help: "Heuristic parser fallbacks by reason.",
		}, []string{"reason"}),

		RateLimitedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "intentd_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}),

		AuditWriteFailuresTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "intentd_audit_write_failures_total",
			Help: "History records that failed to persist.",
		}),

		AuditDroppedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "intentd_audit_dropped_total",
			Help: "History records dropped because the audit buffer was full.",
		}),

		TenantIsolationViolations: f.NewCounter(prometheus.CounterOpts{
			Name: "intentd_tenant_isolation_violations_total",
			Help: "Candidates returned for a tenant other than the caller's. Must stay at zero.",
		}),

		ProviderFailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "intentd_provider_failures_total",
			Help: "Language-model and embedding provider failures.",
		}, []string{"provider"}),

		LLMTokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "intentd_llm_tokens_total",
			Help: "Tokens exchanged with language-model providers.",
		}, []string{"provider", "direction"}),

		ResolverDegradedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "intentd_resolver_degraded_total",
			Help: "Resolutions ranked lexically because embedding failed.",
		}),

		ExecutorAttemptsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "intentd_executor_attempts_total",
			Help: "Work-item service calls by action type and outcome.",
		}, []string{"action", "outcome"}),

		EventSubscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "intentd_event_subscribers",
			Help: "Open event stream subscriptions.",
		}),
	}
}

func (m *Metrics) RecordInterpret(state, source string) {
	if m == nil {
		return
	}
	m.InterpretTotal.WithLabelValues(state, source).Inc()
}

func (m *Metrics) RecordAct(status string) {
	if m == nil {
		return
	}
	m.ActTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveStage(stage string, ms float64) {
	if m == nil {
		return
	}
	m.StageDurationMs.WithLabelValues(stage).Observe(ms)
}

func (m *Metrics) RecordFallback(reason string) {
	if m == nil {
		return
	}
	m.ParserFallbackTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

func (m *Metrics) RecordAuditFailure() {
	if m == nil {
		return
	}
	m.AuditWriteFailuresTotal.Inc()
}

func (m *Metrics) RecordAuditDropped() {
	if m == nil {
		return
	}
	m.AuditDroppedTotal.Inc()
}

func (m *Metrics) RecordIsolationViolation() {
	if m == nil {
		return
	}
	m.TenantIsolationViolations.Inc()
}

func (m *Metrics) RecordProviderFailure(provider string) {
	if m == nil {
		return
	}
	m.ProviderFailuresTotal.WithLabelValues(provider).Inc()
}

func (m *Metrics) RecordTokens(provider string, input, output int) {
	if m == nil {
		return
	}
	if input > 0 {
		m.LLMTokensTotal.WithLabelValues(provider, "input").Add(float64(input))
	}
	if output > 0 {
		m.LLMTokensTotal.WithLabelValues(provider, "output").Add(float64(output))
	}
}

func (m *Metrics) RecordResolverDegraded() {
	if m == nil {
		return
	}
	m.ResolverDegradedTotal.Inc()
}

func (m *Metrics) RecordExecutorAttempt(action, outcome string) {
	if m == nil {
		return
	}
	m.ExecutorAttemptsTotal.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) SubscriberDelta(d float64) {
	if m == nil {
		return
	}
	m.EventSubscribers.Add(d)
}
