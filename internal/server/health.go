package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/af-corp/intentd/internal/httputil"
)

type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// Component names. The vector index is the only dependency without a
// fallback, so it alone takes the service down.
const (
	ComponentLLM         = "llm"
	ComponentVectorIndex = "vector_index"
	ComponentRedis       = "redis"
	ComponentAudit       = "audit"
)

const grpcServicePrefix = "intentd."

// Check reports whether one dependency is reachable.
type Check func(ctx context.Context) error

type ComponentReport struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentReport `json:"components"`
	CheckedAt  time.Time                  `json:"checkedAt"`
}

// Prober runs dependency checks on an interval and publishes the results to
// /readyz and the gRPC health server.
type Prober struct {
	checks   map[string]Check
	grpc     *health.Server
	interval func() time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.RWMutex
	report Report
}

// NewProber creates a prober. grpcHealth may be nil.
func NewProber(checks map[string]Check, grpcHealth *health.Server, interval func() time.Duration, logger *slog.Logger) *Prober {
	return &Prober{
		checks:   checks,
		grpc:     grpcHealth,
		interval: interval,
		timeout:  2 * time.Second,
		logger:   logger,
		now:      time.Now,
	}
}

// Probe runs every check concurrently and stores the result.
func (p *Prober) Probe(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var mu sync.Mutex
	components := make(map[string]ComponentReport, len(p.checks))
	var g errgroup.Group
	for name, check := range p.checks {
		g.Go(func() error {
			cr := ComponentReport{Status: StatusOK}
			if err := check(ctx); err != nil {
				cr = ComponentReport{Status: StatusDown, Error: err.Error()}
			}
			mu.Lock()
			components[name] = cr
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	rep := Report{Status: overall(components), Components: components, CheckedAt: p.now().UTC()}

	p.mu.Lock()
	prev := p.report.Status
	p.report = rep
	p.mu.Unlock()

	if prev != rep.Status {
		p.logger.Info("readiness changed", "from", prev, "to", rep.Status)
	}
	p.publish(rep)
	return rep
}

func overall(components map[string]ComponentReport) Status {
	status := StatusOK
	for name, c := range components {
		if c.Status == StatusOK {
			continue
		}
		if name == ComponentVectorIndex {
			return StatusDown
		}
		status = StatusDegraded
	}
	return status
}

func (p *Prober) publish(rep Report) {
	if p.grpc == nil {
		return
	}
	for name, c := range rep.Components {
		p.grpc.SetServingStatus(grpcServicePrefix+name, servingStatus(c.Status))
	}
	p.grpc.SetServingStatus("", servingStatus(rep.Status))
}

// servingStatus treats degraded as serving: the fallback path still answers.
func servingStatus(s Status) healthpb.HealthCheckResponse_ServingStatus {
	if s == StatusDown {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

// Run probes immediately and then every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	p.Probe(ctx)
	timer := time.NewTimer(p.interval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			p.Probe(ctx)
			timer.Reset(p.interval())
		}
	}
}

// Report returns the latest stored result.
func (p *Prober) Report() Report {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.report
}

// Readyz handles GET /readyz
func (p *Prober) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := p.Report()
	if rep.CheckedAt.IsZero() {
		rep = p.Probe(r.Context())
	}
	status := http.StatusOK
	if rep.Status == StatusDown {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, w.Header().Get("X-Request-ID"), status, rep)
}

// Healthz returns the liveness handler for GET /healthz
func Healthz(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, w.Header().Get("X-Request-ID"), http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	}
}
