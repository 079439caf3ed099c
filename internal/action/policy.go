package action

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"

	"github.com/af-corp/intentd/internal/config"
)

// policyQuery reads the whole decision document so a bundle only has to
// define the rules it cares about.
const policyQuery = "data.intentd.actions"

// PolicyInput is the document a Rego bundle sees for one drafted action.
type PolicyInput struct {
	Tenant string       `json:"tenant"`
	User   string       `json:"user"`
	Action PolicyAction `json:"action"`
	Time   PolicyTime   `json:"time"`
}

type PolicyAction struct {
	Type       string `json:"type"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Risk       string `json:"risk"`
}

type PolicyTime struct {
	Hour int    `json:"hour"`
	Day  string `json:"day"`
}

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Allow               bool
	RequireConfirmation bool
	Reason              string
}

// Policy evaluates drafted actions against a Rego bundle. A policy can deny
// an action or demand confirmation; it has no way to lower risk.
type Policy struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	cfg      func() config.PolicyConfig
	logger   *slog.Logger
}

// NewPolicy creates a policy evaluator. Call Load to compile the bundle.
func NewPolicy(cfg func() config.PolicyConfig, logger *slog.Logger) *Policy {
	return &Policy{cfg: cfg, logger: logger}
}

func (p *Policy) Enabled() bool { return p.cfg().Enabled }

// Load compiles the Rego modules under the configured bundle path.
func (p *Policy) Load() error {
	cfg := p.cfg()
	modules, err := LoadRegoFiles(cfg.BundlePath)
	if err != nil {
		return fmt.Errorf("load rego files: %w", err)
	}
	if len(modules) == 0 {
		p.logger.Warn("no rego files found", "path", cfg.BundlePath)
		return nil
	}
	if err := p.LoadFromModules(modules); err != nil {
		return err
	}
	p.logger.Info("action policies loaded", "modules", len(modules))
	return nil
}

// LoadFromModules compiles policies from module sources keyed by file name.
func (p *Policy) LoadFromModules(modules map[string]string) error {
	opts := []func(*rego.Rego){rego.Query(policyQuery)}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}
	prepared, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	p.mu.Lock()
	p.prepared = &prepared
	p.mu.Unlock()
	return nil
}

// Evaluate runs the bundle against input. Evaluation failures and a missing
// bundle fail closed.
func (p *Policy) Evaluate(ctx context.Context, input PolicyInput) (Decision, error) {
	p.mu.RLock()
	prepared := p.prepared
	p.mu.RUnlock()

	if prepared == nil {
		return Decision{Reason: "no action policies loaded"}, nil
	}

	timeout := p.cfg().EvaluationTimeout
	if timeout == 0 {
		timeout = 100 * time.Millisecond
	}
	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := prepared.Eval(evalCtx, rego.EvalInput(input))
	if err != nil {
		return Decision{Reason: "policy evaluation failed"}, fmt.Errorf("evaluate action policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Reason: "no policy result"}, nil
	}

	doc, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{Reason: "unexpected policy result format"}, nil
	}
	d := Decision{}
	d.Allow, _ = doc["allow"].(bool)
	d.RequireConfirmation, _ = doc["require_confirmation"].(bool)
	d.Reason, _ = doc["reason"].(string)
	return d, nil
}

func policyInput(tenantID, userID string, cmdType, entityType, entityID, risk string, now time.Time) PolicyInput {
	now = now.UTC()
	return PolicyInput{
		Tenant: tenantID,
		User:   userID,
		Action: PolicyAction{
			Type:       cmdType,
			EntityType: entityType,
			EntityID:   entityID,
			Risk:       risk,
		},
		Time: PolicyTime{
			Hour: now.Hour(),
			Day:  now.Weekday().String(),
		},
	}
}
