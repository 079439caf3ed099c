package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/af-corp/intentd/internal/config"
	"github.com/af-corp/intentd/internal/provider/embed"
	"github.com/af-corp/intentd/internal/telemetry"
	"github.com/af-corp/intentd/internal/types"
)

// contextSimilarity is the base similarity of an item the caller has in view
// when the utterance refers to it only by pronoun.
const contextSimilarity = 0.7

// Request is one resolution call. TenantID comes from the verified identity.
type Request struct {
	RequestID   string
	TenantID    string
	UserID      string
	Descriptors []types.EntityDescriptor
	Context     []types.EntityRef
	// Selected is an item the user picked from an earlier ambiguous result.
	// It is always returned, ranked first, when it exists in the tenant.
	Selected string
	// PreferState boosts items in the state the action needs, unless an
	// item was named directly.
	PreferState string
}

type Result struct {
	Candidates []types.CandidateEntity
	// Degraded is set when ranking used lexical similarity instead of embeddings.
	Degraded bool
}

// Resolver turns entity descriptors into ranked, tenant-scoped candidates.
type Resolver struct {
	index    Index
	embedder embed.Embedder
	cfg      func() config.ResolverConfig
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewResolver creates a resolver. embedder may be nil, in which case every
// lookup uses lexical ranking.
func NewResolver(index Index, embedder embed.Embedder, cfg func() config.ResolverConfig, metrics *telemetry.Metrics, logger *slog.Logger) *Resolver {
	return &Resolver{
		index:    index,
		embedder: embedder,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Ping checks that the underlying index is reachable.
func (r *Resolver) Ping(ctx context.Context) error {
	return r.index.Ping(ctx)
}

func (r *Resolver) Resolve(ctx context.Context, req Request) (Result, error) {
	if req.TenantID == "" {
		return Result{}, types.NewError(types.KindInternal, "resolver called without tenant")
	}
	cfg := r.cfg()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	descs := req.Descriptors
	if cfg.MaxDescriptors > 0 && len(descs) > cfg.MaxDescriptors {
		descs = descs[:cfg.MaxDescriptors]
	}
	if len(descs) == 0 && len(req.Context) == 0 && req.Selected == "" {
		return Result{}, nil
	}

	vectors, degraded := r.embed(ctx, req, descs)

	perDesc := make([][]Hit, len(descs))
	var inView []Hit
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range descs {
		q := Query{
			TenantID: req.TenantID,
			Phrase:   d.Phrase,
			Type:     d.Type,
			Limit:    cfg.TopK * 2,
		}
		if vectors != nil {
			q.Embedding = vectors[i]
		}
		g.Go(func() error {
			hits, err := r.index.Search(gctx, q)
			if err != nil {
				return fmt.Errorf("search descriptor %d: %w", i, err)
			}
			perDesc[i] = hits
			return nil
		})
	}
	inContext := make(map[string]bool, len(req.Context))
	ids := make([]string, 0, len(req.Context)+1)
	for _, ref := range req.Context {
		inContext[ref.ID] = true
		ids = append(ids, ref.ID)
	}
	if req.Selected != "" && !inContext[req.Selected] {
		ids = append(ids, req.Selected)
	}
	if len(ids) > 0 {
		g.Go(func() error {
			hits, err := r.index.Get(gctx, req.TenantID, ids)
			if err != nil {
				return fmt.Errorf("load context entities: %w", err)
			}
			inView = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	// The index scopes every query by tenant. This check only detects a
	// broken index; nothing from a foreign partition is ever returned.
	for _, hits := range append(perDesc, inView) {
		for _, h := range hits {
			if h.TenantID != req.TenantID {
				r.metrics.RecordIsolationViolation()
				r.logger.Error("tenant isolation violation in index results",
					"severity", "critical",
					"request_id", req.RequestID,
					"tenant_id", req.TenantID,
					"item_id", h.ID,
				)
				return Result{}, types.NewError(types.KindTenantIsolationViolation, "internal error")
			}
		}
	}

	now := r.now()
	merged := make(map[string]*candidate)
	add := func(h Hit, mention string) {
		c, ok := merged[h.ID]
		if !ok {
			c = &candidate{hit: h, sig: observe(h, req.UserID, cfg.RecencyWindow, now)}
			c.sig.inState = req.PreferState != "" && h.State == req.PreferState
			merged[h.ID] = c
		} else if s := clamp01(h.Similarity); s > c.sig.similarity {
			c.sig.similarity = s
		}
		if mention != "" && !c.sig.mentioned {
			c.sig.mentioned = true
			c.sig.mention = mention
		}
	}
	for i, hits := range perDesc {
		for _, h := range hits {
			if isMention(descs[i].Phrase, h) {
				add(h, descs[i].Phrase)
				continue
			}
			if h.Similarity < cfg.MinSimilarity {
				continue
			}
			add(h, "")
		}
	}
	var selected *Hit
	for _, h := range inView {
		if h.ID == req.Selected {
			sel := h
			selected = &sel
		}
		if !inContext[h.ID] {
			continue
		}
		label := h.Key
		if label == "" {
			label = h.Title
		}
		if len(descs) == 0 {
			h.Similarity = contextSimilarity
			add(h, label)
			continue
		}
		// With descriptors present, an item in view only counts when the
		// descriptors also matched it.
		if _, ok := merged[h.ID]; ok {
			add(h, label)
		}
	}

	if selected != nil {
		h := *selected
		if _, ok := merged[h.ID]; !ok {
			h.Similarity = contextSimilarity
			add(h, "")
		}
		merged[h.ID].sig.selected = true
	}

	// A direct mention outranks the state preference.
	named := false
	for _, c := range merged {
		named = named || c.sig.mentioned
	}
	if named {
		for _, c := range merged {
			c.sig.inState = false
		}
	}

	out := make([]types.CandidateEntity, 0, len(merged))
	for _, c := range merged {
		out = append(out, c.entity(cfg.Boosts, now))
	}
	sort.Slice(out, func(i, j int) bool {
		if si, sj := out[i].ID == req.Selected, out[j].ID == req.Selected; si != sj {
			return si
		}
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > cfg.TopK {
		out = out[:cfg.TopK]
	}
	return Result{Candidates: out, Degraded: degraded}, nil
}

// embed returns one vector per descriptor, or nil with degraded set when
// ranking must fall back to lexical similarity.
func (r *Resolver) embed(ctx context.Context, req Request, descs []types.EntityDescriptor) ([][]float32, bool) {
	if len(descs) == 0 {
		return nil, false
	}
	if r.embedder == nil {
		return nil, true
	}
	phrases := make([]string, len(descs))
	for i, d := range descs {
		phrases[i] = d.Phrase
	}
	vectors, err := r.embedder.Embed(ctx, phrases)
	if err == nil && len(vectors) != len(descs) {
		err = fmt.Errorf("embedder returned %d vectors for %d phrases", len(vectors), len(descs))
	}
	if err != nil {
		r.metrics.RecordResolverDegraded()
		r.logger.Warn("embedding failed, using lexical ranking",
			"request_id", req.RequestID,
			"tenant_id", req.TenantID,
			"model", r.embedder.Model(),
			"error", err,
		)
		return nil, true
	}
	return vectors, false
}

type candidate struct {
	hit Hit
	sig signals
}

func (c *candidate) entity(b config.BoostConfig, now time.Time) types.CandidateEntity {
	meta := map[string]any{
		"state":      c.hit.State,
		"similarity": round3(c.sig.similarity),
	}
	if c.hit.Key != "" {
		meta["key"] = c.hit.Key
	}
	if c.hit.AssigneeID != "" {
		meta["assigneeId"] = c.hit.AssigneeID
	}
	return types.CandidateEntity{
		ID:         c.hit.ID,
		Type:       c.hit.Type,
		Title:      c.hit.Title,
		Confidence: round3(score(c.sig, b)),
		Evidence:   evidence(c.hit, c.sig, now),
		Metadata:   meta,
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
