package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// QuotaResult is the outcome of a tenant language-model quota check.
type QuotaResult struct {
	Allowed bool
	Used    int64
	Limit   int64
}

// TenantQuota counts language-model calls per tenant per UTC day. An
// exhausted quota sends the parser to its heuristic path; it never rejects
// the request, so Redis errors fail open.
type TenantQuota struct {
	rdb *redis.Client
	now func() time.Time
}

// NewTenantQuota creates a quota tracker. If rdb is nil, all calls are allowed.
func NewTenantQuota(rdb *redis.Client) *TenantQuota {
	return &TenantQuota{rdb: rdb, now: time.Now}
}

func (q *TenantQuota) dailyKey(tenantID string) string {
	day := q.now().UTC().Format("2006-01-02")
	return fmt.Sprintf("intentd:quota:llm:%s:%s", tenantID, day)
}

// Take reserves one call against the tenant's daily quota. A limit <= 0 disables the quota.
func (q *TenantQuota) Take(ctx context.Context, tenantID string, limit int64) QuotaResult {
	if q.rdb == nil || limit <= 0 {
		return QuotaResult{Allowed: true, Limit: limit}
	}

	key := q.dailyKey(tenantID)
	now := q.now().UTC()
	endOfDay := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)

	pipe := q.rdb.Pipeline()
	incr := pipe.Incr(ctx, key)
	// Expire at end of day UTC + 1 hour buffer
	pipe.Expire(ctx, key, endOfDay.Sub(now)+time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return QuotaResult{Allowed: true, Limit: limit}
	}

	used := incr.Val()
	return QuotaResult{Allowed: used <= limit, Used: used, Limit: limit}
}
