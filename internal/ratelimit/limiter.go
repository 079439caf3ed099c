package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/af-corp/intentd/internal/types"
)

// LimitResult is the outcome of a rate limit check.
type LimitResult struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Info converts the result to response metadata.
func (r LimitResult) Info() types.RateLimitInfo {
	return types.RateLimitInfo{Limit: r.Limit, Remaining: r.Remaining, ResetAt: r.ResetAt}
}

// Limiter performs fixed-window rate limiting per (tenant, user) bucket.
// Redis holds the shared counters; when Redis is nil or failing the limiter
// falls back to process-local windows rather than failing open.
type Limiter struct {
	rdb   *redis.Client
	local *localWindows
	now   func() time.Time
}

func NewLimiter(rdb *redis.Client) *Limiter {
	return &Limiter{
		rdb:   rdb,
		local: newLocalWindows(),
		now:   time.Now,
	}
}

// fixedWindowScript atomically increments a bucket and starts its window on first use.
// KEYS[1] = bucket key
// ARGV[1] = window in milliseconds
// Returns: [count, pttl_ms]
var fixedWindowScript = redis.NewScript(`
local key = KEYS[1]
local window = tonumber(ARGV[1])

local count = redis.call('INCR', key)
if count == 1 then
    redis.call('PEXPIRE', key, window)
end
local ttl = redis.call('PTTL', key)
if ttl < 0 then
    redis.call('PEXPIRE', key, window)
    ttl = window
end
return {count, ttl}
`)

// bucketKey length-prefixes the tenant so ids containing ':' cannot collide.
func bucketKey(tenantID, userID string) string {
	return fmt.Sprintf("intentd:rl:%d:%s:%s", len(tenantID), tenantID, userID)
}

// Allow counts one request against the (tenant, user) bucket. The counter is
// updated even if ctx is already cancelled, so a client disconnect cannot
// skip admission accounting.
func (l *Limiter) Allow(ctx context.Context, tenantID, userID string, limit int64, window time.Duration) LimitResult {
	key := bucketKey(tenantID, userID)
	now := l.now()

	if l.rdb != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 250*time.Millisecond)
		defer cancel()
		res, err := fixedWindowScript.Run(rctx, l.rdb, []string{key}, window.Milliseconds()).Int64Slice()
		if err == nil && len(res) == 2 {
			return result(res[0], limit, now.Add(time.Duration(res[1])*time.Millisecond), now)
		}
		slog.Warn("rate limiter redis unavailable, using local window",
			"tenant_id", tenantID,
			"error", err,
		)
	}

	count, resetAt := l.local.incr(key, now, window)
	return result(count, limit, resetAt, now)
}

func result(count, limit int64, resetAt, now time.Time) LimitResult {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	r := LimitResult{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if !r.Allowed {
		r.RetryAfter = resetAt.Sub(now)
		if r.RetryAfter < time.Second {
			r.RetryAfter = time.Second
		}
	}
	return r
}

type bucket struct {
	windowStart time.Time
	count       int64
}

// localWindows is the in-process bucket table used without Redis.
type localWindows struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

const localSweepThreshold = 10_000

func newLocalWindows() *localWindows {
	return &localWindows{buckets: make(map[string]*bucket)}
}

func (w *localWindows) incr(key string, now time.Time, window time.Duration) (int64, time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.buckets) > localSweepThreshold {
		for k, b := range w.buckets {
			if now.Sub(b.windowStart) >= window {
				delete(w.buckets, k)
			}
		}
	}

	b, ok := w.buckets[key]
	if !ok || now.Sub(b.windowStart) >= window {
		b = &bucket{windowStart: now}
		w.buckets[key] = b
	}
	b.count++
	return b.count, b.windowStart.Add(window)
}
