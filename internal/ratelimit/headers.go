package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/af-corp/intentd/internal/types"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// SetHeaders writes rate limit metadata onto a response.
func SetHeaders(h http.Header, info types.RateLimitInfo) {
	if info.Limit == 0 {
		return
	}
	h.Set(HeaderLimit, strconv.FormatInt(info.Limit, 10))
	h.Set(HeaderRemaining, strconv.FormatInt(info.Remaining, 10))
	h.Set(HeaderReset, info.ResetAt.UTC().Format(time.RFC3339))
}

// SetRetryAfter writes a Retry-After header in whole seconds, rounded up.
func SetRetryAfter(h http.Header, info types.RateLimitInfo, now time.Time) {
	secs := int64(info.ResetAt.Sub(now).Seconds() + 0.999)
	if secs < 1 {
		secs = 1
	}
	h.Set(HeaderRetryAfter, strconv.FormatInt(secs, 10))
}
