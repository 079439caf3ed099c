package identity

import "context"

type contextKey string

const identityContextKey contextKey = "intentd_identity"

// Identity is the verified caller established upstream of the pipeline.
type Identity struct {
	KeyID    string
	TenantID string
	UserID   string
	// RateLimit overrides rate_limit.limit for this caller when set.
	RateLimit *int64
}

func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(*Identity)
	return id, ok
}
