package identity

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/af-corp/intentd/internal/config"
	"github.com/af-corp/intentd/internal/types"
)

// Provider establishes the caller identity for a request. Implementations are
// chosen once at start-up; handlers only see the resulting Identity.
type Provider interface {
	Authenticate(r *http.Request) (*Identity, error)
}

// NewProvider builds the provider named by cfg.Mode.
func NewProvider(cfg config.IdentityConfig, store KeyStore) (Provider, error) {
	switch cfg.Mode {
	case "keystore":
		if store == nil {
			return nil, fmt.Errorf("identity mode keystore requires a key store")
		}
		return &KeyStoreProvider{store: store}, nil
	case "static":
		return &StaticProvider{Identity: Identity{
			KeyID:    "static",
			TenantID: cfg.StaticTenant,
			UserID:   cfg.StaticUser,
		}}, nil
	default:
		return nil, fmt.Errorf("unknown identity mode %q", cfg.Mode)
	}
}

// KeyStoreProvider authenticates Bearer API keys against a KeyStore.
type KeyStoreProvider struct {
	store KeyStore
}

func NewKeyStoreProvider(store KeyStore) *KeyStoreProvider {
	return &KeyStoreProvider{store: store}
}

func (p *KeyStoreProvider) Authenticate(r *http.Request) (*Identity, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, types.NewError(types.KindUnauthenticated, "Missing Authorization header. Use: Authorization: Bearer <api-key>")
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		return nil, types.NewError(types.KindUnauthenticated, "Invalid Authorization format. Use: Authorization: Bearer <api-key>")
	}
	if token == "" {
		return nil, types.NewError(types.KindUnauthenticated, "Empty API key")
	}

	meta, err := p.store.Lookup(r.Context(), HashKey(token))
	if err != nil {
		return nil, fmt.Errorf("key lookup: %w", err)
	}
	if meta == nil {
		slog.Warn("auth failed: key not found", "key_prefix", KeyPrefix(token))
		return nil, types.NewError(types.KindUnauthenticated, "Invalid API key")
	}
	if meta.TenantID == "" || meta.UserID == "" {
		slog.Warn("auth failed: key has no tenant or user binding", "key_id", meta.ID)
		return nil, types.NewError(types.KindUnauthenticated, "API key is not bound to a tenant and user")
	}

	return &Identity{
		KeyID:     meta.ID,
		TenantID:  meta.TenantID,
		UserID:    meta.UserID,
		RateLimit: meta.RateLimit,
	}, nil
}

// StaticProvider returns the same identity for every request. Used in tests and
// single-tenant development setups.
type StaticProvider struct {
	Identity Identity
}

func (p *StaticProvider) Authenticate(*http.Request) (*Identity, error) {
	id := p.Identity
	return &id, nil
}
