package identity

import (
	"log/slog"
	"net/http"

	"github.com/af-corp/intentd/internal/httputil"
	"github.com/af-corp/intentd/internal/types"
)

// Middleware returns a chi middleware that attaches the caller Identity to the request context.
func Middleware(p Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			id, err := p.Authenticate(r)
			if err != nil {
				if types.KindOf(err) == types.KindUnauthenticated {
					httputil.WriteKindError(w, reqID, err)
					return
				}
				slog.Error("authentication failed", "request_id", reqID, "error", err)
				httputil.WriteInternalError(w, reqID, "Internal error during authentication")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
		})
	}
}
