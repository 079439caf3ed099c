package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/af-corp/intentd/internal/identity"
)

// NewRouter wires the public routes. Everything under /v1 requires an identity.
func NewRouter(h *Handler, idp identity.Provider, prober *Prober, version string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestID)

	r.Get("/healthz", Healthz(version))
	r.Get("/readyz", prober.Readyz)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(idp))
		r.Post("/v1/interpret", h.Interpret)
		r.Post("/v1/act", h.Act)
		r.Get("/v1/events", h.Events)
	})
	return r
}
