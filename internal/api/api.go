// Package api implements the HTTP route handlers and binds them onto the
// server pipeline with their per-route stages (rate limit, cache, auth,
// validation).
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atrium-hq/atrium/internal/respond"
	"github.com/atrium-hq/atrium/internal/schema"
	"github.com/atrium-hq/atrium/internal/server"
	"github.com/atrium-hq/atrium/internal/store"
)

// Handler bundles the route handlers and their collaborators.
type Handler struct {
	store         *store.Store
	sessionTTL    time.Duration
	secureCookies bool
}

// New creates the API handler set.
func New(st *store.Store, sessionTTL time.Duration, secureCookies bool) *Handler {
	if sessionTTL <= 0 {
		sessionTTL = store.DefaultSessionTTL
	}
	return &Handler{store: st, sessionTTL: sessionTTL, secureCookies: secureCookies}
}

// Register mounts all routes on the server. Per-route stage order is fixed:
// rate limit, cache, auth, validation, handler.
func (h *Handler) Register(s *server.Server) {
	r := s.Router

	r.Get("/healthz", respond.Handle(h.health))

	loginLimit := s.RateLimiter.Limit(server.RateLimitConfig{Limit: 10, Window: time.Minute})

	r.Route("/api/auth", func(r chi.Router) {
		r.With(loginLimit, server.ValidateBody[RegisterRequest]()).
			Post("/register", respond.Handle(h.register))
		r.With(loginLimit, server.ValidateBody[LoginRequest]()).
			Post("/login", respond.Handle(h.login))
		r.With(s.Auth.Optional).Post("/logout", respond.Handle(h.logout))
		r.With(s.Auth.Optional).Get("/session", respond.Handle(h.session))
		r.With(s.Auth.Required).Get("/me", respond.Handle(h.me))
	})

	// Stage order per route is rate limit, cache, auth, validation. The
	// profile cache key omits the caller identity on purpose: the payload is
	// identical for every authenticated caller.
	profileCache := s.Cache.Middleware(server.CacheConfig{TTL: 5 * time.Minute})
	r.With(profileCache, s.Auth.Required, server.ValidateParams[schema.ID]()).
		Get("/api/users/{id}", respond.Handle(h.userByID))
}

func (h *Handler) health(_ http.ResponseWriter, _ *http.Request) (any, error) {
	return map[string]string{"status": "ok"}, nil
}
