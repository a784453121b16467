package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/atrium-hq/atrium/internal/apierr"
	"github.com/atrium-hq/atrium/internal/kv"
	"github.com/atrium-hq/atrium/internal/respond"
	"github.com/atrium-hq/atrium/internal/store"
)

// Server composes the request pipeline and exposes the router for route
// registration. Cross-cutting middleware wraps every route in fixed order:
// correlation ID, logging, error boundary, security headers, CORS, then
// tracing. Rate limiting, caching, authentication, and validation are
// attached per route via the Auth, RateLimiter, and Cache fields.
type Server struct {
	Router *chi.Mux
	Port   int

	Auth        *AuthMiddleware
	RateLimiter *RateLimiter
	Cache       *ResponseCache

	logger *slog.Logger
	http   *http.Server
}

// New builds a server around the given collaborators. kvStore may be nil,
// which degrades rate limiting and caching to pass-through behavior.
func New(port int, logger *slog.Logger, st *store.Store, kvStore kv.Store, corsOrigins []string) *Server {
	r := chi.NewRouter()

	// Apply middleware in order: outermost first.
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(RecovererMiddleware)
	r.Use(SecurityHeadersMiddleware)
	r.Use(NewCORSMiddleware(corsOrigins).Handler)

	// Wrap with OpenTelemetry HTTP instrumentation
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "atrium-api")
	})

	// Unmatched routes still answer with the envelope, not chi's plain text.
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		respond.Error(w, req, apierr.NotFound("route"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		respond.Error(w, req, apierr.MethodNotAllowed())
	})

	return &Server{
		Router:      r,
		Port:        port,
		Auth:        NewAuthMiddleware(st),
		RateLimiter: NewRateLimiter(kvStore, logger),
		Cache:       NewResponseCache(kvStore, logger),
		logger:      logger,
	}
}

// Start blocks serving HTTP on the configured port until Shutdown is
// called or the listener fails.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.Port),
		Handler: s.Router,
	}
	s.logger.Info("starting server", slog.Int("port", s.Port))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
