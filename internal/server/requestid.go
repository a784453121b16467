package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/atrium-hq/atrium/internal/reqctx"
)

// RequestIDMiddleware assigns a correlation ID to each request.
// The ID is stored in the context and echoed as the X-Request-ID response
// header so clients and logs can be cross-referenced.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		ctx := reqctx.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
