package server

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/atrium-hq/atrium/internal/apierr"
	"github.com/atrium-hq/atrium/internal/reqctx"
	"github.com/atrium-hq/atrium/internal/respond"
)

// RecovererMiddleware is the top-level error boundary for escaped panics.
// It renders the uniform error envelope instead of letting the runtime
// reply with an empty 500, and records the stack on the request log.
func RecovererMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				reqctx.AddLogField(r.Context(), "panic", fmt.Sprint(rec))
				reqctx.AddLogField(r.Context(), "stack", string(debug.Stack()))

				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("%v", rec)
				}
				respond.Error(w, r, apierr.From(err))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
