package server

import (
	"net/http"
	"time"

	"github.com/atrium-hq/atrium/internal/apierr"
	"github.com/atrium-hq/atrium/internal/reqctx"
	"github.com/atrium-hq/atrium/internal/respond"
	"github.com/atrium-hq/atrium/internal/store"
)

// SessionCookieName is the HTTP cookie carrying the session identifier.
const SessionCookieName = "atrium_session"

// AuthMiddleware resolves the session cookie into a request identity.
// Required routes reject unauthenticated requests with 401; Optional routes
// continue without an identity. A session pointing at a deleted user is
// rejected in both modes.
type AuthMiddleware struct {
	store *store.Store
}

// NewAuthMiddleware creates an authentication middleware backed by the
// relational session store.
func NewAuthMiddleware(st *store.Store) *AuthMiddleware {
	return &AuthMiddleware{store: st}
}

// Required returns middleware that rejects requests without a valid session.
func (m *AuthMiddleware) Required(next http.Handler) http.Handler {
	return m.handler(next, true)
}

// Optional returns middleware that resolves an identity when a valid
// session is present but lets anonymous requests through.
func (m *AuthMiddleware) Optional(next http.Handler) http.Handler {
	return m.handler(next, false)
}

func (m *AuthMiddleware) handler(next http.Handler, mandatory bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			if mandatory {
				respond.Error(w, r, apierr.Unauthorized("authentication required"))
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		sess, err := m.store.FindValidSession(r.Context(), cookie.Value)
		if err != nil {
			respond.Error(w, r, apierr.Internal("session lookup failed", err))
			return
		}
		if sess == nil {
			// Missing or expired session
			if mandatory {
				respond.Error(w, r, apierr.Unauthorized("invalid or expired session"))
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		user, err := m.store.GetUser(r.Context(), sess.UserID)
		if err != nil {
			respond.Error(w, r, apierr.Internal("user lookup failed", err))
			return
		}
		if user == nil {
			// A dangling session is always invalid, even on optional routes.
			respond.Error(w, r, apierr.Unauthorized("user not found"))
			return
		}

		ctx := reqctx.WithIdentity(r.Context(), reqctx.Identity{User: user, Session: sess})
		reqctx.AddLogField(ctx, "user_id", user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetSessionCookie issues the session cookie to the client.
func SetSessionCookie(w http.ResponseWriter, sessionID string, expiresAt time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie removes the session cookie from the client.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
