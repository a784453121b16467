package api

import (
	"errors"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/atrium-hq/atrium/internal/apierr"
	"github.com/atrium-hq/atrium/internal/reqctx"
	"github.com/atrium-hq/atrium/internal/respond"
	"github.com/atrium-hq/atrium/internal/server"
	"github.com/atrium-hq/atrium/internal/store"
)

// RegisterRequest is the body schema for account creation.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,min=1,max=120"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginRequest is the body schema for session creation.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// userPayload is the client-facing account shape.
type userPayload struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"createdAt"`
}

func toUserPayload(u *store.User) userPayload {
	return userPayload{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: u.CreatedAt.UnixMilli(),
	}
}

func (h *Handler) register(_ http.ResponseWriter, r *http.Request) (any, error) {
	req, ok := reqctx.Body[RegisterRequest](r.Context())
	if !ok {
		return nil, apierr.Internal("validated body missing", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apierr.Internal("failed to hash password", err)
	}

	user, err := h.store.CreateUser(r.Context(), req.Email, req.Name, string(hash))
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return nil, apierr.Conflict("email already registered")
		}
		return nil, apierr.Internal("failed to create user", err)
	}

	return respond.Status(http.StatusCreated, toUserPayload(user)), nil
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) (any, error) {
	req, ok := reqctx.Body[LoginRequest](r.Context())
	if !ok {
		return nil, apierr.Internal("validated body missing", nil)
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		return nil, apierr.Internal("failed to look up user", err)
	}
	if user == nil {
		return nil, apierr.Unauthorized("invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, apierr.Unauthorized("invalid email or password")
	}

	sess, err := h.store.CreateSession(r.Context(), user.ID, h.sessionTTL)
	if err != nil {
		return nil, apierr.Internal("failed to create session", err)
	}

	server.SetSessionCookie(w, sess.ID, sess.ExpiresAt, h.secureCookies)
	reqctx.AddLogField(r.Context(), "user_id", user.ID)

	return map[string]any{"user": toUserPayload(user)}, nil
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) (any, error) {
	if id, ok := reqctx.GetIdentity(r.Context()); ok {
		if err := h.store.DeleteSession(r.Context(), id.Session.ID); err != nil {
			return nil, apierr.Internal("failed to delete session", err)
		}
	}

	server.ClearSessionCookie(w, h.secureCookies)
	return map[string]bool{"loggedOut": true}, nil
}

// session reports authentication state without ever failing: an expired or
// missing cookie is an anonymous caller, not an error.
func (h *Handler) session(_ http.ResponseWriter, r *http.Request) (any, error) {
	id, ok := reqctx.GetIdentity(r.Context())
	if !ok {
		return map[string]any{"authenticated": false}, nil
	}
	return map[string]any{
		"authenticated": true,
		"user":          toUserPayload(id.User),
		"expiresAt":     id.Session.ExpiresAt.UnixMilli(),
	}, nil
}

func (h *Handler) me(_ http.ResponseWriter, r *http.Request) (any, error) {
	id, err := reqctx.RequireIdentity(r.Context())
	if err != nil {
		return nil, err
	}
	return toUserPayload(id.User), nil
}
