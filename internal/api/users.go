package api

import (
	"net/http"

	"github.com/atrium-hq/atrium/internal/apierr"
	"github.com/atrium-hq/atrium/internal/reqctx"
	"github.com/atrium-hq/atrium/internal/schema"
)

func (h *Handler) userByID(_ http.ResponseWriter, r *http.Request) (any, error) {
	params, ok := reqctx.Params[schema.ID](r.Context())
	if !ok {
		return nil, apierr.Internal("validated params missing", nil)
	}

	user, err := h.store.GetUser(r.Context(), params.ID)
	if err != nil {
		return nil, apierr.Internal("failed to look up user", err)
	}
	if user == nil {
		return nil, apierr.NotFound("user")
	}

	return toUserPayload(user), nil
}
