package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atrium-hq/atrium/internal/reqctx"
	"github.com/atrium-hq/atrium/internal/respond"
	"github.com/atrium-hq/atrium/internal/schema"
)

// ValidateBody parses and validates the JSON request body as T before the
// handler runs. The parsed value is available via reqctx.Body[T]. A body
// that fails validation never reaches the handler. Compose validators in
// body, query, params order; the first failure short-circuits the rest.
func ValidateBody[T any]() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v, err := schema.ParseJSON[T](r.Body)
			if err != nil {
				respond.Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(reqctx.WithValidatedBody(r.Context(), v)))
		})
	}
}

// ValidateQuery parses and validates the URL query parameters as T. The
// parsed value is available via reqctx.Query[T].
func ValidateQuery[T any]() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v, err := schema.ParseQuery[T](r.URL.Query())
			if err != nil {
				respond.Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(reqctx.WithValidatedQuery(r.Context(), v)))
		})
	}
}

// ValidateParams parses and validates the route's path parameters as T. The
// parsed value is available via reqctx.Params[T].
func ValidateParams[T any]() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			params := map[string]string{}
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				for i, key := range rctx.URLParams.Keys {
					params[key] = rctx.URLParams.Values[i]
				}
			}

			v, err := schema.ParseStringMap[T](params)
			if err != nil {
				respond.Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(reqctx.WithValidatedParams(r.Context(), v)))
		})
	}
}
