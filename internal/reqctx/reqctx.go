// Package reqctx carries request-scoped state through context.Context with
// typed accessors. Each request gets its own values at pipeline entry; the
// explicit accessors below are the only way downstream code reads them,
// which keeps an unauthenticated request from being misused as an
// authenticated one.
package reqctx

import (
	"context"

	"github.com/atrium-hq/atrium/internal/apierr"
	"github.com/atrium-hq/atrium/internal/store"
)

type requestIDKey struct{}
type identityKey struct{}
type logFieldsKey struct{}
type validatedBodyKey struct{}
type validatedQueryKey struct{}
type validatedParamsKey struct{}

// Identity is the resolved caller for an authenticated request.
type Identity struct {
	User    *store.User
	Session *store.Session
}

// WithRequestID stores the correlation ID for the request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the correlation ID, or "" if the middleware is absent.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithIdentity attaches the authenticated caller.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// GetIdentity returns the caller if the request was authenticated.
func GetIdentity(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// RequireIdentity returns the caller or an unauthorized error if the
// request carries no identity.
func RequireIdentity(ctx context.Context) (Identity, error) {
	id, ok := GetIdentity(ctx)
	if !ok {
		return Identity{}, apierr.Unauthorized("authentication required")
	}
	return id, nil
}

// WithLogFields attaches a mutable field map that the logging middleware
// emits on the request-completed line.
func WithLogFields(ctx context.Context, fields map[string]string) context.Context {
	return context.WithValue(ctx, logFieldsKey{}, fields)
}

// LogFields returns the request's log field map, or nil.
func LogFields(ctx context.Context) map[string]string {
	fields, _ := ctx.Value(logFieldsKey{}).(map[string]string)
	return fields
}

// AddLogField records a key/value on the request log. No-op if the logging
// middleware isn't present or the value is empty.
func AddLogField(ctx context.Context, key, value string) {
	if value == "" {
		return
	}
	if fields := LogFields(ctx); fields != nil {
		fields[key] = value
	}
}

// AddError records an error message on the request log. No-op for nil.
func AddError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	AddLogField(ctx, "error", err.Error())
}

// WithValidatedBody stores the parsed request body.
func WithValidatedBody(ctx context.Context, v any) context.Context {
	return context.WithValue(ctx, validatedBodyKey{}, v)
}

// WithValidatedQuery stores the parsed query parameters.
func WithValidatedQuery(ctx context.Context, v any) context.Context {
	return context.WithValue(ctx, validatedQueryKey{}, v)
}

// WithValidatedParams stores the parsed path parameters.
func WithValidatedParams(ctx context.Context, v any) context.Context {
	return context.WithValue(ctx, validatedParamsKey{}, v)
}

// Body returns the validated request body as T. The second return is false
// when the validation stage did not run or stored a different type.
func Body[T any](ctx context.Context) (T, bool) {
	v, ok := ctx.Value(validatedBodyKey{}).(T)
	return v, ok
}

// Query returns the validated query parameters as T.
func Query[T any](ctx context.Context) (T, bool) {
	v, ok := ctx.Value(validatedQueryKey{}).(T)
	return v, ok
}

// Params returns the validated path parameters as T.
func Params[T any](ctx context.Context) (T, bool) {
	v, ok := ctx.Value(validatedParamsKey{}).(T)
	return v, ok
}
