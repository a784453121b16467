// Package kv abstracts the external key-value store shared by the rate
// limiter and the response cache. Implementations are injected into the
// middleware constructors, never reached through package globals, so tests
// can substitute the in-memory store and deployments without Redis degrade
// to fail-open middleware.
package kv

import (
	"context"
	"time"
)

// Store is a minimal TTL'd key-value contract. Get returns (nil, nil) for a
// missing or expired key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
