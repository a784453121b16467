package server

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/atrium-hq/atrium/internal/apierr"
	"github.com/atrium-hq/atrium/internal/kv"
	"github.com/atrium-hq/atrium/internal/reqctx"
	"github.com/atrium-hq/atrium/internal/respond"
)

const rateLimitKeyPrefix = "ratelimit:"

// RateLimitConfig configures a sliding-window limiter for one route.
type RateLimitConfig struct {
	// Limit is the maximum number of requests admitted per Window.
	Limit int
	// Window is the sliding window length.
	Window time.Duration
	// KeyFunc derives the counter key for a request. Defaults to
	// DefaultRateLimitKey, which keys by client address under the standard
	// stage order since the limiter runs before authentication.
	KeyFunc func(r *http.Request) string
}

// RateLimiter enforces per-key sliding-window limits against the shared
// key-value store. The window is a timestamp log: read, prune, check,
// append, write back with the window as TTL. The read-modify-write is not
// atomic, so concurrent bursts for one key can transiently exceed the limit
// by up to the burst concurrency; that soft bound is accepted.
//
// With no store configured the limiter passes every request through
// (fail-open), which NewRateLimiter warns about at construction.
type RateLimiter struct {
	store  kv.Store
	logger *slog.Logger

	// now is swappable for clock control in tests.
	now func() time.Time
}

// NewRateLimiter creates a rate limiter backed by store. A nil store
// disables enforcement.
func NewRateLimiter(store kv.Store, logger *slog.Logger) *RateLimiter {
	if store == nil {
		logger.Warn("rate limiter has no key-value store configured; all requests will be admitted")
	}
	return &RateLimiter{store: store, logger: logger, now: time.Now}
}

// Limit returns the middleware enforcing cfg.
func (rl *RateLimiter) Limit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = DefaultRateLimitKey
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.store == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := rateLimitKeyPrefix + keyFunc(r)
			now := rl.now()

			timestamps, err := rl.readWindow(r, key)
			if err != nil {
				// Fail open: an unavailable store must not take the route down.
				rl.logger.Warn("rate limit store read failed",
					slog.String("key", key), slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}

			// Prune timestamps that have left the window
			cutoff := now.Add(-cfg.Window)
			retained := timestamps[:0]
			for _, ts := range timestamps {
				if time.UnixMilli(ts).After(cutoff) {
					retained = append(retained, ts)
				}
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))

			if len(retained) >= cfg.Limit {
				oldest := time.UnixMilli(retained[0])
				reset := oldest.Add(cfg.Window)
				retryAfter := int(reset.Sub(now).Seconds() + 1)
				if retryAfter < 1 {
					retryAfter = 1
				}

				h.Set("X-RateLimit-Remaining", "0")
				h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
				h.Set("Retry-After", strconv.Itoa(retryAfter))

				reqctx.AddLogField(r.Context(), "rate_limited_key", key)
				respond.Error(w, r, apierr.RateLimited(cfg.Limit, retryAfter))
				return
			}

			retained = append(retained, now.UnixMilli())
			if err := rl.writeWindow(r, key, retained, cfg.Window); err != nil {
				rl.logger.Warn("rate limit store write failed",
					slog.String("key", key), slog.String("error", err.Error()))
			}

			h.Set("X-RateLimit-Remaining", strconv.Itoa(cfg.Limit-len(retained)))

			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) readWindow(r *http.Request, key string) ([]int64, error) {
	raw, err := rl.store.Get(r.Context(), key)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var timestamps []int64
	if err := json.Unmarshal(raw, &timestamps); err != nil {
		// A corrupt window record resets the counter rather than wedging the key.
		return nil, nil
	}
	return timestamps, nil
}

func (rl *RateLimiter) writeWindow(r *http.Request, key string, timestamps []int64, ttl time.Duration) error {
	raw, err := json.Marshal(timestamps)
	if err != nil {
		return err
	}
	return rl.store.Set(r.Context(), key, raw, ttl)
}

// DefaultRateLimitKey keys the window by client address. The identity
// branch only applies when a route attaches the limiter after its auth
// stage; in the standard order auth has not run yet.
func DefaultRateLimitKey(r *http.Request) string {
	if id, ok := reqctx.GetIdentity(r.Context()); ok {
		return "user:" + id.User.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
