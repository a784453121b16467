package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/atrium-hq/atrium/internal/kv"
	"github.com/atrium-hq/atrium/internal/reqctx"
)

const cacheKeyPrefix = "cache:"

// DefaultMaxCacheableBody bounds how large a response body may be and still
// be stored. Larger bodies are served normally but never cached, avoiding
// unbounded double materialization.
const DefaultMaxCacheableBody = 1 << 20 // 1 MiB

// CacheConfig configures response caching for one route.
type CacheConfig struct {
	// TTL is how long an entry lives in the store.
	TTL time.Duration
	// KeyFunc derives the cache key. Defaults to method + path + sorted
	// query string. Routes serving identity-dependent data must include the
	// identity in their key.
	KeyFunc func(r *http.Request) string
	// SkipFunc, when it returns true, bypasses the cache entirely for that
	// request. Defaults to skipping everything but GET.
	SkipFunc func(r *http.Request) bool
	// MaxBodySize overrides DefaultMaxCacheableBody when positive.
	MaxBodySize int
}

// ResponseCache is the cache-aside middleware over the shared key-value
// store. Hits are served without invoking the handler or any later stage;
// misses run the handler and store 2xx responses wholesale. With no store
// configured every request goes straight to the handler.
type ResponseCache struct {
	store  kv.Store
	logger *slog.Logger
}

// NewResponseCache creates a response cache backed by store. A nil store
// disables caching.
func NewResponseCache(store kv.Store, logger *slog.Logger) *ResponseCache {
	if store == nil {
		logger.Warn("response cache has no key-value store configured; caching is disabled")
	}
	return &ResponseCache{store: store, logger: logger}
}

// cachedResponse is the stored {status, headers, body} record.
type cachedResponse struct {
	Status  int                 `json:"status"`
	Headers map[string][]string `json:"headers"`
	Body    []byte              `json:"body"`
}

// headers never persisted into cache entries even when the handler sets
// them; they are request-scoped.
var uncachedHeaders = map[string]bool{
	"Set-Cookie":   true,
	"X-Request-Id": true,
	"X-Cache":      true,
	"Date":         true,
}

// Middleware returns the caching middleware enforcing cfg.
func (c *ResponseCache) Middleware(cfg CacheConfig) func(http.Handler) http.Handler {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = DefaultCacheKey
	}
	skipFunc := cfg.SkipFunc
	if skipFunc == nil {
		skipFunc = func(r *http.Request) bool { return r.Method != http.MethodGet }
	}
	maxBody := cfg.MaxBodySize
	if maxBody <= 0 {
		maxBody = DefaultMaxCacheableBody
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c.store == nil || skipFunc(r) {
				next.ServeHTTP(w, r)
				return
			}

			key := cacheKeyPrefix + keyFunc(r)

			if entry := c.lookup(r, key); entry != nil {
				reqctx.AddLogField(r.Context(), "cache", "hit")
				serveCached(w, entry)
				return
			}

			reqctx.AddLogField(r.Context(), "cache", "miss")
			w.Header().Set("X-Cache", "MISS")

			// Headers already present were set by outer middleware (CORS,
			// security) and are recomputed per request; only headers the
			// handler itself sets belong in the entry.
			preset := w.Header().Clone()

			rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK, maxBody: maxBody}
			next.ServeHTTP(rec, r)

			// Only successful responses are cached, and only bounded ones.
			if rec.status < 200 || rec.status >= 300 || rec.overflowed {
				return
			}

			c.save(r, key, cachedResponse{
				Status:  rec.status,
				Headers: handlerHeaders(w.Header(), preset),
				Body:    rec.body.Bytes(),
			}, cfg.TTL)
		})
	}
}

func (c *ResponseCache) lookup(r *http.Request, key string) *cachedResponse {
	raw, err := c.store.Get(r.Context(), key)
	if err != nil {
		c.logger.Warn("cache read failed",
			slog.String("key", key), slog.String("error", err.Error()))
		return nil
	}
	if raw == nil {
		return nil
	}

	var entry cachedResponse
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil
	}
	return &entry
}

func (c *ResponseCache) save(r *http.Request, key string, entry cachedResponse, ttl time.Duration) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.store.Set(r.Context(), key, raw, ttl); err != nil {
		c.logger.Warn("cache write failed",
			slog.String("key", key), slog.String("error", err.Error()))
	}
}

func serveCached(w http.ResponseWriter, entry *cachedResponse) {
	h := w.Header()
	for name, values := range entry.Headers {
		// Replace, never append: the live request may carry its own copy.
		h.Del(name)
		for _, v := range values {
			h.Add(name, v)
		}
	}
	h.Set("X-Cache", "HIT")
	w.WriteHeader(entry.Status)
	_, _ = w.Write(entry.Body)
}

// handlerHeaders returns the headers the handler added or changed relative
// to the pre-handler snapshot, minus the never-cached set.
func handlerHeaders(h, preset http.Header) map[string][]string {
	out := make(map[string][]string, len(h))
	for name, values := range h {
		if uncachedHeaders[name] {
			continue
		}
		if slices.Equal(preset[name], values) {
			continue
		}
		out[name] = values
	}
	return out
}

// recordingWriter tees the response into a bounded buffer while writing it
// through to the client.
type recordingWriter struct {
	http.ResponseWriter
	status     int
	body       bytes.Buffer
	maxBody    int
	overflowed bool
}

func (rw *recordingWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	if !rw.overflowed {
		if rw.body.Len()+len(b) > rw.maxBody {
			rw.overflowed = true
			rw.body.Reset()
		} else {
			rw.body.Write(b)
		}
	}
	return rw.ResponseWriter.Write(b)
}

// DefaultCacheKey keys entries by method, path, and sorted query string.
func DefaultCacheKey(r *http.Request) string {
	var sb strings.Builder
	sb.WriteString(r.Method)
	sb.WriteString(":")
	sb.WriteString(r.URL.Path)

	if len(r.URL.Query()) > 0 {
		keys := make([]string, 0, len(r.URL.Query()))
		for k := range r.URL.Query() {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sep := "?"
		for _, k := range keys {
			sb.WriteString(sep)
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(r.URL.Query().Get(k))
			sep = "&"
		}
	}
	return sb.String()
}
