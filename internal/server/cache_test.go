package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atrium-hq/atrium/internal/kv"
)

func TestCacheMissThenHit(t *testing.T) {
	cache := NewResponseCache(kv.NewMemory(), discardLogger())

	var calls int
	handler := cache.Middleware(CacheConfig{TTL: time.Minute})(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `{"value":42}`)
		}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest("GET", "/data", nil))
	checkHeader(t, first, "X-Cache", "MISS")

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest("GET", "/data", nil))
	checkHeader(t, second, "X-Cache", "HIT")

	if calls != 1 {
		t.Errorf("handler invoked %d times, want 1", calls)
	}
	if first.Body.String() != second.Body.String() {
		t.Errorf("cached body differs: %q vs %q", first.Body.String(), second.Body.String())
	}
	if got := second.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("cached Content-Type = %q", got)
	}
	if second.Code != http.StatusOK {
		t.Errorf("cached status = %d", second.Code)
	}
}

func TestCacheNeverStoresNon2xx(t *testing.T) {
	cache := NewResponseCache(kv.NewMemory(), discardLogger())

	var calls int
	handler := cache.Middleware(CacheConfig{TTL: time.Minute})(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusNotFound)
		}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/missing", nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d", rec.Code)
		}
		checkHeader(t, rec, "X-Cache", "MISS")
	}

	if calls != 2 {
		t.Errorf("handler invoked %d times, want 2 (error responses must not be cached)", calls)
	}
}

func TestCacheSkipsNonGETByDefault(t *testing.T) {
	cache := NewResponseCache(kv.NewMemory(), discardLogger())

	var calls int
	handler := cache.Middleware(CacheConfig{TTL: time.Minute})(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusOK)
		}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("POST", "/mutate", nil))
		if got := rec.Header().Get("X-Cache"); got != "" {
			t.Errorf("mutation got X-Cache = %q", got)
		}
	}

	if calls != 2 {
		t.Errorf("handler invoked %d times, want 2", calls)
	}
}

func TestCacheSkipPredicate(t *testing.T) {
	cache := NewResponseCache(kv.NewMemory(), discardLogger())

	var calls int
	cfg := CacheConfig{
		TTL:      time.Minute,
		SkipFunc: func(r *http.Request) bool { return r.URL.Query().Get("fresh") == "1" },
	}
	handler := cache.Middleware(cfg)(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusOK)
		}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/data?fresh=1", nil))
		if got := rec.Header().Get("X-Cache"); got != "" {
			t.Errorf("skipped request got X-Cache = %q", got)
		}
	}

	if calls != 2 {
		t.Errorf("handler invoked %d times, want 2", calls)
	}
}

func TestCachePassthroughWithoutStore(t *testing.T) {
	cache := NewResponseCache(nil, discardLogger())

	var calls int
	handler := cache.Middleware(CacheConfig{TTL: time.Minute})(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusOK)
		}))

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/data", nil))
	}

	if calls != 2 {
		t.Errorf("handler invoked %d times, want 2", calls)
	}
}

func TestCacheBoundsBodySize(t *testing.T) {
	cache := NewResponseCache(kv.NewMemory(), discardLogger())

	big := strings.Repeat("x", 128)
	var calls int
	cfg := CacheConfig{TTL: time.Minute, MaxBodySize: 64}
	handler := cache.Middleware(cfg)(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, big)
		}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest("GET", "/big", nil))
	if first.Body.String() != big {
		t.Error("oversized body was truncated on the wire")
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest("GET", "/big", nil))
	checkHeader(t, second, "X-Cache", "MISS")

	if calls != 2 {
		t.Errorf("handler invoked %d times, want 2 (oversized bodies must not be cached)", calls)
	}
}

// Headers set by outer middleware are recomputed per request and must not
// be stored or replayed; a hit carries the live request's values exactly
// once, never the first requester's.
func TestCacheHitKeepsLiveMiddlewareHeaders(t *testing.T) {
	cache := NewResponseCache(kv.NewMemory(), discardLogger())

	cached := cache.Middleware(CacheConfig{TTL: time.Minute})(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, `{"value":1}`)
		}))

	// Outer layer standing in for CORS and the security headers, writing
	// per-request values before the cache runs.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", r.Header.Get("Origin"))
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Add("Vary", "Origin")
		cached.ServeHTTP(w, r)
	})

	first := httptest.NewRequest("GET", "/data", nil)
	first.Header.Set("Origin", "https://a.example")
	handler.ServeHTTP(httptest.NewRecorder(), first)

	second := httptest.NewRequest("GET", "/data", nil)
	second.Header.Set("Origin", "https://b.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, second)

	checkHeader(t, rec, "X-Cache", "HIT")
	for name, want := range map[string]string{
		"Access-Control-Allow-Origin": "https://b.example",
		"X-Content-Type-Options":      "nosniff",
		"Vary":                        "Origin",
	} {
		got := rec.Header().Values(name)
		if len(got) != 1 || got[0] != want {
			t.Errorf("header %s = %v, want exactly [%s]", name, got, want)
		}
	}
	checkHeader(t, rec, "Content-Type", "application/json")
}

func TestCacheKeysIncludeQuery(t *testing.T) {
	a := httptest.NewRequest("GET", "/list?page=1&limit=20", nil)
	b := httptest.NewRequest("GET", "/list?page=2&limit=20", nil)

	if DefaultCacheKey(a) == DefaultCacheKey(b) {
		t.Error("different query strings produced the same cache key")
	}

	// Query order does not matter
	c := httptest.NewRequest("GET", "/list?limit=20&page=1", nil)
	if DefaultCacheKey(a) != DefaultCacheKey(c) {
		t.Error("query parameter order changed the cache key")
	}
}
