package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/atrium-hq/atrium/internal/reqctx"
	"github.com/atrium-hq/atrium/internal/schema"
)

type createNote struct {
	Title string `json:"title" validate:"required,min=1,max=200"`
	Body  string `json:"body" validate:"required"`
}

func TestValidateBodyPopulatesContext(t *testing.T) {
	var got createNote
	var ok bool
	handler := ValidateBody[createNote]()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = reqctx.Body[createNote](r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/notes", strings.NewReader(`{"title":"hello","body":"world"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !ok {
		t.Fatal("validated body missing from context")
	}
	if got.Title != "hello" || got.Body != "world" {
		t.Errorf("body = %+v", got)
	}
}

func TestValidateBodyRejectsViolations(t *testing.T) {
	handlerRan := false
	handler := ValidateBody[createNote]()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerRan = true
	}))

	req := httptest.NewRequest("POST", "/notes", strings.NewReader(`{"title":""}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if handlerRan {
		t.Error("handler ran despite validation failure")
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	errBlock, _ := body["error"].(map[string]any)
	details, _ := errBlock["details"].([]any)
	if len(details) != 2 {
		t.Errorf("expected 2 violations (title, body), got %d: %v", len(details), details)
	}
	for _, d := range details {
		entry := d.(map[string]any)
		if entry["path"] == "" || entry["message"] == "" {
			t.Errorf("violation missing path or message: %v", entry)
		}
	}
}

func TestValidateBodyMalformedJSONIs400(t *testing.T) {
	handler := ValidateBody[createNote]()(okHandler())

	req := httptest.NewRequest("POST", "/notes", strings.NewReader(`{"title": `))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestValidateQueryPopulatesContext(t *testing.T) {
	var got schema.Pagination
	handler := ValidateQuery[schema.Pagination]()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = reqctx.Query[schema.Pagination](r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/notes?page=2&limit=5", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got.Page != 2 || got.Limit != 5 {
		t.Errorf("query = %+v", got)
	}
	if got.Order != "desc" {
		t.Errorf("order default = %q, want desc", got.Order)
	}
}

func TestValidateParamsWithChiRoute(t *testing.T) {
	var got schema.ID
	r := chi.NewRouter()
	r.With(ValidateParams[schema.ID]()).Get("/users/{id}", func(w http.ResponseWriter, req *http.Request) {
		got, _ = reqctx.Params[schema.ID](req.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/users/7f9c24e5-2e34-4a5b-9f31-0b4c8a1d6e2f", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got.ID != "7f9c24e5-2e34-4a5b-9f31-0b4c8a1d6e2f" {
		t.Errorf("params.ID = %q", got.ID)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/users/banana", nil))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid id status = %d, want 422", rec.Code)
	}
}

// Validators compose body, then query; the first failure short-circuits.
func TestValidatorOrderShortCircuits(t *testing.T) {
	queryRan := false
	probe := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			queryRan = true
			next.ServeHTTP(w, r)
		})
	}

	chain := ValidateBody[createNote]()(probe(ValidateQuery[schema.Pagination]()(okHandler())))

	req := httptest.NewRequest("POST", "/notes?page=1", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if queryRan {
		t.Error("query validator ran after body validation failed")
	}
}

func TestRequireIdentityWithoutAuth(t *testing.T) {
	_, err := reqctx.RequireIdentity(context.Background())
	if err == nil {
		t.Fatal("RequireIdentity returned no error for anonymous context")
	}
}
