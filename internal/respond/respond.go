// Package respond renders the uniform response envelope. Every route reply,
// success or failure, goes through here so clients always receive the same
// JSON shape and status-code mapping.
package respond

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/atrium-hq/atrium/internal/apierr"
	"github.com/atrium-hq/atrium/internal/reqctx"
)

// debug gates whether untyped failure messages are exposed to clients.
// Enabled only outside production deployments, once at startup.
var debug atomic.Bool

// SetDebug toggles inclusion of underlying error messages in internal-error
// envelopes. Call once during bootstrap.
func SetDebug(enabled bool) {
	debug.Store(enabled)
}

// Meta is the success envelope's metadata block.
type Meta struct {
	Timestamp int64  `json:"timestamp"`
	RequestID string `json:"requestId,omitempty"`
}

type successEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
	Meta    Meta `json:"meta"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

type errorBody struct {
	Message   string      `json:"message"`
	Code      apierr.Code `json:"code,omitempty"`
	Details   any         `json:"details,omitempty"`
	Timestamp int64       `json:"timestamp"`
	RequestID string      `json:"requestId,omitempty"`
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// JSON writes a success envelope with the given status.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, status, successEnvelope{
		Success: true,
		Data:    data,
		Meta: Meta{
			Timestamp: nowMillis(),
			RequestID: reqctx.RequestID(r.Context()),
		},
	})
}

// Error normalizes err through the taxonomy and writes an error envelope.
// The error is recorded once on the request log; internal causes are only
// serialized when debug rendering is enabled.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apierr.From(err)
	reqctx.AddError(r.Context(), err)

	message := apiErr.Message
	if apiErr.Status == http.StatusInternalServerError && debug.Load() {
		message = err.Error()
	}

	writeJSON(w, apiErr.Status, errorEnvelope{
		Success: false,
		Error: errorBody{
			Message:   message,
			Code:      apiErr.Code,
			Details:   apiErr.Details,
			Timestamp: nowMillis(),
			RequestID: reqctx.RequestID(r.Context()),
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	if w.Header().Get("Cache-Control") == "" {
		w.Header().Set("Cache-Control", "no-cache")
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusData pairs a payload with a non-200 success status.
type statusData struct {
	status int
	data   any
}

// Status wraps a handler result so Handle writes it with the given status
// instead of 200.
func Status(status int, data any) any {
	return statusData{status: status, data: data}
}

// HandlerFunc is a unit of route work. It returns the payload for the
// success envelope, or an error that Handle converts through the taxonomy.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) (any, error)

// Handle adapts a HandlerFunc into an http.HandlerFunc, rendering exactly
// one envelope per request.
func Handle(fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := fn(w, r)
		if err != nil {
			Error(w, r, err)
			return
		}
		if sd, ok := data.(statusData); ok {
			JSON(w, r, sd.status, sd.data)
			return
		}
		JSON(w, r, http.StatusOK, data)
	}
}
