//go:build !(rp2040 || rp2350)

// Package api is the device's local HTTP surface: status, wifi and upload
// settings commands, a websocket status stream and the capped log file.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sensorbridge-go/bus"
	"sensorbridge-go/errcode"
	"sensorbridge-go/services/settings"
	"sensorbridge-go/types"
	"sensorbridge-go/x/logx"
)

const (
	RequestIDHeader = "X-Request-ID"
	MaxBodySize     = 4 << 10
)

// Core is the runtime surface the API drives. Every method must be safe to
// call from request goroutines.
type Core interface {
	Snapshot() types.Status
	Networks() (entries []types.ScanEntry, inProgress bool, last time.Time)
	Settings() settings.Settings
	RequestConnect(ssid, password string) error
	RequestDisconnect() error
	RequestScan(force bool) error
	UpdateSettings(intervalMs int64, token string) error
}

// LogSource serves the device log.
type LogSource interface {
	Size() int64
	WriteTo(w io.Writer) (int64, error)
}

type Options struct {
	APIP string
	// Captive redirects requests for foreign hosts to the AP address.
	Captive bool
}

type Handler struct {
	core Core
	bus  *bus.Bus
	logs LogSource
	l    *slog.Logger
	opt  Options
}

// New builds the handler. b and logs may be nil.
func New(core Core, b *bus.Bus, logs LogSource, l *slog.Logger, opt Options) *Handler {
	return &Handler{core: core, bus: b, logs: logs, l: logx.Component(l, "api"), opt: opt}
}

// Router returns the chi router with every route and middleware mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(h.RequestIDMiddleware, h.LoggerMiddleware, CORSMiddleware)
	if h.opt.Captive {
		r.Use(h.CaptiveMiddleware)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", ErrorHandler(h.Status))
		r.Get("/events", h.Events)
		r.Get("/logs", ErrorHandler(h.Logs))
		r.Route("/wifi", func(r chi.Router) {
			r.Post("/connect", ErrorHandler(h.Connect))
			r.Post("/disconnect", ErrorHandler(h.Disconnect))
			r.Get("/scan", ErrorHandler(h.Scan))
		})
		r.Get("/settings", ErrorHandler(h.GetSettings))
		r.Post("/settings", ErrorHandler(h.PostSettings))
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		RespondJSON(w, r, http.StatusNotFound, ErrorResponse{Error: "not found"})
	})
	return r
}

// -----------------------------------------------------------------------------
// Errors and JSON helpers
// -----------------------------------------------------------------------------

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// HTTPError is an expected failure whose message goes back to the client.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string { return e.Message }

func badRequest(msg string) error { return &HTTPError{Status: http.StatusBadRequest, Message: msg} }

// HandlerFunc is a handler that may fail.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// ErrorHandler turns handler errors into JSON responses. Validation and
// busy codes from the core map to 400 and 503; anything else is a 500.
func ErrorHandler(fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}
		l := GetLogger(r.Context())
		rid := GetRequestID(r.Context())

		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			l.Warn("api:client-error", slog.Int("status", httpErr.Status), slog.String("message", httpErr.Message))
			RespondJSON(w, r, httpErr.Status, ErrorResponse{Error: httpErr.Message, RequestID: rid})
			return
		}
		switch errcode.Of(err) {
		case errcode.InvalidParams:
			RespondJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: message(err), RequestID: rid})
			return
		case errcode.Busy:
			RespondJSON(w, r, http.StatusServiceUnavailable, ErrorResponse{Error: message(err), RequestID: rid})
			return
		}
		l.Error("api:internal-error", logx.ErrAttr(err))
		RespondJSON(w, r, http.StatusInternalServerError, ErrorResponse{Error: "internal error", RequestID: rid})
	}
}

// message prefers the human part of a coded error.
func message(err error) string {
	var e *errcode.E
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return err.Error()
}

// RespondJSON writes data as JSON with the given status.
func RespondJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// The header is already out; nothing more to do.
		GetLogger(r.Context()).Error("api:encode-failed", logx.ErrAttr(err))
	}
}

// DecodeJSON decodes a bounded JSON body.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, error) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		return v, badRequest("Invalid JSON")
	}
	return v, nil
}
