package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"

	"github.com/dokzlo13/daybetterd/internal/control"
	"github.com/dokzlo13/daybetterd/internal/device"
	"github.com/dokzlo13/daybetterd/internal/ledger"
	"github.com/dokzlo13/daybetterd/internal/poll"
	"github.com/dokzlo13/daybetterd/internal/token"
)

const (
	requestTimeout      = 20 * time.Second
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Controller applies desired states.
type Controller interface {
	SetState(ctx context.Context, name string, desired control.Desired) error
}

// Poller exposes the per-device poll state.
type Poller interface {
	Touch(name string)
	Refresh(name string)
	Phase(name string, now time.Time) poll.Phase
}

// History reads the command ledger.
type History interface {
	ByDevice(device string, limit int) ([]*ledger.Entry, error)
}

// Handlers serves the device API.
type Handlers struct {
	registry   *device.Registry
	controller Controller
	poller     Poller
	history    History
}

// NewHandlers creates the API handlers.
func NewHandlers(registry *device.Registry, controller Controller, poller Poller, history History) *Handlers {
	return &Handlers{registry: registry, controller: controller, poller: poller, history: history}
}

type historyEntry struct {
	EventType ledger.EventType `json:"event_type"`
	Timestamp time.Time        `json:"timestamp"`
	CommandID string           `json:"command_id,omitempty"`
	Payload   map[string]any   `json:"payload,omitempty"`
}

type deviceResponse struct {
	device.View
	PollPhase string `json:"poll_phase"`
}

// Router builds the routing tree.
func (h *Handlers) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(requestLogger)

	r.Get("/health", h.health)
	r.Route("/api/devices", func(r chi.Router) {
		r.Get("/", h.listDevices)
		r.Get("/{name}", h.getDevice)
		r.Post("/{name}/state", h.setState)
		r.Post("/{name}/refresh", h.refresh)
		r.Get("/{name}/history", h.deviceHistory)
	})
	return r
}

func (h *Handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "devices": h.registry.Len()})
}

func (h *Handlers) listDevices(w http.ResponseWriter, _ *http.Request) {
	now := time.Now()
	devices := h.registry.All()
	items := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		items = append(items, h.render(d, now))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// getDevice counts as activity: a suspended device resumes polling.
func (h *Handlers) getDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.poller.Touch(d.Name())
	writeJSON(w, http.StatusOK, h.render(d, time.Now()))
}

func (h *Handlers) setState(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var desired control.Desired
	if err := json.NewDecoder(r.Body).Decode(&desired); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}

	if err := h.controller.SetState(r.Context(), name, desired); err != nil {
		status, code := classify(err)
		writeError(w, status, code, err.Error())
		return
	}

	d, _ := h.registry.Get(name)
	writeJSON(w, http.StatusOK, h.render(d, time.Now()))
}

func (h *Handlers) refresh(w http.ResponseWriter, r *http.Request) {
	d, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.poller.Refresh(d.Name())
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

func (h *Handlers) deviceHistory(w http.ResponseWriter, r *http.Request) {
	d, ok := h.lookup(w, r)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := cast.ToIntE(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := h.history.ByDevice(d.Name(), limit)
	if err != nil {
		log.Error().Err(err).Str("device", d.Name()).Msg("Failed to read command history")
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to read history")
		return
	}

	items := make([]historyEntry, 0, len(entries))
	for _, e := range entries {
		items = append(items, historyEntry{
			EventType: e.EventType,
			Timestamp: e.Timestamp,
			CommandID: e.CommandID,
			Payload:   e.Payload,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handlers) lookup(w http.ResponseWriter, r *http.Request) (*device.Device, bool) {
	d, ok := h.registry.Get(chi.URLParam(r, "name"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Device not found")
	}
	return d, ok
}

func (h *Handlers) render(d *device.Device, now time.Time) deviceResponse {
	return deviceResponse{View: d.View(), PollPhase: h.poller.Phase(d.Name(), now).String()}
}

func classify(err error) (int, string) {
	var ctrlErr *control.ControlError
	var authErr *token.AuthError
	switch {
	case errors.Is(err, control.ErrUnknownDevice):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, control.ErrEmptyRequest):
		return http.StatusBadRequest, "empty_request"
	case errors.As(err, &authErr):
		return http.StatusServiceUnavailable, "auth_failed"
	case errors.As(err, &ctrlErr):
		return http.StatusBadGateway, "control_failed"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
