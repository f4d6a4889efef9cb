package health

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/smart-tutor/backend/pkg/utils"
)

const version = "0.1.0"

// Pinger is a dependency that can report its availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass" or "fail"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// Response represents the health check response.
type Response struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
	Info      map[string]any   `json:"info,omitempty"`
	Timestamp string           `json:"timestamp"`
}

// Handler reports the health of the store and upstream providers.
type Handler struct {
	checks map[string]Pinger
	info   map[string]any
}

// New creates a health handler. A nil Pinger is reported as "not configured" without
// degrading the overall status; optional providers are registered that way.
func New(checks map[string]Pinger, info map[string]any) *Handler {
	return &Handler{checks: checks, info: info}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
}

// Health handles the health check endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check, len(h.checks))
	allHealthy := true

	for name, dep := range h.checks {
		if dep == nil {
			checks[name] = Check{Status: "pass", Message: "not configured"}
			continue
		}
		start := time.Now()
		if err := dep.Ping(ctx); err != nil {
			checks[name] = Check{Status: "fail", Message: err.Error()}
			allHealthy = false
			continue
		}
		checks[name] = Check{Status: "pass", Latency: time.Since(start).String()}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	utils.RespondJSON(w, statusCode, Response{
		Status:    status,
		Version:   version,
		Checks:    checks,
		Info:      h.info,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
