// Package health provides HTTP health check endpoints for liveness, readiness and status.
package health

import (
	"context"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/alexliesenfeld/health"
	"github.com/go-chi/chi/v5"

	"zkcred/pkg/platform/httputil"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Upstream states reported by StateFunc.
const (
	StateOK       = "ok"
	StateDegraded = "degraded"
	StateDisabled = "disabled"
)

const (
	defaultCheckTimeout = 2 * time.Second
	// Readiness requests arriving within this window share one round of checks.
	readinessCacheTTL = time.Second
)

// CheckFunc checks a dependency the service cannot run without. A non-nil
// error makes the service not ready.
type CheckFunc func(ctx context.Context) error

// StateFunc reports the state of an upstream the service can run without,
// such as the issuance backend or the issuer registry.
type StateFunc func(ctx context.Context) string

// Handler provides health check endpoints.
type Handler struct {
	startTime    time.Time
	environment  string
	checkTimeout time.Duration

	mu        sync.RWMutex
	checks    map[string]CheckFunc
	upstreams map[string]StateFunc
}

// New creates a new health handler.
func New(environment string) *Handler {
	return &Handler{
		startTime:    time.Now(),
		environment:  environment,
		checkTimeout: defaultCheckTimeout,
		checks:       make(map[string]CheckFunc),
		upstreams:    make(map[string]StateFunc),
	}
}

// RegisterCheck adds a named dependency check for the readiness endpoint.
func (h *Handler) RegisterCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// RegisterUpstream adds a named upstream whose state is reported but never
// fails readiness.
func (h *Handler) RegisterUpstream(name string, state StateFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.upstreams[name] = state
}

// Register mounts health check routes on the given router. Checks registered
// after Register are not picked up by the readiness endpoint.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleStatus)
	r.Get("/health/live", h.HandleLiveness)
	r.Method(http.MethodGet, "/health/ready", h.Readiness())
}

// LivenessResponse is the response for the liveness endpoint.
type LivenessResponse struct {
	Status string `json:"status"`
}

// HandleLiveness always returns 200 OK while the process is serving.
func (h *Handler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, LivenessResponse{
		Status: "alive",
	})
}

// ReadinessResponse is the response for the readiness endpoint.
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Upstreams map[string]string `json:"upstreams,omitempty"`
}

// Readiness builds the readiness endpoint from the registered checks. It answers
// 503 when any check fails. A degraded upstream turns the status to "degraded"
// but keeps 200.
func (h *Handler) Readiness() http.Handler {
	h.mu.RLock()
	checks := maps.Clone(h.checks)
	upstreams := maps.Clone(h.upstreams)
	h.mu.RUnlock()

	opts := []health.CheckerOption{
		health.WithTimeout(h.checkTimeout),
		health.WithCacheDuration(readinessCacheTTL),
	}
	for name, check := range checks {
		opts = append(opts, health.WithCheck(health.Check{Name: name, Check: check}))
	}
	return health.NewHandler(health.NewChecker(opts...),
		health.WithResultWriter(&readinessWriter{upstreams: upstreams, timeout: h.checkTimeout}),
	)
}

// readinessWriter renders checker results in the ReadinessResponse shape and
// adds the upstream states, which never affect the status code.
type readinessWriter struct {
	upstreams map[string]StateFunc
	timeout   time.Duration
}

func (rw *readinessWriter) Write(result *health.CheckerResult, status int, w http.ResponseWriter, r *http.Request) error {
	response := ReadinessResponse{
		Status:    "ready",
		Checks:    make(map[string]string, len(result.Details)),
		Upstreams: make(map[string]string, len(rw.upstreams)),
	}
	for name, check := range result.Details {
		switch {
		case check.Status == health.StatusUp:
			response.Checks[name] = "up"
		case check.Error != nil:
			response.Checks[name] = "down: " + check.Error.Error()
		default:
			response.Checks[name] = string(check.Status)
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), rw.timeout)
	defer cancel()
	for name, state := range rw.upstreams {
		s := state(ctx)
		response.Upstreams[name] = s
		if s == StateDegraded && result.Status == health.StatusUp {
			response.Status = StateDegraded
		}
	}
	if result.Status != health.StatusUp {
		response.Status = "not_ready"
	}

	httputil.WriteJSON(w, status, response)
	return nil
}

// StatusResponse is the response for the general health status endpoint.
type StatusResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Environment   string `json:"environment"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Timestamp     string `json:"timestamp"`
}

// HandleStatus returns general health status with version and uptime information.
func (h *Handler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{
		Status:        "healthy",
		Version:       Version,
		Environment:   h.environment,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}
