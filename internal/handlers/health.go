package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/em-ech/siftopsv1-sub000/internal/contextutil"
)

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// HealthHandler handles HTTP requests for health checks.
type HealthHandler struct {
	critical           map[string]HealthCheck
	optional           map[string]HealthCheck
	breakerState       func() string
	healthCheckTimeout time.Duration
}

// NewHealthHandler creates a new HealthHandler. A failing critical check makes
// the service unhealthy; a failing optional check only degrades it.
func NewHealthHandler(critical, optional map[string]HealthCheck, breakerState func() string) *HealthHandler {
	return &HealthHandler{
		critical:           critical,
		optional:           optional,
		breakerState:       breakerState,
		healthCheckTimeout: 5 * time.Second,
	}
}

// HealthResponse represents the health check response.
//
// swagger:model HealthResponse
type HealthResponse struct {
	// Status is healthy, degraded or unhealthy.
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	// Issues is sorted and empty when healthy.
	Issues []string `json:"issues,omitempty"`
}

// ServeHTTP handles HTTP requests for health checks.
//
// swagger:route GET /api/health healthCheck
//
// # Health check endpoint
//
// Returns 200 when healthy or degraded, 503 when a critical dependency is down.
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: System is healthy or degraded
//	  schema:
//	    "$ref": "#/definitions/HealthResponse"
//	'503':
//	  description: System is unhealthy
//	  schema:
//	    "$ref": "#/definitions/HealthResponse"
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	checkCtx, cancel := context.WithTimeout(ctx, h.healthCheckTimeout)
	defer cancel()

	critical := runChecks(checkCtx, h.critical)
	optional := runChecks(checkCtx, h.optional)

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    make(map[string]string, len(critical)+len(optional)+1),
	}
	httpStatus := http.StatusOK
	degraded := false

	record := func(results map[string]error, isCritical bool) {
		for name, err := range results {
			if err == nil {
				resp.Checks[name] = "ok"
				continue
			}
			contextutil.LoggerFromContext(ctx).WarnContext(ctx, "health check failed", "check", name, "critical", isCritical, "error", err)
			resp.Checks[name] = "error"
			resp.Issues = append(resp.Issues, name+"_unavailable")
			if isCritical {
				httpStatus = http.StatusServiceUnavailable
			} else {
				degraded = true
			}
		}
	}
	record(critical, true)
	record(optional, false)

	if h.breakerState != nil {
		state := h.breakerState()
		resp.Checks["generation_breaker"] = state
		if state != "closed" {
			resp.Issues = append(resp.Issues, "generation_breaker_"+state)
			degraded = true
		}
	}
	sort.Strings(resp.Issues)

	switch {
	case httpStatus != http.StatusOK:
		resp.Status = "unhealthy"
	case degraded:
		resp.Status = "degraded"
	}
	writeJSON(ctx, w, httpStatus, resp)
}

// runChecks probes every dependency concurrently and collects the outcomes.
func runChecks(ctx context.Context, checks map[string]HealthCheck) map[string]error {
	var (
		mu      sync.Mutex
		results = make(map[string]error, len(checks))
		g       errgroup.Group
	)
	for name, check := range checks {
		g.Go(func() error {
			err := check(ctx)
			mu.Lock()
			results[name] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
