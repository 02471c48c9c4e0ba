package handlers

import (
	"context"
	"net/http"
	"os"
	"time"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass" or "fail"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the detailed health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Instance  string           `json:"instance,omitempty"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Live reports that the process is up. It never checks dependencies.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, StatusResponse{Status: "live"})
}

// Ready reports whether webhooks can be accepted, which only requires the
// shared secret. Store reachability is reported by Health instead.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		h.JSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"error":  "WEBHOOK_SECRET not set",
		})
		return
	}
	h.JSON(w, http.StatusOK, StatusResponse{Status: "ready"})
}

// Health pings every backing service and reports per-check latency.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	allHealthy := true

	checks["database"] = runCheck(ctx, h.db)
	if checks["database"].Status != "pass" {
		allHealthy = false
	}

	if p, ok := h.cache.(pinger); ok {
		checks["redis"] = runCheck(ctx, p)
		if checks["redis"].Status != "pass" {
			allHealthy = false
		}
	}

	if h.secret == "" {
		checks["webhook_secret"] = Check{Status: "fail", Message: "not configured"}
		allHealthy = false
	} else {
		checks["webhook_secret"] = Check{Status: "pass"}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	h.JSON(w, statusCode, HealthResponse{
		Status:    status,
		Version:   version,
		Instance:  os.Getenv("HOSTNAME"),
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func runCheck(ctx context.Context, p pinger) Check {
	if p == nil {
		return Check{Status: "fail", Message: "not configured"}
	}
	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		return Check{Status: "fail", Message: "connection failed"}
	}
	return Check{Status: "pass", Latency: time.Since(start).String()}
}

// RootResponse represents the root endpoint response.
type RootResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

// Root handles the root endpoint.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{
		Message: "lyftr webhook service running",
		Version: version,
	})
}
