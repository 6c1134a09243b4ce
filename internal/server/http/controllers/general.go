package controllers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rzbill/quarry/internal/runtime"
)

// GeneralController handles general HTTP endpoints like health and metrics.
type GeneralController struct {
	rt *runtime.Runtime
}

// NewGeneralController creates a new general controller.
func NewGeneralController(rt *runtime.Runtime) *GeneralController {
	return &GeneralController{rt: rt}
}

// RegisterRoutes registers general routes with the given mux.
//
// This method sets up HTTP endpoints for:
// - Health checks (/v1/healthz)
// - Prometheus metrics (/metrics)
func (c *GeneralController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/healthz", c.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
}

// handleHealth returns the health status of the service.
//
// Returns 200 OK with {"status": "ok"} if healthy, 503 Service Unavailable otherwise.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_serving")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}
