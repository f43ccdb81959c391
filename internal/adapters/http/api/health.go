package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/courtside/pkg/metrics"
)

// handleHealth handles GET /healthz requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Status(r.Context())
	if err := s.deps.Healthy(r.Context()); err != nil {
		status["status"] = "unavailable"
		status["error"] = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	status["status"] = "ok"
	writeJSON(w, http.StatusOK, status)
}

// MetricsHandler serves the service's Prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})
}
