package handler

import (
	"net/http"
)

// MetricsHandler exposes the Prometheus registry.
type MetricsHandler struct {
	exporter http.Handler
}

// NewMetricsHandler creates a new MetricsHandler. A nil exporter makes the
// endpoint answer 503, which is what happens when metrics are disabled.
func NewMetricsHandler(exporter http.Handler) *MetricsHandler {
	return &MetricsHandler{exporter: exporter}
}

// Metrics serves GET /metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	h.exporter.ServeHTTP(w, r)
}
