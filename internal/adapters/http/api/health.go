package api

import (
	"net/http"

	"github.com/okian/celestial/internal/domain/prediction"
	"github.com/okian/celestial/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StrategyProvider names the active prediction strategy.
type StrategyProvider interface {
	Strategy() string
}

// HealthHandler handles health check and metrics requests.
type HealthHandler struct {
	strategy StrategyProvider
	metrics  http.Handler
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(strategy StrategyProvider) *HealthHandler {
	return &HealthHandler{
		strategy: strategy,
		metrics:  promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
	}
}

type healthResponse struct {
	Status      string `json:"status"`
	Strategy    string `json:"strategy"`
	ModelLoaded bool   `json:"model_loaded"`
}

// HandleHealth handles GET /healthz requests.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	strategy := h.strategy.Strategy()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Strategy:    strategy,
		ModelLoaded: strategy == prediction.StrategyModel,
	})
}

// HandleMetrics serves the Prometheus exposition from the custom registry.
func (h *HealthHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}
