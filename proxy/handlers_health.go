package proxy

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/flm-run/flm-proxy/engine"
)

type engineHealthEntry struct {
	EngineID  string `json:"engine_id"`
	Healthy   bool   `json:"healthy"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type healthResponse struct {
	Status  string              `json:"status"`
	Engines []engineHealthEntry `json:"engines"`
}

// HealthHandler serves GET /healthz: always 200 with the listener's own
// liveness, annotated with a health check of each registered engine run
// during this request so an operator can see backend health without a
// separate call.
type HealthHandler struct {
	engines *engine.Service
	logger  *zap.Logger
}

func NewHealthHandler(engines *engine.Service, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{engines: engines, logger: logger}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	entries := make([]engineHealthEntry, 0, len(h.engines.List()))
	for _, engineID := range h.engines.List() {
		adapter, err := h.engines.Get(engineID)
		if err != nil {
			continue
		}
		hs, err := adapter.HealthCheck(r.Context())
		if err != nil {
			status = "degraded"
			entries = append(entries, engineHealthEntry{EngineID: engineID, Healthy: false, Error: err.Error()})
			continue
		}
		if !hs.Healthy {
			status = "degraded"
		}
		entries = append(entries, engineHealthEntry{
			EngineID:  engineID,
			Healthy:   hs.Healthy,
			LatencyMS: hs.Latency.Milliseconds(),
		})
	}
	WriteJSON(w, http.StatusOK, healthResponse{Status: status, Engines: entries})
}
