package proxy

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/flm-run/flm-proxy/core"
	"github.com/flm-run/flm-proxy/engine"
)

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Object string             `json:"object"`
	Model  string             `json:"model"`
	Data   []engine.Embedding `json:"data"`
	Usage  engine.ChatUsage   `json:"usage"`
}

// EmbeddingsHandler serves POST /v1/embeddings.
type EmbeddingsHandler struct {
	engines *engine.Service
	logger  *zap.Logger
}

func NewEmbeddingsHandler(engines *engine.Service, logger *zap.Logger) *EmbeddingsHandler {
	return &EmbeddingsHandler{engines: engines, logger: logger}
}

func (h *EmbeddingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req embeddingsRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		return
	}
	if req.Model == "" {
		WriteError(w, core.NewUserError("model is required"), h.logger)
		return
	}
	if len(req.Input) == 0 {
		WriteError(w, core.NewUserError("input cannot be empty"), h.logger)
		return
	}

	uri, _ := core.ParseModelURI(req.Model)
	adapter, err := h.engines.Resolve(uri)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	resp, err := adapter.Embeddings(r.Context(), &engine.EmbeddingsRequest{Model: uri.Model, Input: req.Input})
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteSuccess(w, embeddingsResponse{
		Object: "list",
		Model:  resp.Model,
		Data:   resp.Data,
		Usage:  resp.Usage,
	})
}

type modelListEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

type modelListResponse struct {
	Object string           `json:"object"`
	Data   []modelListEntry `json:"data"`
}

// ModelsHandler serves GET /v1/models, aggregating each registered engine's
// ListModels under its engine id so the returned id is a routable flm://
// model URI rather than the bare backend name.
type ModelsHandler struct {
	engines *engine.Service
	logger  *zap.Logger
}

func NewModelsHandler(engines *engine.Service, logger *zap.Logger) *ModelsHandler {
	return &ModelsHandler{engines: engines, logger: logger}
}

func (h *ModelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var entries []modelListEntry
	for _, engineID := range h.engines.List() {
		adapter, err := h.engines.Get(engineID)
		if err != nil {
			continue
		}
		models, err := adapter.ListModels(r.Context())
		if err != nil {
			h.logger.Warn("failed to list models for engine", zap.String("engine_id", engineID), zap.Error(err))
			continue
		}
		for _, m := range models {
			entries = append(entries, modelListEntry{
				ID:      core.ModelURI{EngineID: engineID, Model: m.ID}.String(),
				Object:  m.Object,
				OwnedBy: m.OwnedBy,
			})
		}
	}
	WriteSuccess(w, modelListResponse{Object: "list", Data: entries})
}
