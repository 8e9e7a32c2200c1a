package proxy

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/flm-run/flm-proxy/core"
	"github.com/flm-run/flm-proxy/engine"
)

// RouterConfig carries the dependencies every route handler needs.
type RouterConfig struct {
	Engines *engine.Service
	Logger  *zap.Logger
}

// NewRouter builds the OpenAI-compatible route surface:
// chat completions (with SSE when stream:true), embeddings, model listing,
// health, and metrics. The returned handler is unwrapped; wrap it with
// NewPipeline before serving.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	chat := NewChatHandler(cfg.Engines, cfg.Logger)
	embeddings := NewEmbeddingsHandler(cfg.Engines, cfg.Logger)
	models := NewModelsHandler(cfg.Engines, cfg.Logger)
	health := NewHealthHandler(cfg.Engines, cfg.Logger)

	mux.Handle("/v1/chat/completions", methodOnly(http.MethodPost, chat))
	mux.Handle("/v1/embeddings", methodOnly(http.MethodPost, embeddings))
	mux.Handle("/v1/models", methodOnly(http.MethodGet, models))
	mux.Handle("/healthz", methodOnly(http.MethodGet, health))
	mux.Handle("/metrics", methodOnly(http.MethodGet, promhttp.Handler()))

	return mux
}

func methodOnly(method string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			WriteError(w, core.NewUserError("method not allowed").WithHTTPStatus(http.StatusMethodNotAllowed), nil)
			return
		}
		h.ServeHTTP(w, r)
	})
}
