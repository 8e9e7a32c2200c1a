package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/flm-run/flm-proxy/core"
)

// NewOllamaAdapter builds an Adapter against a local Ollama server. Ollama
// exposes both its native API and an OpenAI-compatible surface under /v1;
// FLM always speaks the latter so one Client implementation covers every
// backend kind.
func NewOllamaAdapter(baseURL string, logger *zap.Logger) Adapter {
	return NewClient(ClientConfig{
		Kind:          string(core.EngineOllama),
		BaseURL:       baseURL,
		Timeout:       60 * time.Second,
		SupportsEmbed: true,
	}, logger)
}
