package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/flm-run/flm-proxy/core"
)

// NewLlamaCppAdapter builds an Adapter against `llama-server`'s
// OpenAI-compatible surface. Embeddings are only served when the server was
// launched with `--embedding`, which this adapter cannot detect, so
// SupportsEmbed defaults to false and must be opted into explicitly.
func NewLlamaCppAdapter(baseURL string, supportsEmbed bool, logger *zap.Logger) Adapter {
	return NewClient(ClientConfig{
		Kind:          string(core.EngineLlamaCpp),
		BaseURL:       baseURL,
		Timeout:       120 * time.Second,
		SupportsEmbed: supportsEmbed,
	}, logger)
}
