package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/flm-run/flm-proxy/core"
)

// NewVLLMAdapter builds an Adapter against a local vLLM OpenAI-compatible
// server (`vllm serve`). vLLM's embeddings endpoint requires a model started
// in embedding mode, which this adapter has no way to know at construction
// time, so SupportsEmbed is left to the caller's engine registration.
func NewVLLMAdapter(baseURL string, apiKey string, supportsEmbed bool, logger *zap.Logger) Adapter {
	return NewClient(ClientConfig{
		Kind:          string(core.EngineVLLM),
		BaseURL:       baseURL,
		APIKey:        apiKey,
		Timeout:       120 * time.Second,
		SupportsEmbed: supportsEmbed,
	}, logger)
}
