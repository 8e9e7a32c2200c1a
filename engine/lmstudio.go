package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/flm-run/flm-proxy/core"
)

// NewLMStudioAdapter builds an Adapter against a local LM Studio server,
// which ships a stock OpenAI-compatible surface on port 1234 by default.
func NewLMStudioAdapter(baseURL string, logger *zap.Logger) Adapter {
	return NewClient(ClientConfig{
		Kind:          string(core.EngineLMStudio),
		BaseURL:       baseURL,
		Timeout:       60 * time.Second,
		SupportsEmbed: true,
	}, logger)
}
