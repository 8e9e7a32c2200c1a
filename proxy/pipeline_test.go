package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flm-run/flm-proxy/engine"
	"go.uber.org/zap"
)

func TestPipeline_HealthzReachableWithoutAPIKey(t *testing.T) {
	svc := newTestSecurityService(t)
	collector := newTestCollector(t)
	engines := engine.NewService(nil)

	router := NewRouter(RouterConfig{Engines: engines, Logger: zap.NewNop()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewPipeline(ctx, PipelineConfig{Security: svc, Metrics: collector, Logger: zap.NewNop()}, router)

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPipeline_ChatCompletionsRejectedWithoutAPIKey(t *testing.T) {
	svc := newTestSecurityService(t)
	collector := newTestCollector(t)
	engines := engine.NewService(nil)

	router := NewRouter(RouterConfig{Engines: engines, Logger: zap.NewNop()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewPipeline(ctx, PipelineConfig{Security: svc, Metrics: collector, Logger: zap.NewNop()}, router)

	r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPipeline_BlockedIPDeniedEvenWithValidKey(t *testing.T) {
	svc := newTestSecurityService(t)
	collector := newTestCollector(t)
	engines := engine.NewService(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	plaintext, _, err := svc.CreateAPIKey(ctx, "test")
	require.NoError(t, err)
	require.NoError(t, svc.BlockIP(ctx, "192.0.2.55", "test", "manual", nil))

	router := NewRouter(RouterConfig{Engines: engines, Logger: zap.NewNop()})
	h := NewPipeline(ctx, PipelineConfig{Security: svc, Metrics: collector, Logger: zap.NewNop()}, router)

	r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	r.RemoteAddr = "192.0.2.55:1234"
	r.Header.Set("Authorization", "Bearer "+plaintext)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
