package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/flm-run/flm-proxy/engine"
)

func TestRouter_HealthzAndMetricsReachable(t *testing.T) {
	engines := engine.NewService(nil)
	router := NewRouter(RouterConfig{Engines: engines, Logger: zap.NewNop()})

	for _, path := range []string{"/healthz", "/metrics"} {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestRouter_RejectsWrongMethod(t *testing.T) {
	engines := engine.NewService(nil)
	router := NewRouter(RouterConfig{Engines: engines, Logger: zap.NewNop()})

	r := httptest.NewRequest(http.MethodGet, "/v1/chat/completions", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRouter_ModelsRequiresGet(t *testing.T) {
	engines := engine.NewService(nil)
	router := NewRouter(RouterConfig{Engines: engines, Logger: zap.NewNop()})

	r := httptest.NewRequest(http.MethodPost, "/v1/models", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
