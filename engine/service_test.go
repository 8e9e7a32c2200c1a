package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flm-run/flm-proxy/core"
)

type fakeAdapter struct {
	kind    string
	healthy bool
}

func (f *fakeAdapter) Kind() string { return f.kind }
func (f *fakeAdapter) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return &ChatResponse{Model: req.Model}, nil
}
func (f *fakeAdapter) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk)
	close(ch)
	return ch, nil
}
func (f *fakeAdapter) Embeddings(ctx context.Context, req *EmbeddingsRequest) (*EmbeddingsResponse, error) {
	return &EmbeddingsResponse{Model: req.Model}, nil
}
func (f *fakeAdapter) ListModels(ctx context.Context) ([]ModelInfo, error) { return nil, nil }
func (f *fakeAdapter) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	return &HealthStatus{Healthy: f.healthy}, nil
}

func TestService_RegisterGetUnregister(t *testing.T) {
	svc := NewService(nil)
	a := &fakeAdapter{kind: "ollama", healthy: true}
	svc.Register("local-ollama", a)

	got, err := svc.Get("local-ollama")
	require.NoError(t, err)
	assert.Same(t, a, got)

	svc.Unregister("local-ollama")
	_, err = svc.Get("local-ollama")
	require.Error(t, err)
	ferr, ok := core.AsError(err)
	require.True(t, ok)
	assert.Equal(t, core.CodeEngineNotFound, ferr.Code)
}

func TestService_DefaultAndResolve(t *testing.T) {
	svc := NewService(nil)
	a := &fakeAdapter{kind: "ollama"}
	svc.Register("local-ollama", a)

	_, err := svc.Default()
	require.Error(t, err)

	require.NoError(t, svc.SetDefault("local-ollama"))
	got, err := svc.Default()
	require.NoError(t, err)
	assert.Same(t, a, got)

	resolved, err := svc.Resolve(core.ModelURI{Model: "llama3"})
	require.NoError(t, err)
	assert.Same(t, a, resolved)

	resolved, err = svc.Resolve(core.ModelURI{EngineID: "local-ollama", Model: "llama3"})
	require.NoError(t, err)
	assert.Same(t, a, resolved)

	_, err = svc.Resolve(core.ModelURI{EngineID: "missing", Model: "llama3"})
	require.Error(t, err)
}

func TestService_SetDefault_UnregisteredEngine(t *testing.T) {
	svc := NewService(nil)
	err := svc.SetDefault("ghost")
	require.Error(t, err)
}

func TestService_UnregisterClearsDefault(t *testing.T) {
	svc := NewService(nil)
	svc.Register("a", &fakeAdapter{kind: "ollama"})
	require.NoError(t, svc.SetDefault("a"))
	svc.Unregister("a")
	_, err := svc.Default()
	require.Error(t, err)
}

func TestService_List_Sorted(t *testing.T) {
	svc := NewService(nil)
	svc.Register("zeta", &fakeAdapter{kind: "ollama"})
	svc.Register("alpha", &fakeAdapter{kind: "vllm"})
	assert.Equal(t, []string{"alpha", "zeta"}, svc.List())
}

func TestNewAdapterFromEngine_AllKinds(t *testing.T) {
	cases := []core.EngineKind{core.EngineOllama, core.EngineVLLM, core.EngineLMStudio, core.EngineLlamaCpp}
	for _, kind := range cases {
		a, err := NewAdapterFromEngine(core.Engine{Kind: kind, BaseURL: "http://localhost:11434"}, "key", true, nil)
		require.NoError(t, err)
		assert.Equal(t, string(kind), a.Kind())
	}
}

func TestNewAdapterFromEngine_UnknownKind(t *testing.T) {
	_, err := NewAdapterFromEngine(core.Engine{Kind: core.EngineKind("bogus")}, "", false, nil)
	require.Error(t, err)
	ferr, ok := core.AsError(err)
	require.True(t, ok)
	assert.Equal(t, core.CodeEngineNotFound, ferr.Code)
}
