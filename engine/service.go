package engine

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/flm-run/flm-proxy/core"
)

// Service is the thread-safe in-memory registry mapping a registered
// engine's id to its constructed Adapter and the Engine Process Controller
// responsible for it, if any.
type Service struct {
	mu            sync.RWMutex
	adapters      map[string]Adapter
	defaultEngine string
	controller    ProcessController
}

// NewService builds an empty registry. controller may be NoopProcessController{}.
func NewService(controller ProcessController) *Service {
	if controller == nil {
		controller = NoopProcessController{}
	}
	return &Service{adapters: make(map[string]Adapter), controller: controller}
}

// Register associates engineID with a constructed Adapter, replacing any
// prior adapter registered under the same id.
func (s *Service) Register(engineID string, a Adapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adapters[engineID] = a
}

// Unregister removes an engine. If it was the default, the default is cleared.
func (s *Service) Unregister(engineID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.adapters, engineID)
	if s.defaultEngine == engineID {
		s.defaultEngine = ""
	}
}

// Get looks up the adapter for engineID.
func (s *Service) Get(engineID string) (Adapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.adapters[engineID]
	if !ok {
		return nil, core.NewEngineNotFound("engine " + engineID + " is not registered")
	}
	return a, nil
}

// SetDefault designates engineID as the fallback used when a request's
// model URI carries no engine id.
func (s *Service) SetDefault(engineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.adapters[engineID]; !ok {
		return core.NewEngineNotFound("engine " + engineID + " is not registered")
	}
	s.defaultEngine = engineID
	return nil
}

// Default returns the designated default adapter.
func (s *Service) Default() (Adapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.defaultEngine == "" {
		return nil, core.NewEngineNotFound("no default engine configured")
	}
	a, ok := s.adapters[s.defaultEngine]
	if !ok {
		return nil, core.NewEngineNotFound("default engine " + s.defaultEngine + " is not registered")
	}
	return a, nil
}

// Resolve returns the adapter a parsed model URI routes to, falling back to
// Default when the URI carried no engine id.
func (s *Service) Resolve(uri core.ModelURI) (Adapter, error) {
	if uri.EngineID == "" {
		return s.Default()
	}
	return s.Get(uri.EngineID)
}

// List returns the sorted ids of every registered engine.
func (s *Service) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.adapters))
	for id := range s.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NewAdapterFromEngine constructs the right Adapter implementation for a
// registered engine's kind via a closed-enum factory switch. apiKey and
// supportsEmbed matter only for kinds whose adapter can't infer them from
// the backend itself (vllm, llama_cpp).
func NewAdapterFromEngine(e core.Engine, apiKey string, supportsEmbed bool, logger *zap.Logger) (Adapter, error) {
	switch e.Kind {
	case core.EngineOllama:
		return NewOllamaAdapter(e.BaseURL, logger), nil
	case core.EngineVLLM:
		return NewVLLMAdapter(e.BaseURL, apiKey, supportsEmbed, logger), nil
	case core.EngineLMStudio:
		return NewLMStudioAdapter(e.BaseURL, logger), nil
	case core.EngineLlamaCpp:
		return NewLlamaCppAdapter(e.BaseURL, supportsEmbed, logger), nil
	default:
		return nil, core.NewEngineNotFound("unknown engine kind " + string(e.Kind))
	}
}
