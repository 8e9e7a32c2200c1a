package security

import (
	"os"
	"sync"

	"github.com/zalando/go-keyring"

	"github.com/flm-run/flm-proxy/core"
)

// TokenStore abstracts DNS provider token storage so tests and CI runners
// without an OS keyring (FLM_DISABLE_KEYRING=1) can use an inline fallback.
type TokenStore interface {
	Set(profileID, token string) error
	Get(profileID string) (string, error)
	Delete(profileID string) error
}

// osKeyring stores tokens in the platform secret service via go-keyring.
type osKeyring struct{}

func (osKeyring) Set(profileID, token string) error {
	return keyring.Set(KeyringService, profileID, token)
}

func (osKeyring) Get(profileID string) (string, error) {
	v, err := keyring.Get(KeyringService, profileID)
	if err != nil {
		if err == keyring.ErrNotFound {
			return "", core.NewRepoNotFound("dns credential token not found").WithCause(err)
		}
		return "", core.NewRepoIOError("keyring access failed").WithCause(err)
	}
	return v, nil
}

func (osKeyring) Delete(profileID string) error {
	if err := keyring.Delete(KeyringService, profileID); err != nil && err != keyring.ErrNotFound {
		return core.NewRepoIOError("keyring delete failed").WithCause(err)
	}
	return nil
}

// inlineStore keeps tokens in process memory; used when FLM_DISABLE_KEYRING=1
// for tests and CI environments with no OS keyring available.
type inlineStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func newInlineStore() *inlineStore {
	return &inlineStore{tokens: make(map[string]string)}
}

func (s *inlineStore) Set(profileID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[profileID] = token
	return nil
}

func (s *inlineStore) Get(profileID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.tokens[profileID]
	if !ok {
		return "", core.NewRepoNotFound("dns credential token not found")
	}
	return v, nil
}

func (s *inlineStore) Delete(profileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, profileID)
	return nil
}

// NewTokenStore selects the OS keyring, or an inline in-memory store when
// FLM_DISABLE_KEYRING=1.
func NewTokenStore() TokenStore {
	if os.Getenv("FLM_DISABLE_KEYRING") == "1" {
		return newInlineStore()
	}
	return osKeyring{}
}
