package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager is an in-memory, TTL-evicting key/value store. It deliberately
// never blocks on I/O so callers can use it on the hot request path.
type Manager struct {
	mu     sync.RWMutex
	data   map[string]entry
	config Config
	logger *zap.Logger
	cancel context.CancelFunc
	closed bool
}

type entry struct {
	value     string
	expiresAt time.Time
}

// Config configures the sweep loop and the default TTL applied when callers
// pass ttl=0 to Set.
type Config struct {
	DefaultTTL    time.Duration `yaml:"default_ttl" json:"default_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
}

// DefaultConfig returns the TTLs used for the security policy and API-key
// hash memoization caches.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:    5 * time.Second,
		SweepInterval: 30 * time.Second,
	}
}

// NewManager creates a cache manager and starts its background sweep loop.
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 5 * time.Second
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		data:   make(map[string]entry),
		config: config,
		logger: logger.With(zap.String("component", "cache")),
		cancel: cancel,
	}
	go m.sweepLoop(ctx)
	return m, nil
}

// Get returns the cached value for key, or ErrCacheMiss if absent or expired.
func (m *Manager) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", fmt.Errorf("cache manager is closed")
	}
	e, ok := m.data[key]
	if !ok || time.Now().After(e.expiresAt) {
		return "", ErrCacheMiss
	}
	return e.value, nil
}

// Set stores value under key with ttl (DefaultTTL when ttl is zero).
func (m *Manager) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("cache manager is closed")
	}
	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}
	m.data[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// GetJSON unmarshals the cached value into dest.
func (m *Manager) GetJSON(ctx context.Context, key string, dest interface{}) error {
	val, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

// SetJSON marshals value and stores it under key.
func (m *Manager) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return m.Set(ctx, key, string(data), ttl)
}

// Delete removes the given keys.
func (m *Manager) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("cache manager is closed")
	}
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

// Exists returns how many of the given keys are present and unexpired.
func (m *Manager) Exists(_ context.Context, keys ...string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, fmt.Errorf("cache manager is closed")
	}
	var count int64
	now := time.Now()
	for _, k := range keys {
		if e, ok := m.data[k]; ok && now.Before(e.expiresAt) {
			count++
		}
	}
	return count, nil
}

// Expire resets a key's TTL, leaving its value unchanged.
func (m *Manager) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("cache manager is closed")
	}
	e, ok := m.data[key]
	if !ok {
		return ErrCacheMiss
	}
	e.expiresAt = time.Now().Add(ttl)
	m.data[key] = e
	return nil
}

// Close stops the sweep loop. Further calls return an error.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.cancel()
	return nil
}

func (m *Manager) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for k, e := range m.data {
		if now.After(e.expiresAt) {
			delete(m.data, k)
		}
	}
}

// ErrCacheMiss is returned by Get/GetJSON when the key is absent or expired.
var ErrCacheMiss = fmt.Errorf("cache miss")

// IsCacheMiss reports whether err is ErrCacheMiss.
func IsCacheMiss(err error) bool {
	return err == ErrCacheMiss
}
