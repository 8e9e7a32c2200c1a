package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/flm-run/flm-proxy/core"
)

// StatusRecorder persists the health status an HealthMonitor observes.
// configstore.Repository.RecordEngineStatus satisfies this without engine needing
// to import configstore.
type StatusRecorder interface {
	RecordEngineStatus(ctx context.Context, engineID string, status core.EngineStatus) error
}

// qpsCounter is a lock-free 60-bucket rolling-second request counter.
type qpsCounter struct {
	lastSec atomic.Int64
	buckets [60]atomic.Int64
}

func newQPSCounter(now time.Time) *qpsCounter {
	c := &qpsCounter{}
	c.lastSec.Store(now.Unix())
	return c
}

func (c *qpsCounter) bumpWindow(nowSec int64) {
	prev := c.lastSec.Load()
	for nowSec > prev {
		if c.lastSec.CompareAndSwap(prev, nowSec) {
			gap := nowSec - prev
			if gap >= 60 {
				for i := range c.buckets {
					c.buckets[i].Store(0)
				}
				return
			}
			for s := prev + 1; s <= nowSec; s++ {
				c.buckets[s%60].Store(0)
			}
			return
		}
		prev = c.lastSec.Load()
	}
}

func (c *qpsCounter) increment() {
	now := time.Now().Unix()
	c.bumpWindow(now)
	c.buckets[now%60].Add(1)
}

func (c *qpsCounter) current() int64 {
	c.bumpWindow(time.Now().Unix())
	var total int64
	for i := range c.buckets {
		total += c.buckets[i].Load()
	}
	return total
}

// probeResult is the last active health-check outcome for one engine.
type probeResult struct {
	healthy     bool
	latency     time.Duration
	lastError   string
	lastCheckAt time.Time
}

// HealthMonitor runs a background probe loop over every registered engine
// and tracks a rolling request-rate counter per engine, mirroring the
// teacher's active-probe/QPS bookkeeping without the cloud-provider usage-log
// aggregation FLM has no equivalent table for.
type HealthMonitor struct {
	mu       sync.RWMutex
	service  *Service
	recorder StatusRecorder
	logger   *zap.Logger
	interval time.Duration
	qps      map[string]*qpsCounter
	probes   map[string]probeResult

	cancel context.CancelFunc
}

// NewHealthMonitor builds a monitor that probes every engine in service on
// interval (60s if zero) and records the status each probe yields via recorder.
func NewHealthMonitor(service *Service, recorder StatusRecorder, interval time.Duration, logger *zap.Logger) *HealthMonitor {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthMonitor{
		service:  service,
		recorder: recorder,
		logger:   logger.With(zap.String("component", "engine_health")),
		interval: interval,
		qps:      make(map[string]*qpsCounter),
		probes:   make(map[string]probeResult),
	}
}

// Start launches the background probe loop. Call Stop to end it.
func (m *HealthMonitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	go m.loop(ctx)
}

// Stop ends the background probe loop. Safe to call even if Start wasn't.
func (m *HealthMonitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *HealthMonitor) loop(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeAll(ctx)
		}
	}
}

func (m *HealthMonitor) probeAll(ctx context.Context) {
	for _, id := range m.service.List() {
		adapter, err := m.service.Get(id)
		if err != nil {
			continue
		}
		st, err := adapter.HealthCheck(ctx)
		m.updateProbe(id, st, err)

		status := core.EngineHealthy
		switch {
		case err != nil || st == nil || !st.Healthy:
			status = core.EngineUnreachable
		case st.Latency > 5*time.Second:
			status = core.EngineDegraded
		}
		if m.recorder != nil {
			if rerr := m.recorder.RecordEngineStatus(ctx, id, status); rerr != nil {
				m.logger.Warn("failed to persist engine status", zap.String("engine_id", id), zap.Error(rerr))
			}
		}
	}
}

func (m *HealthMonitor) updateProbe(engineID string, st *HealthStatus, err error) {
	res := probeResult{lastCheckAt: time.Now()}
	if st != nil {
		res.healthy = st.Healthy
		res.latency = st.Latency
	}
	if err != nil {
		res.healthy = false
		res.lastError = err.Error()
	}
	m.mu.Lock()
	m.probes[engineID] = res
	m.mu.Unlock()
}

// RecordRequest increments engineID's rolling request counter. Call this
// from the middleware chain or adapter call sites, not from the probe loop.
func (m *HealthMonitor) RecordRequest(engineID string) {
	m.mu.Lock()
	c, ok := m.qps[engineID]
	if !ok {
		c = newQPSCounter(time.Now())
		m.qps[engineID] = c
	}
	m.mu.Unlock()
	c.increment()
}

// CurrentQPS returns engineID's requests-in-the-last-60s count.
func (m *HealthMonitor) CurrentQPS(engineID string) int64 {
	m.mu.RLock()
	c, ok := m.qps[engineID]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	return c.current()
}

// LastProbe returns the most recent active health-check result for engineID.
func (m *HealthMonitor) LastProbe(engineID string) (probeResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.probes[engineID]
	return p, ok
}
