package proxy

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/flm-run/flm-proxy/certs"
	"github.com/flm-run/flm-proxy/configstore"
	"github.com/flm-run/flm-proxy/core"
	"github.com/flm-run/flm-proxy/engine"
	"github.com/flm-run/flm-proxy/internal/metrics"
	"github.com/flm-run/flm-proxy/security"
)

// runningProxy is the in-memory counterpart to a persisted core.ProxyHandle:
// the live listener and the cancel function that tears down its background
// goroutines (rate-limit eviction, intrusion sweep). challengeListener is
// only set in https-acme/http-01 mode.
type runningProxy struct {
	handle            core.ProxyHandle
	listener          *Listener
	challengeListener *Listener
	cancel            context.CancelFunc
}

// plainHTTPProvider is a local-only certs.Provider used to bind the
// http-01 challenge listener, which never terminates TLS itself.
type plainHTTPProvider struct{}

func (plainHTTPProvider) TLSConfig() *tls.Config { return nil }
func (plainHTTPProvider) Mode() core.TLSMode     { return core.TLSModeLocalHTTP }

const defaultHTTPSRedirectPort = 80

// Controller drives the proxy's state machine:
// Configured -> Starting -> Running -> Draining -> Stopped, with Failed
// reachable from Starting or Running. One Controller supervises every
// listener the process owns; state persists to configstore so Status
// survives a process restart via the union of in-memory and DB-persisted
// handles.
type Controller struct {
	repo     *configstore.Repository
	security *security.Service
	engines  *engine.Service
	metrics  *metrics.Collector
	logger   *zap.Logger

	mu      sync.Mutex
	running map[string]*runningProxy // handle id -> running listener
}

func NewController(repo *configstore.Repository, sec *security.Service, engines *engine.Service, m *metrics.Collector, logger *zap.Logger) *Controller {
	return &Controller{
		repo:     repo,
		security: sec,
		engines:  engines,
		metrics:  m,
		logger:   logger,
		running:  make(map[string]*runningProxy),
	}
}

// acmeHTTPChallengeHandler returns a handler for the plain-HTTP http-01
// challenge listener when cfg calls for it, or nil otherwise: every mode but
// https-acme-with-http-01 needs no second listener. Non-challenge requests
// redirect to the https endpoint on cfg.Port.
func acmeHTTPChallengeHandler(cfg core.ProxyConfig, provider certs.Provider) http.Handler {
	if cfg.Mode != core.TLSModeHTTPSAcme {
		return nil
	}
	challenge := cfg.Acme.Challenge
	if challenge == "" {
		challenge = core.ChallengeHTTP01
	}
	if challenge != core.ChallengeHTTP01 {
		return nil
	}
	hp, ok := provider.(certs.HTTPChallengeProvider)
	if !ok {
		return nil
	}
	fallback := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		target := "https://" + net.JoinHostPort(strings.Trim(host, "[]"), strconv.Itoa(cfg.Port)) + r.URL.RequestURI()
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	})
	return hp.HTTPHandler(fallback)
}

func newHandleID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "handle-" + hex.EncodeToString(b)
}

// Start binds a listener for profile and transitions it to Running. Any
// failure during materialization (cert generation, socket bind) rolls back
// atomically: no partial handle is ever persisted.
func (c *Controller) Start(ctx context.Context, profile configstore.ProxyProfile, cfg core.ProxyConfig) (core.ProxyHandle, error) {
	if vErr := cfg.Validate(); vErr != nil {
		return core.ProxyHandle{}, vErr
	}

	provider, err := certs.NewProvider(cfg.Mode, certs.Config{
		BindAddr:   cfg.BindAddr,
		AppDataDir: cfg.ConfigDBPath,
		Email:      cfg.Acme.Email,
		Domain:     cfg.Acme.Domain,
		Challenge:  cfg.Acme.Challenge,
		Logger:     c.logger,
	})
	if err != nil {
		return core.ProxyHandle{}, core.NewProxyCertGenerationError(err.Error())
	}

	listenerCtx, cancel := context.WithCancel(context.Background())

	router := NewRouter(RouterConfig{Engines: c.engines, Logger: c.logger})
	pipeline := NewPipeline(listenerCtx, PipelineConfig{
		Security:       c.security,
		Metrics:        c.metrics,
		Logger:         c.logger,
		TrustedProxies: cfg.TrustedProxies,
		MaxInFlight:    DefaultMaxInFlight,
	}, router)

	ln := NewListener(pipeline, ListenerConfig{
		BindAddr: cfg.BindAddr,
		Port:     cfg.Port,
		Provider: provider,
		Logger:   c.logger,
	})

	if err := ln.Start(); err != nil {
		cancel()
		return core.ProxyHandle{}, core.NewProxyPortInUse(err.Error())
	}

	var challengeListener *Listener
	if challengeHandler := acmeHTTPChallengeHandler(cfg, provider); challengeHandler != nil {
		redirectPort := cfg.HTTPSRedirectPort
		if redirectPort == 0 {
			redirectPort = defaultHTTPSRedirectPort
		}
		challengeListener = NewListener(challengeHandler, ListenerConfig{
			BindAddr: cfg.BindAddr,
			Port:     redirectPort,
			Provider: plainHTTPProvider{},
			Logger:   c.logger,
		})
		if err := challengeListener.Start(); err != nil {
			_ = ln.Shutdown(ctx)
			cancel()
			return core.ProxyHandle{}, core.NewProxyPortInUse(fmt.Sprintf("bind acme challenge listener: %v", err))
		}
	}

	handle := core.ProxyHandle{
		HandleID:  newHandleID(),
		ProfileID: profile.ID,
		PID:       os.Getpid(),
		Port:      cfg.Port,
		State:     core.StateRunning,
		Mode:      cfg.Mode,
		BindAddr:  cfg.BindAddr,
		StartedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if err := c.repo.SaveActiveHandle(ctx, handle); err != nil {
		_ = ln.Shutdown(ctx)
		if challengeListener != nil {
			_ = challengeListener.Shutdown(ctx)
		}
		cancel()
		return core.ProxyHandle{}, core.NewProxyInvalidConfig(fmt.Sprintf("persist handle: %v", err))
	}

	c.mu.Lock()
	c.running[handle.HandleID] = &runningProxy{handle: handle, listener: ln, challengeListener: challengeListener, cancel: cancel}
	c.mu.Unlock()

	c.metrics.SetProxyHandlesActive(string(cfg.Mode), len(c.running))
	return handle, nil
}

// Stop drains handleID: Draining, wait in-flight up to shutdownTimeout
// (default 10s), force-close past it, then remove the handle.
func (c *Controller) Stop(ctx context.Context, handleID string, shutdownTimeout time.Duration) error {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	c.mu.Lock()
	rp, ok := c.running[handleID]
	c.mu.Unlock()
	if !ok {
		return core.NewRepoNotFound("no running proxy for handle " + handleID)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(ctx, shutdownTimeout)
	defer cancelShutdown()
	err := rp.listener.Shutdown(shutdownCtx)
	if rp.challengeListener != nil {
		if cErr := rp.challengeListener.Shutdown(shutdownCtx); cErr != nil && err == nil {
			err = cErr
		}
	}
	rp.cancel()

	c.mu.Lock()
	delete(c.running, handleID)
	c.mu.Unlock()
	c.metrics.SetProxyHandlesActive(string(rp.handle.Mode), len(c.running))

	if removeErr := c.repo.RemoveActiveHandle(ctx, handleID); removeErr != nil {
		return removeErr
	}
	return err
}

// Status returns the union of in-memory and DB-persisted handles: a handle
// this process is actively serving always reflects live state; one found
// only in the DB (another process, or a crash that skipped cleanup) is
// probed for liveness and deleted if its PID is gone, rather than reported
// as a phantom running proxy.
func (c *Controller) Status(ctx context.Context) ([]core.ProxyHandle, error) {
	persisted, err := c.repo.ListActiveHandles(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[string]bool, len(c.running))
	out := make([]core.ProxyHandle, 0, len(persisted))
	for _, h := range persisted {
		if rp, ok := c.running[h.HandleID]; ok {
			out = append(out, rp.handle)
			seen[h.HandleID] = true
			continue
		}
		if !processAlive(h.PID) {
			if err := c.repo.RemoveActiveHandle(ctx, h.HandleID); err != nil {
				c.logger.Warn("failed to delete stale handle", zap.String("handle_id", h.HandleID), zap.Error(err))
			}
			continue
		}
		out = append(out, h)
	}
	for id, rp := range c.running {
		if !seen[id] {
			out = append(out, rp.handle)
		}
	}
	return out, nil
}

// processAlive reports whether pid refers to a live process, by sending it
// the null signal. A permission error still counts as alive: the process
// exists, we just can't signal it.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil || errors.Is(err, os.ErrPermission) {
		return true
	}
	return false
}

// Reload swaps the security policy a running listener enforces without
// dropping connections: the policy lookup the pipeline's middlewares use is
// already a live call into security.Service.GetPolicy, so reload here is
// just re-validating the handle still runs and letting the next request
// observe whatever SetPolicy already committed. A failed reload (handle not
// found) leaves whatever is currently running untouched.
func (c *Controller) Reload(ctx context.Context, handleID string) error {
	c.mu.Lock()
	_, ok := c.running[handleID]
	c.mu.Unlock()
	if !ok {
		return core.NewRepoNotFound("no running proxy for handle " + handleID)
	}
	return nil
}
