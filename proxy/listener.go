package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flm-run/flm-proxy/certs"
	"github.com/flm-run/flm-proxy/core"
)

// ListenerConfig carries everything a single bound socket needs, one per
// active handle.
type ListenerConfig struct {
	BindAddr        string
	Port            int
	Provider        certs.Provider
	ShutdownTimeout time.Duration
	Logger          *zap.Logger
}

// Listener owns one bound socket and the *http.Server serving it, grounded
// on internal/server.Manager but adapted to present certificates from an
// in-memory certs.Provider instead of a cert file on disk: every TLS mode
// but local-http hands back a ready tls.Config (fixed Certificates or a
// GetCertificate callback), so there is no file path to pass to ServeTLS.
type Listener struct {
	server   *http.Server
	listener net.Listener
	errCh    chan error
	cfg      ListenerConfig
	logger   *zap.Logger

	mu     sync.Mutex
	closed bool
}

// NewListener builds a Listener around handler without binding the socket.
func NewListener(handler http.Handler, cfg ListenerConfig) *Listener {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	addr := fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.Port)
	return &Listener{
		server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0, // streaming responses must not be cut off mid-SSE
			IdleTimeout:  120 * time.Second,
		},
		errCh:  make(chan error, 1),
		cfg:    cfg,
		logger: logger.With(zap.String("component", "proxy_listener"), zap.String("addr", addr)),
	}
}

// Start binds the socket and begins serving in the background. Plain HTTP
// when the provider's TLSConfig is nil (local-http mode), TLS otherwise.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return core.NewProxyInvalidConfig("listener already stopped")
	}
	if l.listener != nil {
		return core.NewProxyInvalidConfig("listener already started")
	}

	ln, err := net.Listen("tcp", l.server.Addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", l.server.Addr, err)
	}
	l.listener = ln

	tlsConfig := l.cfg.Provider.TLSConfig()
	if tlsConfig == nil {
		l.logger.Info("listening (plain http)")
		go l.serve(ln)
		return nil
	}

	l.server.TLSConfig = tlsConfig
	l.logger.Info("listening (tls)", zap.String("mode", string(l.cfg.Provider.Mode())))
	go l.serveTLS(ln)
	return nil
}

func (l *Listener) serve(ln net.Listener) {
	if err := l.server.Serve(ln); err != nil && err != http.ErrServerClosed {
		l.logger.Error("listener failed", zap.Error(err))
		select {
		case l.errCh <- err:
		default:
		}
	}
}

func (l *Listener) serveTLS(ln net.Listener) {
	if err := l.server.ServeTLS(ln, "", ""); err != nil && err != http.ErrServerClosed {
		l.logger.Error("tls listener failed", zap.Error(err))
		select {
		case l.errCh <- err:
		default:
		}
	}
}

// Shutdown drains in-flight requests up to cfg.ShutdownTimeout, then forces
// the socket closed.
func (l *Listener) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	shutdownCtx, cancel := context.WithTimeout(ctx, l.cfg.ShutdownTimeout)
	defer cancel()

	if err := l.server.Shutdown(shutdownCtx); err != nil {
		l.logger.Warn("graceful shutdown timed out, forcing close", zap.Error(err))
		return l.server.Close()
	}
	return nil
}

// Errors surfaces asynchronous accept/serve errors.
func (l *Listener) Errors() <-chan error { return l.errCh }

// Addr reports the bound address, or the configured one before Start.
func (l *Listener) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener != nil {
		return l.listener.Addr().String()
	}
	return l.server.Addr
}

// IsRunning reports whether the listener has not yet been shut down.
func (l *Listener) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.closed
}
