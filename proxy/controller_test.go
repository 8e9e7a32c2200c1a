package proxy

import (
	"context"
	"crypto/tls"
	"math"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/flm-run/flm-proxy/configstore"
	"github.com/flm-run/flm-proxy/core"
	"github.com/flm-run/flm-proxy/engine"
	"github.com/flm-run/flm-proxy/internal/cache"
	"github.com/flm-run/flm-proxy/internal/database"
	"github.com/flm-run/flm-proxy/security"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&configstore.ProxyProfile{},
		&configstore.ModelProfile{},
		&core.ProxyHandle{},
		&security.APIKey{}, &security.IPBlocklistEntry{}, &security.AuditLogEntry{}, &security.DNSCredentialProfile{},
	))
	require.NoError(t, gdb.Exec(`CREATE TABLE security_policies (id TEXT PRIMARY KEY, policy TEXT, updated_at DATETIME)`).Error)

	logger := zap.NewNop()
	pool, err := database.NewPoolManager(gdb, database.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	repo := configstore.NewRepository(pool)
	secRepo := security.NewRepository(pool)
	cacheMgr, err := cache.NewManager(cache.DefaultConfig(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cacheMgr.Close() })

	sec := security.NewService(secRepo, cacheMgr, security.NewTokenStore(), logger)
	engines := engine.NewService(nil)
	collector := newTestCollector(t)

	return NewController(repo, sec, engines, collector, logger)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestController_StartStopLifecycle(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()
	port := freePort(t)

	profile := configstore.ProxyProfile{ID: "profile-1", Name: "default", Mode: core.TLSModeLocalHTTP, BindAddr: "127.0.0.1", Port: port}
	cfg := core.ProxyConfig{Mode: core.TLSModeLocalHTTP, Port: port, BindAddr: "127.0.0.1"}

	handle, err := c.Start(ctx, profile, cfg)
	require.NoError(t, err)
	assert.Equal(t, core.StateRunning, handle.State)

	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	statuses, err := c.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, handle.HandleID, statuses[0].HandleID)

	require.NoError(t, c.Stop(ctx, handle.HandleID, time.Second))

	statuses, err = c.Status(ctx)
	require.NoError(t, err)
	assert.Len(t, statuses, 0)
}

func TestController_StartRejectsInvalidConfig(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()

	profile := configstore.ProxyProfile{ID: "profile-1", Name: "default"}
	cfg := core.ProxyConfig{Mode: "bogus-mode", Port: 9999, BindAddr: "127.0.0.1"}

	_, err := c.Start(ctx, profile, cfg)
	require.Error(t, err)
}

func TestController_StopUnknownHandleFails(t *testing.T) {
	c := newTestController(t)
	err := c.Stop(context.Background(), "does-not-exist", time.Second)
	assert.Error(t, err)
}

type fakeChallengeProvider struct{ called bool }

func (*fakeChallengeProvider) TLSConfig() *tls.Config { return nil }
func (*fakeChallengeProvider) Mode() core.TLSMode     { return core.TLSModeHTTPSAcme }
func (p *fakeChallengeProvider) HTTPHandler(fallback http.Handler) http.Handler {
	p.called = true
	return fallback
}

func TestAcmeHTTPChallengeHandler_OnlyForHTTP01Acme(t *testing.T) {
	provider := &fakeChallengeProvider{}

	h := acmeHTTPChallengeHandler(core.ProxyConfig{Mode: core.TLSModeHTTPSAcme, Acme: core.AcmeConfig{Challenge: core.ChallengeHTTP01}}, provider)
	assert.NotNil(t, h)
	assert.True(t, provider.called)

	provider2 := &fakeChallengeProvider{}
	h2 := acmeHTTPChallengeHandler(core.ProxyConfig{Mode: core.TLSModeHTTPSAcme, Acme: core.AcmeConfig{Challenge: core.ChallengeDNS01}}, provider2)
	assert.Nil(t, h2)
	assert.False(t, provider2.called)

	h3 := acmeHTTPChallengeHandler(core.ProxyConfig{Mode: core.TLSModeLocalHTTP}, provider)
	assert.Nil(t, h3)

	h4 := acmeHTTPChallengeHandler(core.ProxyConfig{Mode: core.TLSModeHTTPSAcme}, &localHTTPProviderStub{})
	assert.Nil(t, h4)
}

type localHTTPProviderStub struct{}

func (localHTTPProviderStub) TLSConfig() *tls.Config { return nil }
func (localHTTPProviderStub) Mode() core.TLSMode     { return core.TLSModeLocalHTTP }

func TestController_StatusPrunesStaleHandleWithDeadPID(t *testing.T) {
	c := newTestController(t)
	ctx := context.Background()

	stale := core.ProxyHandle{
		HandleID:  "handle-stale",
		ProfileID: "profile-1",
		PID:       math.MaxInt32,
		Port:      freePort(t),
		State:     core.StateRunning,
		Mode:      core.TLSModeLocalHTTP,
		BindAddr:  "127.0.0.1",
		StartedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, c.repo.SaveActiveHandle(ctx, stale))

	statuses, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Len(t, statuses, 0)

	remaining, err := c.repo.ListActiveHandles(ctx)
	require.NoError(t, err)
	assert.Len(t, remaining, 0)
}
