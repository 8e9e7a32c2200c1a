package proxy

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/flm-run/flm-proxy/internal/cache"
	"github.com/flm-run/flm-proxy/internal/database"
	"github.com/flm-run/flm-proxy/internal/metrics"
	"github.com/flm-run/flm-proxy/security"
)

// newTestSecurityService builds a security.Service against an in-memory
// sqlite database, mirroring security/service_test.go's newTestService.
func newTestSecurityService(t *testing.T) *security.Service {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&security.APIKey{}, &security.IPBlocklistEntry{}, &security.AuditLogEntry{}, &security.DNSCredentialProfile{}))
	// security_policies backs policyRow, unexported outside the security
	// package; its schema is stable enough to recreate directly here.
	require.NoError(t, gdb.Exec(`CREATE TABLE security_policies (id TEXT PRIMARY KEY, policy TEXT, updated_at DATETIME)`).Error)

	logger := zap.NewNop()
	pool, err := database.NewPoolManager(gdb, database.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	repo := security.NewRepository(pool)
	cacheMgr, err := cache.NewManager(cache.DefaultConfig(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cacheMgr.Close() })

	return security.NewService(repo, cacheMgr, security.NewTokenStore(), logger)
}

var testCollectorSeq uint64

// newTestCollector gives every call its own namespace: promauto registers
// into the global registry, which rejects a second identical registration.
func newTestCollector(t *testing.T) *metrics.Collector {
	t.Helper()
	return metrics.NewCollector(fmt.Sprintf("flm_test_%d", atomic.AddUint64(&testCollectorSeq, 1)), zap.NewNop())
}
