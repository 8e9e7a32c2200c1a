package security

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/flm-run/flm-proxy/internal/database"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&APIKey{}, &policyRow{}, &IPBlocklistEntry{}, &AuditLogEntry{}, &DNSCredentialProfile{}))

	pool, err := database.NewPoolManager(gdb, database.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	return NewRepository(pool)
}

func TestRepository_RevokeAPIKey_MonotonicOnceOnly(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	key, err := repo.CreateAPIKey(ctx, APIKey{ID: "k1", Label: "a", Hash: "h"})
	require.NoError(t, err)
	assert.Nil(t, key.RevokedAt)

	require.NoError(t, repo.RevokeAPIKey(ctx, "k1"))

	err = repo.RevokeAPIKey(ctx, "k1")
	assert.Error(t, err, "revoking an already-revoked key must fail, not silently flip revoked_at again")
}

func TestRepository_RevokeAPIKey_NotFound(t *testing.T) {
	repo := newTestRepository(t)
	err := repo.RevokeAPIKey(context.Background(), "does-not-exist")
	assert.Error(t, err)
}

func TestRepository_ListActiveAPIKeys_ExcludesRevoked(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.CreateAPIKey(ctx, APIKey{ID: "active", Label: "a", Hash: "h"})
	require.NoError(t, err)
	_, err = repo.CreateAPIKey(ctx, APIKey{ID: "revoked", Label: "b", Hash: "h"})
	require.NoError(t, err)
	require.NoError(t, repo.RevokeAPIKey(ctx, "revoked"))

	active, err := repo.ListActiveAPIKeys(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "active", active[0].ID)
}

func TestRepository_ListBlocklist_EvictsExpired(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)

	require.NoError(t, repo.AddBlocklistEntry(ctx, IPBlocklistEntry{
		ID: "expired", Addr: "1.1.1.1", Source: BlocklistManual, ExpiresAt: &past,
	}))
	require.NoError(t, repo.AddBlocklistEntry(ctx, IPBlocklistEntry{
		ID: "live", Addr: "2.2.2.2", Source: BlocklistManual, ExpiresAt: &future,
	}))
	require.NoError(t, repo.AddBlocklistEntry(ctx, IPBlocklistEntry{
		ID: "permanent", Addr: "3.3.3.3", Source: BlocklistIntrusion,
	}))

	entries, err := repo.ListBlocklist(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	assert.ElementsMatch(t, []string{"live", "permanent"}, ids)
}

func TestRepository_GetPolicy_CreatesDefaultOnFirstAccess(t *testing.T) {
	repo := newTestRepository(t)
	p, err := repo.GetPolicy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), p)
}

func TestRepository_SetPolicy_UpsertsInPlace(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	p := DefaultPolicy()
	p.RateLimit.Burst = 50
	require.NoError(t, repo.SetPolicy(ctx, p))
	require.NoError(t, repo.SetPolicy(ctx, p))

	got, err := repo.GetPolicy(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, got.RateLimit.Burst)
}

func TestRepository_AppendAndListAuditLog(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.AppendAuditLog(ctx, AuditLogEntry{
			Route: "/v1/chat/completions", StatusCode: 200, Outcome: OutcomeOK,
		}))
	}

	entries, err := repo.ListAuditLog(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
