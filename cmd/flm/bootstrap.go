// =============================================================================
// FLM control-plane bootstrap
// =============================================================================
// Resolves the app-data directory, opens config.db and security.db, and
// wires the shared services every subcommand needs.
// =============================================================================

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"github.com/flm-run/flm-proxy/configstore"
	"github.com/flm-run/flm-proxy/core"
	"github.com/flm-run/flm-proxy/engine"
	"github.com/flm-run/flm-proxy/internal/cache"
	"github.com/flm-run/flm-proxy/internal/database"
	"github.com/flm-run/flm-proxy/internal/metrics"
	"github.com/flm-run/flm-proxy/security"
)

// dataDir resolves the app-data directory: FLM_DATA_DIR overrides the
// OS-specific default.
func dataDir() (string, error) {
	if d := os.Getenv("FLM_DATA_DIR"); d != "" {
		return d, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve app-data dir: %w", err)
	}
	return filepath.Join(base, "flm"), nil
}

func initLogger() *zap.Logger {
	level := zapcore.InfoLevel
	if os.Getenv("FLM_DEBUG") == "1" {
		level = zapcore.DebugLevel
	}
	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         "console",
		Development:      true,
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

// stores bundles every shared dependency a subcommand needs: the two
// repositories, the security and engine services, and the metrics
// collector the proxy pipeline records into.
type stores struct {
	dir        string
	configRepo *configstore.Repository
	secRepo    *security.Repository
	security   *security.Service
	engines    *engine.Service
	metrics    *metrics.Collector
	logger     *zap.Logger

	closers []func() error
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

// openStores opens config.db and security.db under dir (creating dir if
// needed), migrates both schemas, and builds the shared services. Every
// subcommand calls this once at startup.
func openStores(logger *zap.Logger) (*stores, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, core.NewRepoIOError(err.Error())
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, core.NewRepoIOError("create app-data dir").WithCause(err)
	}

	s := &stores{dir: dir, logger: logger}

	configDB, err := gorm.Open(sqlite.Open(filepath.Join(dir, "config.db")), &gorm.Config{})
	if err != nil {
		return nil, core.NewRepoIOError("open config.db").WithCause(err)
	}
	if err := configstore.Migrate(configDB); err != nil {
		return nil, core.NewRepoIOError("migrate config.db").WithCause(err)
	}
	configPool, err := database.NewPoolManager(configDB, database.PoolConfig{MaxOpenConns: 4, MaxIdleConns: 2}, logger)
	if err != nil {
		return nil, core.NewRepoIOError("config.db pool").WithCause(err)
	}
	s.closers = append(s.closers, configPool.Close)
	s.configRepo = configstore.NewRepository(configPool)

	securityDB, err := gorm.Open(sqlite.Open(filepath.Join(dir, "security.db")), &gorm.Config{})
	if err != nil {
		return nil, core.NewRepoIOError("open security.db").WithCause(err)
	}
	if err := security.Migrate(securityDB); err != nil {
		return nil, core.NewRepoIOError("migrate security.db").WithCause(err)
	}
	securityPool, err := database.NewPoolManager(securityDB, database.PoolConfig{MaxOpenConns: 4, MaxIdleConns: 2}, logger)
	if err != nil {
		return nil, core.NewRepoIOError("security.db pool").WithCause(err)
	}
	s.closers = append(s.closers, securityPool.Close)
	s.secRepo = security.NewRepository(securityPool)

	cacheMgr, err := cache.NewManager(cache.DefaultConfig(), logger)
	if err != nil {
		return nil, core.NewRepoIOError("open cache").WithCause(err)
	}
	s.closers = append(s.closers, cacheMgr.Close)

	s.security = security.NewService(s.secRepo, cacheMgr, security.NewTokenStore(), logger)
	s.metrics = metrics.NewCollector("flm", logger)

	s.engines = engine.NewService(nil)
	if err := loadEngines(context.Background(), s.configRepo, s.engines, logger); err != nil {
		logger.Warn("failed to load registered engines", zap.Error(err))
	}

	return s, nil
}

// loadEngines registers every persisted engine as an adapter, grounded on
// core.Engine.Kind's closed switch in engine.NewAdapterFromEngine.
func loadEngines(ctx context.Context, repo *configstore.Repository, svc *engine.Service, logger *zap.Logger) error {
	list, err := repo.ListEngines(ctx)
	if err != nil {
		return err
	}
	for _, e := range list {
		adapter, err := engine.NewAdapterFromEngine(e, "", e.Capabilities.Embeddings, logger)
		if err != nil {
			logger.Warn("skipping engine with unrecognized kind", zap.String("engine_id", e.ID), zap.Error(err))
			continue
		}
		svc.Register(e.ID, adapter)
	}
	if len(list) > 0 {
		_ = svc.SetDefault(list[0].ID)
	}
	return nil
}
