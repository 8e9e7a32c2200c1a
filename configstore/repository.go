package configstore

import (
	"context"
	"errors"
	"os"
	"runtime"
	"syscall"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/flm-run/flm-proxy/core"
	"github.com/flm-run/flm-proxy/internal/database"
)

func wrapGormErr(err error, notFoundMsg string) *core.Error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.NewRepoNotFound(notFoundMsg)
	}
	return core.NewRepoIOError(notFoundMsg).WithCause(err)
}

// Repository is the L1 Config Repository: engines, proxy profiles, active
// handles, model profiles, API-prompt templates, and the generic kv store,
// all in config.db.
type Repository struct {
	pool *database.PoolManager
}

// NewRepository wraps an already-migrated config.db pool.
func NewRepository(pool *database.PoolManager) *Repository {
	return &Repository{pool: pool}
}

// Migrate creates or updates config.db's tables with gorm AutoMigrate from
// the model structs; the SQL migrations under internal/migration are not
// applied here. Callers open the gorm.DB themselves and pass it here
// once at process start, before wrapping it in a pool.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&core.Engine{}, &ProxyProfile{}, &core.ProxyHandle{}, &ModelProfile{}, &APIPrompt{}, &ConfigEntry{})
}

// --- engines ---

// UpsertEngine creates or replaces an engine registration by id.
func (r *Repository) UpsertEngine(ctx context.Context, e core.Engine) (core.Engine, error) {
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	err := r.pool.DB().WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"kind", "name", "base_url", "version", "status",
			"cap_chat", "cap_chat_stream", "cap_embeddings", "cap_moderation", "cap_tools",
			"updated_at",
		}),
	}).Create(&e).Error
	if err != nil {
		return core.Engine{}, wrapGormErr(err, "failed to upsert engine")
	}
	return e, nil
}

// GetEngine looks up one engine by id.
func (r *Repository) GetEngine(ctx context.Context, id string) (core.Engine, error) {
	var e core.Engine
	if err := r.pool.DB().WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return core.Engine{}, wrapGormErr(err, "engine not found")
	}
	return e, nil
}

// RecordEngineStatus updates only the health status and updated_at of an
// already-registered engine, satisfying engine.StatusRecorder so the health
// monitor does not need to round-trip a full core.Engine to flip a status.
func (r *Repository) RecordEngineStatus(ctx context.Context, engineID string, status core.EngineStatus) error {
	res := r.pool.DB().WithContext(ctx).Model(&core.Engine{}).Where("id = ?", engineID).Updates(map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return wrapGormErr(res.Error, "failed to record engine status")
	}
	if res.RowsAffected == 0 {
		return core.NewRepoNotFound("engine " + engineID + " not found")
	}
	return nil
}

// ListEngines returns every registered engine.
func (r *Repository) ListEngines(ctx context.Context) ([]core.Engine, error) {
	var engines []core.Engine
	if err := r.pool.DB().WithContext(ctx).Order("created_at ASC").Find(&engines).Error; err != nil {
		return nil, wrapGormErr(err, "failed to list engines")
	}
	return engines, nil
}

// DeleteEngine removes an engine registration. Dependent model_profiles rows
// are not removed: the tables Migrate creates declare no foreign key.
func (r *Repository) DeleteEngine(ctx context.Context, id string) error {
	res := r.pool.DB().WithContext(ctx).Where("id = ?", id).Delete(&core.Engine{})
	if res.Error != nil {
		return wrapGormErr(res.Error, "failed to delete engine")
	}
	if res.RowsAffected == 0 {
		return core.NewRepoNotFound("engine not found")
	}
	return nil
}

// --- proxy profiles ---

// CreateProxyProfile inserts a new named listener blueprint.
func (r *Repository) CreateProxyProfile(ctx context.Context, p ProxyProfile) (ProxyProfile, error) {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if err := r.pool.DB().WithContext(ctx).Create(&p).Error; err != nil {
		return ProxyProfile{}, wrapGormErr(err, "failed to create proxy profile")
	}
	return p, nil
}

// GetProxyProfile looks up one profile by id.
func (r *Repository) GetProxyProfile(ctx context.Context, id string) (ProxyProfile, error) {
	var p ProxyProfile
	if err := r.pool.DB().WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return ProxyProfile{}, wrapGormErr(err, "proxy profile not found")
	}
	return p, nil
}

// ListProxyProfiles returns every saved profile.
func (r *Repository) ListProxyProfiles(ctx context.Context) ([]ProxyProfile, error) {
	var profiles []ProxyProfile
	if err := r.pool.DB().WithContext(ctx).Order("created_at ASC").Find(&profiles).Error; err != nil {
		return nil, wrapGormErr(err, "failed to list proxy profiles")
	}
	return profiles, nil
}

// DeleteProxyProfile removes a profile. Active handle rows referencing it
// are not removed: the tables Migrate creates declare no foreign key.
func (r *Repository) DeleteProxyProfile(ctx context.Context, id string) error {
	res := r.pool.DB().WithContext(ctx).Where("id = ?", id).Delete(&ProxyProfile{})
	if res.Error != nil {
		return wrapGormErr(res.Error, "failed to delete proxy profile")
	}
	if res.RowsAffected == 0 {
		return core.NewRepoNotFound("proxy profile not found")
	}
	return nil
}

// --- active handles ---

// SaveActiveHandle upserts the runtime record of a running listener.
func (r *Repository) SaveActiveHandle(ctx context.Context, h core.ProxyHandle) error {
	h.UpdatedAt = time.Now().UTC()
	err := r.pool.DB().WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "handle_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"pid", "port", "state", "mode", "bind_addr", "updated_at"}),
	}).Create(&h).Error
	if err != nil {
		return wrapGormErr(err, "failed to save active handle")
	}
	return nil
}

// RemoveActiveHandle deletes the handle row once a listener is torn down.
func (r *Repository) RemoveActiveHandle(ctx context.Context, handleID string) error {
	res := r.pool.DB().WithContext(ctx).Where("handle_id = ?", handleID).Delete(&core.ProxyHandle{})
	if res.Error != nil {
		return wrapGormErr(res.Error, "failed to remove active handle")
	}
	if res.RowsAffected == 0 {
		return core.NewRepoNotFound("active handle not found")
	}
	return nil
}

// pidAlive reports whether pid names a live process on this host. On unix
// this is the standard zero-signal liveness probe; FindProcess never fails
// on unix so the error from Signal is the only meaningful result.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// ListActiveHandles returns every handle row, reconciling stale entries in
// place: a handle whose recorded pid is no longer alive is treated as
// Stopped for the caller and persisted that way, rather than requiring an
// operator to explicitly reload it (a crashed listener process can never
// un-stick itself otherwise).
func (r *Repository) ListActiveHandles(ctx context.Context) ([]core.ProxyHandle, error) {
	var handles []core.ProxyHandle
	if err := r.pool.DB().WithContext(ctx).Find(&handles).Error; err != nil {
		return nil, wrapGormErr(err, "failed to list active handles")
	}
	for i := range handles {
		h := &handles[i]
		if h.State == core.StateStopped || h.State == core.StateFailed {
			continue
		}
		if pidAlive(h.PID) {
			continue
		}
		h.State = core.StateStopped
		h.UpdatedAt = time.Now().UTC()
		r.pool.DB().WithContext(ctx).Model(&core.ProxyHandle{}).
			Where("handle_id = ?", h.HandleID).
			Updates(map[string]any{"state": core.StateStopped, "updated_at": h.UpdatedAt})
	}
	return handles, nil
}

// --- model profiles ---

// UpsertModelProfile creates or replaces a model's display metadata.
func (r *Repository) UpsertModelProfile(ctx context.Context, m ModelProfile) (ModelProfile, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	err := r.pool.DB().WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "model_uri"}},
		DoUpdates: clause.AssignmentColumns([]string{"engine_id", "display_name", "context_window"}),
	}).Create(&m).Error
	if err != nil {
		return ModelProfile{}, wrapGormErr(err, "failed to upsert model profile")
	}
	return m, nil
}

// ListModelProfiles returns every known model's display metadata, optionally
// filtered by engine.
func (r *Repository) ListModelProfiles(ctx context.Context, engineID string) ([]ModelProfile, error) {
	var profiles []ModelProfile
	q := r.pool.DB().WithContext(ctx)
	if engineID != "" {
		q = q.Where("engine_id = ?", engineID)
	}
	if err := q.Find(&profiles).Error; err != nil {
		return nil, wrapGormErr(err, "failed to list model profiles")
	}
	return profiles, nil
}

// DeleteModelProfile removes one model's metadata by uri.
func (r *Repository) DeleteModelProfile(ctx context.Context, modelURI string) error {
	res := r.pool.DB().WithContext(ctx).Where("model_uri = ?", modelURI).Delete(&ModelProfile{})
	if res.Error != nil {
		return wrapGormErr(res.Error, "failed to delete model profile")
	}
	if res.RowsAffected == 0 {
		return core.NewRepoNotFound("model profile not found")
	}
	return nil
}

// --- api prompts ---

// CreateAPIPrompt inserts a new named prompt template.
func (r *Repository) CreateAPIPrompt(ctx context.Context, p APIPrompt) (APIPrompt, error) {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if err := r.pool.DB().WithContext(ctx).Create(&p).Error; err != nil {
		return APIPrompt{}, wrapGormErr(err, "failed to create api prompt")
	}
	return p, nil
}

// UpdateAPIPrompt replaces an existing template's name and body.
func (r *Repository) UpdateAPIPrompt(ctx context.Context, id, name, template string) error {
	res := r.pool.DB().WithContext(ctx).Model(&APIPrompt{}).Where("id = ?", id).
		Updates(map[string]any{"name": name, "template": template, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return wrapGormErr(res.Error, "failed to update api prompt")
	}
	if res.RowsAffected == 0 {
		return core.NewRepoNotFound("api prompt not found")
	}
	return nil
}

// GetAPIPrompt looks up one template by id.
func (r *Repository) GetAPIPrompt(ctx context.Context, id string) (APIPrompt, error) {
	var p APIPrompt
	if err := r.pool.DB().WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return APIPrompt{}, wrapGormErr(err, "api prompt not found")
	}
	return p, nil
}

// ListAPIPrompts returns every saved template.
func (r *Repository) ListAPIPrompts(ctx context.Context) ([]APIPrompt, error) {
	var prompts []APIPrompt
	if err := r.pool.DB().WithContext(ctx).Order("created_at ASC").Find(&prompts).Error; err != nil {
		return nil, wrapGormErr(err, "failed to list api prompts")
	}
	return prompts, nil
}

// DeleteAPIPrompt removes a template by id.
func (r *Repository) DeleteAPIPrompt(ctx context.Context, id string) error {
	res := r.pool.DB().WithContext(ctx).Where("id = ?", id).Delete(&APIPrompt{})
	if res.Error != nil {
		return wrapGormErr(res.Error, "failed to delete api prompt")
	}
	if res.RowsAffected == 0 {
		return core.NewRepoNotFound("api prompt not found")
	}
	return nil
}

// --- generic key-value store ---

// SetConfigValue upserts one scalar setting.
func (r *Repository) SetConfigValue(ctx context.Context, key, value string) error {
	entry := ConfigEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := r.pool.DB().WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return wrapGormErr(err, "failed to set config value")
	}
	return nil
}

// GetConfigValue reads one scalar setting.
func (r *Repository) GetConfigValue(ctx context.Context, key string) (string, error) {
	var entry ConfigEntry
	if err := r.pool.DB().WithContext(ctx).Where(&ConfigEntry{Key: key}).First(&entry).Error; err != nil {
		return "", wrapGormErr(err, "config value not found")
	}
	return entry.Value, nil
}

// ListConfigValues returns every key-value pair.
func (r *Repository) ListConfigValues(ctx context.Context) ([]ConfigEntry, error) {
	var entries []ConfigEntry
	if err := r.pool.DB().WithContext(ctx).Find(&entries).Error; err != nil {
		return nil, wrapGormErr(err, "failed to list config values")
	}
	return entries, nil
}

// DeleteConfigValue removes one key.
func (r *Repository) DeleteConfigValue(ctx context.Context, key string) error {
	res := r.pool.DB().WithContext(ctx).Where(&ConfigEntry{Key: key}).Delete(&ConfigEntry{})
	if res.Error != nil {
		return wrapGormErr(res.Error, "failed to delete config value")
	}
	if res.RowsAffected == 0 {
		return core.NewRepoNotFound("config key not found")
	}
	return nil
}
