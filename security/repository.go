package security

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/flm-run/flm-proxy/core"
	"github.com/flm-run/flm-proxy/internal/database"
)

func onConflictUpdatePolicy() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"policy", "updated_at"}),
	}
}

// Repository is the L1 Security Repository: durable storage for API keys,
// the security policy, the IP blocklist, the audit log, and DNS credential
// profile metadata, all in security.db.
type Repository struct {
	pool *database.PoolManager
}

// NewRepository wraps an already-migrated security.db pool.
func NewRepository(pool *database.PoolManager) *Repository {
	return &Repository{pool: pool}
}

// Migrate runs security.db's schema migration. policyRow is unexported so
// only this package can AutoMigrate it; callers open the gorm.DB and run
// this once at process start, before wrapping it in a pool.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&APIKey{}, &policyRow{}, &IPBlocklistEntry{}, &AuditLogEntry{}, &DNSCredentialProfile{})
}

func wrapGormErr(err error, notFoundMsg string) *core.Error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.NewRepoNotFound(notFoundMsg)
	}
	return core.NewRepoIOError(notFoundMsg).WithCause(err)
}

// CreateAPIKey inserts a new key record. Callers must already have hashed
// the plaintext; the repository never sees or stores plaintext.
func (r *Repository) CreateAPIKey(ctx context.Context, key APIKey) (APIKey, error) {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	if err := r.pool.DB().WithContext(ctx).Create(&key).Error; err != nil {
		return APIKey{}, wrapGormErr(err, "failed to create api key")
	}
	return key, nil
}

// ListAPIKeys returns every key, active or revoked.
func (r *Repository) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	var keys []APIKey
	if err := r.pool.DB().WithContext(ctx).Order("created_at ASC").Find(&keys).Error; err != nil {
		return nil, wrapGormErr(err, "failed to list api keys")
	}
	return keys, nil
}

// ListActiveAPIKeys returns only keys with revoked_at IS NULL, the set
// verify_api_key is allowed to iterate.
func (r *Repository) ListActiveAPIKeys(ctx context.Context) ([]APIKey, error) {
	var keys []APIKey
	if err := r.pool.DB().WithContext(ctx).Where("revoked_at IS NULL").Find(&keys).Error; err != nil {
		return nil, wrapGormErr(err, "failed to list active api keys")
	}
	return keys, nil
}

// RevokeAPIKey sets revoked_at once. Revoking an already-revoked key leaves
// revoked_at unchanged and returns a not-found error, preserving the
// monotonic null->set invariant.
func (r *Repository) RevokeAPIKey(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res := r.pool.DB().WithContext(ctx).
		Model(&APIKey{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", now)
	if res.Error != nil {
		return wrapGormErr(res.Error, "failed to revoke api key")
	}
	if res.RowsAffected == 0 {
		return core.NewRepoNotFound("api key not found or already revoked")
	}
	return nil
}

// RotateAPIKey inserts newKey and revokes oldID within one transaction so
// the rotation is atomic.
func (r *Repository) RotateAPIKey(ctx context.Context, oldID string, newKey APIKey) (APIKey, error) {
	if newKey.CreatedAt.IsZero() {
		newKey.CreatedAt = time.Now().UTC()
	}
	err := r.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&newKey).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		res := tx.Model(&APIKey{}).Where("id = ? AND revoked_at IS NULL", oldID).Update("revoked_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return core.NewRepoNotFound("api key to rotate not found or already revoked")
		}
		return nil
	})
	if err != nil {
		if e, ok := core.AsError(err); ok {
			return APIKey{}, e
		}
		return APIKey{}, wrapGormErr(err, "failed to rotate api key")
	}
	return newKey, nil
}

// GetPolicy reads the single security_policies row, creating it with
// DefaultPolicy on first access.
func (r *Repository) GetPolicy(ctx context.Context) (Policy, error) {
	var row policyRow
	err := r.pool.DB().WithContext(ctx).Where("id = ?", "default").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		def := DefaultPolicy()
		if err := r.SetPolicy(ctx, def); err != nil {
			return Policy{}, err
		}
		return def, nil
	}
	if err != nil {
		return Policy{}, wrapGormErr(err, "failed to read security policy")
	}
	var p Policy
	if err := json.Unmarshal([]byte(row.Policy), &p); err != nil {
		return Policy{}, core.NewRepoIOError("corrupt security policy json").WithCause(err)
	}
	return p, nil
}

// SetPolicy replaces the policy in place. updated_at advances monotonically.
func (r *Repository) SetPolicy(ctx context.Context, p Policy) error {
	data, err := json.Marshal(p)
	if err != nil {
		return core.NewRepoValidationError("failed to encode security policy").WithCause(err)
	}
	row := policyRow{ID: "default", Policy: string(data), UpdatedAt: time.Now().UTC()}
	err = r.pool.DB().WithContext(ctx).
		Clauses(onConflictUpdatePolicy()).
		Create(&row).Error
	if err != nil {
		return core.NewRepoIOError("failed to persist security policy").WithCause(err)
	}
	return nil
}

// AddBlocklistEntry inserts a new blocklist row; an existing entry for the
// same address is not looked up or extended.
func (r *Repository) AddBlocklistEntry(ctx context.Context, entry IPBlocklistEntry) error {
	if entry.BlockedAt.IsZero() {
		entry.BlockedAt = time.Now().UTC()
	}
	if err := r.pool.DB().WithContext(ctx).Create(&entry).Error; err != nil {
		return wrapGormErr(err, "failed to add blocklist entry")
	}
	return nil
}

// ListBlocklist returns every non-expired entry, lazily evicting expired
// ones as it reads.
func (r *Repository) ListBlocklist(ctx context.Context) ([]IPBlocklistEntry, error) {
	var entries []IPBlocklistEntry
	if err := r.pool.DB().WithContext(ctx).Find(&entries).Error; err != nil {
		return nil, wrapGormErr(err, "failed to list blocklist")
	}
	now := time.Now().UTC()
	live := entries[:0]
	var expiredIDs []string
	for _, e := range entries {
		if e.Expired(now) {
			expiredIDs = append(expiredIDs, e.ID)
			continue
		}
		live = append(live, e)
	}
	if len(expiredIDs) > 0 {
		r.pool.DB().WithContext(ctx).Where("id IN ?", expiredIDs).Delete(&IPBlocklistEntry{})
	}
	return live, nil
}

// RemoveBlocklistEntry deletes by id.
func (r *Repository) RemoveBlocklistEntry(ctx context.Context, id string) error {
	res := r.pool.DB().WithContext(ctx).Where("id = ?", id).Delete(&IPBlocklistEntry{})
	if res.Error != nil {
		return wrapGormErr(res.Error, "failed to remove blocklist entry")
	}
	if res.RowsAffected == 0 {
		return core.NewRepoNotFound("blocklist entry not found")
	}
	return nil
}

// AppendAuditLog writes one append-only audit row.
func (r *Repository) AppendAuditLog(ctx context.Context, entry AuditLogEntry) error {
	if entry.TS.IsZero() {
		entry.TS = time.Now().UTC()
	}
	if err := r.pool.DB().WithContext(ctx).Create(&entry).Error; err != nil {
		return wrapGormErr(err, "failed to append audit log")
	}
	return nil
}

// ListAuditLog returns the most recent entries, newest first, bounded by
// limit. There is no persistent aggregation beyond this local append store.
func (r *Repository) ListAuditLog(ctx context.Context, limit int) ([]AuditLogEntry, error) {
	var entries []AuditLogEntry
	q := r.pool.DB().WithContext(ctx).Order("ts DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, wrapGormErr(err, "failed to list audit log")
	}
	return entries, nil
}

// CreateDNSCredentialProfile inserts profile metadata. The caller is
// responsible for writing the token to the keyring first so an interrupted
// write never leaves a DB row with no backing secret.
func (r *Repository) CreateDNSCredentialProfile(ctx context.Context, p DNSCredentialProfile) (DNSCredentialProfile, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if err := r.pool.DB().WithContext(ctx).Create(&p).Error; err != nil {
		return DNSCredentialProfile{}, wrapGormErr(err, "failed to create dns credential profile")
	}
	return p, nil
}

// ListDNSCredentialProfiles returns every profile's metadata.
func (r *Repository) ListDNSCredentialProfiles(ctx context.Context) ([]DNSCredentialProfile, error) {
	var profiles []DNSCredentialProfile
	if err := r.pool.DB().WithContext(ctx).Find(&profiles).Error; err != nil {
		return nil, wrapGormErr(err, "failed to list dns credential profiles")
	}
	return profiles, nil
}

// DeleteDNSCredentialProfile removes the metadata row. Keyring cleanup is
// the service layer's responsibility.
func (r *Repository) DeleteDNSCredentialProfile(ctx context.Context, id string) error {
	res := r.pool.DB().WithContext(ctx).Where("id = ?", id).Delete(&DNSCredentialProfile{})
	if res.Error != nil {
		return wrapGormErr(res.Error, "failed to delete dns credential profile")
	}
	if res.RowsAffected == 0 {
		return core.NewRepoNotFound("dns credential profile not found")
	}
	return nil
}
