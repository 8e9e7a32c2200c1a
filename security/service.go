package security

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"
	"golang.org/x/sync/errgroup"

	"github.com/flm-run/flm-proxy/core"
	"github.com/flm-run/flm-proxy/internal/cache"
)

// argon2BlockingPoolSize bounds how many Argon2 verifications run
// concurrently per VerifyAPIKey call, so a profile with many active keys
// can't spike memory use past argon2Params.memory * pool size at once.
const argon2BlockingPoolSize = 4

// argon2Params are tuned so a single verification costs at least ~50ms on
// target hardware.
type argon2Params struct {
	time    uint32
	memory  uint32
	threads uint8
	keyLen  uint32
	saltLen int
}

func defaultArgon2Params() argon2Params {
	return argon2Params{time: 3, memory: 64 * 1024, threads: 2, keyLen: 32, saltLen: 16}
}

const policyCacheKey = "security:policy:default"

// Service is the L3 Security Service: API-key lifecycle, policy CRUD, and
// blocklist/audit operations, with a 5s memoization cache in front of the
// hot-path policy read.
type Service struct {
	repo    *Repository
	cache   *cache.Manager
	tokens  TokenStore
	logger  *zap.Logger
	argon2  argon2Params
	dummyHash string // used to equalize timing when no active key exists
}

// NewService wires a Repository, the shared memoization cache, and a
// TokenStore for DNS credential profiles.
func NewService(repo *Repository, c *cache.Manager, tokens TokenStore, logger *zap.Logger) *Service {
	s := &Service{repo: repo, cache: c, tokens: tokens, logger: logger, argon2: defaultArgon2Params()}
	s.dummyHash = s.hash("flm-dummy-verification-secret", randomSalt(s.argon2.saltLen))
	return s
}

func randomSalt(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("security: failed to read random salt: " + err.Error())
	}
	return b
}

func (s *Service) hash(secret string, salt []byte) string {
	derived := argon2.IDKey([]byte(secret), salt, s.argon2.time, s.argon2.memory, s.argon2.threads, s.argon2.keyLen)
	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		s.argon2.memory, s.argon2.time, s.argon2.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(derived))
}

func (s *Service) verify(secret, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return false
	}
	var mem uint32
	var t uint32
	var p uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &t, &p); err != nil {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(secret), salt, t, mem, uint8(p), uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

func generatePlaintextSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("security: failed to generate api key secret: " + err.Error())
	}
	return "flm_" + base64.RawURLEncoding.EncodeToString(b)
}

// CreateAPIKey mints a new key, returning the plaintext exactly once.
func (s *Service) CreateAPIKey(ctx context.Context, label string) (plaintext string, rec APIKey, err error) {
	plaintext = generatePlaintextSecret()
	salt := randomSalt(s.argon2.saltLen)
	rec = APIKey{
		ID:        ulid.Make().String(),
		Label:     label,
		Hash:      s.hash(plaintext, salt),
		CreatedAt: time.Now().UTC(),
	}
	rec, err = s.repo.CreateAPIKey(ctx, rec)
	if err != nil {
		return "", APIKey{}, err
	}
	return plaintext, rec, nil
}

// ListAPIKeys returns all keys with hashes stripped from the JSON view by
// the struct's own `json:"-"` tag.
func (s *Service) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	return s.repo.ListAPIKeys(ctx)
}

// ListActiveAPIKeys returns only unrevoked keys.
func (s *Service) ListActiveAPIKeys(ctx context.Context) ([]APIKey, error) {
	return s.repo.ListActiveAPIKeys(ctx)
}

// RevokeAPIKey revokes a key by id.
func (s *Service) RevokeAPIKey(ctx context.Context, id string) error {
	return s.repo.RevokeAPIKey(ctx, id)
}

// RotateAPIKey atomically creates a replacement key and revokes id.
func (s *Service) RotateAPIKey(ctx context.Context, id string, newLabel string) (plaintext string, rec APIKey, err error) {
	plaintext = generatePlaintextSecret()
	salt := randomSalt(s.argon2.saltLen)
	newKey := APIKey{
		ID:        ulid.Make().String(),
		Label:     newLabel,
		Hash:      s.hash(plaintext, salt),
		CreatedAt: time.Now().UTC(),
	}
	rec, err = s.repo.RotateAPIKey(ctx, id, newKey)
	if err != nil {
		return "", APIKey{}, err
	}
	return plaintext, rec, nil
}

// VerifyAPIKey iterates active keys and returns the id of the first whose
// hash matches presented. When no active key exists it still performs a
// dummy Argon2 verify so the timing of "no keys configured" matches "one
// key configured, wrong secret". Each verification is CPU-heavy (Argon2id
// at ~50ms), so they run on a bounded errgroup pool rather than serially
// or all at once; the caller waits for the round, and a profile with
// several active keys still resolves in one round of parallel hashing.
func (s *Service) VerifyAPIKey(ctx context.Context, presented string) (string, error) {
	keys, err := s.repo.ListActiveAPIKeys(ctx)
	if err != nil {
		return "", err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(argon2BlockingPoolSize)

	if len(keys) == 0 {
		g.Go(func() error {
			s.verify(presented, s.dummyHash)
			return nil
		})
		_ = g.Wait()
		return "", core.NewRepoNotFound("invalid api key").WithHTTPStatus(401)
	}

	var mu sync.Mutex
	matchedID := ""
	for _, k := range keys {
		k := k
		g.Go(func() error {
			if gCtx.Err() != nil {
				return nil
			}
			if s.verify(presented, k.Hash) {
				mu.Lock()
				if matchedID == "" {
					matchedID = k.ID
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if matchedID == "" {
		return "", core.NewRepoNotFound("invalid api key").WithHTTPStatus(401)
	}
	return matchedID, nil
}

// GetPolicy returns the current security policy, served from the 5s
// memoization cache when warm.
func (s *Service) GetPolicy(ctx context.Context) (Policy, error) {
	var cached Policy
	if err := s.cache.GetJSON(ctx, policyCacheKey, &cached); err == nil {
		return cached, nil
	}
	p, err := s.repo.GetPolicy(ctx)
	if err != nil {
		return Policy{}, err
	}
	_ = s.cache.SetJSON(ctx, policyCacheKey, p, 0)
	return p, nil
}

// SetPolicy replaces the policy in place and invalidates the memoization
// cache so the next read observes the update within one request.
func (s *Service) SetPolicy(ctx context.Context, p Policy) error {
	if err := s.repo.SetPolicy(ctx, p); err != nil {
		return err
	}
	_ = s.cache.Delete(ctx, policyCacheKey)
	return nil
}

// BlockIP adds an entry to the dynamic IP blocklist.
func (s *Service) BlockIP(ctx context.Context, addr, reason string, source BlocklistSource, expiresAt *time.Time) error {
	return s.repo.AddBlocklistEntry(ctx, IPBlocklistEntry{
		ID:        ulid.Make().String(),
		Addr:      addr,
		Reason:    reason,
		Source:    source,
		BlockedAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
	})
}

// ListBlockedIPs returns every non-expired blocklist entry.
func (s *Service) ListBlockedIPs(ctx context.Context) ([]IPBlocklistEntry, error) {
	return s.repo.ListBlocklist(ctx)
}

// UnblockIP removes a blocklist entry.
func (s *Service) UnblockIP(ctx context.Context, id string) error {
	return s.repo.RemoveBlocklistEntry(ctx, id)
}

// RecordAudit masks the remote IP and actor key id, then appends one audit
// row. Callers pass the raw remote address; masking happens here so no
// unmasked value is ever persisted.
func (s *Service) RecordAudit(ctx context.Context, remoteAddr string, actorKeyID *string, route string, status, latencyMS int, outcome AuditOutcome) {
	entry := AuditLogEntry{
		TS:             time.Now().UTC(),
		RemoteIPMasked: MaskIP(remoteAddr),
		Route:          route,
		StatusCode:     status,
		LatencyMS:      latencyMS,
		Outcome:        outcome,
	}
	if actorKeyID != nil {
		masked := MaskIdentifier(*actorKeyID)
		entry.ActorKeyID = &masked
	}
	if err := s.repo.AppendAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to append audit log entry", zap.Error(err))
	}
}

// ListAuditLog returns the most recent audit rows.
func (s *Service) ListAuditLog(ctx context.Context, limit int) ([]AuditLogEntry, error) {
	return s.repo.ListAuditLog(ctx, limit)
}

// CreateDNSCredentialProfile writes the token to the keyring first, then
// persists metadata; if the metadata write fails the keyring entry is
// rolled back so no orphan is created on this path. A crash between the two
// writes leaves a keyring entry with no DB row, which ReconcileKeyring does
// not detect or remove.
func (s *Service) CreateDNSCredentialProfile(ctx context.Context, provider, label, zoneID, zoneName, token string) (DNSCredentialProfile, error) {
	id := ulid.Make().String()
	if err := s.tokens.Set(id, token); err != nil {
		return DNSCredentialProfile{}, core.NewRepoIOError("failed to store dns credential token").WithCause(err)
	}
	profile, err := s.repo.CreateDNSCredentialProfile(ctx, DNSCredentialProfile{
		ID:        id,
		Provider:  provider,
		Label:     label,
		ZoneID:    zoneID,
		ZoneName:  zoneName,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		_ = s.tokens.Delete(id)
		return DNSCredentialProfile{}, err
	}
	return profile, nil
}

// DeleteDNSCredentialProfile deletes the metadata row and its keyring entry.
// Both must be gone; the keyring delete runs last so a failure there leaves
// no metadata pointing at an orphaned secret.
func (s *Service) DeleteDNSCredentialProfile(ctx context.Context, id string) error {
	if err := s.repo.DeleteDNSCredentialProfile(ctx, id); err != nil {
		return err
	}
	return s.tokens.Delete(id)
}

// ListDNSCredentialProfiles returns profile metadata (never tokens).
func (s *Service) ListDNSCredentialProfiles(ctx context.Context) ([]DNSCredentialProfile, error) {
	return s.repo.ListDNSCredentialProfiles(ctx)
}

// ReconcileKeyring verifies every known DNS credential profile still has a
// readable keyring entry, logging ones that don't so an operator can
// re-enroll the credential. go-keyring exposes no list-by-service call, so
// true orphan discovery (a keyring entry with no DB row) isn't possible
// from this dependency; only the DB-row-with-missing-token direction is
// checked here.
func (s *Service) ReconcileKeyring(ctx context.Context) error {
	profiles, err := s.repo.ListDNSCredentialProfiles(ctx)
	if err != nil {
		return err
	}
	for _, p := range profiles {
		if _, err := s.tokens.Get(p.ID); err != nil {
			s.logger.Warn("dns credential profile has no matching keyring entry",
				zap.String("profile_id", p.ID), zap.String("provider", p.Provider))
		}
	}
	return nil
}
