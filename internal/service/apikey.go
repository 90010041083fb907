package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Skotchmaster/credit_ledger/internal/audit"
	"github.com/Skotchmaster/credit_ledger/internal/metrics"
	"github.com/Skotchmaster/credit_ledger/internal/models"
	"github.com/Skotchmaster/credit_ledger/internal/repo"
	"github.com/Skotchmaster/credit_ledger/pkg/hash"
	"github.com/Skotchmaster/credit_ledger/pkg/logging"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	apiKeyPrefixBytes = 4
	apiKeySecretBytes = 16
	apiKeySeparator   = "_"

	DefaultAPIKeyTTLDays = 90
	MaxAPIKeyTTLDays     = 365

	prefixAttempts     = 3
	invalidateAttempts = 2
	maxBackgroundOps   = 100
	touchTimeout       = 2 * time.Second
)

type KeyCache interface {
	FindActiveAPIKeyByPrefix(ctx context.Context, prefix string) (*models.APIKey, error)
	Invalidate(ctx context.Context, prefix string) error
}

type APIKeyService struct {
	Repo     *repo.GormRepo
	Cache    KeyCache
	Audit    *audit.Logger
	Metrics  *metrics.Metrics
	Clock    Clock
	HashCost int

	once      sync.Once
	dummyHash string
	sem       chan struct{}
	bg        sync.WaitGroup
}

type IssueKeyInput struct {
	OwnerID uuid.UUID
	Name    string
	Scopes  []string
	TTLDays int
}

func (s *APIKeyService) init() {
	s.once.Do(func() {
		s.sem = make(chan struct{}, maxBackgroundOps)
		h, err := hash.HashPassword("dummy-api-key-secret", s.HashCost)
		if err == nil {
			s.dummyHash = h
		}
	})
}

// ParseKey splits "<prefix>_<secret>".
func ParseKey(raw string) (prefix, secret string, err error) {
	prefix, secret, ok := strings.Cut(strings.TrimSpace(raw), apiKeySeparator)
	if !ok || prefix == "" || secret == "" {
		return "", "", ErrUnauthorized
	}
	return prefix, secret, nil
}

func (s *APIKeyService) ResolveRaw(ctx context.Context, raw string) (*models.APIKey, error) {
	prefix, secret, err := ParseKey(raw)
	if err != nil {
		s.init()
		s.burnCompare(secret)
		s.Metrics.APIKeyRejected()
		return nil, ErrUnauthorized
	}
	return s.Resolve(ctx, prefix, secret)
}

// Resolve authenticates a key. Every rejection returns the same ErrUnauthorized
// and costs one bcrypt comparison so callers cannot tell the cases apart.
func (s *APIKeyService) Resolve(ctx context.Context, prefix, secret string) (*models.APIKey, error) {
	s.init()
	l := logging.FromContext(ctx).With("svc", "apikey.resolve")

	k, err := s.lookup(ctx, prefix)
	if err != nil {
		s.burnCompare(secret)
		s.Metrics.APIKeyRejected()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			l.Warn("apikey_rejected", "status", 401)
			return nil, ErrUnauthorized
		}
		l.Error("apikey_lookup_failed", "status", 500, "error", err)
		return nil, fmt.Errorf("lookup api key: %w", err)
	}

	now := s.Clock.now()
	match := hash.CheckPassword(k.SecretHash, secret)
	if !match || k.Revoked || k.Expired(now) {
		s.Metrics.APIKeyRejected()
		l.Warn("apikey_rejected", "status", 401, "key_id", k.ID)
		return nil, ErrUnauthorized
	}

	s.touch(ctx, k.ID, now)
	return k, nil
}

func (s *APIKeyService) lookup(ctx context.Context, prefix string) (*models.APIKey, error) {
	if s.Cache != nil {
		return s.Cache.FindActiveAPIKeyByPrefix(ctx, prefix)
	}
	return s.Repo.FindActiveAPIKeyByPrefix(ctx, prefix)
}

func (s *APIKeyService) burnCompare(secret string) {
	if s.dummyHash != "" {
		_ = hash.CheckPassword(s.dummyHash, secret)
	}
}

// touch records last use off the request path. When the pool is saturated the
// update is skipped.
func (s *APIKeyService) touch(ctx context.Context, id uuid.UUID, at time.Time) {
	select {
	case s.sem <- struct{}{}:
	default:
		logging.FromContext(ctx).Debug("apikey_touch_skipped", "key_id", id)
		return
	}

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		defer func() { <-s.sem }()

		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), touchTimeout)
		defer cancel()
		if err := s.Repo.TouchAPIKeyLastUsed(bg, id, at); err != nil {
			logging.FromContext(ctx).Warn("apikey_touch_failed", "key_id", id, "error", err)
		}
	}()
}

// Wait drains pending last-used updates.
func (s *APIKeyService) Wait() {
	s.bg.Wait()
}

func Authorize(k *models.APIKey, scope string) bool {
	return k != nil && k.Scopes.Has(scope)
}

func (s *APIKeyService) Issue(ctx context.Context, actor Identity, in IssueKeyInput) (string, *models.APIKey, error) {
	s.init()
	l := logging.FromContext(ctx).With("svc", "apikey.issue", "owner_id", in.OwnerID)

	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > 50 {
		return "", nil, fmt.Errorf("%w: name must be 1-50 characters", ErrValidation)
	}
	scopes := models.NewScopes(in.Scopes)
	if len(scopes) == 0 {
		return "", nil, fmt.Errorf("%w: at least one scope required", ErrValidation)
	}
	for _, sc := range scopes {
		if !models.ValidScope(sc) {
			return "", nil, fmt.Errorf("%w: unknown scope %q", ErrValidation, sc)
		}
	}
	ttl := in.TTLDays
	if ttl == 0 {
		ttl = DefaultAPIKeyTTLDays
	}
	if ttl < 1 || ttl > MaxAPIKeyTTLDays {
		return "", nil, fmt.Errorf("%w: expiry must be 1-%d days", ErrValidation, MaxAPIKeyTTLDays)
	}

	if _, err := s.Repo.GetAccountByID(ctx, in.OwnerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, fmt.Errorf("%w: owner", ErrNotFound)
		}
		return "", nil, fmt.Errorf("load owner: %w", err)
	}

	prefix, err := s.freePrefix(ctx)
	if err != nil {
		l.Error("apikey_issue_failed", "status", 500, "error", err)
		return "", nil, err
	}
	secret, err := hash.RandomHex(apiKeySecretBytes)
	if err != nil {
		return "", nil, err
	}
	secretHash, err := hash.HashPassword(secret, s.HashCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash api key secret: %w", err)
	}

	exp := s.Clock.now().AddDate(0, 0, ttl)
	k := &models.APIKey{
		AccountID:  in.OwnerID,
		Name:       name,
		Prefix:     prefix,
		SecretHash: secretHash,
		Scopes:     scopes,
		ExpiresAt:  &exp,
	}
	if err := s.Repo.CreateAPIKey(ctx, k); err != nil {
		l.Error("apikey_issue_failed", "status", 500, "error", err)
		return "", nil, fmt.Errorf("store api key: %w", err)
	}

	s.Audit.Record(ctx, audit.Event{
		ActorType: actor.actorType(),
		ActorID:   actor.AccountID.String(),
		Action:    "api_key_created",
		Details: map[string]any{
			"key_id":   k.ID.String(),
			"owner_id": in.OwnerID.String(),
			"prefix":   prefix,
			"scopes":   []string(scopes),
		},
	})
	l.Info("apikey_issued", "key_id", k.ID)
	return prefix + apiKeySeparator + secret, k, nil
}

func (s *APIKeyService) freePrefix(ctx context.Context) (string, error) {
	for i := 0; i < prefixAttempts; i++ {
		p, err := hash.RandomHex(apiKeyPrefixBytes)
		if err != nil {
			return "", err
		}
		taken, err := s.Repo.PrefixExists(ctx, p)
		if err != nil {
			return "", fmt.Errorf("check prefix: %w", err)
		}
		if !taken {
			return p, nil
		}
	}
	return "", errors.New("could not allocate a unique api key prefix")
}

// Revoke is allowed for the key owner and admins. Revoking twice is a no-op.
func (s *APIKeyService) Revoke(ctx context.Context, actor Identity, keyID uuid.UUID) (*models.APIKey, error) {
	l := logging.FromContext(ctx).With("svc", "apikey.revoke", "key_id", keyID)

	k, err := s.Repo.GetAPIKey(ctx, keyID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: api key", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load api key: %w", err)
	}
	if !actor.IsAdmin() && k.AccountID != actor.AccountID {
		l.Warn("apikey_revoke_forbidden", "status", 403, "actor_id", actor.AccountID)
		return nil, ErrForbidden
	}
	if k.Revoked {
		return k, nil
	}

	if err := s.Repo.RevokeAPIKey(ctx, keyID); err != nil {
		return nil, fmt.Errorf("revoke api key: %w", err)
	}
	k.Revoked = true

	s.invalidate(ctx, l, k.Prefix)

	s.Audit.Record(ctx, audit.Event{
		ActorType: actor.actorType(),
		ActorID:   actor.AccountID.String(),
		Action:    "api_key_revoked",
		Details:   map[string]any{"key_id": keyID.String(), "owner_id": k.AccountID.String()},
	})
	return k, nil
}

// invalidate runs after the revoke has committed. If redis stays unreachable
// the cached entry lives out its TTL.
func (s *APIKeyService) invalidate(ctx context.Context, l *slog.Logger, prefix string) {
	if s.Cache == nil {
		return
	}
	var err error
	for range invalidateAttempts {
		if err = s.Cache.Invalidate(ctx, prefix); err == nil {
			return
		}
	}
	s.Metrics.CacheInvalidateFailed()
	l.Error("apikey_cache_invalidate_failed", "prefix", prefix, "error", err)
}

func (s *APIKeyService) List(ctx context.Context, ownerID uuid.UUID) ([]models.APIKey, error) {
	items, err := s.Repo.ListAPIKeys(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return items, nil
}
