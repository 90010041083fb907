package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Skotchmaster/credit_ledger/internal/models"
	"github.com/Skotchmaster/credit_ledger/pkg/logging"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultTTL = 30 * time.Second

type Client interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type KeyLookup interface {
	FindActiveAPIKeyByPrefix(ctx context.Context, prefix string) (*models.APIKey, error)
}

// APIKeyCache is a read-through cache of non-revoked keys by prefix.
// Misses and errors are never cached; redis failures fall back to the lookup.
// Invalidate leaves a tombstone for twice the entry TTL. While it exists the
// prefix is served from the lookup only and nothing is written back.
type APIKeyCache struct {
	next   KeyLookup
	client Client
	ttl    time.Duration
}

func NewAPIKeyCache(next KeyLookup, client Client, ttl time.Duration) *APIKeyCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &APIKeyCache{next: next, client: client, ttl: ttl}
}

// cachedKey carries the secret hash, which models.APIKey hides from JSON.
type cachedKey struct {
	ID         uuid.UUID  `json:"id"`
	AccountID  uuid.UUID  `json:"account_id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	SecretHash string     `json:"secret_hash"`
	Scopes     []string   `json:"scopes"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func cacheKey(prefix string) string {
	return "ledger:apikey:prefix:" + prefix
}

func revokedKey(prefix string) string {
	return "ledger:apikey:revoked:" + prefix
}

func (c *APIKeyCache) FindActiveAPIKeyByPrefix(ctx context.Context, prefix string) (*models.APIKey, error) {
	l := logging.FromContext(ctx).With("component", "apikey_cache")
	key, tomb := cacheKey(prefix), revokedKey(prefix)

	revoked := false
	vals, err := c.client.MGet(ctx, key, tomb).Result()
	switch {
	case err != nil:
		l.Warn("apikey_cache_get_failed", "error", err)
	case vals[1] != nil:
		revoked = true
	case vals[0] != nil:
		var ck cachedKey
		if raw, ok := vals[0].(string); ok && json.Unmarshal([]byte(raw), &ck) == nil {
			return ck.model(), nil
		}
		l.Debug("apikey_cache_corrupt", "cache_key", key)
	}

	k, err := c.next.FindActiveAPIKeyByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if !revoked {
		c.store(ctx, l, key, tomb, k)
	}
	return k, nil
}

func (c *APIKeyCache) store(ctx context.Context, l *slog.Logger, key, tomb string, k *models.APIKey) {
	payload, err := json.Marshal(fromModel(k))
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		l.Warn("apikey_cache_set_failed", "error", err)
		return
	}
	// A revoke may have committed after our lookup read the row.
	if n, err := c.client.Exists(ctx, tomb).Result(); err == nil && n == 0 {
		return
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		l.Warn("apikey_cache_writeback_drop_failed", "error", err)
	}
}

// Invalidate tombstones the prefix before dropping its entry, so a concurrent
// read-through cannot resurrect it.
func (c *APIKeyCache) Invalidate(ctx context.Context, prefix string) error {
	if err := c.client.Set(ctx, revokedKey(prefix), "1", 2*c.ttl).Err(); err != nil {
		return err
	}
	return c.client.Del(ctx, cacheKey(prefix)).Err()
}

func fromModel(k *models.APIKey) cachedKey {
	return cachedKey{
		ID:         k.ID,
		AccountID:  k.AccountID,
		Name:       k.Name,
		Prefix:     k.Prefix,
		SecretHash: k.SecretHash,
		Scopes:     k.Scopes,
		ExpiresAt:  k.ExpiresAt,
		CreatedAt:  k.CreatedAt,
	}
}

func (ck cachedKey) model() *models.APIKey {
	return &models.APIKey{
		ID:         ck.ID,
		AccountID:  ck.AccountID,
		Name:       ck.Name,
		Prefix:     ck.Prefix,
		SecretHash: ck.SecretHash,
		Scopes:     models.NewScopes(ck.Scopes),
		ExpiresAt:  ck.ExpiresAt,
		CreatedAt:  ck.CreatedAt,
	}
}
