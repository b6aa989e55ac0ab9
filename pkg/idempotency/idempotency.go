// Package idempotency is a redis-backed read-through cache in front of the
// database dedup ledgers. The database stays authoritative: entries are only
// written after the guarded transaction commits, and redis failures degrade
// to a cache miss.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/careforall-backend/pkg/logger"
	"github.com/angelmondragon/careforall-backend/pkg/redis"
)

// Scopes partition the key space per dedup ledger.
const (
	ScopePledgeKey      = "pledge:key"
	ScopeWebhook        = "webhook"
	ScopeReconciliation = "reconciliation"
)

// Cache remembers ids that were durably processed. A nil store disables it.
type Cache struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	logg  *logger.Logger
}

// NewCache builds a cache entry writer with the given TTL. store may be nil.
func NewCache(store redis.IdempotencyStore, ttl time.Duration, logg *logger.Logger) (*Cache, error) {
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Cache{store: store, ttl: ttl, logg: logg}, nil
}

// Disabled returns a cache that always misses.
func Disabled() *Cache {
	return &Cache{}
}

// Enabled reports whether a backing store is configured.
func (c *Cache) Enabled() bool {
	return c != nil && c.store != nil
}

// Lookup returns the value remembered for id in scope.
func (c *Cache) Lookup(ctx context.Context, scope, id string) (string, bool) {
	if !c.Enabled() || id == "" {
		return "", false
	}
	value, err := c.store.Get(ctx, c.store.IdempotencyKey(scope, id))
	if err != nil {
		if !redis.IsMiss(err) {
			c.warn(ctx, scope, id, "idempotency cache lookup failed", err)
		}
		return "", false
	}
	return value, true
}

// Seen reports whether id was remembered in scope.
func (c *Cache) Seen(ctx context.Context, scope, id string) bool {
	_, ok := c.Lookup(ctx, scope, id)
	return ok
}

// Remember stores value for id. The first writer wins.
func (c *Cache) Remember(ctx context.Context, scope, id, value string) {
	if !c.Enabled() || id == "" {
		return
	}
	if value == "" {
		value = "1"
	}
	if _, err := c.store.SetNX(ctx, c.store.IdempotencyKey(scope, id), value, c.ttl); err != nil {
		c.warn(ctx, scope, id, "idempotency cache write failed", err)
	}
}

// Forget drops id from scope.
func (c *Cache) Forget(ctx context.Context, scope, id string) {
	if !c.Enabled() || id == "" {
		return
	}
	if err := c.store.Del(ctx, c.store.IdempotencyKey(scope, id)); err != nil {
		c.warn(ctx, scope, id, "idempotency cache delete failed", err)
	}
}

func (c *Cache) warn(ctx context.Context, scope, id, msg string, err error) {
	if c.logg == nil {
		return
	}
	ctx = c.logg.WithFields(ctx, map[string]any{"scope": scope, "id": id, "error": err.Error()})
	c.logg.Warn(ctx, msg)
}
