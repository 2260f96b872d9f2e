package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/miradorstack/mirador-responder/internal/cache"
	"github.com/miradorstack/mirador-responder/internal/models"
	"github.com/miradorstack/mirador-responder/internal/utils"
)

// CachedStore fronts a Store with a read-through cache. Every write evicts the
// key, and a lookup that raced a local write never leaves its read cached.
// Writes made by other processes sharing the cache are only seen once the
// entry expires, so staleness is bounded by the TTL.
type CachedStore struct {
	next   Store
	cache  cache.Provider
	ttl    time.Duration
	logger *slog.Logger

	mu   sync.Mutex
	gens map[string]uint64
}

// NewCachedStore wraps next. A nil provider disables caching.
func NewCachedStore(next Store, provider cache.Provider, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedStore{next: next, cache: provider, ttl: ttl, logger: utils.OrDefault(logger), gens: make(map[string]uint64)}
}

func (c *CachedStore) generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[key]
}

func (c *CachedStore) bump(key string) {
	c.mu.Lock()
	c.gens[key]++
	c.mu.Unlock()
}

func cacheKey(signature, actionKind string) string {
	return "responder:knowledge:" + Key(signature, actionKind)
}

// RecordOutcome writes through and evicts the cached record.
func (c *CachedStore) RecordOutcome(ctx context.Context, signature, actionKind string, succeeded bool) (models.KnowledgeRecord, error) {
	rec, err := c.next.RecordOutcome(ctx, signature, actionKind, succeeded)
	if err != nil {
		return rec, err
	}
	key := cacheKey(signature, actionKind)
	c.bump(key)
	if err := c.cache.Del(ctx, key); err != nil {
		c.logger.Warn("knowledge cache evict failed", "signature", signature, "action", actionKind, "error", err)
	}
	return rec, nil
}

// Lookup serves from cache when possible and populates it on miss.
func (c *CachedStore) Lookup(ctx context.Context, signature, actionKind string) (models.KnowledgeRecord, error) {
	key := cacheKey(signature, actionKind)
	if data, err := c.cache.Get(ctx, key); err == nil {
		var rec models.KnowledgeRecord
		if jsonErr := json.Unmarshal(data, &rec); jsonErr == nil {
			return rec, nil
		}
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Debug("knowledge cache read failed", "key", key, "error", err)
	}

	gen := c.generation(key)
	rec, err := c.next.Lookup(ctx, signature, actionKind)
	if err != nil {
		return rec, err
	}
	if c.generation(key) != gen {
		return rec, nil
	}
	if data, err := json.Marshal(rec); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			c.logger.Debug("knowledge cache write failed", "key", key, "error", err)
		}
		// A write that landed between the check and the Set evicted nothing.
		if c.generation(key) != gen {
			_ = c.cache.Del(ctx, key)
		}
	}
	return rec, nil
}

// List bypasses the cache.
func (c *CachedStore) List(ctx context.Context, signature string) ([]models.KnowledgeRecord, error) {
	return c.next.List(ctx, signature)
}
