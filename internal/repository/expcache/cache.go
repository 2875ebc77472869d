package expcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/rosevoul/recserve/internal/db"
	"github.com/rosevoul/recserve/internal/domain"
)

var cacheKeyPrefix = domain.KeyPrefix + "exp_cache:"

// store is the consumer interface for the expansion cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache stores query variant sets in a key-value store with a bounded TTL.
// The key is (expansion logic version, surface, locale, normalized query):
// any normalization or prompt change must bump the version, which moves the
// whole cache space instead of serving stale variants.
type Cache struct {
	store      store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates an expansion cache.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(s store, ttl time.Duration, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *Cache {
	return &Cache{store: s, ttl: ttl, cacheTotal: cacheTotal, logger: logger}
}

// Get returns the cached variant set for a key, if present and well-formed.
func (c *Cache) Get(ctx context.Context, version, surface, locale, query string) (domain.QueryVariantSet, bool) {
	data, err := c.store.Get(ctx, c.storageKey(version, surface, locale, query))
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached expansion", zap.Error(err))
		}
		c.incCache("miss")
		return domain.QueryVariantSet{}, false
	}

	var variants []string
	if err := json.Unmarshal(data, &variants); err != nil || len(variants) == 0 {
		c.logger.Warn("Malformed cached expansion, ignoring", zap.Error(err))
		c.incCache("miss")
		return domain.QueryVariantSet{}, false
	}

	c.incCache("hit")
	return domain.QueryVariantSet{Variants: variants}, true
}

// Put stores a variant set. Write failures are logged, never propagated: the
// cache is an optimization, not a dependency.
func (c *Cache) Put(ctx context.Context, version, surface, locale, query string, set domain.QueryVariantSet) {
	data, err := json.Marshal(set.Variants)
	if err != nil {
		c.logger.Warn("Failed to encode expansion for cache", zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, c.storageKey(version, surface, locale, query), data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache expansion", zap.Error(err))
	}
}

func (c *Cache) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (c *Cache) storageKey(version, surface, locale, query string) string {
	h := sha256.New()
	for _, part := range []string{version, surface, locale, query} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}
