package profile

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"campusportal/internal/kv"
	"campusportal/internal/metrics"
	"campusportal/internal/model"
)

const cachePrefix = "profile:"

// CacheEntry is the persisted form of a cached profile.
type CacheEntry struct {
	Key      string        `json:"key"`
	Profile  model.Profile `json:"profile"`
	StoredAt time.Time     `json:"stored_at"`
}

// Cache keeps the last resolved profile per auth identity. Entries never
// expire; they are replaced on resolution and removed on invalidation.
type Cache struct {
	store  kv.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewCache(store kv.Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{store: store, logger: logger, now: time.Now}
}

// Get reports a miss when the backing store fails or holds an unreadable
// entry; the caller falls through to the network.
func (c *Cache) Get(ctx context.Context, key string) (model.Profile, bool) {
	data, ok, err := c.store.Get(ctx, cacheKey(key))
	if err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("profile cache read failed", "key", key, "error", err)
		return model.Profile{}, false
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return model.Profile{}, false
	}
	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Key != key {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("profile cache entry unreadable", "key", key, "error", err)
		return model.Profile{}, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return entry.Profile, true
}

func (c *Cache) Put(ctx context.Context, key string, profile model.Profile) error {
	data, err := json.Marshal(CacheEntry{Key: key, Profile: profile, StoredAt: c.now().UTC()})
	if err != nil {
		return err
	}
	return c.store.Set(ctx, cacheKey(key), data)
}

func (c *Cache) Invalidate(ctx context.Context, key string) error {
	return c.store.Delete(ctx, cacheKey(key))
}

func (c *Cache) InvalidateAll(ctx context.Context) error {
	return c.store.DeletePrefix(ctx, cachePrefix)
}

func cacheKey(key string) string {
	return cachePrefix + key
}
