// Package cache provides the namespaced key-value view over a shared Redis
// server used by every component that reads/writes hot derived state (C4):
// agent configs, agent lists, channel metadata, workflow status, message
// counts. Every operation degrades to a miss/no-op (never an error to the
// caller) when the backing server is unreachable, per the failure-behavior
// contract: errors are counted, never raised.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/observability"
)

// Default per-namespace TTLs, applied when config.CacheConfig.Namespaces
// carries no entry for a namespace.
var defaultNamespaceTTLs = map[string]time.Duration{
	"agent_config":      3600 * time.Second,
	"agent_list":        1800 * time.Second,
	"channel_metadata":  600 * time.Second,
	"workflow_status":   60 * time.Second,
	"message_counts":    300 * time.Second,
}

// Stats accumulates the counters §4.4 requires the cache to expose.
type Stats struct {
	Hits    int64
	Misses  int64
	Sets    int64
	Deletes int64
	Errors  int64
}

// HitRate returns hits / (hits+misses), or 0 if there have been no lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is the namespaced get/set/delete view over Redis.
type Cache struct {
	client  *redis.Client
	ttls    map[string]time.Duration
	defTTL  time.Duration
	metrics *observability.Metrics

	hits, misses, sets, deletes, errors int64
}

// New builds a Cache from configuration. metrics may be nil.
func New(cfg config.CacheConfig, metrics *observability.Metrics) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ttls := make(map[string]time.Duration, len(defaultNamespaceTTLs))
	for ns, d := range defaultNamespaceTTLs {
		ttls[ns] = d
	}
	for ns, nsCfg := range cfg.Namespaces {
		if nsCfg.TTL > 0 {
			ttls[ns] = nsCfg.TTL
		}
	}

	defTTL := cfg.DefaultTTL
	if defTTL == 0 {
		defTTL = 10 * time.Minute
	}

	return &Cache{client: client, ttls: ttls, defTTL: defTTL, metrics: metrics}
}

// Close releases the underlying Redis connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) ttlFor(ns string) time.Duration {
	if ttl, ok := c.ttls[ns]; ok {
		return ttl
	}
	return c.defTTL
}

func namespacedKey(ns, key string) string {
	return ns + ":" + key
}

func (c *Cache) recordOp(ns, op, outcome string) {
	switch outcome {
	case "hit":
		c.hits++
	case "miss":
		c.misses++
	case "set":
		c.sets++
	case "delete":
		c.deletes++
	case "error":
		c.errors++
	}
	if c.metrics != nil {
		c.metrics.RecordCacheOp(ns, op, outcome)
	}
}

// opContext bounds every cache round trip to the 250ms contract timeout;
// on exceed, the operation is treated as a miss/no-op.
func (c *Cache) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 250*time.Millisecond)
}

// Get fetches and JSON-decodes a namespaced value into dst. Returns
// (found, error) where error is always nil — cache failures are swallowed
// after counting, per the failure-behavior contract.
func (c *Cache) Get(ctx context.Context, ns, key string, dst any) bool {
	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	raw, err := c.client.Get(opCtx, namespacedKey(ns, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.recordOp(ns, "get", "miss")
			return false
		}
		c.recordOp(ns, "get", "error")
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.recordOp(ns, "get", "error")
		return false
	}
	c.recordOp(ns, "get", "hit")
	return true
}

// Set JSON-encodes value and stores it under ns:key with the namespace's
// configured TTL (or an explicit override when ttl > 0).
func (c *Cache) Set(ctx context.Context, ns, key string, value any, ttl time.Duration) {
	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	if ttl <= 0 {
		ttl = c.ttlFor(ns)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		c.recordOp(ns, "set", "error")
		return
	}
	if err := c.client.Set(opCtx, namespacedKey(ns, key), payload, ttl).Err(); err != nil {
		c.recordOp(ns, "set", "error")
		return
	}
	c.recordOp(ns, "set", "set")
}

// Delete removes a single namespaced key.
func (c *Cache) Delete(ctx context.Context, ns, key string) {
	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	if err := c.client.Del(opCtx, namespacedKey(ns, key)).Err(); err != nil {
		c.recordOp(ns, "delete", "error")
		return
	}
	c.recordOp(ns, "delete", "delete")
}

// DeletePattern removes every key in ns matching a glob (e.g. "agent:*"),
// used to invalidate list indexes dependent on a changed entity.
func (c *Cache) DeletePattern(ctx context.Context, ns, glob string) {
	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	iter := c.client.Scan(opCtx, 0, namespacedKey(ns, glob), 0).Iterator()
	var keys []string
	for iter.Next(opCtx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.recordOp(ns, "delete_pattern", "error")
		return
	}
	if len(keys) == 0 {
		c.recordOp(ns, "delete_pattern", "delete")
		return
	}
	if err := c.client.Del(opCtx, keys...).Err(); err != nil {
		c.recordOp(ns, "delete_pattern", "error")
		return
	}
	c.recordOp(ns, "delete_pattern", "delete")
}

// MGet fetches multiple keys in one round trip. dstFactory must return a
// fresh pointer to decode into for each key; the returned slice has one
// entry per input key, nil where the key was a miss or decode failed.
func (c *Cache) MGet(ctx context.Context, ns string, keys []string, dstFactory func() any) []any {
	results := make([]any, len(keys))
	if len(keys) == 0 {
		return results
	}

	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = namespacedKey(ns, k)
	}

	raw, err := c.client.MGet(opCtx, full...).Result()
	if err != nil {
		c.recordOp(ns, "mget", "error")
		return results
	}

	for i, v := range raw {
		if v == nil {
			c.recordOp(ns, "mget", "miss")
			continue
		}
		s, ok := v.(string)
		if !ok {
			c.recordOp(ns, "mget", "error")
			continue
		}
		dst := dstFactory()
		if err := json.Unmarshal([]byte(s), dst); err != nil {
			c.recordOp(ns, "mget", "error")
			continue
		}
		results[i] = dst
		c.recordOp(ns, "mget", "hit")
	}
	return results
}

// MSet writes multiple key/value pairs under a shared namespace TTL.
func (c *Cache) MSet(ctx context.Context, ns string, values map[string]any, ttl time.Duration) {
	if len(values) == 0 {
		return
	}
	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	if ttl <= 0 {
		ttl = c.ttlFor(ns)
	}

	pipe := c.client.Pipeline()
	for key, value := range values {
		payload, err := json.Marshal(value)
		if err != nil {
			c.recordOp(ns, "mset", "error")
			continue
		}
		pipe.Set(opCtx, namespacedKey(ns, key), payload, ttl)
	}
	if _, err := pipe.Exec(opCtx); err != nil {
		c.recordOp(ns, "mset", "error")
		return
	}
	c.recordOp(ns, "mset", "set")
}

// Stats returns a snapshot of the process-wide counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:    c.hits,
		Misses:  c.misses,
		Sets:    c.sets,
		Deletes: c.deletes,
		Errors:  c.errors,
	}
}

// InvalidateEntity performs the write-through invalidation discipline: after
// a primary-store commit, delete the entity's own key plus every dependent
// list-index pattern.
func (c *Cache) InvalidateEntity(ctx context.Context, ns, key string, dependentPatterns ...string) {
	c.Delete(ctx, ns, key)
	for _, pattern := range dependentPatterns {
		c.DeletePattern(ctx, ns, pattern)
	}
}

// KeyForList builds the conventional list-index cache key for a namespace,
// e.g. agent_list:active or agent_list:all.
func KeyForList(parts ...string) string {
	return strings.Join(parts, ":")
}
