package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tiered is a two-level cache: an in-process TTL map (L1) in front of an optional Redis (L2).
// L1 is lost on restart, L2 survives it and is shared between instances.
type Tiered struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	rdb        *redis.Client // nil when L2 is disabled
	prefix     string
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

type entry struct {
	data      []byte
	expiresAt time.Time
}

// New creates an L1-only cache. prefix namespaces keys in Redis.
func New(prefix string, ttl time.Duration, maxEntries int) *Tiered {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Tiered{
		entries:    make(map[string]*entry),
		prefix:     prefix,
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// ConnectRedis enables L2. An invalid or unreachable URL leaves the cache L1-only and returns the error.
func (c *Tiered) ConnectRedis(ctx context.Context, redisURL string) error {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return fmt.Errorf("redis ping: %w", err)
	}
	c.rdb = rdb
	log.Printf("[Cache] L2 redis connected (%s)", opts.Addr)
	return nil
}

func (c *Tiered) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// Key builds a deterministic key from parts.
func (c *Tiered) Key(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%s:%x", c.prefix, hash[:12])
}

// Get decodes the cached value for key into v. An L2 hit repopulates L1.
func (c *Tiered) Get(ctx context.Context, key string, v any) bool {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		if c.now().Before(e.expiresAt) && json.Unmarshal(e.data, v) == nil {
			c.hits.Add(1)
			return true
		}
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
	}

	if c.rdb != nil {
		data, err := c.rdb.Get(ctx, key).Bytes()
		if err == nil && json.Unmarshal(data, v) == nil {
			c.store(key, data)
			c.hits.Add(1)
			return true
		}
		if err != nil && err != redis.Nil {
			log.Printf("[Cache] L2 get failed: %v", err)
		}
	}

	c.misses.Add(1)
	return false
}

// Set stores v in both tiers.
func (c *Tiered) Set(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[Cache] cannot encode value for %s: %v", key, err)
		return
	}
	c.store(key, data)
	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			log.Printf("[Cache] L2 set failed: %v", err)
		}
	}
}

func (c *Tiered) store(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.entries[key] = &entry{data: data, expiresAt: c.now().Add(c.ttl)}
}

// evictLocked drops expired entries, then the oldest until there is room for one more.
func (c *Tiered) evictLocked() {
	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	for len(c.entries) >= c.maxEntries {
		var oldestKey string
		var oldest time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.expiresAt.Before(oldest) {
				oldestKey, oldest = k, e.expiresAt
			}
		}
		delete(c.entries, oldestKey)
	}
}

// Clear drops every entry of this cache from L1 and, when enabled, L2.
func (c *Tiered) Clear(ctx context.Context) {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()

	if c.rdb == nil {
		return
	}
	iter := c.rdb.Scan(ctx, 0, c.prefix+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		log.Printf("[Cache] L2 scan failed: %v", err)
		return
	}
	if len(keys) > 0 {
		if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
			log.Printf("[Cache] L2 clear failed: %v", err)
		}
	}
}

// CleanExpired removes expired L1 entries (call periodically).
func (c *Tiered) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Stats returns hit and miss counters.
func (c *Tiered) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
