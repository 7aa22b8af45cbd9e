package dispatcher

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ProjectAccessCache resolves a caller's allowed-projects list, per spec.md
// §5's "Shared state": a 5-minute TTL cache with a stampede-prevention
// gate so concurrent cache misses for the same caller coalesce into one
// backend fetch.
type ProjectAccessCache interface {
	Get(ctx context.Context, callerID string, fetch func(ctx context.Context) ([]string, error)) ([]string, error)
}

type cacheEntry struct {
	projects []string
	expires  time.Time
}

// MemCache is an in-process ProjectAccessCache: a TTL'd map guarded by a
// singleflight.Group so N concurrent misses for the same caller ID issue
// exactly one fetch.
type MemCache struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry

	group singleflight.Group
}

const defaultProjectAccessTTL = 5 * time.Minute

func NewMemCache() *MemCache {
	return &MemCache{ttl: defaultProjectAccessTTL, entries: make(map[string]cacheEntry)}
}

func (c *MemCache) Get(ctx context.Context, callerID string, fetch func(ctx context.Context) ([]string, error)) ([]string, error) {
	if projects, ok := c.lookup(callerID); ok {
		return projects, nil
	}

	v, err, _ := c.group.Do(callerID, func() (any, error) {
		if projects, ok := c.lookup(callerID); ok {
			return projects, nil
		}
		projects, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.store(callerID, projects)
		return projects, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (c *MemCache) lookup(callerID string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[callerID]
	if !ok || time.Now().After(e.expires) {
		return nil, false
	}
	return e.projects, true
}

func (c *MemCache) store(callerID string, projects []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[callerID] = cacheEntry{projects: projects, expires: time.Now().Add(c.ttl)}
}

// RedisCache is a distributed ProjectAccessCache for multi-replica
// deployments of the HTTP boundary, satisfying the same interface as
// MemCache but backed by a shared Redis instance instead of a per-process
// map. The stampede gate is still per-process (a per-replica singleflight
// group); Redis only removes the "every replica re-fetches independently"
// cost, not the "N requests on one replica fetch concurrently" one.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	group  singleflight.Group
}

func NewRedisCache(client *redis.Client, keyPrefix string) *RedisCache {
	return &RedisCache{client: client, prefix: keyPrefix, ttl: defaultProjectAccessTTL}
}

func (c *RedisCache) Get(ctx context.Context, callerID string, fetch func(ctx context.Context) ([]string, error)) ([]string, error) {
	key := c.prefix + callerID

	if projects, ok := c.lookupRedis(ctx, key); ok {
		return projects, nil
	}

	v, err, _ := c.group.Do(callerID, func() (any, error) {
		if projects, ok := c.lookupRedis(ctx, key); ok {
			return projects, nil
		}
		projects, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(projects)
		if err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttl).Err()
		}
		return projects, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (c *RedisCache) lookupRedis(ctx context.Context, key string) ([]string, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var projects []string
	if err := json.Unmarshal(raw, &projects); err != nil {
		return nil, false
	}
	return projects, true
}
