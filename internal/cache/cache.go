// Package cache provides the optional Redis-backed terminal-status
// cache used by internal/importstatus; when no Redis address is
// configured it falls back to an in-process map with identical
// semantics.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/catherinevee/vtagger/internal/logging"
)

var log = logging.Component("cache")

const keyPrefix = "vtagger:import-status:"

// TerminalTTL bounds how long a cached terminal record is kept in
// Redis; terminal statuses never change, so this is generous headroom
// against unbounded growth rather than a correctness requirement.
const TerminalTTL = 30 * 24 * time.Hour

// TerminalCache stores and retrieves terminal import-status records by
// upload id, as opaque JSON blobs.
type TerminalCache interface {
	Get(ctx context.Context, uploadID string) (json.RawMessage, bool, error)
	Set(ctx context.Context, uploadID string, value json.RawMessage) error
}

// NewRedis returns a TerminalCache backed by Redis at addr.
func NewRedis(addr string) TerminalCache {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &redisCache{client: client}
}

// NewMemory returns a TerminalCache backed by an in-process map, used
// when no Redis address is configured.
func NewMemory() TerminalCache {
	return &memoryCache{entries: make(map[string]json.RawMessage)}
}

type redisCache struct {
	client *redis.Client
}

func (c *redisCache) Get(ctx context.Context, uploadID string) (json.RawMessage, bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+uploadID).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		log.Warn().Err(err).Msg("redis get failed, treating as cache miss")
		return nil, false, nil
	}
	return val, true, nil
}

func (c *redisCache) Set(ctx context.Context, uploadID string, value json.RawMessage) error {
	return c.client.Set(ctx, keyPrefix+uploadID, []byte(value), TerminalTTL).Err()
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]json.RawMessage
}

func (c *memoryCache) Get(ctx context.Context, uploadID string) (json.RawMessage, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[uploadID]
	return v, ok, nil
}

func (c *memoryCache) Set(ctx context.Context, uploadID string, value json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[uploadID] = value
	return nil
}
