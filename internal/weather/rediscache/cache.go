// Package rediscache stores forecast series in Redis so API and worker
// processes share fetched forecasts.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pathpredict/pathpredict/internal/weather"
)

// DefaultKeyPrefix namespaces forecast keys.
const DefaultKeyPrefix = "pathpredict:forecast:"

// Commander is the subset of redis.Cmdable used by the cache.
type Commander interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Cache implements weather.SharedCache on top of Redis.
type Cache struct {
	rdb    Commander
	prefix string
}

// New returns a cache using rdb with the default key prefix.
func New(rdb Commander) *Cache {
	return &Cache{rdb: rdb, prefix: DefaultKeyPrefix}
}

// Dial parses a redis:// URL and returns a cache with its client.
// The caller closes the client.
func Dial(ctx context.Context, url string) (*Cache, *redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("pinging redis: %w", err)
	}

	return New(rdb), rdb, nil
}

// Get returns the cached series for key, or nil on a miss.
func (c *Cache) Get(ctx context.Context, key string) (*weather.Series, error) {
	data, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading forecast %s: %w", key, err)
	}

	var series weather.Series
	if err := json.Unmarshal(data, &series); err != nil {
		return nil, fmt.Errorf("decoding forecast %s: %w", key, err)
	}
	return &series, nil
}

// Set stores series under key for ttl.
func (c *Cache) Set(ctx context.Context, key string, series *weather.Series, ttl time.Duration) error {
	data, err := json.Marshal(series)
	if err != nil {
		return fmt.Errorf("encoding forecast %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("writing forecast %s: %w", key, err)
	}
	return nil
}
