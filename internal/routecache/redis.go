// Package routecache stores normalized routes in Redis keyed by mode and
// rounded endpoints.
package routecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shaunagostinho/navcore/internal/geo"
	"github.com/shaunagostinho/navcore/internal/route"
)

const (
	keyPrefix  = "navcore:route:"
	DefaultTTL = 10 * time.Minute
)

// RedisCache is a Redis-backed cache for normalized routes.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisCache wraps an existing client. A non-positive ttl uses DefaultTTL.
func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr string, ttl time.Duration) (*RedisCache, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("route cache: ping %s: %w", addr, err)
	}
	return NewRedisCache(client, ttl), client, nil
}

// Key builds the cache key. Endpoints are rounded to 5 decimals (about 1 m).
func Key(mode route.Mode, origin, destination geo.Coordinate) string {
	return keyPrefix + string(mode) + ":" + round5(origin.Lat) + "," + round5(origin.Lng) +
		":" + round5(destination.Lat) + "," + round5(destination.Lng)
}

func round5(v float64) string { return strconv.FormatFloat(v, 'f', 5, 64) }

// Get returns the cached route. ok is false on a miss.
func (c *RedisCache) Get(ctx context.Context, mode route.Mode, origin, destination geo.Coordinate) (_ *route.NormalizedRoute, ok bool, err error) {
	b, err := c.client.Get(ctx, Key(mode, origin, destination)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get route cache: %w", err)
	}

	var r route.NormalizedRoute
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, false, fmt.Errorf("get route cache: decode: %w", err)
	}
	return &r, true, nil
}

// Put stores r. Estimated routes are not cached.
func (c *RedisCache) Put(ctx context.Context, origin, destination geo.Coordinate, r *route.NormalizedRoute) error {
	if r == nil || r.Estimated {
		return nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("put route cache: encode: %w", err)
	}
	if err := c.client.Set(ctx, Key(r.Mode, origin, destination), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("put route cache: %w", err)
	}
	return nil
}
