package maps

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"smartdispatch/internal/types"
)

// GeocodeCache remembers resolved addresses between requests.
type GeocodeCache interface {
	Get(ctx context.Context, address string) (types.Point, bool, error)
	Set(ctx context.Context, address string, p types.Point) error
}

const geocodeKeyPrefix = "maps:geocode:"

// RedisGeocodeCache stores points as JSON under an md5 of the address.
type RedisGeocodeCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisGeocodeCache(rdb *redis.Client, ttl time.Duration) *RedisGeocodeCache {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisGeocodeCache{rdb: rdb, ttl: ttl}
}

func geocodeKey(address string) string {
	sum := md5.Sum([]byte(address))
	return geocodeKeyPrefix + hex.EncodeToString(sum[:])
}

func (c *RedisGeocodeCache) Get(ctx context.Context, address string) (types.Point, bool, error) {
	raw, err := c.rdb.Get(ctx, geocodeKey(address)).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.Point{}, false, nil
	}
	if err != nil {
		return types.Point{}, false, fmt.Errorf("geocode cache get: %w", err)
	}
	var p types.Point
	if err := json.Unmarshal(raw, &p); err != nil {
		return types.Point{}, false, fmt.Errorf("geocode cache decode: %w", err)
	}
	return p, true, nil
}

func (c *RedisGeocodeCache) Set(ctx context.Context, address string, p types.Point) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, geocodeKey(address), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("geocode cache set: %w", err)
	}
	return nil
}
