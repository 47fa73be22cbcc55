package antispam

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one driver's ledger in Redis:
//
//	dispatch:{driver}:pushed:{fp}   unix ms, expires with the cooldown
//	dispatch:{driver}:pending       hash fp -> unix ms
//	dispatch:{driver}:abandoned     set of fp
//
// With a positive retention the pending hash and the abandoned set expire
// once the driver's ledger has not been written for that long; every write
// pushes the deadline out again. Zero retention keeps them forever.
type RedisStore struct {
	rdb       *redis.Client
	prefix    string
	retention time.Duration
}

func NewRedisStore(rdb *redis.Client, driverID string, retention time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "dispatch:" + driverID + ":", retention: retention}
}

func (s *RedisStore) pushedKey(fp string) string { return s.prefix + "pushed:" + fp }
func (s *RedisStore) pendingKey() string         { return s.prefix + "pending" }
func (s *RedisStore) abandonedKey() string       { return s.prefix + "abandoned" }

func (s *RedisStore) LastPushed(ctx context.Context, fp string) (time.Time, bool, error) {
	v, err := s.rdb.Get(ctx, s.pushedKey(fp)).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(v), true, nil
}

func (s *RedisStore) IsAbandoned(ctx context.Context, fp string) (bool, error) {
	return s.rdb.SIsMember(ctx, s.abandonedKey(), fp).Result()
}

func (s *RedisStore) Pending(ctx context.Context) (map[string]time.Time, error) {
	raw, err := s.rdb.HGetAll(ctx, s.pendingKey()).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(raw))
	for fp, v := range raw {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("pending %s: bad timestamp %q", fp, v)
		}
		out[fp] = time.UnixMilli(ms)
	}
	return out, nil
}

func (s *RedisStore) Record(ctx context.Context, fp string, at time.Time, cooldown time.Duration) error {
	ms := at.UnixMilli()
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.pushedKey(fp), ms, cooldown)
		pipe.HSet(ctx, s.pendingKey(), fp, ms)
		s.expire(ctx, pipe, s.pendingKey())
		return nil
	})
	return err
}

func (s *RedisStore) ClearPending(ctx context.Context, fp string) error {
	return s.rdb.HDel(ctx, s.pendingKey(), fp).Err()
}

func (s *RedisStore) Abandon(ctx context.Context, fp string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, s.abandonedKey(), fp)
		pipe.HDel(ctx, s.pendingKey(), fp)
		s.expire(ctx, pipe, s.abandonedKey(), s.pendingKey())
		return nil
	})
	return err
}

func (s *RedisStore) expire(ctx context.Context, pipe redis.Pipeliner, keys ...string) {
	if s.retention <= 0 {
		return
	}
	for _, k := range keys {
		pipe.Expire(ctx, k, s.retention)
	}
}
