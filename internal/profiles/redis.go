package profiles

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "persona:profile:name:"

// RedisBackend shares cached names across service replicas.
type RedisBackend struct {
	rdb *goredis.Client
}

// NewRedisBackend connects to addr and verifies it with a PING.
func NewRedisBackend(ctx context.Context, addr string) (*RedisBackend, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisBackend{rdb: rdb}, nil
}

func (r *RedisBackend) GetMany(ctx context.Context, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyPrefix + id
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(ids))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[ids[i]] = s
		}
	}
	return out, nil
}

func (r *RedisBackend) SetMany(ctx context.Context, names map[string]string, ttl time.Duration) error {
	if len(names) == 0 {
		return nil
	}
	pipe := r.rdb.Pipeline()
	for id, name := range names {
		pipe.Set(ctx, keyPrefix+id, name, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// HealthPing reports whether redis answers PING.
func (r *RedisBackend) HealthPing(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *RedisBackend) Close() error { return r.rdb.Close() }
