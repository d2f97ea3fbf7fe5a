package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKV adapts a Redis client to the RemoteKV interface.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV connects to the given Redis address. An empty password and db 0
// are the common deployment.
func NewRedisKV(addr, password string, db int) *RedisKV {
	return &RedisKV{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// Ping verifies connectivity, for startup checks.
func (r *RedisKV) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRemoteMiss
	}
	return raw, err
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisKV) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Close releases the underlying connection pool.
func (r *RedisKV) Close() error {
	return r.client.Close()
}
