package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type RedisOptions struct {
	Host     string
	Port     string
	Password string
	DB       int
	// Prefix namespaces every key, e.g. "santa:".
	Prefix string
}

type RedisBackend struct {
	client *redis.Client
	prefix string
}

func NewRedisBackend(ctx context.Context, opts RedisOptions) (*RedisBackend, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", opts.Host, opts.Port),
		Password: opts.Password,
		DB:       opts.DB,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisBackend{
		client: rdb,
		prefix: opts.Prefix,
	}, nil
}

func (r *RedisBackend) key(key string) string {
	return r.prefix + key
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (r *RedisBackend) Put(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, r.key(key), value, 0).Err()
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
