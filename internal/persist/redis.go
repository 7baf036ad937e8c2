package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps gzip compressed blobs without expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

func NewRedisStore(ctx context.Context, addr, password string, db int, logger *slog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: "transitrisk:",
		logger: logger.With("component", "redis_store"),
	}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) key(k string) string {
	return r.prefix + k
}

func (r *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	data, err := gzipDecompress(val)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	r.logger.Debug("blob loaded", "key", key, "compressed_size", len(val), "size_bytes", len(data), "duration_ms", time.Since(start).Milliseconds())
	return data, nil
}

func (r *RedisStore) Save(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	compressed, err := gzipCompress(data)
	if err != nil {
		return fmt.Errorf("compress: %w", err)
	}
	if err := r.client.Set(ctx, r.key(key), compressed, 0).Err(); err != nil {
		return err
	}
	r.logger.Debug("blob saved", "key", key, "original_size", len(data), "compressed_size", len(compressed), "duration_ms", time.Since(start).Milliseconds())
	return nil
}
