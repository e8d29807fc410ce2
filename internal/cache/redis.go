// Package cache keeps ingested record sets in Redis keyed by source fingerprint.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/viniciushammett/go-log-anomaly-scan/internal/ingest"
)

const (
	// RecordsKeyPrefix prefixes every cached record set.
	RecordsKeyPrefix = "lad:records:"
	// DefaultTTL is used when the caller passes zero.
	DefaultTTL = 24 * time.Hour
)

// RedisCache stores ingest results as one JSON value per fingerprint.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewWithClient(client, ttl), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func key(fp string) string { return RecordsKeyPrefix + fp }

func (r *RedisCache) GetRecords(ctx context.Context, fp string) (*ingest.Result, bool, error) {
	data, err := r.client.Get(ctx, key(fp)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get records: %w", err)
	}
	var res ingest.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal records: %w", err)
	}
	return &res, true, nil
}

func (r *RedisCache) PutRecords(ctx context.Context, fp string, res *ingest.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}
	if err := r.client.Set(ctx, key(fp), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache records: %w", err)
	}
	return nil
}

func (r *RedisCache) Close() error { return r.client.Close() }
