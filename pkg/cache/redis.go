package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"smtrack.dev/telemetry-hub/pkg/metrics"
)

// Redis is a Store backed by a Redis server.
type Redis struct {
	client  *redis.Client
	logger  *slog.Logger
	metrics *metrics.CacheMetrics // Optional metrics
}

// RedisConfig holds the configuration for the Redis cache.
type RedisConfig struct {
	Logger   *slog.Logger
	Addr     string
	Password string
	DB       int
}

// NewRedis creates a Redis-backed cache store.
func NewRedis(cfg *RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, errors.New("redis config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Redis{
		client: client,
		logger: cfg.Logger,
	}, nil
}

// SetMetrics sets the metrics collector for this store.
func (r *Redis) SetMetrics(m *metrics.CacheMetrics) {
	r.metrics = m
}

// Ping verifies connectivity to the Redis server.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Get returns the cached value for key. Both an absent key and a backend
// error surface as ErrMiss; the latter is logged so outages stay visible.
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			if r.metrics != nil {
				r.metrics.Misses.Inc()
			}
			return "", ErrMiss
		}

		r.logger.Warn("cache get failed, treating as miss",
			"key", key,
			"error", err,
		)
		if r.metrics != nil {
			r.metrics.Errors.WithLabelValues("get").Inc()
		}
		return "", ErrMiss
	}

	if r.metrics != nil {
		r.metrics.Hits.Inc()
	}
	return val, nil
}

// Set stores value under key with the given TTL. Failures are logged and
// swallowed; a value that never lands in the cache only costs the next read
// a trip to the primary store.
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.logger.Warn("cache set failed",
			"key", key,
			"error", err,
		)
		if r.metrics != nil {
			r.metrics.Errors.WithLabelValues("set").Inc()
		}
	}
	return nil
}

// Invalidate removes every key starting with prefix using an incremental
// scan so large keyspaces do not block the server.
func (r *Redis) Invalidate(ctx context.Context, prefix string) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, prefix+"*", 200).Result()
		if err != nil {
			r.logger.Warn("cache invalidation scan failed",
				"prefix", prefix,
				"error", err,
			)
			if r.metrics != nil {
				r.metrics.Errors.WithLabelValues("invalidate").Inc()
			}
			return nil
		}

		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				r.logger.Warn("cache invalidation delete failed",
					"prefix", prefix,
					"error", err,
				)
				if r.metrics != nil {
					r.metrics.Errors.WithLabelValues("invalidate").Inc()
				}
				return nil
			}
			if r.metrics != nil {
				r.metrics.Invalidations.Add(float64(len(keys)))
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Close closes the underlying Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Ensure Redis implements Store.
var _ Store = (*Redis)(nil)
