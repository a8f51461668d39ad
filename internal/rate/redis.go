package rate

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisWindow is a fixed-window limiter whose counters live in Redis.
type RedisWindow struct {
	redis  redis.UniversalClient
	config Config
	prefix string
}

// NewRedisWindow returns a limiter storing counters under prefix+key.
func NewRedisWindow(client redis.UniversalClient, prefix string, cfg Config) (*RedisWindow, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RedisWindow{redis: client, config: cfg, prefix: prefix}, nil
}

// Allow increments the counter for key and rejects once it exceeds Max.
func (l *RedisWindow) Allow(ctx context.Context, key string) error {
	count, err := l.incrementWithTTL(ctx, l.prefix+key)
	if err != nil {
		return err
	}
	if count > int64(l.config.Max) {
		return ErrRateLimited
	}
	return nil
}

// Reset deletes the counter for key.
func (l *RedisWindow) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *RedisWindow) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
