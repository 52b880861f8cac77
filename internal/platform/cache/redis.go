package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/agentverse/gatekeeper/internal/metrics"
)

// scanBatch bounds how many keys a single SCAN iteration may return so that
// pattern invalidation never blocks the backend on a full keyspace walk.
const scanBatch = 100

// Redis implements Cache over go-redis. All operations carry a bounded
// timeout and absorb backend errors.
type Redis struct {
	rc      *redis.Client
	timeout time.Duration
	log     zerolog.Logger
}

// NewRedis wraps an existing client. A zero timeout defaults to 500ms.
func NewRedis(rc *redis.Client, timeout time.Duration, log zerolog.Logger) *Redis {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &Redis{rc: rc, timeout: timeout, log: log}
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	v, err := r.rc.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("cache read failed, treating as miss")
		metrics.CacheError("get")
		return "", false
	}
	return v, true
}

func (r *Redis) Set(ctx context.Context, key, value string, ttlSeconds int) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.rc.Set(ctx, key, value, time.Duration(ttlSeconds)*time.Second).Err(); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		metrics.CacheError("set")
	}
}

func (r *Redis) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.rc.Del(ctx, keys...).Err(); err != nil {
		r.log.Warn().Err(err).Int("keys", len(keys)).Msg("cache delete failed")
		metrics.CacheError("delete")
	}
}

// DeletePattern removes matching keys via incremental SCAN batches.
func (r *Redis) DeletePattern(ctx context.Context, pattern string) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	var cursor uint64
	for {
		keys, next, err := r.rc.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			r.log.Warn().Err(err).Str("pattern", pattern).Msg("cache scan failed")
			metrics.CacheError("delete_pattern")
			return
		}
		if len(keys) > 0 {
			if err := r.rc.Del(ctx, keys...).Err(); err != nil {
				r.log.Warn().Err(err).Str("pattern", pattern).Msg("cache delete failed")
				metrics.CacheError("delete_pattern")
				return
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}
