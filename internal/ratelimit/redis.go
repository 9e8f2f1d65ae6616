package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares a per-second request quota between processes
// (API и воркер ходят в Ship24 с одним ключом).
type RedisLimiter struct {
	c         *redis.Client
	prefix    string
	perSecond int64

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRedisLimiter(addr, prefix string, requestsPerSecond int) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:ship24"
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = DefaultRequestsPerSecond
	}
	return &RedisLimiter{
		c:         redis.NewClient(&redis.Options{Addr: addr}),
		prefix:    prefix,
		perSecond: int64(requestsPerSecond),
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Allow делает INCR по ключу и ставит TTL, если ключ создаётся впервые.
// Возвращает (allowed, currentCount).
func (rl *RedisLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	pipe := rl.c.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit")
	}
	n := incr.Val()
	return n <= limit, n, nil
}

// Wait blocks until the current second still has quota. A Redis failure lets the
// request through: the local Limiter keeps pacing this process.
func (rl *RedisLimiter) Wait(ctx context.Context) error {
	for {
		now := rl.now()
		key := fmt.Sprintf("%s:%d", rl.prefix, now.Unix())
		allowed, n, err := rl.Allow(ctx, key, rl.perSecond, 2*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("shared rate limiter unavailable", "error", err.Error())
			return nil
		}
		if allowed {
			return nil
		}
		slog.Debug("shared rate limit reached", "key", key, "count", n)
		next := now.Truncate(time.Second).Add(time.Second)
		if err := rl.sleep(ctx, next.Sub(now)); err != nil {
			return err
		}
	}
}

func (rl *RedisLimiter) Close() error {
	return rl.c.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
