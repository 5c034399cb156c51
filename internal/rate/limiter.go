package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning parameters.
type Config struct {
	Prefix      string
	MaxSwitches int
	Window      time.Duration
}

// Limiter bounds how often one user may mint tokens through a workspace
// switch, using Redis counters shared by every broker replica.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// AllowSwitch counts one switch attempt for userUID and returns
// ErrRateLimited once the window's budget is spent.
func (l *Limiter) AllowSwitch(ctx context.Context, userUID string) error {
	if l == nil || l.config.MaxSwitches <= 0 {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, l.switchKey(userUID), l.config.Window)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxSwitches) {
		return ErrRateLimited
	}
	return nil
}

// SwitchAttempts returns the attempts counted in the current window.
func (l *Limiter) SwitchAttempts(ctx context.Context, userUID string) (int, error) {
	count, err := l.redis.Get(ctx, l.switchKey(userUID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) switchKey(userUID string) string {
	return l.config.Prefix + ":sw:" + userUID
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	// Fixed window: SET NX EX opens the window and INCR keeps its TTL. Both run
	// in one MULTI so a counter is never created without an expiry.
	pipe := l.redis.TxPipeline()
	pipe.SetNX(ctx, key, 0, ttl)
	incr := pipe.Incr(ctx, key)
	remaining := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// TTL -1: the counter has no expiry.
	if remaining.Val() == -1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return incr.Val(), nil
}
