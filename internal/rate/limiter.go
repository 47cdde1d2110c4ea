package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result reports the outcome of one fixed-window check. Attempts includes
// the attempt being checked; ResetTime is the end of the current window.
type Result struct {
	Allowed   bool
	Limit     int
	Attempts  int
	ResetTime time.Time
}

// Limiter counts attempts per (identifier, action) pair in Redis using
// fixed windows. The counter key is created by the first attempt and holds
// a TTL equal to the window; further attempts increment without renewing
// the TTL, so the window resets entirely at a fixed boundary. Expired
// counters are removed by Redis itself, which stands in for lazy cleanup.
//
// Known characteristic: a fixed window permits up to 2x the budget across a
// window boundary. That matches the intended observable behavior; do not
// swap in sliding-window semantics here.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a [Limiter] backed by the given Redis client. prefix
// namespaces the counter keys.
func New(redisClient redis.UniversalClient, prefix string) *Limiter {
	if prefix == "" {
		prefix = "mu:rl"
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (l *Limiter) key(identifier, action string) string {
	return l.prefix + ":" + action + ":" + identifier
}

// Check records one attempt and reports whether it is within budget. The
// increment-or-create is a single Redis INCR, so two concurrent first
// attempts cannot both observe an empty window (no lost-update race).
func (l *Limiter) Check(ctx context.Context, identifier, action string, maxAttempts int, window time.Duration) (Result, error) {
	key := l.key(identifier, action)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	// TTL is set only for the first attempt in the window. Later attempts
	// must not slide the boundary.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, window).Err(); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	resetTime, err := l.resetTime(ctx, key, window)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Allowed:   count <= int64(maxAttempts),
		Limit:     maxAttempts,
		Attempts:  int(count),
		ResetTime: resetTime,
	}, nil
}

// Attempts returns the current counter without recording an attempt.
// Missing counters read as zero.
func (l *Limiter) Attempts(ctx context.Context, identifier, action string) (int, error) {
	count, err := l.redis.Get(ctx, l.key(identifier, action)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// Reset hard-deletes the counter. Called after a successful sensitive
// operation to forgive prior failed attempts in the window.
func (l *Limiter) Reset(ctx context.Context, identifier, action string) error {
	if err := l.redis.Del(ctx, l.key(identifier, action)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (l *Limiter) resetTime(ctx context.Context, key string, window time.Duration) (time.Time, error) {
	ttl, err := l.redis.PTTL(ctx, key).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if ttl <= 0 {
		// Counter exists without a TTL: a prior Expire was lost. Restore
		// the window rather than leaving an immortal counter behind.
		if err := l.redis.Expire(ctx, key, window).Err(); err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		ttl = window
	}
	return time.Now().Add(ttl), nil
}
