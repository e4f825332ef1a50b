package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"attest/pkg/platform/sentinel"
)

// RunLimiter caps how many runs can start per time window, guarding against
// runaway manual triggering.
type RunLimiter interface {
	Allow(ctx context.Context) (bool, error)
}

// MemoryRunLimiter is a sliding-window limiter for single-process
// deployments and tests.
type MemoryRunLimiter struct {
	mu         sync.Mutex
	timestamps []time.Time
	limit      int
	window     time.Duration
}

func NewMemoryRunLimiter(limit int, window time.Duration) *MemoryRunLimiter {
	return &MemoryRunLimiter{limit: limit, window: window}
}

func (l *MemoryRunLimiter) Allow(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)
	kept := l.timestamps[:0]
	for _, ts := range l.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.timestamps = kept

	if len(l.timestamps) >= l.limit {
		return false, nil
	}
	l.timestamps = append(l.timestamps, now)
	return true, nil
}

// RedisRunLimiter shares the window across processes using a counter keyed
// by the current window bucket.
type RedisRunLimiter struct {
	client *redis.Client
	key    string
	limit  int
	window time.Duration
}

func NewRedisRunLimiter(client *redis.Client, key string, limit int, window time.Duration) *RedisRunLimiter {
	return &RedisRunLimiter{client: client, key: key, limit: limit, window: window}
}

func (l *RedisRunLimiter) Allow(ctx context.Context) (bool, error) {
	bucket := time.Now().Unix() / int64(l.window.Seconds())
	key := fmt.Sprintf("%s:%d", l.key, bucket)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: rate limit incr: %w", sentinel.ErrTransient, err)
	}
	if count == 1 {
		// First hit in the bucket sets the expiry; failure here only means
		// the key lingers one extra window.
		_ = l.client.Expire(ctx, key, l.window).Err()
	}
	return count <= int64(l.limit), nil
}
