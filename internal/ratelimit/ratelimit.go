// Package ratelimit enforces fixed-window quotas, such as issues reported per user per day.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one quota check.
type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int
	RetryAfter time.Duration
}

type Limiter interface {
	// Allow counts one hit for key and reports whether it fits in the current window.
	Allow(ctx context.Context, key string) (Decision, error)
}

// Redis keeps one counter per key that expires with the window.
type Redis struct {
	client redis.Cmdable
	prefix string
	limit  int
	window time.Duration
}

func NewRedis(client redis.Cmdable, prefix string, limit int, window time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, limit: limit, window: window}
}

func (l *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	k := l.prefix + key

	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit incr: %w", err)
	}
	// the window starts with the first hit
	if count == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("rate limit expire: %w", err)
		}
	}

	d := Decision{Allowed: count <= int64(l.limit), Count: count, Limit: l.limit}
	if !d.Allowed {
		ttl, err := l.client.TTL(ctx, k).Result()
		if err != nil {
			return Decision{}, fmt.Errorf("rate limit ttl: %w", err)
		}
		if ttl < 0 {
			// counter without expiry, e.g. a crash between INCR and EXPIRE
			if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
				return Decision{}, fmt.Errorf("rate limit expire: %w", err)
			}
			ttl = l.window
		}
		d.RetryAfter = ttl
	}
	return d, nil
}

type window struct {
	count   int64
	resetAt time.Time
}

// Memory is a process-local Limiter for single-instance deployments and tests.
type Memory struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	entries map[string]*window
}

func NewMemory(limit int, win time.Duration) *Memory {
	return &Memory{limit: limit, window: win, now: time.Now, entries: map[string]*window{}}
}

// WithClock replaces the time source.
func (l *Memory) WithClock(now func() time.Time) *Memory {
	l.now = now
	return l
}

func (l *Memory) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.entries[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.window)}
		l.entries[key] = w
		l.sweep(now)
	}
	w.count++

	d := Decision{Allowed: w.count <= int64(l.limit), Count: w.count, Limit: l.limit}
	if !d.Allowed {
		d.RetryAfter = w.resetAt.Sub(now)
	}
	return d, nil
}

// sweep drops expired windows. Callers hold mu.
func (l *Memory) sweep(now time.Time) {
	for k, w := range l.entries {
		if !now.Before(w.resetAt) {
			delete(l.entries, k)
		}
	}
}
