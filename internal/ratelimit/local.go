package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

const defaultLocalLimitPerSec = 100

var _ RateLimiter = (*LocalRateLimiter)(nil)

// LocalRateLimiter keeps one token bucket per channel inside this process.
// It is used when no Redis is configured, so the ceiling applies per worker instance.
type LocalRateLimiter struct {
	limitPerSec int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewLocalRateLimiter(limitPerSec int) *LocalRateLimiter {
	if limitPerSec <= 0 {
		limitPerSec = defaultLocalLimitPerSec
	}
	return &LocalRateLimiter{
		limitPerSec: limitPerSec,
		limiters:    make(map[string]*rate.Limiter),
	}
}

func (l *LocalRateLimiter) Wait(ctx context.Context, channel string) error {
	limiter, err := l.limiterFor(channel)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return limiter.Wait(ctx)
}

func (l *LocalRateLimiter) limiterFor(channel string) (*rate.Limiter, error) {
	if l == nil {
		return nil, fmt.Errorf("rate limiter is not initialized")
	}

	key := strings.ToLower(strings.TrimSpace(channel))
	if key == "" {
		return nil, fmt.Errorf("channel is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(l.limitPerSec), l.limitPerSec)
		l.limiters[key] = limiter
	}
	return limiter, nil
}
