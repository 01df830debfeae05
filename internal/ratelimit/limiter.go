package ratelimit

import "context"

// RateLimiter controls delivery throughput per channel.
type RateLimiter interface {
	Wait(ctx context.Context, channel string) error
}
