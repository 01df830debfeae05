package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notify-daemon/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLimitPerSec int64 = 100
	defaultKeyPrefix         = "notify:ratelimit"
	window                   = time.Second
	// Window keys outlive their window so late INCRs from skewed clocks still expire.
	windowKeyTTL = 2 * window
	minWait      = time.Millisecond
)

// Counts one delivery against KEYS[1]; ARGV[1] is the limit, ARGV[2] the key TTL in ms.
var takeScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter caps deliveries per channel across all worker instances
// using fixed one-second windows keyed by channel.
type RedisRateLimiter struct {
	client      *goredis.Client
	limitPerSec int64
	keyPrefix   string
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewRedisRateLimiter(client *goredis.Client, limitPerSec int, keyPrefix string) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, int64(limitPerSec), keyPrefix, time.Now, sleepWithContext)
}

func newRedisRateLimiter(
	client *goredis.Client,
	limitPerSec int64,
	keyPrefix string,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limitPerSec <= 0 {
		limitPerSec = defaultLimitPerSec
	}
	keyPrefix = strings.TrimRight(strings.TrimSpace(keyPrefix), ":")
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisRateLimiter{
		client:      client,
		limitPerSec: limitPerSec,
		keyPrefix:   keyPrefix,
		now:         nowFn,
		sleep:       sleepFn,
	}, nil
}

// Wait blocks until channel has capacity. A denied caller sleeps until the
// current window rolls over instead of polling Redis.
func (r *RedisRateLimiter) Wait(ctx context.Context, channel string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		allowed, windowStart, err := r.take(ctx, channel)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		wait := windowStart.Add(window).Sub(r.now())
		if wait < minWait {
			wait = minWait
		}
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (r *RedisRateLimiter) take(ctx context.Context, channel string) (bool, time.Time, error) {
	if r == nil || r.client == nil {
		return false, time.Time{}, fmt.Errorf("rate limiter is not initialized")
	}

	normalizedChannel := strings.ToLower(strings.TrimSpace(channel))
	if normalizedChannel == "" {
		return false, time.Time{}, fmt.Errorf("channel is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	windowStart := r.now().UTC().Truncate(window)
	key := fmt.Sprintf("%s:%s:%d", r.keyPrefix, normalizedChannel, windowStart.Unix())

	result, err := takeScript.Run(ctx, r.client, []string{key}, r.limitPerSec, windowKeyTTL.Milliseconds()).Int()
	if err != nil {
		return false, windowStart, fmt.Errorf("failed to evaluate rate limit for %s: %w", normalizedChannel, err)
	}

	return result == 1, windowStart, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
