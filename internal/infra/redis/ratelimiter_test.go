package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func TestRedisRateLimiterTakeWindow(t *testing.T) {
	t.Parallel()

	rdb, _ := newTestRedisClient(t)

	now := time.Unix(1_700_000_000, 0)
	limiter, err := newRedisRateLimiter(rdb, 2, "", func() time.Time { return now }, sleepWithContext)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	for i, want := range []bool{true, true, false} {
		allowed, _, err := limiter.take(context.Background(), "push")
		if err != nil {
			t.Fatalf("take() call %d error = %v", i+1, err)
		}
		if allowed != want {
			t.Fatalf("take() call %d = %v, want %v", i+1, allowed, want)
		}
	}

	now = now.Add(time.Second)
	allowed, windowStart, err := limiter.take(context.Background(), "push")
	if err != nil {
		t.Fatalf("take() error = %v", err)
	}
	if !windowStart.Equal(now) {
		t.Fatalf("windowStart = %v, want %v", windowStart, now)
	}
	if !allowed {
		t.Fatal("new second window should allow call")
	}
}

func TestRedisRateLimiterChannelsAreIndependent(t *testing.T) {
	t.Parallel()

	rdb, mr := newTestRedisClient(t)

	now := time.Unix(1_700_000_100, 0)
	limiter, err := newRedisRateLimiter(rdb, 1, "worker-test:", func() time.Time { return now }, sleepWithContext)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	for _, channel := range []string{"push", "EMAIL"} {
		allowed, _, err := limiter.take(context.Background(), channel)
		if err != nil {
			t.Fatalf("take(%s) error = %v", channel, err)
		}
		if !allowed {
			t.Fatalf("%s should be allowed on first request", channel)
		}
	}

	allowed, _, err := limiter.take(context.Background(), "push")
	if err != nil {
		t.Fatalf("take(push) error = %v", err)
	}
	if allowed {
		t.Fatal("push second request should be rejected")
	}

	if !mr.Exists("worker-test:email:1700000100") {
		t.Fatalf("expected window key under custom prefix, keys = %v", mr.Keys())
	}
}

func TestRedisRateLimiterWaitSleepsUntilNextWindow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		offset    time.Duration
		wantSleep time.Duration
	}{
		{name: "window start", offset: 0, wantSleep: time.Second},
		{name: "mid window", offset: 250 * time.Millisecond, wantSleep: 750 * time.Millisecond},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rdb, _ := newTestRedisClient(t)

			now := time.Unix(1_700_000_200, 0).Add(tt.offset)
			var slept []time.Duration
			limiter, err := newRedisRateLimiter(
				rdb,
				1,
				"",
				func() time.Time { return now },
				func(ctx context.Context, d time.Duration) error {
					slept = append(slept, d)
					now = now.Add(d)
					return nil
				},
			)
			if err != nil {
				t.Fatalf("newRedisRateLimiter() error = %v", err)
			}

			if err := limiter.Wait(context.Background(), "email"); err != nil {
				t.Fatalf("first Wait() error = %v", err)
			}
			if err := limiter.Wait(context.Background(), "email"); err != nil {
				t.Fatalf("second Wait() error = %v", err)
			}

			if len(slept) != 1 || slept[0] != tt.wantSleep {
				t.Fatalf("slept = %v, want [%v]", slept, tt.wantSleep)
			}
		})
	}
}

func TestRedisRateLimiterWindowKeyExpires(t *testing.T) {
	t.Parallel()

	rdb, mr := newTestRedisClient(t)

	now := time.Unix(1_700_000_400, 0)
	limiter, err := newRedisRateLimiter(rdb, 5, "", func() time.Time { return now }, sleepWithContext)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	if err := limiter.Wait(context.Background(), "push"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	key := "notify:ratelimit:push:1700000400"
	if ttl := mr.TTL(key); ttl <= 0 || ttl > windowKeyTTL {
		t.Fatalf("ttl(%s) = %v, want within (0, %v]", key, ttl, windowKeyTTL)
	}

	mr.FastForward(windowKeyTTL)
	if mr.Exists(key) {
		t.Fatalf("window key %s should have expired", key)
	}
}

func TestRedisRateLimiterWaitContextDeadline(t *testing.T) {
	t.Parallel()

	rdb, _ := newTestRedisClient(t)

	now := time.Unix(1_700_000_300, 0)
	limiter, err := newRedisRateLimiter(rdb, 1, "", func() time.Time { return now }, sleepWithContext)
	if err != nil {
		t.Fatalf("newRedisRateLimiter() error = %v", err)
	}

	if err := limiter.Wait(context.Background(), "push"); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	err = limiter.Wait(ctx, "push")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestNewRedisRateLimiterRequiresClient(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisRateLimiter(nil, 10, ""); err == nil {
		t.Fatal("expected error for nil client")
	}
}

func newTestRedisClient(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	return rdb, mr
}
