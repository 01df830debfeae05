package service

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeCycleRunner struct {
	processFn func(ctx context.Context) (CycleResult, error)
}

func (f *fakeCycleRunner) ProcessBatch(ctx context.Context) (CycleResult, error) {
	return f.processFn(ctx)
}

func TestDaemonRunSurvivesCycleFailures(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cycles atomic.Int32
	runner := &fakeCycleRunner{processFn: func(ctx context.Context) (CycleResult, error) {
		switch cycles.Add(1) {
		case 1:
			return CycleResult{}, errors.New("database unavailable")
		case 2:
			panic("unexpected failure")
		case 3:
			return CycleResult{Claimed: 1, Notified: 1}, nil
		default:
			cancel()
			return CycleResult{}, nil
		}
	}}

	daemon, err := NewDaemon(runner, time.Second, 7*time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDaemon() error = %v", err)
	}

	var slept []time.Duration
	daemon.randInt63n = func(n int64) int64 { return n / 2 }
	daemon.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}

	if err := daemon.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := cycles.Load(); got != 4 {
		t.Fatalf("cycles = %d, want 4", got)
	}
	if len(slept) != 4 {
		t.Fatalf("sleeps = %d, want 4", len(slept))
	}
	for _, d := range slept[:3] {
		if d != 4*time.Second {
			t.Fatalf("sleep = %s, want 4s", d)
		}
	}
}

func TestDaemonRunStopsWhenContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &fakeCycleRunner{processFn: func(ctx context.Context) (CycleResult, error) {
		t.Fatal("no cycle should run after cancellation")
		return CycleResult{}, nil
	}}
	daemon, err := NewDaemon(runner, time.Millisecond, time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewDaemon() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- daemon.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}
}

func TestDaemonNextDelayStaysInRange(t *testing.T) {
	t.Parallel()

	daemon, err := NewDaemon(&fakeCycleRunner{}, time.Second, 7*time.Second, nil)
	if err != nil {
		t.Fatalf("NewDaemon() error = %v", err)
	}

	daemon.randInt63n = func(n int64) int64 { return 0 }
	if got := daemon.nextDelay(); got != time.Second {
		t.Fatalf("lowest delay = %s, want 1s", got)
	}
	daemon.randInt63n = func(n int64) int64 { return n - 1 }
	if got := daemon.nextDelay(); got != 7*time.Second {
		t.Fatalf("highest delay = %s, want 7s", got)
	}

	daemon.randInt63n = rand.New(rand.NewSource(1)).Int63n
	for i := 0; i < 1000; i++ {
		got := daemon.nextDelay()
		if got < time.Second || got > 7*time.Second {
			t.Fatalf("delay = %s, want within [1s, 7s]", got)
		}
	}
}

func TestDaemonNextDelayFixedWhenBoundsEqual(t *testing.T) {
	t.Parallel()

	daemon, err := NewDaemon(&fakeCycleRunner{}, 3*time.Second, 3*time.Second, nil)
	if err != nil {
		t.Fatalf("NewDaemon() error = %v", err)
	}
	daemon.randInt63n = func(n int64) int64 {
		t.Fatal("rand must not be used for a zero span")
		return 0
	}
	if got := daemon.nextDelay(); got != 3*time.Second {
		t.Fatalf("delay = %s, want 3s", got)
	}
}

func TestNewDaemonValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewDaemon(nil, time.Second, time.Second, nil); err == nil {
		t.Fatal("expected error for nil runner")
	}
	if _, err := NewDaemon(&fakeCycleRunner{}, 5*time.Second, time.Second, nil); err == nil {
		t.Fatal("expected error when max delay is below min delay")
	}

	d, err := NewDaemon(&fakeCycleRunner{}, 0, 0, nil)
	if err != nil {
		t.Fatalf("NewDaemon() error = %v", err)
	}
	if d.minDelay != defaultPollMinDelay || d.maxDelay != defaultPollMaxDelay {
		t.Fatalf("delays = [%s, %s], want defaults", d.minDelay, d.maxDelay)
	}
}

func TestSleepContext(t *testing.T) {
	t.Parallel()

	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("sleepContext() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("sleepContext() error = %v, want context.Canceled", err)
	}
}
