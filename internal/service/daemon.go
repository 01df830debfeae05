package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

const (
	defaultPollMinDelay = 1 * time.Second
	defaultPollMaxDelay = 7 * time.Second
)

// CycleRunner performs one unit of polling work.
type CycleRunner interface {
	ProcessBatch(ctx context.Context) (CycleResult, error)
}

// Daemon runs cycles forever with a jittered pause between them.
// Cycle failures are logged and never stop the loop.
type Daemon struct {
	runner     CycleRunner
	minDelay   time.Duration
	maxDelay   time.Duration
	logger     *zap.Logger
	randInt63n func(n int64) int64
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewDaemon(runner CycleRunner, minDelay, maxDelay time.Duration, logger *zap.Logger) (*Daemon, error) {
	if runner == nil {
		return nil, fmt.Errorf("cycle runner is required")
	}
	if minDelay <= 0 {
		minDelay = defaultPollMinDelay
	}
	if maxDelay <= 0 {
		maxDelay = defaultPollMaxDelay
	}
	if maxDelay < minDelay {
		return nil, fmt.Errorf("max delay %s is less than min delay %s", maxDelay, minDelay)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Daemon{
		runner:     runner,
		minDelay:   minDelay,
		maxDelay:   maxDelay,
		logger:     logger,
		randInt63n: rand.Int63n,
		sleep:      sleepContext,
	}, nil
}

// Run blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	d.logger.Info("daemon started",
		zap.Duration("minDelay", d.minDelay),
		zap.Duration("maxDelay", d.maxDelay),
	)

	for {
		if ctx.Err() != nil {
			d.logger.Info("daemon stopped")
			return nil
		}

		d.runCycle(ctx)

		if err := d.sleep(ctx, d.nextDelay()); err != nil {
			d.logger.Info("daemon stopped")
			return nil
		}
	}
}

func (d *Daemon) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("error in main loop", zap.Any("panic", r))
		}
	}()

	result, err := d.runner.ProcessBatch(ctx)
	if err != nil {
		d.logger.Error("error in main loop",
			zap.String("cycleId", result.CycleID),
			zap.Error(err),
		)
	}
}

// nextDelay is uniform over [minDelay, maxDelay].
func (d *Daemon) nextDelay() time.Duration {
	span := int64(d.maxDelay - d.minDelay)
	if span <= 0 {
		return d.minDelay
	}
	return d.minDelay + time.Duration(d.randInt63n(span+1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
