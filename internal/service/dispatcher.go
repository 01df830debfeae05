package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notify-daemon/internal/channel"
	"github.com/kursadbilgin/notify-daemon/internal/domain"
	"github.com/kursadbilgin/notify-daemon/internal/observability"
	"github.com/kursadbilgin/notify-daemon/internal/queue"
	"github.com/kursadbilgin/notify-daemon/internal/ratelimit"
	"github.com/kursadbilgin/notify-daemon/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultDeliveryTimeout = 10 * time.Second
	publishTimeout         = 5 * time.Second
)

// errUnexpectedDispatch marks failures that are not a clean channel error.
var errUnexpectedDispatch = errors.New("unexpected dispatch error")

// Channels holds the transports every claimed client is notified on.
type Channels struct {
	Push  channel.Channel
	Email channel.Channel
}

// Dispatcher delivers one claimed client over every channel and records the outcome.
type Dispatcher struct {
	clients         repository.ClientRepository
	push            channel.Channel
	email           channel.Channel
	publisher       queue.OutcomePublisher
	limiter         ratelimit.RateLimiter
	procName        string
	deliveryTimeout time.Duration
	logger          *zap.Logger
	metrics         *observability.Metrics
	now             func() time.Time
}

func NewDispatcher(
	clients repository.ClientRepository,
	channels Channels,
	procName string,
	deliveryTimeout time.Duration,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if clients == nil {
		return nil, fmt.Errorf("client repository is required")
	}
	if channels.Push == nil || channels.Email == nil {
		return nil, fmt.Errorf("push and email channels are required")
	}
	if strings.TrimSpace(procName) == "" {
		return nil, fmt.Errorf("proc name is required")
	}
	if deliveryTimeout <= 0 {
		deliveryTimeout = defaultDeliveryTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		clients:         clients,
		push:            channels.Push,
		email:           channels.Email,
		publisher:       queue.NoopPublisher{},
		procName:        procName,
		deliveryTimeout: deliveryTimeout,
		logger:          logger,
		now:             time.Now,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// SetRateLimiter throttles every delivery per channel. Waiting for a token is
// not counted against the delivery timeout.
func (d *Dispatcher) SetRateLimiter(limiter ratelimit.RateLimiter) {
	if d == nil {
		return
	}
	d.limiter = limiter
}

func (d *Dispatcher) SetPublisher(publisher queue.OutcomePublisher) {
	if d == nil || publisher == nil {
		return
	}
	d.publisher = publisher
}

// Dispatch notifies client on both channels concurrently and finalizes it exactly once.
// A failing channel only clears its own flag; anything else marks the client as error.
func (d *Dispatcher) Dispatch(ctx context.Context, client domain.Client) domain.Outcome {
	logger := observability.WithContextLogger(d.logger, ctx).With(zap.Int64("clientId", client.ID))
	logger.Info("sending notifications to client")

	d.metrics.IncDispatchInFlight()
	defer d.metrics.DecDispatchInFlight()

	outcome := domain.Outcome{ClientID: client.ID, Status: domain.StatusError}
	if err := d.deliverAll(ctx, client, &outcome, logger); err != nil {
		logger.Error("error sending notifications to client", zap.Error(err))
	} else {
		outcome.Status = domain.StatusNotified
	}

	d.finalize(ctx, outcome, logger)
	return outcome
}

func (d *Dispatcher) deliverAll(ctx context.Context, client domain.Client, outcome *domain.Outcome, logger *zap.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errUnexpectedDispatch, r)
		}
	}()

	var pushSent, emailSent bool

	// Plain group: one channel failing must not cancel the other.
	var g errgroup.Group
	g.Go(func() error {
		sent, err := d.deliver(ctx, d.push, client, logger)
		pushSent = sent
		return err
	})
	g.Go(func() error {
		sent, err := d.deliver(ctx, d.email, client, logger)
		emailSent = sent
		return err
	})
	err = g.Wait()

	outcome.PushSent = pushSent
	outcome.EmailSent = emailSent
	return err
}

// deliver reports whether ch accepted the notification. An ordinary channel
// failure is logged and reported as (false, nil) so only that channel's flag is
// cleared; returning it as an error would mark the whole client as error.
// A non-nil error is reserved for a panicking channel.
func (d *Dispatcher) deliver(ctx context.Context, ch channel.Channel, client domain.Client, logger *zap.Logger) (sent bool, err error) {
	name := "unknown"
	defer func() {
		if r := recover(); r != nil {
			sent = false
			err = fmt.Errorf("%w: %s channel panicked: %v", errUnexpectedDispatch, name, r)
		}
	}()

	name = strings.ToLower(ch.Name().String())
	logger = logger.With(zap.String("channel", name))

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, name); err != nil {
			d.metrics.ObserveChannelDelivery(name, false, 0)
			logger.Warn("channel rate limiter failed", zap.Error(err))
			return false, nil
		}
	}

	deliveryCtx, cancel := context.WithTimeout(ctx, d.deliveryTimeout)
	defer cancel()

	start := d.now()
	deliverErr := ch.Deliver(deliveryCtx, client)
	d.metrics.ObserveChannelDelivery(name, deliverErr == nil, d.now().Sub(start))

	if deliverErr != nil {
		logger.Warn("channel delivery failed",
			zap.Bool("transient", channel.IsTransient(deliverErr)),
			zap.Error(deliverErr),
		)
		return false, nil
	}

	logger.Debug("channel delivery succeeded")
	return true, nil
}

// finalize stores the outcome. Store failures are logged and swallowed; the
// record then stays in processing.
func (d *Dispatcher) finalize(ctx context.Context, outcome domain.Outcome, logger *zap.Logger) {
	logger = logger.With(zap.String("status", outcome.Status.String()))
	logger.Info("updating client status",
		zap.Bool("pushSent", outcome.PushSent),
		zap.Bool("emailSent", outcome.EmailSent),
	)

	ctx = context.WithoutCancel(ctx)
	if err := d.clients.Finalize(ctx, outcome); err != nil {
		d.metrics.IncFinalizeFailure()
		logger.Error("failed to update client status", zap.Error(err))
		return
	}
	d.metrics.IncClientFinalized(outcome.Status.String())

	cycleID, _ := observability.CycleIDFromContext(ctx)
	msg := queue.NewOutcomeMessage(outcome, d.procName, cycleID, d.now())

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := d.publisher.PublishOutcome(publishCtx, msg); err != nil {
		logger.Warn("failed to publish client outcome", zap.Error(err))
	}
}
