package queue

import "context"

const (
	// OutcomeExchange is the direct exchange outcome events are published to.
	OutcomeExchange = "notify.outcomes"
	// OutcomeQueue is the durable queue bound to OutcomeExchange.
	OutcomeQueue = "client.outcomes"
	// OutcomeRoutingKey binds OutcomeQueue to OutcomeExchange.
	OutcomeRoutingKey = "client.finalized"
)

// OutcomePublisher announces finalized clients to downstream consumers.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, msg OutcomeMessage) error
	Close() error
}

var _ OutcomePublisher = NoopPublisher{}

// NoopPublisher is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishOutcome(context.Context, OutcomeMessage) error { return nil }

func (NoopPublisher) Close() error { return nil }
