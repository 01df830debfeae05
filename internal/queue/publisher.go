package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var _ OutcomePublisher = (*RabbitMQPublisher)(nil)

type RabbitMQPublisher struct {
	client *RabbitMQ
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client}
}

func (p *RabbitMQPublisher) PublishOutcome(ctx context.Context, msg OutcomeMessage) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}

	publishing, err := buildPublishing(msg)
	if err != nil {
		return err
	}

	ch, err := p.client.publishChannel(ctx)
	if err != nil {
		return err
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, OutcomeExchange, OutcomeRoutingKey, false, false, publishing)
	if err != nil {
		return fmt.Errorf("failed to publish outcome for client %d: %w", msg.ClientID, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("outcome confirm for client %d: %w", msg.ClientID, err)
	}
	if !acked {
		return fmt.Errorf("broker nacked outcome for client %d", msg.ClientID)
	}

	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

func buildPublishing(msg OutcomeMessage) (amqp.Publishing, error) {
	if err := msg.Validate(); err != nil {
		return amqp.Publishing{}, fmt.Errorf("invalid outcome message: %w", err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal outcome message: %w", err)
	}

	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now().UTC(),
		MessageId:     msg.MessageID(),
		CorrelationId: msg.CycleID,
		AppId:         msg.ProcName,
		Body:          payload,
	}, nil
}
