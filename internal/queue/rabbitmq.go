package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	connectTimeout   = 15 * time.Second
	reconnectBackoff = time.Second
	maxBackoff       = 30 * time.Second
)

var errRabbitMQClosed = errors.New("rabbitmq client is closed")

// RabbitMQ owns one connection and one confirm-mode channel shared by all
// outcome publishes. After the broker drops them a single background
// goroutine redials with backoff; callers only wait on it as long as their
// context allows.
type RabbitMQ struct {
	url  string
	dial func(url string) (*amqp.Connection, error)
	stop chan struct{}

	mu           sync.Mutex
	conn         *amqp.Connection
	ch           *amqp.Channel
	reconnecting chan struct{}
	lastErr      error
	closed       bool
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	r := newRabbitMQ(url, amqp.Dial)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if _, err := r.publishChannel(ctx); err != nil {
		_ = r.Close()
		return nil, err
	}

	return r, nil
}

func newRabbitMQ(url string, dial func(url string) (*amqp.Connection, error)) *RabbitMQ {
	return &RabbitMQ{
		url:  url,
		dial: dial,
		stop: make(chan struct{}),
	}
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	close(r.stop)

	if r.ch != nil && !r.ch.IsClosed() {
		_ = r.ch.Close()
	}
	r.ch = nil

	conn := r.conn
	r.conn = nil
	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}

// publishChannel returns the shared channel. While it is down the caller
// waits for the reconnect goroutine until ctx ends.
func (r *RabbitMQ) publishChannel(ctx context.Context) (*amqp.Channel, error) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, errRabbitMQClosed
		}
		if r.ch != nil && !r.ch.IsClosed() {
			ch := r.ch
			r.mu.Unlock()
			return ch, nil
		}
		if r.reconnecting == nil {
			r.reconnecting = make(chan struct{})
			go r.reconnect(r.reconnecting)
		}
		done := r.reconnecting
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			r.mu.Lock()
			lastErr := r.lastErr
			r.mu.Unlock()
			if lastErr != nil {
				return nil, fmt.Errorf("rabbitmq connect canceled: %w (last error: %v)", ctx.Err(), lastErr)
			}
			return nil, fmt.Errorf("rabbitmq connect canceled: %w", ctx.Err())
		case <-done:
		}
	}
}

// reconnect runs until a channel is open or the client is closed, then
// closes done.
func (r *RabbitMQ) reconnect(done chan struct{}) {
	defer func() {
		r.mu.Lock()
		r.reconnecting = nil
		r.mu.Unlock()
		close(done)
	}()

	wait := reconnectBackoff
	for {
		err := r.open()
		if err == nil {
			return
		}

		r.mu.Lock()
		r.lastErr = err
		r.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-r.stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		wait = min(wait*2, maxBackoff)
	}
}

// open dials and declares without holding mu so healthy-path callers never
// queue behind a slow broker.
func (r *RabbitMQ) open() error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		dialed, err := r.dial(r.url)
		if err != nil {
			return fmt.Errorf("failed to dial rabbitmq: %w", err)
		}
		conn = dialed
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		r.mu.Lock()
		if r.conn == conn {
			r.conn = nil
		}
		r.mu.Unlock()
		return fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	if err := declareOutcomeTopology(ch); err != nil {
		_ = ch.Close()
		return err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		_ = ch.Close()
		_ = conn.Close()
		return errRabbitMQClosed
	}
	r.conn = conn
	r.ch = ch
	r.lastErr = nil
	return nil
}

func declareOutcomeTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(OutcomeExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare outcome exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(OutcomeQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare outcome queue %q: %w", OutcomeQueue, err)
	}
	if err := ch.QueueBind(OutcomeQueue, OutcomeRoutingKey, OutcomeExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind outcome queue %q: %w", OutcomeQueue, err)
	}
	return nil
}
