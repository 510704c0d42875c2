// Package rabbitmq delivers committed orders to the fulfillment queue with
// at-least-once semantics: a publish that fails on a dropped connection is
// retried exactly once over a fresh connection, so the consumer must tolerate
// duplicates.
package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/softdomifood/order-intake/internal/domain/order"
)

// PublishError wraps a publish failure that survived the reconnect retry.
// The order it relates to is already committed; delivery is degraded, not lost
// correctness.
type PublishError struct {
	Err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publishing order event: %v", e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

var _ order.Publisher = (*Publisher)(nil)

// Publisher owns a single long-lived connection and channel to the broker,
// established lazily on first use and reused across publishes. The durable
// queue is declared once per channel lifetime. Concurrent publishes serialize
// on the internal mutex; a failed publish drops the cached connection so the
// next attempt redials.
type Publisher struct {
	url   string
	queue string
	lg    *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher creates a Publisher for the given broker URL and queue name.
// No connection is made until the first publish.
func NewPublisher(url, queue string, lg *zap.Logger) *Publisher {
	return &Publisher{url: url, queue: queue, lg: lg}
}

// PublishOrderCreated serializes the order and publishes it to the
// fulfillment queue with persistent delivery mode. If the publish fails the
// cached connection is dropped and the single message is retried exactly once
// over a fresh connection; a second failure returns *PublishError.
func (p *Publisher) PublishOrderCreated(ctx context.Context, o *order.Order) error {
	body := encodeOrderMessage(o)

	if err := p.publish(ctx, body); err != nil {
		p.lg.Warn("publish failed, reconnecting once",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
		p.drop()
		if err := p.publish(ctx, body); err != nil {
			return &PublishError{Err: err}
		}
		p.lg.Info("order event published after reconnect", zap.String("order_id", o.ID))
		return nil
	}

	return nil
}

// Ping verifies the broker is reachable by ensuring a live channel exists.
func (p *Publisher) Ping(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.channelLocked()
	return err
}

// Close shuts the channel and connection down. Safe to call when never connected.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	if p.ch != nil && !p.ch.IsClosed() {
		firstErr = p.ch.Close()
	}
	if p.conn != nil && !p.conn.IsClosed() {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.ch = nil
	p.conn = nil
	return firstErr
}

func (p *Publisher) publish(ctx context.Context, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channelLocked()
	if err != nil {
		return err
	}

	return ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// channelLocked returns the cached channel, dialing a fresh connection and
// declaring the durable queue when no live channel exists. Callers must hold mu.
func (p *Publisher) channelLocked() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dialing broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	// Durable queue: messages survive a broker restart until consumed.
	if _, err := ch.QueueDeclare(
		p.queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring queue %q: %w", p.queue, err)
	}

	p.conn = conn
	p.ch = ch
	p.lg.Info("broker connection established", zap.String("queue", p.queue))
	return ch, nil
}

// drop discards the cached connection and channel so the next publish redials.
func (p *Publisher) drop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil && !p.ch.IsClosed() {
		p.ch.Close()
	}
	if p.conn != nil && !p.conn.IsClosed() {
		p.conn.Close()
	}
	p.ch = nil
	p.conn = nil
}
