// Package messaging forwards notification events to a RabbitMQ queue so
// downstream workers (reminders, e-mail) can react to agenda changes.
package messaging

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/rabbitmq/amqp091-go"

	"github.com/clinicops/console/internal/platform/notification"
)

// Channel is the subset of *amqp091.Channel used for publishing.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// Sink publishes each event as a persistent JSON message on queue.
type Sink struct {
	ch    Channel
	queue string
}

// NewSink creates a sink over an open channel.
func NewSink(ch Channel, queue string) *Sink {
	return &Sink{ch: ch, queue: queue}
}

// Name implements notification.Sink.
func (s *Sink) Name() string { return "amqp" }

// Deliver implements notification.Sink.
func (s *Sink) Deliver(ctx context.Context, ev notification.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ev.Timestamp,
		Type:         string(ev.Severity),
		Body:         body,
		Headers: amqp091.Table{
			"resource_type": ev.ResourceType,
			"resource_id":   ev.ResourceID,
		},
	}
	if err := s.ch.PublishWithContext(ctx, "", s.queue, false, false, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", s.queue, err)
	}
	return nil
}

// Conn owns a broker connection and the channel the sink publishes on.
type Conn struct {
	conn *amqp091.Connection
	ch   *amqp091.Channel
}

// Dial connects to url and declares queue as durable.
func Dial(url, queue string) (*Conn, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &Conn{conn: conn, ch: ch}, nil
}

// Channel returns the publishing channel.
func (c *Conn) Channel() *amqp091.Channel { return c.ch }

// Close closes the channel and the connection.
func (c *Conn) Close() error {
	if err := c.ch.Close(); err != nil {
		c.conn.Close()
		return err
	}
	return c.conn.Close()
}
