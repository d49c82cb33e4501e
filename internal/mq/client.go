// Package mq is a thin RabbitMQ layer for the report pipeline: durable
// queues with retrying publishers and dead-lettering for the archive,
// plus a fanout exchange feeding the live report stream.
package mq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("chancai/mq")

type QueueOptions struct {
	Durable     bool
	AutoDelete  bool
	DLQEnabled  bool
	DLQTTL      time.Duration
	Prefetch    int
	ContentType string
}

type ConsumeOptions struct {
	QueueOptions
	HandlerTimeout   time.Duration
	DeadLetterOnFail bool
}

// Client shares one lazily dialed connection; every operation opens its
// own channel on it.
type Client struct {
	url    string
	logger *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
}

// NewClient prepares the client without dialing; the broker is first
// contacted on the first publish or consume.
func NewClient(url string, logger *slog.Logger) *Client {
	return &Client{url: url, logger: logger}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) channel(ctx context.Context) (*amqp.Channel, error) {
	conn, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}
	return conn.Channel()
}

func (c *Client) connection(ctx context.Context) (*amqp.Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn, nil
	}

	var conn *amqp.Connection
	dial := func() error {
		var err error
		conn, err = amqp.DialConfig(c.url, amqp.Config{
			Properties: amqp.Table{"connection_name": "chancai"},
			Dial:       amqp.DefaultDial(5 * time.Second),
		})
		return err
	}

	if err := retryUntilCancelled(ctx, 500*time.Millisecond, dial); err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}

	c.conn = conn
	c.logger.Info("connected to rabbitmq")
	return conn, nil
}

// retryUntilCancelled runs op with exponential backoff until it
// succeeds or ctx is done.
func retryUntilCancelled(ctx context.Context, initial time.Duration, op func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initial
	exp.MaxInterval = 10 * time.Second
	exp.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return op()
	}, backoff.WithContext(exp, ctx))
}

func startProducerSpan(ctx context.Context, destination string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "amqp.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", destination),
			attribute.String("messaging.operation", "publish"),
		),
	)
}

func startConsumerSpan(ctx context.Context, destination, messageID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "amqp.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", destination),
			attribute.String("messaging.operation", "process"),
			attribute.String("messaging.message.id", messageID),
		),
	)
}
