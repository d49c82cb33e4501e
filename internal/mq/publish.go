package mq

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/codes"

	"chancai/internal/telemetry"
)

// PublishWithRetry delivers one persistent message to a queue, redialing
// and retrying until it lands or ctx is cancelled. Archive events must
// not be lost to a broker restart.
func (c *Client) PublishWithRetry(ctx context.Context, queue string, body []byte, opts QueueOptions, headers amqp.Table) error {
	ctx, span := startProducerSpan(ctx, queue)
	defer span.End()

	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/json"
	}

	attempt := func() error {
		ch, err := c.channel(ctx)
		if err != nil {
			return err
		}
		defer ch.Close()

		if err := declareQueue(ch, queue, opts); err != nil {
			return err
		}

		return ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
			Body:         body,
			ContentType:  contentType,
			Headers:      telemetry.InjectAMQPContext(ctx, maps.Clone(headers)),
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now().UTC(),
			DeliveryMode: amqp.Persistent,
		})
	}

	if err := retryUntilCancelled(ctx, 300*time.Millisecond, attempt); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

// PublishToExchange sends one message to a fanout exchange. No retry:
// the live feed is best effort and a stale update is worthless.
func (c *Client) PublishToExchange(ctx context.Context, exchange string, body []byte) error {
	ctx, span := startProducerSpan(ctx, exchange)
	defer span.End()

	fail := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	ch, err := c.channel(ctx)
	if err != nil {
		return fail(err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		return fail(fmt.Errorf("declare exchange %s: %w", exchange, err))
	}

	err = ch.PublishWithContext(ctx, exchange, "", false, false, amqp.Publishing{
		Body:        body,
		ContentType: "application/json",
		Headers:     telemetry.InjectAMQPContext(ctx, nil),
	})
	if err != nil {
		return fail(fmt.Errorf("publish to exchange %s: %w", exchange, err))
	}
	return nil
}

// declareQueue declares the queue and, when enabled, its dead-letter
// pair. Rejected messages land in <queue>.dlq; with a TTL set they
// expire back through the default exchange onto the main queue.
func declareQueue(ch *amqp.Channel, name string, opts QueueOptions) error {
	args := amqp.Table{}
	if opts.DLQEnabled {
		dlx, dlq := name+".dlx", name+".dlq"
		if err := ch.ExchangeDeclare(dlx, "direct", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", dlx, err)
		}

		dlqArgs := amqp.Table{}
		if opts.DLQTTL > 0 {
			dlqArgs["x-message-ttl"] = opts.DLQTTL.Milliseconds()
			dlqArgs["x-dead-letter-exchange"] = ""
			dlqArgs["x-dead-letter-routing-key"] = name
		}
		if _, err := ch.QueueDeclare(dlq, opts.Durable, opts.AutoDelete, false, false, dlqArgs); err != nil {
			return fmt.Errorf("declare queue %s: %w", dlq, err)
		}
		if err := ch.QueueBind(dlq, name, dlx, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", dlq, dlx, err)
		}
		args["x-dead-letter-exchange"] = dlx
	}

	if _, err := ch.QueueDeclare(name, opts.Durable, opts.AutoDelete, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	return nil
}
