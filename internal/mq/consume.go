package mq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/codes"

	"chancai/internal/telemetry"
)

// Consume processes deliveries from a durable queue until ctx is done,
// reconnecting whenever the channel dies. Each delivery is acked on
// success; on handler failure it is dead-lettered or requeued per opts.
func (c *Client) Consume(ctx context.Context, queue string, opts ConsumeOptions, handler func(ctx context.Context, d amqp.Delivery) error) error {
	if handler == nil {
		return errors.New("mq: nil handler")
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.consumeOnce(ctx, queue, opts, handler); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			c.logger.Error("consumer lost, reconnecting", "queue", queue, "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// consumeOnce runs one consumer session on a fresh channel. Returning
// nil or a broker error means the session ended and the caller should
// reconnect; a context error ends consumption for good.
func (c *Client) consumeOnce(ctx context.Context, queue string, opts ConsumeOptions, handler func(ctx context.Context, d amqp.Delivery) error) error {
	ch, err := c.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := declareQueue(ch, queue, opts.QueueOptions); err != nil {
		return err
	}
	if opts.Prefetch > 0 {
		if err := ch.Qos(opts.Prefetch, 0, false); err != nil {
			return fmt.Errorf("set prefetch: %w", err)
		}
	}

	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}
	closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	c.logger.Info("consuming", "queue", queue)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr != nil {
				return amqpErr
			}
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handleDelivery(ctx, queue, opts, d, handler)
		}
	}
}

func (c *Client) handleDelivery(ctx context.Context, queue string, opts ConsumeOptions, d amqp.Delivery, handler func(ctx context.Context, d amqp.Delivery) error) {
	hctx := telemetry.ExtractAMQPContext(ctx, d.Headers)
	hctx, span := startConsumerSpan(hctx, queue, d.MessageId)
	defer span.End()

	if opts.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(hctx, opts.HandlerTimeout)
		defer cancel()
	}

	if err := handler(hctx, d); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("handler failed", "queue", queue, "messageId", d.MessageId, "err", err)
		// Unhandled messages go to the DLQ when one is configured,
		// otherwise back onto the queue for another attempt.
		_ = d.Nack(false, !opts.DeadLetterOnFail)
		return
	}
	_ = d.Ack(false)
}

// SubscribeFanout feeds every message published to a fanout exchange to
// handler, reconnecting like Consume. Deliveries are auto-acked; a
// subscriber that misses messages while away simply misses them.
func (c *Client) SubscribeFanout(ctx context.Context, exchange string, handler func(ctx context.Context, body []byte)) error {
	if handler == nil {
		return errors.New("mq: nil handler")
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.subscribeOnce(ctx, exchange, handler); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			c.logger.Error("fanout subscriber lost, reconnecting", "exchange", exchange, "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func (c *Client) subscribeOnce(ctx context.Context, exchange string, handler func(ctx context.Context, body []byte)) error {
	ch, err := c.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	// An exclusive throwaway queue per subscriber, so each one sees
	// every message.
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare subscriber queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		return fmt.Errorf("bind subscriber queue: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", q.Name, err)
	}
	closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	c.logger.Info("subscribed to fanout", "exchange", exchange)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr != nil {
				return amqpErr
			}
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			hctx, span := startConsumerSpan(telemetry.ExtractAMQPContext(ctx, d.Headers), exchange, d.MessageId)
			handler(hctx, d.Body)
			span.End()
		}
	}
}
