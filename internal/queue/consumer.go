package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var _ Consumer = (*RabbitMQConsumer)(nil)

const (
	// HeaderRedeliveryCount counts how often a failing message was parked.
	HeaderRedeliveryCount = "x-redelivery-count"

	defaultMaxRedeliveries = 10
	redeliveryBaseDelay    = time.Second
	redeliveryMaxDelay     = time.Minute
)

type RabbitMQConsumer struct {
	client          *RabbitMQ
	publisher       Publisher
	prefetch        int
	maxRedeliveries int
	logger          *zap.Logger
}

type ConsumerOption func(*RabbitMQConsumer)

// WithMaxRedeliveries bounds how often a failing message is parked in the
// delay queue before it is rejected to the dead-letter queue.
func WithMaxRedeliveries(n int) ConsumerOption {
	return func(c *RabbitMQConsumer) {
		if n > 0 {
			c.maxRedeliveries = n
		}
	}
}

func NewRabbitMQConsumer(client *RabbitMQ, prefetch int, logger *zap.Logger, opts ...ConsumerOption) *RabbitMQConsumer {
	if prefetch < 1 {
		prefetch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &RabbitMQConsumer{
		client:          client,
		publisher:       NewRabbitMQPublisher(client),
		prefetch:        prefetch,
		maxRedeliveries: defaultMaxRedeliveries,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Consume delivers messages of queue to handler until ctx is done,
// reconnecting with backoff when the channel drops.
func (c *RabbitMQConsumer) Consume(ctx context.Context, queue string, handler Handler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	backoff := reconnectBackoff
	for {
		err := c.consumeOnce(ctx, queue, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = reconnectBackoff
			continue
		}

		c.logger.Warn("consumer interrupted, reconnecting",
			zap.String("queue", queue),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, maxBackoff)
	}
}

func (c *RabbitMQConsumer) consumeOnce(ctx context.Context, queue string, handler Handler) error {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}

			if err := c.settle(ctx, d, queue, toDelivery(d), handler); err != nil {
				return err
			}
		}
	}
}

// acknowledger is the settlement surface of amqp.Delivery.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
	Reject(requeue bool) error
}

func (c *RabbitMQConsumer) settle(ctx context.Context, ack acknowledger, queue string, d Delivery, handler Handler) error {
	err := handler(ctx, d)
	switch {
	case err == nil:
		if ackErr := ack.Ack(false); ackErr != nil {
			return fmt.Errorf("failed to ack delivery: %w", ackErr)
		}
	case errors.Is(err, ErrReject):
		c.logger.Warn("rejecting message",
			zap.String("messageId", d.MessageID),
			zap.Error(err),
		)
		if rejectErr := ack.Reject(false); rejectErr != nil {
			return fmt.Errorf("failed to reject message: %w", rejectErr)
		}
	default:
		return c.redeliver(ctx, ack, queue, d, err)
	}
	return nil
}

// redeliver parks a failed message in the delay queue of queue with an
// incremented redelivery count and acks the original. Past the limit the
// message is rejected to the dead-letter queue. If parking fails the
// message is requeued in place.
func (c *RabbitMQConsumer) redeliver(ctx context.Context, ack acknowledger, queue string, d Delivery, cause error) error {
	count := redeliveryCount(d.Headers) + 1
	if count > c.maxRedeliveries {
		c.logger.Error("redelivery limit reached, rejecting message",
			zap.String("messageId", d.MessageID),
			zap.Int("redeliveries", count-1),
			zap.Error(cause),
		)
		if rejectErr := ack.Reject(false); rejectErr != nil {
			return fmt.Errorf("failed to reject message: %w", rejectErr)
		}
		return nil
	}

	headers := make(map[string]any, len(d.Headers)+1)
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[HeaderRedeliveryCount] = int32(count)

	delay := redeliveryDelay(count)
	parked := Message{
		Body:          d.Body,
		MessageID:     d.MessageID,
		CorrelationID: d.CorrelationID,
		Headers:       headers,
		Expiration:    delay,
	}
	if pubErr := c.publisher.Publish(ctx, DelayQueueName(queue), parked); pubErr != nil {
		c.logger.Warn("handler failed, requeueing message",
			zap.String("messageId", d.MessageID),
			zap.Bool("redelivered", d.Redelivered),
			zap.NamedError("parkError", pubErr),
			zap.Error(cause),
		)
		if nackErr := ack.Nack(false, true); nackErr != nil {
			return fmt.Errorf("handler failed and nack failed: %w", nackErr)
		}
		return nil
	}

	c.logger.Warn("handler failed, delaying redelivery",
		zap.String("messageId", d.MessageID),
		zap.Int("redelivery", count),
		zap.Duration("delay", delay),
		zap.Error(cause),
	)
	if ackErr := ack.Ack(false); ackErr != nil {
		return fmt.Errorf("failed to ack parked delivery: %w", ackErr)
	}
	return nil
}

func redeliveryCount(headers map[string]any) int {
	switch v := headers[HeaderRedeliveryCount].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// redeliveryDelay doubles from redeliveryBaseDelay per attempt, capped at
// redeliveryMaxDelay.
func redeliveryDelay(count int) time.Duration {
	delay := redeliveryBaseDelay
	for i := 1; i < count && delay < redeliveryMaxDelay; i++ {
		delay *= 2
	}
	return min(delay, redeliveryMaxDelay)
}

func toDelivery(d amqp.Delivery) Delivery {
	return Delivery{
		Body:          d.Body,
		MessageID:     d.MessageId,
		CorrelationID: d.CorrelationId,
		Redelivered:   d.Redelivered,
		Headers:       d.Headers,
	}
}

func (c *RabbitMQConsumer) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
