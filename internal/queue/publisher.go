package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var _ Publisher = (*RabbitMQPublisher)(nil)

// ErrNotConfirmed is returned when the broker nacks a published message.
var ErrNotConfirmed = errors.New("message not confirmed by broker")

type RabbitMQPublisher struct {
	client *RabbitMQ
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, queue string, msg Message) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if len(msg.Body) == 0 {
		return fmt.Errorf("message body is required")
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, newPublishing(msg, time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("failed to publish message to queue %q: %w", queue, err)
	}

	acked, err := confirm.WaitContext(ctx)
	return confirmResult(queue, acked, err)
}

// confirmResult turns a publisher confirm into an error. The message is only
// safe to settle upstream once the broker has acked it.
func confirmResult(queue string, acked bool, err error) error {
	if err != nil {
		return fmt.Errorf("failed to confirm message on queue %q: %w", queue, err)
	}
	if !acked {
		return fmt.Errorf("%w: queue %q", ErrNotConfirmed, queue)
	}
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

func newPublishing(msg Message, now time.Time) amqp.Publishing {
	publishing := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     now,
		MessageId:     msg.MessageID,
		CorrelationId: msg.CorrelationID,
		Expiration:    expirationValue(msg.Expiration),
		Body:          msg.Body,
	}
	if len(msg.Headers) > 0 {
		publishing.Headers = amqp.Table(msg.Headers)
	}
	return publishing
}
