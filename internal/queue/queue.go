package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrReject marks a message that must not be redelivered. The consumer
// rejects it without requeue so the broker dead-letters it.
var ErrReject = errors.New("reject message")

// Delivery is one consumed broker message.
type Delivery struct {
	Body          []byte
	MessageID     string
	CorrelationID string
	Redelivered   bool
	Headers       map[string]any
}

// Handler processes a delivery. nil acks, an ErrReject-wrapped error rejects
// to the dead-letter queue, any other error redelivers after a delay.
type Handler func(ctx context.Context, d Delivery) error

// Message is an outgoing broker message.
type Message struct {
	Body          []byte
	MessageID     string
	CorrelationID string
	Headers       map[string]any
	// Expiration delays dead-lettering of messages sent to a delay queue.
	Expiration time.Duration
}

type Publisher interface {
	Publish(ctx context.Context, queue string, msg Message) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, queue string, handler Handler) error
	Close() error
}

// Topology names the queues of the pipeline. Every work queue dead-letters
// into dlq.<name> and owns a <name>.delay queue that dead-letters back into
// it once a message's expiration elapses.
type Topology struct {
	EventsQueue string
	RetryQueue  string
}

func (t Topology) Validate() error {
	if strings.TrimSpace(t.EventsQueue) == "" {
		return fmt.Errorf("events queue name is required")
	}
	if strings.TrimSpace(t.RetryQueue) == "" {
		return fmt.Errorf("retry queue name is required")
	}
	if t.EventsQueue == t.RetryQueue {
		return fmt.Errorf("events and retry queues must differ")
	}
	return nil
}

// DelayQueue returns the retry backoff queue, e.g. notifications.retry.delay.
func (t Topology) DelayQueue() string {
	return DelayQueueName(t.RetryQueue)
}

// DelayQueueName returns the delay queue feeding back into queue.
func DelayQueueName(queue string) string {
	return queue + ".delay"
}

// WorkQueues returns the queues consumers read from.
func (t Topology) WorkQueues() []string {
	return []string{t.EventsQueue, t.RetryQueue}
}

// DLQName returns the dead-letter queue of queue, e.g. dlq.notifications.retry.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

// expirationValue renders d in the millisecond string form AMQP expects.
func expirationValue(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	ms := d.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return fmt.Sprintf("%d", ms)
}
