package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
)

// RetryQueue is the durable store of failed provider publishes. Producers
// only append; the retry worker drains it.
type RetryQueue struct {
	publisher Publisher
	topology  Topology
}

func NewRetryQueue(publisher Publisher, topology Topology) *RetryQueue {
	return &RetryQueue{publisher: publisher, topology: topology}
}

// Enqueue makes job immediately available to the retry worker.
func (q *RetryQueue) Enqueue(ctx context.Context, job domain.RetryJob) error {
	return q.publish(ctx, q.topology.RetryQueue, job, 0, "")
}

// Schedule makes job available after delay.
func (q *RetryQueue) Schedule(ctx context.Context, job domain.RetryJob, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, job)
	}
	return q.publish(ctx, q.topology.DelayQueue(), job, delay, "")
}

// DeadLetter parks job in the retry dead-letter queue with reason.
func (q *RetryQueue) DeadLetter(ctx context.Context, job domain.RetryJob, reason string) error {
	return q.publish(ctx, DLQName(q.topology.RetryQueue), job, 0, reason)
}

func (q *RetryQueue) publish(ctx context.Context, queue string, job domain.RetryJob, delay time.Duration, reason string) error {
	msg, err := EncodeRetryJob(job)
	if err != nil {
		return err
	}
	msg.Expiration = delay
	if reason != "" {
		msg.Headers = map[string]any{HeaderFailureReason: reason}
	}

	if err := q.publisher.Publish(ctx, queue, msg); err != nil {
		return fmt.Errorf("failed to enqueue retry job: %w", err)
	}
	return nil
}

// EventPublisher publishes inbound events onto the events queue.
type EventPublisher struct {
	publisher Publisher
	queue     string
}

func NewEventPublisher(publisher Publisher, topology Topology) *EventPublisher {
	return &EventPublisher{publisher: publisher, queue: topology.EventsQueue}
}

func (p *EventPublisher) PublishEvent(ctx context.Context, e *domain.Event, correlationID string) error {
	msg, err := EncodeEvent(e, correlationID)
	if err != nil {
		return err
	}
	if err := p.publisher.Publish(ctx, p.queue, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
