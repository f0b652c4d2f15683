package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
)

// HeaderFailureReason carries why a message was dead-lettered.
const HeaderFailureReason = "x-failure-reason"

// EncodeEvent builds the broker message for an inbound event.
func EncodeEvent(e *domain.Event, correlationID string) (Message, error) {
	if err := e.Validate(); err != nil {
		return Message{}, fmt.Errorf("invalid event: %w", err)
	}
	body, err := json.Marshal(e)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return Message{Body: body, MessageID: e.ID, CorrelationID: correlationID}, nil
}

// EncodeRetryJob builds the broker message for a retry job.
func EncodeRetryJob(job domain.RetryJob) (Message, error) {
	if err := job.Validate(); err != nil {
		return Message{}, fmt.Errorf("invalid retry job: %w", err)
	}
	body, err := json.Marshal(job)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal retry job: %w", err)
	}
	return Message{
		Body:          body,
		MessageID:     fmt.Sprintf("%s:%s:%d", job.NotificationID, job.ProviderName, job.Attempt),
		CorrelationID: job.NotificationID,
	}, nil
}

// EventHandler decodes and validates inbound events before calling fn.
// Undecodable or invalid events are rejected.
func EventHandler(fn func(ctx context.Context, e *domain.Event) error) Handler {
	return func(ctx context.Context, d Delivery) error {
		var e domain.Event
		if err := json.Unmarshal(d.Body, &e); err != nil {
			return fmt.Errorf("%w: invalid event JSON: %v", ErrReject, err)
		}
		if err := e.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrReject, err)
		}
		return fn(ctx, &e)
	}
}

// RetryJobHandler decodes and validates retry jobs before calling fn.
func RetryJobHandler(fn func(ctx context.Context, job domain.RetryJob) error) Handler {
	return func(ctx context.Context, d Delivery) error {
		var job domain.RetryJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			return fmt.Errorf("%w: invalid retry job JSON: %v", ErrReject, err)
		}
		if err := job.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrReject, err)
		}
		return fn(ctx, job)
	}
}
