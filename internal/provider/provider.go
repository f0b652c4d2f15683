package provider

import (
	"context"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
)

// Provider is one pluggable delivery backend. Name is the stable identity
// recorded in retry jobs.
type Provider interface {
	Name() string
	Publish(ctx context.Context, n *domain.Notification, users []domain.UserIdentifier) error
}

// PublishResult is the outcome of one provider publish.
type PublishResult struct {
	Provider string
	Err      error
	Duration time.Duration
}

func (r PublishResult) OK() bool {
	return r.Err == nil
}

// Publish invokes p and captures its outcome instead of returning the error.
func Publish(ctx context.Context, p Provider, n *domain.Notification, users []domain.UserIdentifier) PublishResult {
	start := time.Now()
	err := p.Publish(ctx, n, users)
	return PublishResult{
		Provider: p.Name(),
		Err:      err,
		Duration: time.Since(start),
	}
}
