package ratelimit

import "context"

// RateLimiter throttles provider publishes. Keys are provider names.
type RateLimiter interface {
	Allow(ctx context.Context, provider string) (bool, error)
	Wait(ctx context.Context, provider string) error
}

// Unlimited admits every call.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (bool, error) { return true, nil }

func (Unlimited) Wait(ctx context.Context, _ string) error {
	return ctx.Err()
}
