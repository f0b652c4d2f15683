package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/observability"
	"github.com/kursadbilgin/notification-dispatcher/internal/provider"
	"github.com/kursadbilgin/notification-dispatcher/internal/queue"
	"github.com/kursadbilgin/notification-dispatcher/internal/ratelimit"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultMaxRetryAttempts = 5
	defaultBaseRetryDelay   = time.Second
	maxRetryDelay           = 60 * time.Second
	maxRetryJitterMillis    = 250
)

// Dead-letter reasons.
const (
	reasonNotificationNotFound = "notification_not_found"
	reasonUnknownProvider      = "unknown_provider"
	reasonPermanentError       = "permanent_error"
	reasonRetryExhausted       = "retry_exhausted"
)

type NotificationReader interface {
	GetNotification(ctx context.Context, tenantID string, id string) (*domain.Notification, error)
}

type ProviderLookup interface {
	Lookup(name string) (provider.Provider, bool)
}

// RetryScheduler moves replayed jobs forward: back onto the queue after a
// delay, or into the dead-letter queue.
type RetryScheduler interface {
	Schedule(ctx context.Context, job domain.RetryJob, delay time.Duration) error
	DeadLetter(ctx context.Context, job domain.RetryJob, reason string) error
}

type RetryWorkerDeps struct {
	Notifications NotificationReader
	Attempts      repository.AttemptRepository
	Providers     ProviderLookup
	Mappings      *provider.Mappings
	RateLimiter   ratelimit.RateLimiter
	Scheduler     RetryScheduler
	Consumer      queue.Consumer
}

// RetryWorker drains the retry queue. Each job is replayed against exactly
// the provider and recipients it captured; subscriptions are not consulted.
type RetryWorker struct {
	deps        RetryWorkerDeps
	queueName   string
	maxAttempts int
	baseDelay   time.Duration
	concurrency int
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time
	randIntn    func(n int) int
}

func NewRetryWorker(
	deps RetryWorkerDeps,
	queueName string,
	maxAttempts int,
	baseDelay time.Duration,
	concurrency int,
	logger *zap.Logger,
) (*RetryWorker, error) {
	switch {
	case deps.Notifications == nil:
		return nil, fmt.Errorf("notification reader is required")
	case deps.Providers == nil:
		return nil, fmt.Errorf("provider lookup is required")
	case deps.Scheduler == nil:
		return nil, fmt.Errorf("retry scheduler is required")
	}
	if deps.RateLimiter == nil {
		deps.RateLimiter = ratelimit.Unlimited{}
	}
	if maxAttempts < 1 {
		maxAttempts = defaultMaxRetryAttempts
	}
	if baseDelay <= 0 {
		baseDelay = defaultBaseRetryDelay
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryWorker{
		deps:        deps,
		queueName:   queueName,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		concurrency: concurrency,
		logger:      logger,
		now:         time.Now,
		randIntn:    rand.Intn,
	}, nil
}

func (w *RetryWorker) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

// Start consumes the retry queue until context cancellation.
func (w *RetryWorker) Start(ctx context.Context) error {
	if w.deps.Consumer == nil {
		return fmt.Errorf("consumer is required")
	}
	if w.queueName == "" {
		return fmt.Errorf("retry queue name is required")
	}
	return runConsumers(ctx, w.deps.Consumer, w.queueName, w.concurrency, queue.RetryJobHandler(w.Replay), w.logger)
}

// Replay publishes job once. A nil return acks the job: it either succeeded,
// was rescheduled, or was dead-lettered. Errors leave it on the queue.
func (w *RetryWorker) Replay(ctx context.Context, job domain.RetryJob) error {
	ctx = observability.WithCorrelationID(ctx, job.NotificationID)
	logger := observability.WithContextLogger(w.logger, ctx).With(
		observability.TenantField(job.TenantID),
		zap.String("provider", job.ProviderName),
		zap.Int("attempt", job.Attempt+1),
	)

	n, err := w.deps.Notifications.GetNotification(ctx, job.TenantID, job.NotificationID)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Warn("notification not found, dead-lettering retry job")
		return w.deadLetter(ctx, job, reasonNotificationNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to load notification: %w", err)
	}

	p, ok := w.deps.Providers.Lookup(job.ProviderName)
	if !ok {
		logger.Warn("provider not registered, dead-lettering retry job")
		return w.deadLetter(ctx, job, reasonUnknownProvider)
	}

	if err := w.deps.RateLimiter.Wait(ctx, p.Name()); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	result := provider.Publish(ctx, p, w.deps.Mappings.Apply(p.Name(), n), job.Users)
	w.metrics.ObserveProviderPublish(result.Provider, result.OK(), result.Duration)
	w.recordAttempt(ctx, logger, job, result)

	if result.OK() {
		w.metrics.IncRetryJobReplayed(job.ProviderName, "success")
		return nil
	}

	next := job
	next.Attempt++

	transient := provider.IsTransient(result.Err)
	if transient && next.Attempt < w.maxAttempts {
		delay := w.computeRetryDelay(next.Attempt)
		if err := w.deps.Scheduler.Schedule(ctx, next, delay); err != nil {
			return fmt.Errorf("failed to schedule retry: %w", err)
		}
		logger.Info("retry rescheduled", zap.Duration("delay", delay), zap.Error(result.Err))
		w.metrics.IncRetryJobReplayed(job.ProviderName, "rescheduled")
		return nil
	}

	reason := reasonPermanentError
	if transient {
		reason = reasonRetryExhausted
	}
	logger.Warn("retry job failed, dead-lettering", zap.String("reason", reason), zap.Error(result.Err))
	return w.deadLetter(ctx, next, reason)
}

func (w *RetryWorker) deadLetter(ctx context.Context, job domain.RetryJob, reason string) error {
	if err := w.deps.Scheduler.DeadLetter(ctx, job, reason); err != nil {
		return fmt.Errorf("failed to dead-letter retry job: %w", err)
	}
	w.metrics.IncRetryJobReplayed(job.ProviderName, reason)
	return nil
}

func (w *RetryWorker) computeRetryDelay(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	delay := w.baseDelay
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			delay = maxRetryDelay
			break
		}
	}

	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	jitterMillis := 0
	if w.randIntn != nil && maxRetryJitterMillis > 0 {
		jitterMillis = w.randIntn(maxRetryJitterMillis + 1)
	}

	return delay + time.Duration(jitterMillis)*time.Millisecond
}

// recordAttempt stores the replay outcome. Attempt history is diagnostic, so
// a failed write is logged rather than returned.
func (w *RetryWorker) recordAttempt(ctx context.Context, logger *zap.Logger, job domain.RetryJob, result provider.PublishResult) {
	if w.deps.Attempts == nil {
		return
	}

	attempt := &domain.DeliveryAttempt{
		ID:             uuid.NewString(),
		TenantID:       job.TenantID,
		NotificationID: job.NotificationID,
		ProviderName:   job.ProviderName,
		AttemptNumber:  job.Attempt + 1,
		RecipientCount: len(job.Users),
		CreatedAt:      w.now().UTC(),
	}
	if result.Err != nil {
		msg := result.Err.Error()
		attempt.Error = &msg
		attempt.StatusCode = provider.StatusCode(result.Err)
	}

	if err := w.deps.Attempts.Create(ctx, attempt); err != nil {
		logger.Error("failed to record delivery attempt", zap.Error(err))
	}
}
