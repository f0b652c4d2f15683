package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// EventDispatcher is the part of Dispatcher the event worker drives.
type EventDispatcher interface {
	Dispatch(ctx context.Context, e *domain.Event) error
}

// EventWorker consumes inbound events from the bus and dispatches them.
type EventWorker struct {
	consumer    queue.Consumer
	dispatcher  EventDispatcher
	queueName   string
	concurrency int
	logger      *zap.Logger
}

func NewEventWorker(
	consumer queue.Consumer,
	dispatcher EventDispatcher,
	queueName string,
	concurrency int,
	logger *zap.Logger,
) (*EventWorker, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if queueName == "" {
		return nil, fmt.Errorf("events queue name is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EventWorker{
		consumer:    consumer,
		dispatcher:  dispatcher,
		queueName:   queueName,
		concurrency: concurrency,
		logger:      logger,
	}, nil
}

// Start consumes the events queue until context cancellation.
func (w *EventWorker) Start(ctx context.Context) error {
	return runConsumers(ctx, w.consumer, w.queueName, w.concurrency, queue.EventHandler(w.handle), w.logger)
}

// handle maps dispatch outcomes onto queue settlement. Failures that only
// happened while rendering cannot be fixed by redelivery and are rejected;
// anything else is redelivered, and already persisted tenant units are skipped
// on the next delivery.
func (w *EventWorker) handle(ctx context.Context, e *domain.Event) error {
	err := w.dispatcher.Dispatch(ctx, e)
	if err == nil {
		return nil
	}

	var dispatchErr *DispatchError
	if errors.As(err, &dispatchErr) && dispatchErr.Permanent() {
		return fmt.Errorf("%w: %v", queue.ErrReject, err)
	}
	return err
}

func runConsumers(
	ctx context.Context,
	consumer queue.Consumer,
	queueName string,
	concurrency int,
	handler queue.Handler,
	logger *zap.Logger,
) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			if err := consumer.Consume(groupCtx, queueName, handler); err != nil {
				logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			logger.Info("worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}
