package service

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/provider"
	"github.com/kursadbilgin/notification-dispatcher/internal/queue"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	"github.com/kursadbilgin/notification-dispatcher/internal/template"
)

const (
	testEventID = "7f1d3c4e-5b6a-4c8d-9e0f-112233445566"
	tenantA     = "0b9c6a1e-2f3d-4a5b-8c7d-000000000001"
	tenantB     = "0b9c6a1e-2f3d-4a5b-8c7d-000000000002"
	tenantC     = "0b9c6a1e-2f3d-4a5b-8c7d-000000000003"
)

// opLog records the order of side effects across fakes.
type opLog struct {
	mu  sync.Mutex
	ops []string
}

func (l *opLog) add(format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, fmt.Sprintf(format, args...))
}

func (l *opLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.ops)
}

type fakeDefinitions struct {
	defs map[string]domain.Definition
}

func newFakeDefinitions(defs ...domain.Definition) *fakeDefinitions {
	f := &fakeDefinitions{defs: make(map[string]domain.Definition, len(defs))}
	for _, d := range defs {
		f.defs[d.Name] = d
	}
	return f
}

func (f *fakeDefinitions) GetOrNull(name string) *domain.Definition {
	d, ok := f.defs[name]
	if !ok {
		return nil
	}
	return &d
}

func (f *fakeDefinitions) Groups() map[string][]domain.Definition {
	out := make(map[string][]domain.Definition)
	for _, d := range f.defs {
		out[d.Group] = append(out[d.Group], d)
	}
	return out
}

type fakeTenants struct {
	listActiveFn func(ctx context.Context) ([]string, error)
}

func (f *fakeTenants) ListActive(ctx context.Context) ([]string, error) {
	if f.listActiveFn != nil {
		return f.listActiveFn(ctx)
	}
	return nil, nil
}

type fakeRenderer struct {
	renderFn func(ctx context.Context, name string, model map[string]any, culture string, global map[string]any) (string, error)
}

func (f *fakeRenderer) Render(
	ctx context.Context,
	name string,
	model map[string]any,
	culture string,
	global map[string]any,
) (string, error) {
	if f.renderFn != nil {
		return f.renderFn(ctx, name, model, culture, global)
	}
	return "rendered", nil
}

type fakeResolver struct {
	resolveFn func(ctx context.Context, tenantID, name string, candidates []domain.UserIdentifier) ([]domain.UserIdentifier, error)
}

func (f *fakeResolver) Resolve(
	ctx context.Context,
	tenantID string,
	name string,
	candidates []domain.UserIdentifier,
) ([]domain.UserIdentifier, error) {
	if f.resolveFn != nil {
		return f.resolveFn(ctx, tenantID, name, candidates)
	}
	return nil, nil
}

func resolveTo(users ...domain.UserIdentifier) *fakeResolver {
	return &fakeResolver{
		resolveFn: func(context.Context, string, string, []domain.UserIdentifier) ([]domain.UserIdentifier, error) {
			return slices.Clone(users), nil
		},
	}
}

type deleteCall struct {
	tenantID string
	users    []domain.UserIdentifier
	name     string
}

// fakeStore is an in-memory NotificationStore enforcing (id, tenant)
// uniqueness.
type fakeStore struct {
	mu                sync.Mutex
	log               *opLog
	notifications     map[string]domain.Notification
	userNotifications map[string][]string
	deletes           []deleteCall

	insertNotificationFn func(n *domain.Notification) error
	getNotificationFn    func(ctx context.Context, tenantID, id string) (*domain.Notification, error)
	listFn               func(ctx context.Context, params repository.UserNotificationListParams) ([]repository.UserNotificationView, int64, error)
	changeReadStateFn    func(ctx context.Context, tenantID, userID, notificationID string, state domain.ReadState) error
}

func newFakeStore(log *opLog) *fakeStore {
	return &fakeStore{
		log:               log,
		notifications:     make(map[string]domain.Notification),
		userNotifications: make(map[string][]string),
	}
}

func storeKey(id, tenantID string) string { return id + "|" + tenantID }

func (f *fakeStore) InsertNotification(_ context.Context, n *domain.Notification) error {
	if f.insertNotificationFn != nil {
		if err := f.insertNotificationFn(n); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key := storeKey(n.ID, n.TenantID)
	if _, ok := f.notifications[key]; ok {
		return fmt.Errorf("%w: id=%s", domain.ErrDuplicate, n.ID)
	}
	f.notifications[key] = n.Clone()
	f.log.add("insert:%s", n.TenantID)
	return nil
}

func (f *fakeStore) InsertUserNotifications(_ context.Context, n *domain.Notification, userIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := storeKey(n.ID, n.TenantID)
	f.userNotifications[key] = append(f.userNotifications[key], userIDs...)
	f.log.add("insertUsers:%s", n.TenantID)
	return nil
}

func (f *fakeStore) DeleteSubscriptions(_ context.Context, tenantID string, users []domain.UserIdentifier, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deletes = append(f.deletes, deleteCall{tenantID: tenantID, users: slices.Clone(users), name: name})
	f.log.add("delete:%s", tenantID)
	return nil
}

func (f *fakeStore) GetNotification(ctx context.Context, tenantID string, id string) (*domain.Notification, error) {
	if f.getNotificationFn != nil {
		return f.getNotificationFn(ctx, tenantID, id)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	n, ok := f.notifications[storeKey(id, tenantID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &n, nil
}

func (f *fakeStore) ListUserNotifications(
	ctx context.Context,
	params repository.UserNotificationListParams,
) ([]repository.UserNotificationView, int64, error) {
	if f.listFn != nil {
		return f.listFn(ctx, params)
	}
	return nil, 0, nil
}

func (f *fakeStore) ChangeReadState(
	ctx context.Context,
	tenantID string,
	userID string,
	notificationID string,
	state domain.ReadState,
) error {
	if f.changeReadStateFn != nil {
		return f.changeReadStateFn(ctx, tenantID, userID, notificationID, state)
	}
	return nil
}

func (f *fakeStore) records() []domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]domain.Notification, 0, len(f.notifications))
	for _, n := range f.notifications {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b domain.Notification) int {
		switch {
		case a.TenantID < b.TenantID:
			return -1
		case a.TenantID > b.TenantID:
			return 1
		}
		return 0
	})
	return out
}

func (f *fakeStore) deleteCalls() []deleteCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.deletes)
}

type fakeTransactor struct {
	calls int
	mu    sync.Mutex
}

func (f *fakeTransactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return fn(ctx)
}

type publishCall struct {
	notification domain.Notification
	users        []domain.UserIdentifier
}

type fakeProvider struct {
	name      string
	log       *opLog
	publishFn func(ctx context.Context, n *domain.Notification, users []domain.UserIdentifier) error

	mu    sync.Mutex
	calls []publishCall
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Publish(ctx context.Context, n *domain.Notification, users []domain.UserIdentifier) error {
	f.mu.Lock()
	f.calls = append(f.calls, publishCall{notification: n.Clone(), users: slices.Clone(users)})
	f.mu.Unlock()
	f.log.add("publish:%s", f.name)

	if f.publishFn != nil {
		return f.publishFn(ctx, n, users)
	}
	return nil
}

func (f *fakeProvider) publishCalls() []publishCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func newProviderRegistry(t *testing.T, providers ...provider.Provider) *provider.Registry {
	t.Helper()

	r, err := provider.NewRegistry(providers...)
	if err != nil {
		t.Fatalf("provider.NewRegistry() error = %v", err)
	}
	return r
}

type fakeRetries struct {
	mu   sync.Mutex
	jobs []domain.RetryJob
	err  error
}

func (f *fakeRetries) Enqueue(_ context.Context, job domain.RetryJob) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeRetries) enqueued() []domain.RetryJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.jobs)
}

type scheduledJob struct {
	job   domain.RetryJob
	delay time.Duration
}

type deadLetteredJob struct {
	job    domain.RetryJob
	reason string
}

type fakeScheduler struct {
	scheduled    []scheduledJob
	deadLettered []deadLetteredJob
	scheduleErr  error
}

func (f *fakeScheduler) Schedule(_ context.Context, job domain.RetryJob, delay time.Duration) error {
	if f.scheduleErr != nil {
		return f.scheduleErr
	}
	f.scheduled = append(f.scheduled, scheduledJob{job: job, delay: delay})
	return nil
}

func (f *fakeScheduler) DeadLetter(_ context.Context, job domain.RetryJob, reason string) error {
	f.deadLettered = append(f.deadLettered, deadLetteredJob{job: job, reason: reason})
	return nil
}

type fakeAttemptRepo struct {
	createFn func(ctx context.Context, a *domain.DeliveryAttempt) error
}

func (f *fakeAttemptRepo) Create(ctx context.Context, a *domain.DeliveryAttempt) error {
	if f.createFn != nil {
		return f.createFn(ctx, a)
	}
	return nil
}

func (f *fakeAttemptRepo) GetByNotificationID(context.Context, string, string) ([]domain.DeliveryAttempt, error) {
	return nil, nil
}

type fakeRateLimiter struct {
	waitFn func(ctx context.Context, provider string) error
}

func (f *fakeRateLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

func (f *fakeRateLimiter) Wait(ctx context.Context, provider string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, provider)
	}
	return nil
}

type fakeConsumer struct {
	mu      sync.Mutex
	queues  []string
	consume func(ctx context.Context, queueName string, handler queue.Handler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.Handler) error {
	f.mu.Lock()
	f.queues = append(f.queues, queueName)
	f.mu.Unlock()

	if f.consume != nil {
		return f.consume(ctx, queueName, handler)
	}
	return nil
}

func (f *fakeConsumer) Close() error { return nil }

type fakeEventPublisher struct {
	publishFn func(ctx context.Context, e *domain.Event, correlationID string) error
}

func (f *fakeEventPublisher) PublishEvent(ctx context.Context, e *domain.Event, correlationID string) error {
	if f.publishFn != nil {
		return f.publishFn(ctx, e, correlationID)
	}
	return nil
}

type fakeSubscriptionRepo struct {
	subscribeFn   func(ctx context.Context, s *domain.Subscription) error
	unsubscribeFn func(ctx context.Context, tenantID, userID, name string) error
}

func (f *fakeSubscriptionRepo) GetUserSubscriptions(context.Context, string, string, []string) ([]domain.Subscription, error) {
	return nil, nil
}

func (f *fakeSubscriptionRepo) Subscribe(ctx context.Context, s *domain.Subscription) error {
	if f.subscribeFn != nil {
		return f.subscribeFn(ctx, s)
	}
	return nil
}

func (f *fakeSubscriptionRepo) Unsubscribe(ctx context.Context, tenantID, userID, name string) error {
	if f.unsubscribeFn != nil {
		return f.unsubscribeFn(ctx, tenantID, userID, name)
	}
	return nil
}

type fakeTemplateStore struct {
	listFn func(ctx context.Context) ([]template.Summary, error)
}

func (f *fakeTemplateStore) GetOrNull(context.Context, string, string) (*template.Template, error) {
	return nil, nil
}

func (f *fakeTemplateStore) List(ctx context.Context) ([]template.Summary, error) {
	if f.listFn != nil {
		return f.listFn(ctx)
	}
	return nil, nil
}
