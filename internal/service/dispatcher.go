package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/localization"
	"github.com/kursadbilgin/notification-dispatcher/internal/observability"
	"github.com/kursadbilgin/notification-dispatcher/internal/provider"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	"github.com/kursadbilgin/notification-dispatcher/internal/subscription"
	"github.com/kursadbilgin/notification-dispatcher/internal/template"
	"github.com/kursadbilgin/notification-dispatcher/internal/tenant"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultTenantConcurrency = 4

// DefinitionRegistry resolves notification definitions by name.
type DefinitionRegistry interface {
	GetOrNull(name string) *domain.Definition
}

// ProviderChain selects the ordered providers for one notification.
type ProviderChain interface {
	Select(useProviders []string, def *domain.Definition) []provider.Provider
}

// RetryEnqueuer durably records a failed provider publish.
type RetryEnqueuer interface {
	Enqueue(ctx context.Context, job domain.RetryJob) error
}

type DispatcherDeps struct {
	Definitions DefinitionRegistry
	Tenants     tenant.Directory
	Renderer    template.Renderer
	Localizer   localization.Localizer
	Resolver    subscription.Resolver
	Store       repository.NotificationStore
	Transactor  repository.Transactor
	Providers   ProviderChain
	Mappings    *provider.Mappings
	Retries     RetryEnqueuer
}

// Dispatcher turns inbound events into persisted notifications and provider
// publishes, one unit of work per target tenant.
type Dispatcher struct {
	deps           DispatcherDeps
	concurrency    int
	defaultCulture string
	logger         *zap.Logger
	metrics        *observability.Metrics
	now            func() time.Time
}

func NewDispatcher(deps DispatcherDeps, concurrency int, defaultCulture string, logger *zap.Logger) (*Dispatcher, error) {
	switch {
	case deps.Definitions == nil:
		return nil, fmt.Errorf("definition registry is required")
	case deps.Tenants == nil:
		return nil, fmt.Errorf("tenant directory is required")
	case deps.Renderer == nil:
		return nil, fmt.Errorf("template renderer is required")
	case deps.Resolver == nil:
		return nil, fmt.Errorf("subscription resolver is required")
	case deps.Store == nil || deps.Transactor == nil:
		return nil, fmt.Errorf("notification store and transactor are required")
	case deps.Providers == nil:
		return nil, fmt.Errorf("provider chain is required")
	case deps.Retries == nil:
		return nil, fmt.Errorf("retry queue is required")
	}
	if deps.Localizer == nil {
		deps.Localizer = localization.NewStaticLocalizer(defaultCulture, nil)
	}
	if concurrency < 1 {
		concurrency = defaultTenantConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		deps:           deps,
		concurrency:    concurrency,
		defaultCulture: defaultCulture,
		logger:         logger,
		now:            time.Now,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// Dispatch processes one inbound event. An unknown notification name drops
// the event without error. The returned error is a *DispatchError naming the
// tenant units that failed; provider failures never surface here.
func (d *Dispatcher) Dispatch(ctx context.Context, e *domain.Event) error {
	if e == nil {
		return fmt.Errorf("%w: event is required", domain.ErrValidation)
	}

	ctx = observability.WithCorrelationID(ctx, e.ID)
	logger := observability.WithContextLogger(d.logger, ctx).With(zap.String("notification", e.Name))

	def := d.deps.Definitions.GetOrNull(e.Name)
	if def == nil {
		logger.Debug("no definition registered, dropping event")
		d.metrics.IncEventDispatched("dropped")
		return nil
	}

	tenantIDs := []string{e.TenantID}
	if def.Scope == domain.ScopeSystem {
		ids, err := d.deps.Tenants.ListActive(ctx)
		if err != nil {
			d.metrics.IncEventDispatched("failed")
			return fmt.Errorf("failed to list active tenants: %w", err)
		}
		tenantIDs = ids
	}

	failures := make([]*TenantError, len(tenantIDs))

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, tenantID := range tenantIDs {
		g.Go(func() error {
			if err := d.dispatchTenant(ctx, logger, e, def, tenantID); err != nil {
				var te *TenantError
				if !errors.As(err, &te) {
					te = &TenantError{TenantID: tenantID, Stage: StagePersist, Err: err}
				}
				failures[i] = te
				d.metrics.IncTenantUnitFailed(string(te.Stage))
				logger.Error("tenant unit failed",
					observability.TenantField(tenantID),
					zap.String("stage", string(te.Stage)),
					zap.Error(te.Err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	if dispatchErr := newDispatchError(e.ID, failures); dispatchErr != nil {
		d.metrics.IncEventDispatched("failed")
		return dispatchErr
	}

	d.metrics.IncEventDispatched("dispatched")
	return nil
}

func (d *Dispatcher) dispatchTenant(
	ctx context.Context,
	logger *zap.Logger,
	e *domain.Event,
	def *domain.Definition,
	tenantID string,
) error {
	logger = logger.With(observability.TenantField(tenantID))

	creationTime := e.CreationTime
	if creationTime.IsZero() {
		creationTime = d.now().UTC()
	}

	data, err := d.buildData(ctx, e, def, creationTime)
	if errors.Is(err, template.ErrStoreUnavailable) {
		return &TenantError{TenantID: tenantID, Stage: StageTemplateLookup, Err: err}
	}
	if err != nil {
		return &TenantError{TenantID: tenantID, Stage: StageRender, Err: err}
	}

	n := &domain.Notification{
		ID:           e.ID,
		TenantID:     tenantID,
		Name:         e.Name,
		Severity:     e.Severity,
		Scope:        def.Scope,
		Lifetime:     def.Lifetime,
		Data:         data,
		CreationTime: creationTime,
	}

	var users []domain.UserIdentifier
	err = d.deps.Transactor.WithTx(ctx, func(txCtx context.Context) error {
		if err := d.deps.Store.InsertNotification(txCtx, n); err != nil {
			return err
		}

		resolved, err := d.deps.Resolver.Resolve(txCtx, tenantID, e.Name, e.Users)
		if err != nil {
			return err
		}
		if len(resolved) == 0 {
			return nil
		}

		if err := d.deps.Store.InsertUserNotifications(txCtx, n, domain.UserIDs(resolved)); err != nil {
			return err
		}
		if def.Lifetime == domain.LifetimeOnlyOne {
			if err := d.deps.Store.DeleteSubscriptions(txCtx, tenantID, resolved, e.Name); err != nil {
				return err
			}
		}

		users = resolved
		return nil
	})
	if errors.Is(err, domain.ErrDuplicate) {
		logger.Info("notification already persisted, skipping redelivered event")
		return nil
	}
	if err != nil {
		return &TenantError{TenantID: tenantID, Stage: StagePersist, Err: err}
	}

	if len(users) == 0 {
		logger.Debug("no subscribed recipients")
		return nil
	}

	d.publish(ctx, logger, n, def, e.UseProviders, users)
	return nil
}

// publish runs the selected providers sequentially. A failed provider
// becomes one retry job and the remaining providers still run.
func (d *Dispatcher) publish(
	ctx context.Context,
	logger *zap.Logger,
	n *domain.Notification,
	def *domain.Definition,
	useProviders []string,
	users []domain.UserIdentifier,
) {
	for _, p := range d.deps.Providers.Select(useProviders, def) {
		mapped := d.deps.Mappings.Apply(p.Name(), n)

		result := provider.Publish(ctx, p, mapped, users)
		d.metrics.ObserveProviderPublish(result.Provider, result.OK(), result.Duration)
		if result.OK() {
			continue
		}

		logger.Warn("provider publish failed, enqueueing retry",
			zap.String("provider", result.Provider),
			zap.String("notificationId", n.ID),
			zap.Int("recipients", len(users)),
			zap.Error(result.Err),
		)

		job := domain.RetryJob{
			NotificationID: n.ID,
			ProviderName:   result.Provider,
			Users:          users,
			TenantID:       n.TenantID,
		}
		if err := d.deps.Retries.Enqueue(ctx, job); err != nil {
			logger.Error("failed to enqueue retry job",
				zap.String("provider", result.Provider),
				zap.String("notificationId", n.ID),
				zap.Error(err),
			)
			continue
		}
		d.metrics.IncRetryJobEnqueued(result.Provider)
	}
}

// buildData renders template payloads and normalizes pre-built payloads into
// the standard notification data.
func (d *Dispatcher) buildData(
	ctx context.Context,
	e *domain.Event,
	def *domain.Definition,
	creationTime time.Time,
) (domain.NotificationData, error) {
	culture := e.Data.Culture
	if strings.TrimSpace(culture) == "" {
		culture = d.defaultCulture
	}

	displayName := def.DisplayName
	if displayName == "" {
		displayName = def.Name
	}

	data := domain.NotificationData{
		FormUser:        e.Data.FormUser,
		CreateTime:      creationTime,
		ExtraProperties: extraProperties(e.Data.ExtraProperties),
	}

	if !e.Data.IsTemplate() {
		data.Title = stringProperty(e.Data.ExtraProperties, domain.DataKeyTitle)
		if data.Title == "" {
			data.Title = d.deps.Localizer.Localize(displayName, culture)
		}
		data.Message = stringProperty(e.Data.ExtraProperties, domain.DataKeyMessage)
		return data, nil
	}

	data.Title = d.deps.Localizer.Localize(displayName, culture)
	global := map[string]any{
		template.GlobalNotification:   e.Name,
		template.GlobalFormUser:       e.Data.FormUser,
		template.GlobalNotificationID: e.ID,
		template.GlobalTitle:          data.Title,
		template.GlobalCreationTime:   creationTime.Format(template.CreationTimeLayout),
	}

	message, err := d.deps.Renderer.Render(ctx, e.Data.TemplateName, e.Data.ExtraProperties, culture, global)
	if err != nil {
		return domain.NotificationData{}, fmt.Errorf("failed to render template %q: %w", e.Data.TemplateName, err)
	}
	data.Message = message
	return data, nil
}

// extraProperties copies src without the standard data keys.
func extraProperties(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		switch k {
		case domain.DataKeyTitle, domain.DataKeyMessage, domain.DataKeyCreateTime, domain.DataKeyFormUser:
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func stringProperty(props map[string]any, key string) string {
	v, ok := props[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
