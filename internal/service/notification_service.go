package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/localization"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	"github.com/kursadbilgin/notification-dispatcher/internal/template"
	"go.uber.org/zap"
)

type DefinitionCatalog interface {
	GetOrNull(name string) *domain.Definition
	Groups() map[string][]domain.Definition
}

type ProviderNames interface {
	Names() []string
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, e *domain.Event, correlationID string) error
}

// NotifierView is one assignable notification, localized for display.
type NotifierView struct {
	Name        string
	DisplayName string
	Description string
	Scope       domain.Scope
	Lifetime    domain.Lifetime
	Providers   []string
	Template    string
}

type NotifierGroup struct {
	Name      string
	Notifiers []NotifierView
}

type SendInput struct {
	Name            string
	TenantID        string
	Severity        domain.Severity
	TemplateName    string
	Culture         string
	FormUser        string
	ExtraProperties map[string]any
	Users           []domain.UserIdentifier
	UseProviders    []string
	CorrelationID   string
}

type NotificationServiceDeps struct {
	Definitions   DefinitionCatalog
	Providers     ProviderNames
	Templates     template.Store
	Localizer     localization.Localizer
	Events        EventPublisher
	Notifications repository.NotificationStore
	Subscriptions repository.SubscriptionRepository
}

// NotificationService is the application surface behind the HTTP API.
type NotificationService struct {
	deps   NotificationServiceDeps
	logger *zap.Logger
	now    func() time.Time
}

func NewNotificationService(deps NotificationServiceDeps, logger *zap.Logger) (*NotificationService, error) {
	switch {
	case deps.Definitions == nil:
		return nil, fmt.Errorf("definition catalog is required")
	case deps.Events == nil:
		return nil, fmt.Errorf("event publisher is required")
	case deps.Notifications == nil:
		return nil, fmt.Errorf("notification store is required")
	case deps.Subscriptions == nil:
		return nil, fmt.Errorf("subscription repository is required")
	}
	if deps.Localizer == nil {
		deps.Localizer = localization.NewStaticLocalizer("", nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationService{
		deps:   deps,
		logger: logger,
		now:    time.Now,
	}, nil
}

// GetAssignableNotifiers returns the catalog grouped by group name, groups and
// notifiers sorted by name.
func (s *NotificationService) GetAssignableNotifiers(culture string) []NotifierGroup {
	groups := s.deps.Definitions.Groups()

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]NotifierGroup, 0, len(names))
	for _, name := range names {
		defs := groups[name]
		views := make([]NotifierView, 0, len(defs))
		for _, d := range defs {
			displayName := d.DisplayName
			if displayName == "" {
				displayName = d.Name
			}
			views = append(views, NotifierView{
				Name:        d.Name,
				DisplayName: s.deps.Localizer.Localize(displayName, culture),
				Description: d.Description,
				Scope:       d.Scope,
				Lifetime:    d.Lifetime,
				Providers:   d.Providers,
				Template:    d.Template,
			})
		}
		slices.SortFunc(views, func(a, b NotifierView) int { return strings.Compare(a.Name, b.Name) })
		out = append(out, NotifierGroup{Name: name, Notifiers: views})
	}
	return out
}

func (s *NotificationService) GetAssignableTemplates(ctx context.Context) ([]template.Summary, error) {
	if s.deps.Templates == nil {
		return []template.Summary{}, nil
	}
	summaries, err := s.deps.Templates.List(ctx)
	if err != nil {
		return nil, err
	}
	if summaries == nil {
		summaries = []template.Summary{}
	}
	return summaries, nil
}

// Send validates in against the catalog and publishes it as an inbound event.
// Delivery happens asynchronously in the worker.
func (s *NotificationService) Send(ctx context.Context, in SendInput) (*domain.Event, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	name := strings.TrimSpace(in.Name)
	def := s.deps.Definitions.GetOrNull(name)
	if def == nil {
		return nil, fmt.Errorf("%w: notification %q is not defined", domain.ErrNotFound, name)
	}

	// the event override takes precedence over the definition allow-list
	for _, p := range in.UseProviders {
		if s.deps.Providers != nil && !slices.Contains(s.deps.Providers.Names(), p) {
			return nil, fmt.Errorf("%w: provider %q is not registered", domain.ErrValidation, p)
		}
	}

	severity := in.Severity
	if severity == "" {
		severity = domain.SeverityInfo
	}

	templateName := strings.TrimSpace(in.TemplateName)
	if templateName == "" {
		templateName = def.Template
	}

	e := &domain.Event{
		ID:           uuid.NewString(),
		Name:         name,
		TenantID:     strings.TrimSpace(in.TenantID),
		Severity:     severity,
		CreationTime: s.now().UTC(),
		Data: domain.EventData{
			TemplateName:    templateName,
			Culture:         strings.TrimSpace(in.Culture),
			FormUser:        strings.TrimSpace(in.FormUser),
			ExtraProperties: in.ExtraProperties,
		},
		Users:        in.Users,
		UseProviders: in.UseProviders,
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}

	correlationID := strings.TrimSpace(in.CorrelationID)
	if correlationID == "" {
		correlationID = e.ID
	}
	if err := s.deps.Events.PublishEvent(ctx, e, correlationID); err != nil {
		s.logger.Error("failed to publish event",
			zap.String("eventId", e.ID),
			zap.String("notification", e.Name),
			zap.String("correlationId", correlationID),
			zap.Error(err),
		)
		return nil, err
	}

	return e, nil
}

func (s *NotificationService) ListUserNotifications(
	ctx context.Context,
	params repository.UserNotificationListParams,
) ([]repository.UserNotificationView, int64, error) {
	if strings.TrimSpace(params.UserID) == "" {
		return nil, 0, fmt.Errorf("%w: userId is required", domain.ErrValidation)
	}
	if params.ReadState != nil && !params.ReadState.IsValid() {
		return nil, 0, fmt.Errorf("%w: invalid read state %q", domain.ErrValidation, *params.ReadState)
	}
	return s.deps.Notifications.ListUserNotifications(ctx, params)
}

func (s *NotificationService) ChangeReadState(
	ctx context.Context,
	tenantID string,
	userID string,
	notificationID string,
	state domain.ReadState,
) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(notificationID) == "" {
		return fmt.Errorf("%w: userId and notification id are required", domain.ErrValidation)
	}
	if !state.IsValid() {
		return fmt.Errorf("%w: invalid read state %q", domain.ErrValidation, state)
	}
	return s.deps.Notifications.ChangeReadState(ctx, tenantID, userID, notificationID, state)
}

// Subscribe opts a user into a defined notification.
func (s *NotificationService) Subscribe(ctx context.Context, sub domain.Subscription) error {
	if s.deps.Definitions.GetOrNull(sub.NotificationName) == nil {
		return fmt.Errorf("%w: notification %q is not defined", domain.ErrNotFound, sub.NotificationName)
	}
	sub.CreatedAt = s.now().UTC()
	return s.deps.Subscriptions.Subscribe(ctx, &sub)
}

func (s *NotificationService) Unsubscribe(ctx context.Context, tenantID string, userID string, name string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: userId and notificationName are required", domain.ErrValidation)
	}
	return s.deps.Subscriptions.Unsubscribe(ctx, tenantID, userID, name)
}
