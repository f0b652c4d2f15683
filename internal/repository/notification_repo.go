package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"gorm.io/gorm"
)

type UserNotificationListParams struct {
	TenantID  string
	UserID    string
	ReadState *domain.ReadState
	Page      int
	PageSize  int
}

// UserNotificationView joins a user notification with its notification.
type UserNotificationView struct {
	domain.UserNotification
	Notification domain.Notification
}

// NotificationStore persists notifications, their per-user entries, and
// consumes one-shot subscriptions.
type NotificationStore interface {
	// InsertNotification does not deduplicate; a repeated (id, tenant) pair
	// fails with domain.ErrDuplicate.
	InsertNotification(ctx context.Context, n *domain.Notification) error
	InsertUserNotifications(ctx context.Context, n *domain.Notification, userIDs []string) error
	DeleteSubscriptions(ctx context.Context, tenantID string, users []domain.UserIdentifier, notificationName string) error
	GetNotification(ctx context.Context, tenantID string, id string) (*domain.Notification, error)
	ListUserNotifications(ctx context.Context, params UserNotificationListParams) ([]UserNotificationView, int64, error)
	ChangeReadState(ctx context.Context, tenantID string, userID string, notificationID string, state domain.ReadState) error
}

type GormNotificationStore struct {
	db *gorm.DB
}

func NewGormNotificationStore(db *gorm.DB) *GormNotificationStore {
	return &GormNotificationStore{db: db}
}

func (r *GormNotificationStore) InsertNotification(ctx context.Context, n *domain.Notification) error {
	model := notificationModelFromDomain(n)
	if model == nil {
		return fmt.Errorf("%w: notification is required", domain.ErrValidation)
	}
	if err := conn(ctx, r.db).Create(model).Error; err != nil {
		if isUniqueViolationError(err) {
			return fmt.Errorf("%w: id=%s tenant=%q", domain.ErrDuplicate, n.ID, n.TenantID)
		}
		return err
	}
	return nil
}

func (r *GormNotificationStore) InsertUserNotifications(ctx context.Context, n *domain.Notification, userIDs []string) error {
	if n == nil || len(userIDs) == 0 {
		return nil
	}

	models := make([]UserNotificationModel, 0, len(userIDs))
	for _, userID := range userIDs {
		models = append(models, UserNotificationModel{
			TenantID:       n.TenantID,
			UserID:         userID,
			NotificationID: n.ID,
			ReadState:      domain.ReadStateUnread,
		})
	}

	return conn(ctx, r.db).CreateInBatches(&models, 100).Error
}

func (r *GormNotificationStore) DeleteSubscriptions(
	ctx context.Context,
	tenantID string,
	users []domain.UserIdentifier,
	notificationName string,
) error {
	if len(users) == 0 {
		return nil
	}

	return conn(ctx, r.db).
		Where("tenant_id = ? AND notification_name = ? AND user_id IN ?", tenantID, notificationName, domain.UserIDs(users)).
		Delete(&SubscriptionModel{}).Error
}

func (r *GormNotificationStore) GetNotification(ctx context.Context, tenantID string, id string) (*domain.Notification, error) {
	var model NotificationModel
	err := conn(ctx, r.db).First(&model, "id = ? AND tenant_id = ?", id, tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

func (r *GormNotificationStore) ListUserNotifications(
	ctx context.Context,
	params UserNotificationListParams,
) ([]UserNotificationView, int64, error) {
	query := conn(ctx, r.db).
		Model(&UserNotificationModel{}).
		Where("tenant_id = ? AND user_id = ?", params.TenantID, params.UserID)
	if params.ReadState != nil {
		query = query.Where("read_state = ?", *params.ReadState)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []UserNotificationModel
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}
	if len(models) == 0 {
		return []UserNotificationView{}, total, nil
	}

	ids := make([]string, 0, len(models))
	for i := range models {
		ids = append(ids, models[i].NotificationID)
	}

	var notifications []NotificationModel
	if err := conn(ctx, r.db).
		Where("tenant_id = ? AND id IN ?", params.TenantID, ids).
		Find(&notifications).Error; err != nil {
		return nil, 0, err
	}

	byID := make(map[string]*NotificationModel, len(notifications))
	for i := range notifications {
		byID[notifications[i].ID] = &notifications[i]
	}

	views := make([]UserNotificationView, 0, len(models))
	for i := range models {
		view := UserNotificationView{UserNotification: userNotificationModelToDomain(&models[i])}
		if n, ok := byID[models[i].NotificationID]; ok {
			view.Notification = *notificationModelToDomain(n)
		}
		views = append(views, view)
	}

	return views, total, nil
}

func (r *GormNotificationStore) ChangeReadState(
	ctx context.Context,
	tenantID string,
	userID string,
	notificationID string,
	state domain.ReadState,
) error {
	result := conn(ctx, r.db).
		Model(&UserNotificationModel{}).
		Where("tenant_id = ? AND user_id = ? AND notification_id = ?", tenantID, userID, notificationID).
		Update("read_state", state)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func isUniqueViolationError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
