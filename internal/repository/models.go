package repository

import (
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
)

// NotificationModel is the persistence model for the notifications table.
// (id, tenant_id) is the primary key: a system-wide event shares its id
// across one row per tenant.
type NotificationModel struct {
	ID           string                  `gorm:"type:varchar(36);primaryKey"`
	TenantID     string                  `gorm:"type:varchar(36);primaryKey;default:''"`
	Name         string                  `gorm:"type:varchar(128);not null;index"`
	Severity     domain.Severity         `gorm:"type:varchar(10);not null"`
	Scope        domain.Scope            `gorm:"type:varchar(10);not null"`
	Lifetime     domain.Lifetime         `gorm:"type:varchar(12);not null"`
	Data         domain.NotificationData `gorm:"type:text;serializer:json;not null"`
	CreationTime time.Time               `gorm:"not null"`
	CreatedAt    time.Time
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// UserNotificationModel is the persistence model for user_notifications.
type UserNotificationModel struct {
	ID             int64            `gorm:"primaryKey;autoIncrement"`
	TenantID       string           `gorm:"type:varchar(36);not null;default:'';uniqueIndex:idx_user_notifications_unique,priority:1"`
	UserID         string           `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_notifications_unique,priority:2"`
	NotificationID string           `gorm:"type:varchar(36);not null;uniqueIndex:idx_user_notifications_unique,priority:3"`
	ReadState      domain.ReadState `gorm:"type:varchar(10);not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (UserNotificationModel) TableName() string {
	return "user_notifications"
}

// SubscriptionModel is the persistence model for user_subscriptions.
type SubscriptionModel struct {
	ID               int64  `gorm:"primaryKey;autoIncrement"`
	TenantID         string `gorm:"type:varchar(36);not null;default:'';uniqueIndex:idx_user_subscriptions_unique,priority:1"`
	NotificationName string `gorm:"type:varchar(128);not null;uniqueIndex:idx_user_subscriptions_unique,priority:2"`
	UserID           string `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_subscriptions_unique,priority:3"`
	UserName         string `gorm:"type:varchar(128)"`
	CreatedAt        time.Time
}

func (SubscriptionModel) TableName() string {
	return "user_subscriptions"
}

// TenantModel is the persistence model for the tenant directory.
type TenantModel struct {
	ID        string `gorm:"type:varchar(36);primaryKey"`
	Name      string `gorm:"type:varchar(128);not null"`
	IsActive  bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (TenantModel) TableName() string {
	return "tenants"
}

// TemplateModel stores one culture variant of a text template. An empty
// culture is the culture-neutral variant.
type TemplateModel struct {
	Name        string `gorm:"type:varchar(128);primaryKey"`
	Culture     string `gorm:"type:varchar(16);primaryKey;default:''"`
	Content     string `gorm:"type:text;not null"`
	Description string `gorm:"type:varchar(256)"`
	UpdatedAt   time.Time
}

func (TemplateModel) TableName() string {
	return "notification_templates"
}

// DeliveryAttemptModel is the persistence model for delivery_attempts.
type DeliveryAttemptModel struct {
	ID             string  `gorm:"type:varchar(36);primaryKey"`
	TenantID       string  `gorm:"type:varchar(36);not null;default:''"`
	NotificationID string  `gorm:"type:varchar(36);not null;index"`
	ProviderName   string  `gorm:"type:varchar(64);not null"`
	AttemptNumber  int     `gorm:"not null"`
	RecipientCount int     `gorm:"not null"`
	StatusCode     *int    `gorm:"type:int"`
	Error          *string `gorm:"type:text"`
	CreatedAt      time.Time
}

func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

func notificationModelFromDomain(n *domain.Notification) *NotificationModel {
	if n == nil {
		return nil
	}

	return &NotificationModel{
		ID:           n.ID,
		TenantID:     n.TenantID,
		Name:         n.Name,
		Severity:     n.Severity,
		Scope:        n.Scope,
		Lifetime:     n.Lifetime,
		Data:         n.Data,
		CreationTime: n.CreationTime,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	return &domain.Notification{
		ID:           m.ID,
		TenantID:     m.TenantID,
		Name:         m.Name,
		Severity:     m.Severity,
		Scope:        m.Scope,
		Lifetime:     m.Lifetime,
		Data:         m.Data,
		CreationTime: m.CreationTime,
	}
}

func userNotificationModelToDomain(m *UserNotificationModel) domain.UserNotification {
	return domain.UserNotification{
		ID:             m.ID,
		TenantID:       m.TenantID,
		UserID:         m.UserID,
		NotificationID: m.NotificationID,
		ReadState:      m.ReadState,
		CreatedAt:      m.CreatedAt,
	}
}

func subscriptionModelToDomain(m *SubscriptionModel) domain.Subscription {
	return domain.Subscription{
		TenantID:         m.TenantID,
		UserID:           m.UserID,
		UserName:         m.UserName,
		NotificationName: m.NotificationName,
		CreatedAt:        m.CreatedAt,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}

	return &DeliveryAttemptModel{
		ID:             a.ID,
		TenantID:       a.TenantID,
		NotificationID: a.NotificationID,
		ProviderName:   a.ProviderName,
		AttemptNumber:  a.AttemptNumber,
		RecipientCount: a.RecipientCount,
		StatusCode:     a.StatusCode,
		Error:          a.Error,
		CreatedAt:      a.CreatedAt,
	}
}

func attemptModelToDomain(m *DeliveryAttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:             m.ID,
		TenantID:       m.TenantID,
		NotificationID: m.NotificationID,
		ProviderName:   m.ProviderName,
		AttemptNumber:  m.AttemptNumber,
		RecipientCount: m.RecipientCount,
		StatusCode:     m.StatusCode,
		Error:          m.Error,
		CreatedAt:      m.CreatedAt,
	}
}
