package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubscriptionRepository interface {
	// GetUserSubscriptions returns subscribers of name in tenantID. A non-empty
	// userIDs restricts the result to those users.
	GetUserSubscriptions(ctx context.Context, tenantID string, name string, userIDs []string) ([]domain.Subscription, error)
	Subscribe(ctx context.Context, s *domain.Subscription) error
	Unsubscribe(ctx context.Context, tenantID string, userID string, name string) error
}

type GormSubscriptionRepo struct {
	db *gorm.DB
}

func NewGormSubscriptionRepo(db *gorm.DB) *GormSubscriptionRepo {
	return &GormSubscriptionRepo{db: db}
}

func (r *GormSubscriptionRepo) GetUserSubscriptions(
	ctx context.Context,
	tenantID string,
	name string,
	userIDs []string,
) ([]domain.Subscription, error) {
	query := conn(ctx, r.db).
		Where("tenant_id = ? AND notification_name = ?", tenantID, name)
	if len(userIDs) > 0 {
		query = query.Where("user_id IN ?", userIDs)
	}

	var models []SubscriptionModel
	if err := query.Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	subscriptions := make([]domain.Subscription, 0, len(models))
	for i := range models {
		subscriptions = append(subscriptions, subscriptionModelToDomain(&models[i]))
	}
	return subscriptions, nil
}

// Subscribe is idempotent: subscribing twice keeps the first row.
func (r *GormSubscriptionRepo) Subscribe(ctx context.Context, s *domain.Subscription) error {
	if s == nil || strings.TrimSpace(s.UserID) == "" || strings.TrimSpace(s.NotificationName) == "" {
		return fmt.Errorf("%w: user id and notification name are required", domain.ErrValidation)
	}

	model := &SubscriptionModel{
		TenantID:         s.TenantID,
		NotificationName: s.NotificationName,
		UserID:           s.UserID,
		UserName:         s.UserName,
	}
	return conn(ctx, r.db).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model).Error
}

func (r *GormSubscriptionRepo) Unsubscribe(ctx context.Context, tenantID string, userID string, name string) error {
	result := conn(ctx, r.db).
		Where("tenant_id = ? AND user_id = ? AND notification_name = ?", tenantID, userID, name).
		Delete(&SubscriptionModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
