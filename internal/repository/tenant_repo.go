package repository

import (
	"context"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"gorm.io/gorm"
)

type TenantRepository interface {
	ListActive(ctx context.Context) ([]domain.Tenant, error)
}

type GormTenantRepo struct {
	db *gorm.DB
}

func NewGormTenantRepo(db *gorm.DB) *GormTenantRepo {
	return &GormTenantRepo{db: db}
}

func (r *GormTenantRepo) ListActive(ctx context.Context) ([]domain.Tenant, error) {
	var models []TenantModel
	if err := conn(ctx, r.db).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}

	tenants := make([]domain.Tenant, 0, len(models))
	for i := range models {
		tenants = append(tenants, domain.Tenant{
			ID:       models[i].ID,
			Name:     models[i].Name,
			IsActive: models[i].IsActive,
		})
	}
	return tenants, nil
}
