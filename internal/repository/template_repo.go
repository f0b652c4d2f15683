package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"gorm.io/gorm"
)

// TemplateVariant is one stored culture variant of a template.
type TemplateVariant struct {
	Name        string
	Culture     string
	Content     string
	Description string
}

type TemplateRepository interface {
	Get(ctx context.Context, name string, culture string) (*TemplateVariant, error)
	ListCultures(ctx context.Context, name string) ([]string, error)
	List(ctx context.Context) ([]TemplateVariant, error)
}

type GormTemplateRepo struct {
	db *gorm.DB
}

func NewGormTemplateRepo(db *gorm.DB) *GormTemplateRepo {
	return &GormTemplateRepo{db: db}
}

func (r *GormTemplateRepo) Get(ctx context.Context, name string, culture string) (*TemplateVariant, error) {
	var model TemplateModel
	err := conn(ctx, r.db).First(&model, "name = ? AND culture = ?", name, culture).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return templateModelToVariant(&model), nil
}

func (r *GormTemplateRepo) ListCultures(ctx context.Context, name string) ([]string, error) {
	var cultures []string
	err := conn(ctx, r.db).
		Model(&TemplateModel{}).
		Where("name = ?", name).
		Order("culture ASC").
		Pluck("culture", &cultures).Error
	if err != nil {
		return nil, err
	}
	return cultures, nil
}

func (r *GormTemplateRepo) List(ctx context.Context) ([]TemplateVariant, error) {
	var models []TemplateModel
	if err := conn(ctx, r.db).Order("name ASC, culture ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	variants := make([]TemplateVariant, 0, len(models))
	for i := range models {
		variants = append(variants, *templateModelToVariant(&models[i]))
	}
	return variants, nil
}

func templateModelToVariant(m *TemplateModel) *TemplateVariant {
	return &TemplateVariant{
		Name:        m.Name,
		Culture:     m.Culture,
		Content:     m.Content,
		Description: m.Description,
	}
}
