package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	"gorm.io/gorm"
)

func createNotificationTemplatesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_create_notification_templates",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.TemplateModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.TemplateModel{})
		},
	}
}

func createDeliveryAttemptsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000006_create_delivery_attempts",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeliveryAttemptModel{}); err != nil {
				return err
			}
			return execAll(tx,
				`CREATE INDEX IF NOT EXISTS idx_delivery_attempts_provider ON delivery_attempts (provider_name, created_at)`,
			)
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeliveryAttemptModel{})
		},
	}
}
