package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	"gorm.io/gorm"
)

func createUserSubscriptionsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_user_subscriptions",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.SubscriptionModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.SubscriptionModel{})
		},
	}
}

func createTenantsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_tenants",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.TenantModel{}); err != nil {
				return err
			}
			return execAll(tx,
				`CREATE INDEX IF NOT EXISTS idx_tenants_active ON tenants (is_active)`,
			)
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.TenantModel{})
		},
	}
}
