package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/notify-daemon/internal/repository"
	"gorm.io/gorm"
)

func createClientsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_clients",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ClientModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_clients_pending ON clients (id) WHERE status = 'pending'`,
				`CREATE INDEX IF NOT EXISTS idx_clients_status_proc_name ON clients (status, proc_name)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ClientModel{})
		},
	}
}
