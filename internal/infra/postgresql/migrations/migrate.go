package migrations

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

const migrationsTable = "notify_daemon_migrations"

// Migrate brings the clients schema up to date. The clients table is usually
// owned by another system, so this only runs when AUTO_MIGRATE is set.
func Migrate(db *gorm.DB) error {
	opts := *gormigrate.DefaultOptions
	opts.TableName = migrationsTable
	opts.UseTransaction = true

	m := gormigrate.New(db, &opts, []*gormigrate.Migration{
		createClientsTable(),
	})
	if err := m.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate clients schema: %w", err)
	}
	return nil
}
