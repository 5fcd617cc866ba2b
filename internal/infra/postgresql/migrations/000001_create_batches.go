package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/ronaldofilardo/Qwork-sub006/internal/repository"
	"gorm.io/gorm"
)

func createBatchesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_batches",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.BatchModel{}); err != nil {
				return err
			}
			statements := []string{
				`ALTER TABLE batches ADD CONSTRAINT chk_batches_counts
					CHECK (completed_count + inactivated_count <= total_count)`,
				`CREATE INDEX IF NOT EXISTS idx_batches_auto_emit
					ON batches (scheduled_auto_emit_at)
					WHERE status = 'CONCLUDED' AND auto_emit_flag = true`,
				`CREATE INDEX IF NOT EXISTS idx_batches_client_ref ON batches (client_ref)`,
			}
			for _, sql := range statements {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.BatchModel{})
		},
	}
}
