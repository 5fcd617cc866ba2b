package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/ronaldofilardo/Qwork-sub006/internal/repository"
	"gorm.io/gorm"
)

func createEmissionQueueTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_emission_queue",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.EmissionQueueItemModel{}); err != nil {
				return err
			}
			statements := []string{
				`ALTER TABLE emission_queue ADD CONSTRAINT fk_emission_queue_batch
					FOREIGN KEY (batch_id) REFERENCES batches (id)`,
				// At most one in-flight item per batch, across all processes.
				`CREATE UNIQUE INDEX IF NOT EXISTS ux_emission_queue_batch_active
					ON emission_queue (batch_id)
					WHERE status IN ('PENDING', 'PROCESSING')`,
				`CREATE INDEX IF NOT EXISTS idx_emission_queue_claim
					ON emission_queue (priority_rank DESC, created_at ASC)
					WHERE status = 'PENDING'`,
			}
			for _, sql := range statements {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.EmissionQueueItemModel{})
		},
	}
}
