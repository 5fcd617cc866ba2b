package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/ronaldofilardo/Qwork-sub006/internal/repository"
	"gorm.io/gorm"
)

func createEvaluationsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_evaluations",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.EvaluationModel{}); err != nil {
				return err
			}
			statements := []string{
				`ALTER TABLE evaluations ADD CONSTRAINT fk_evaluations_batch
					FOREIGN KEY (batch_id) REFERENCES batches (id)`,
				`CREATE INDEX IF NOT EXISTS idx_evaluations_batch_status
					ON evaluations (batch_id, status)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS ux_evaluations_batch_subject
					ON evaluations (batch_id, subject_ref)`,
			}
			for _, sql := range statements {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.EvaluationModel{})
		},
	}
}
