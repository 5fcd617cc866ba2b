package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/ronaldofilardo/Qwork-sub006/internal/repository"
	"gorm.io/gorm"
)

// createReportsTable creates the reports refinement table (same key as
// batches) and the trigger that makes finalized content immutable at the
// storage level, including for writes that bypass application code.
//
// Once a row is EMITTED or DELIVERED the only permitted update is the
// one-shot delivery write: EMITTED -> DELIVERED setting sent_at and
// remote_url while they are still NULL. Everything else aborts the
// enclosing transaction. Row deletion stays allowed for retention purges.
func createReportsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_reports",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ReportModel{}); err != nil {
				return err
			}
			statements := []string{
				`ALTER TABLE reports ADD CONSTRAINT fk_reports_batch
					FOREIGN KEY (id) REFERENCES batches (id)`,
				`ALTER TABLE reports ADD CONSTRAINT chk_reports_emitted_hash
					CHECK (status = 'DRAFT' OR (content_hash IS NOT NULL AND emitted_at IS NOT NULL))`,
				`CREATE OR REPLACE FUNCTION reports_forbid_finalized_mutation() RETURNS trigger AS $$
				DECLARE
					acting_id text := coalesce(nullif(current_setting('qwork.actor_id', true), ''), 'unknown');
				BEGIN
					IF OLD.status NOT IN ('EMITTED', 'DELIVERED') THEN
						RETURN NEW;
					END IF;

					IF NEW.content_hash IS DISTINCT FROM OLD.content_hash
						OR NEW.emitted_at IS DISTINCT FROM OLD.emitted_at THEN
						RAISE EXCEPTION 'report % is finalized: content fields are immutable (actor %)', OLD.id, acting_id;
					END IF;

					IF OLD.status = 'DELIVERED' THEN
						IF NEW.status IS DISTINCT FROM OLD.status
							OR NEW.sent_at IS DISTINCT FROM OLD.sent_at
							OR NEW.remote_url IS DISTINCT FROM OLD.remote_url THEN
							RAISE EXCEPTION 'report % is delivered: no further mutation permitted (actor %)', OLD.id, acting_id;
						END IF;
						RETURN NEW;
					END IF;

					-- OLD.status = EMITTED: only the forward delivery write may pass.
					IF NEW.status = 'EMITTED' AND NEW.sent_at IS NULL AND NEW.remote_url IS NULL THEN
						RETURN NEW;
					END IF;
					IF NEW.status = 'DELIVERED'
						AND OLD.sent_at IS NULL AND OLD.remote_url IS NULL
						AND NEW.sent_at IS NOT NULL AND NEW.remote_url IS NOT NULL THEN
						RETURN NEW;
					END IF;

					RAISE EXCEPTION 'report % permits only the EMITTED -> DELIVERED transition (actor %)', OLD.id, acting_id;
				END;
				$$ LANGUAGE plpgsql`,
				`CREATE TRIGGER trg_reports_immutability
					BEFORE UPDATE ON reports
					FOR EACH ROW EXECUTE FUNCTION reports_forbid_finalized_mutation()`,
				`CREATE INDEX IF NOT EXISTS idx_reports_status ON reports (status)`,
				`CREATE INDEX IF NOT EXISTS idx_reports_emitted_at ON reports (emitted_at)
					WHERE emitted_at IS NOT NULL`,
			}
			for _, sql := range statements {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			statements := []string{
				`DROP TRIGGER IF EXISTS trg_reports_immutability ON reports`,
				`DROP FUNCTION IF EXISTS reports_forbid_finalized_mutation()`,
			}
			for _, sql := range statements {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return tx.Migrator().DropTable(&repository.ReportModel{})
		},
	}
}
