package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/ronaldofilardo/Qwork-sub006/internal/repository"
	"gorm.io/gorm"
)

// createAuditLogTable creates the append-only audit trail. A trigger
// rejects UPDATE and DELETE regardless of role, so append-only holds even
// for the owning role; retention tooling must drop the trigger first.
func createAuditLogTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_create_audit_log",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.AuditEntryModel{}); err != nil {
				return err
			}
			statements := []string{
				`CREATE INDEX IF NOT EXISTS idx_audit_log_resource
					ON audit_log (resource_type, resource_id, occurred_at)`,
				`CREATE INDEX IF NOT EXISTS idx_audit_log_action_time
					ON audit_log (action, occurred_at)`,
				`REVOKE UPDATE, DELETE ON audit_log FROM PUBLIC`,
				`CREATE OR REPLACE FUNCTION audit_log_forbid_mutation() RETURNS trigger AS $$
				BEGIN
					RAISE EXCEPTION 'audit_log is append-only';
				END;
				$$ LANGUAGE plpgsql`,
				`CREATE TRIGGER trg_audit_log_append_only
					BEFORE UPDATE OR DELETE ON audit_log
					FOR EACH ROW EXECUTE FUNCTION audit_log_forbid_mutation()`,
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
				`DROP TRIGGER IF EXISTS trg_audit_log_append_only ON audit_log`,
				`DROP FUNCTION IF EXISTS audit_log_forbid_mutation()`,
			}
			for _, sql := range statements {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return tx.Migrator().DropTable(&repository.AuditEntryModel{})
		},
	}
}
