package repository

import (
	"context"
	"time"

	"github.com/ronaldofilardo/Qwork-sub006/internal/domain"
	"gorm.io/gorm"
)

// AuditRepository appends and reads audit entries. There is deliberately no
// update or delete method; retention is handled outside the application.
type AuditRepository interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
	ListByResource(ctx context.Context, resourceType string, resourceID string) ([]domain.AuditEntry, error)
	CountActionSince(ctx context.Context, action string, since time.Time) (int, error)
}

type GormAuditRepo struct {
	db *gorm.DB
}

func NewGormAuditRepo(db *gorm.DB) *GormAuditRepo {
	return &GormAuditRepo{db: db}
}

func (r *GormAuditRepo) Append(ctx context.Context, entry *domain.AuditEntry) error {
	model := auditEntryModelFromDomain(entry)
	if err := conn(ctx, r.db).Create(model).Error; err != nil {
		return err
	}
	if entry != nil {
		*entry = *auditEntryModelToDomain(model)
	}
	return nil
}

func (r *GormAuditRepo) ListByResource(ctx context.Context, resourceType string, resourceID string) ([]domain.AuditEntry, error) {
	var models []AuditEntryModel
	err := conn(ctx, r.db).
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Order("occurred_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	entries := make([]domain.AuditEntry, 0, len(models))
	for i := range models {
		entries = append(entries, *auditEntryModelToDomain(&models[i]))
	}
	return entries, nil
}

func (r *GormAuditRepo) CountActionSince(ctx context.Context, action string, since time.Time) (int, error) {
	var count int64
	err := conn(ctx, r.db).
		Model(&AuditEntryModel{}).
		Where("action = ? AND occurred_at >= ?", action, since).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
