package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ronaldofilardo/Qwork-sub006/internal/domain"
	"gorm.io/gorm"
)

// RecomputeUpdate is the aggregator's single write against a batch row.
// Conclusion fields are only set on the first transition into concluded.
type RecomputeUpdate struct {
	Status              domain.BatchStatus
	Counts              domain.BatchCounts
	ConcludedAt         *time.Time
	ScheduledAutoEmitAt *time.Time
	AutoEmitFlag        *bool
}

type BatchRepository interface {
	Create(ctx context.Context, b *domain.Batch) error
	GetByID(ctx context.Context, id string) (*domain.Batch, error)
	ApplyRecompute(ctx context.Context, id string, update RecomputeUpdate) error
	ListDueAutoEmit(ctx context.Context, now time.Time, limit int) ([]domain.Batch, error)
	ListPendingEmission(ctx context.Context) ([]domain.Batch, error)
	DisableAutoEmit(ctx context.Context, id string) error
}

type GormBatchRepo struct {
	db *gorm.DB
}

func NewGormBatchRepo(db *gorm.DB) *GormBatchRepo {
	return &GormBatchRepo{db: db}
}

func (r *GormBatchRepo) Create(ctx context.Context, b *domain.Batch) error {
	model := batchModelFromDomain(b)
	if err := conn(ctx, r.db).Create(model).Error; err != nil {
		return err
	}
	if b != nil {
		*b = *batchModelToDomain(model)
	}
	return nil
}

func (r *GormBatchRepo) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	var model BatchModel
	err := conn(ctx, r.db).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return batchModelToDomain(&model), nil
}

func (r *GormBatchRepo) ApplyRecompute(ctx context.Context, id string, update RecomputeUpdate) error {
	values := map[string]any{
		"status":            update.Status,
		"total_count":       update.Counts.Total,
		"completed_count":   update.Counts.Completed,
		"inactivated_count": update.Counts.Inactivated,
	}
	if update.ConcludedAt != nil {
		values["concluded_at"] = *update.ConcludedAt
	}
	if update.ScheduledAutoEmitAt != nil {
		values["scheduled_auto_emit_at"] = *update.ScheduledAutoEmitAt
	}
	if update.AutoEmitFlag != nil {
		values["auto_emit_flag"] = *update.AutoEmitFlag
	}

	result := conn(ctx, r.db).
		Model(&BatchModel{}).
		Where("id = ?", id).
		Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DisableAutoEmit drops a batch out of future auto-emission sweeps. Used
// once a manual emission has made the scheduled one redundant.
func (r *GormBatchRepo) DisableAutoEmit(ctx context.Context, id string) error {
	result := conn(ctx, r.db).
		Model(&BatchModel{}).
		Where("id = ?", id).
		Update("auto_emit_flag", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListDueAutoEmit selects concluded batches whose grace period has elapsed
// and whose report has not been delivered.
func (r *GormBatchRepo) ListDueAutoEmit(ctx context.Context, now time.Time, limit int) ([]domain.Batch, error) {
	var models []BatchModel
	err := conn(ctx, r.db).
		Joins("LEFT JOIN reports ON reports.id = batches.id").
		Where("batches.status = ?", domain.BatchStatusConcluded).
		Where("batches.auto_emit_flag = ?", true).
		Where("batches.scheduled_auto_emit_at <= ?", now).
		Where("reports.id IS NULL OR reports.status <> ?", domain.ReportStatusDelivered).
		Order("batches.scheduled_auto_emit_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	batches := make([]domain.Batch, 0, len(models))
	for i := range models {
		batches = append(batches, *batchModelToDomain(&models[i]))
	}
	return batches, nil
}

// ListPendingEmission returns concluded batches whose report has not been
// emitted yet, oldest conclusion first.
func (r *GormBatchRepo) ListPendingEmission(ctx context.Context) ([]domain.Batch, error) {
	var models []BatchModel
	err := conn(ctx, r.db).
		Joins("LEFT JOIN reports ON reports.id = batches.id").
		Where("batches.status = ?", domain.BatchStatusConcluded).
		Where("reports.id IS NULL OR reports.status = ?", domain.ReportStatusDraft).
		Order("batches.concluded_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	batches := make([]domain.Batch, 0, len(models))
	for i := range models {
		batches = append(batches, *batchModelToDomain(&models[i]))
	}
	return batches, nil
}
