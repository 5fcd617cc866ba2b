package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ronaldofilardo/Qwork-sub006/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QueueRepository interface {
	Enqueue(ctx context.Context, item *domain.EmissionQueueItem) (bool, error)
	ClaimNext(ctx context.Context, now time.Time) (*domain.EmissionQueueItem, error)
	MarkDone(ctx context.Context, id string) error
	MarkForRetry(ctx context.Context, id string, nextAttemptAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, id string, lastError string) error
	CountPending(ctx context.Context) (int, error)
	ListFailedSince(ctx context.Context, since time.Time) ([]domain.EmissionQueueItem, error)
}

type GormQueueRepo struct {
	db *gorm.DB
}

func NewGormQueueRepo(db *gorm.DB) *GormQueueRepo {
	return &GormQueueRepo{db: db}
}

// Enqueue inserts a work item unless the batch already has a non-terminal
// one. The partial unique index on (batch_id) WHERE status IN
// ('PENDING','PROCESSING') makes the skip race-free across processes.
// Returns false when the insert was skipped.
func (r *GormQueueRepo) Enqueue(ctx context.Context, item *domain.EmissionQueueItem) (bool, error) {
	model := queueItemModelFromDomain(item)
	err := conn(ctx, r.db).Create(model).Error
	if err != nil {
		if isUniqueViolationError(err) {
			return false, nil
		}
		return false, err
	}
	if item != nil {
		*item = *queueItemModelToDomain(model)
	}
	return true, nil
}

// ClaimNext picks the due pending item with the highest priority and moves
// it to PROCESSING. SKIP LOCKED keeps concurrent workers from blocking on
// each other's claims.
func (r *GormQueueRepo) ClaimNext(ctx context.Context, now time.Time) (*domain.EmissionQueueItem, error) {
	var claimed *EmissionQueueItemModel

	err := conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		var model EmissionQueueItemModel
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND next_attempt_at <= ?", domain.QueueStatusPending, now).
			Order("priority_rank DESC, created_at ASC").
			First(&model).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := tx.
			Model(&model).
			Update("status", domain.QueueStatusProcessing).Error; err != nil {
			return err
		}

		model.Status = domain.QueueStatusProcessing
		claimed = &model
		return nil
	})
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		return nil, nil
	}
	return queueItemModelToDomain(claimed), nil
}

func (r *GormQueueRepo) MarkDone(ctx context.Context, id string) error {
	result := conn(ctx, r.db).
		Model(&EmissionQueueItemModel{}).
		Where("id = ? AND status = ?", id, domain.QueueStatusProcessing).
		Update("status", domain.QueueStatusDone)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkForRetry returns a processing item to the pending pool with its next
// attempt deferred per the backoff policy.
func (r *GormQueueRepo) MarkForRetry(ctx context.Context, id string, nextAttemptAt time.Time, lastError string) error {
	result := conn(ctx, r.db).
		Model(&EmissionQueueItemModel{}).
		Where("id = ? AND status = ?", id, domain.QueueStatusProcessing).
		Updates(map[string]any{
			"status":          domain.QueueStatusPending,
			"attempts":        gorm.Expr("attempts + 1"),
			"next_attempt_at": nextAttemptAt,
			"last_error":      lastError,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormQueueRepo) MarkFailed(ctx context.Context, id string, lastError string) error {
	result := conn(ctx, r.db).
		Model(&EmissionQueueItemModel{}).
		Where("id = ? AND status = ?", id, domain.QueueStatusProcessing).
		Updates(map[string]any{
			"status":     domain.QueueStatusFailed,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": lastError,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormQueueRepo) CountPending(ctx context.Context) (int, error) {
	var count int64
	err := conn(ctx, r.db).
		Model(&EmissionQueueItemModel{}).
		Where("status IN ?", []domain.QueueStatus{domain.QueueStatusPending, domain.QueueStatusProcessing}).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *GormQueueRepo) ListFailedSince(ctx context.Context, since time.Time) ([]domain.EmissionQueueItem, error) {
	var models []EmissionQueueItemModel
	err := conn(ctx, r.db).
		Where("status = ? AND updated_at >= ?", domain.QueueStatusFailed, since).
		Order("updated_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	items := make([]domain.EmissionQueueItem, 0, len(models))
	for i := range models {
		items = append(items, *queueItemModelToDomain(&models[i]))
	}
	return items, nil
}
