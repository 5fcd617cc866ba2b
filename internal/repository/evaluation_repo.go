package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ronaldofilardo/Qwork-sub006/internal/domain"
	"gorm.io/gorm"
)

type EvaluationRepository interface {
	CreateAll(ctx context.Context, evaluations []*domain.Evaluation) error
	GetByID(ctx context.Context, id string) (*domain.Evaluation, error)
	CountsFor(ctx context.Context, batchID string) (domain.BatchCounts, error)
	Conclude(ctx context.Context, id string, responses json.RawMessage, at time.Time) error
	Inactivate(ctx context.Context, id string) error
	Reopen(ctx context.Context, id string) error
}

type GormEvaluationRepo struct {
	db *gorm.DB
}

func NewGormEvaluationRepo(db *gorm.DB) *GormEvaluationRepo {
	return &GormEvaluationRepo{db: db}
}

func (r *GormEvaluationRepo) CreateAll(ctx context.Context, evaluations []*domain.Evaluation) error {
	models := make([]EvaluationModel, 0, len(evaluations))
	modelIndexes := make([]int, 0, len(evaluations))
	for i, e := range evaluations {
		model := evaluationModelFromDomain(e)
		if model != nil {
			models = append(models, *model)
			modelIndexes = append(modelIndexes, i)
		}
	}

	if len(models) == 0 {
		return nil
	}

	if err := conn(ctx, r.db).CreateInBatches(&models, 100).Error; err != nil {
		return err
	}

	for i := range models {
		idx := modelIndexes[i]
		if idx < len(evaluations) && evaluations[idx] != nil {
			*evaluations[idx] = *evaluationModelToDomain(&models[i])
		}
	}

	return nil
}

func (r *GormEvaluationRepo) GetByID(ctx context.Context, id string) (*domain.Evaluation, error) {
	var model EvaluationModel
	err := conn(ctx, r.db).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return evaluationModelToDomain(&model), nil
}

type evaluationCountsRow struct {
	Total       int64 `gorm:"column:total"`
	Completed   int64 `gorm:"column:completed"`
	Inactivated int64 `gorm:"column:inactivated"`
}

// CountsFor aggregates evaluation states for a batch in one query. Counts
// are scanned into int64 here so every caller sees plain integers no matter
// how the driver types aggregate results.
func (r *GormEvaluationRepo) CountsFor(ctx context.Context, batchID string) (domain.BatchCounts, error) {
	var row evaluationCountsRow
	err := conn(ctx, r.db).
		Model(&EvaluationModel{}).
		Select(
			"COUNT(*) AS total, "+
				"COUNT(*) FILTER (WHERE status = ?) AS completed, "+
				"COUNT(*) FILTER (WHERE status = ?) AS inactivated",
			domain.EvaluationStatusConcluded,
			domain.EvaluationStatusInactivated,
		).
		Where("batch_id = ?", batchID).
		Scan(&row).Error
	if err != nil {
		return domain.BatchCounts{}, err
	}

	return domain.BatchCounts{
		Total:       int(row.Total),
		Completed:   int(row.Completed),
		Inactivated: int(row.Inactivated),
	}, nil
}

// Conclude freezes an evaluation with its submitted responses. Only a
// started evaluation can conclude; anything else is a state conflict.
func (r *GormEvaluationRepo) Conclude(ctx context.Context, id string, responses json.RawMessage, at time.Time) error {
	result := conn(ctx, r.db).
		Model(&EvaluationModel{}).
		Where("id = ? AND status = ?", id, domain.EvaluationStatusStarted).
		Updates(map[string]any{
			"status":       domain.EvaluationStatusConcluded,
			"responses":    responses,
			"completed_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.classifyMissedUpdate(ctx, id, "evaluation is not open for submission")
	}
	return nil
}

func (r *GormEvaluationRepo) Inactivate(ctx context.Context, id string) error {
	result := conn(ctx, r.db).
		Model(&EvaluationModel{}).
		Where("id = ? AND status = ?", id, domain.EvaluationStatusStarted).
		Update("status", domain.EvaluationStatusInactivated)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.classifyMissedUpdate(ctx, id, "evaluation is not open for inactivation")
	}
	return nil
}

// Reopen clears a concluded or inactivated evaluation back to started. The
// caller (reset flow) decides whether the batch's report state permits it.
func (r *GormEvaluationRepo) Reopen(ctx context.Context, id string) error {
	result := conn(ctx, r.db).
		Model(&EvaluationModel{}).
		Where("id = ? AND status IN ?", id, []domain.EvaluationStatus{
			domain.EvaluationStatusConcluded,
			domain.EvaluationStatusInactivated,
		}).
		Updates(map[string]any{
			"status":       domain.EvaluationStatusStarted,
			"responses":    nil,
			"completed_at": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var model EvaluationModel
		err := conn(ctx, r.db).First(&model, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		return domain.ErrAlreadyReset
	}
	return nil
}

func (r *GormEvaluationRepo) classifyMissedUpdate(ctx context.Context, id string, detail string) error {
	var model EvaluationModel
	err := conn(ctx, r.db).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", domain.ErrStateConflict, detail)
}
