package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ronaldofilardo/Qwork-sub006/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReportRepository is the only write path for report rows. Every mutation is
// a conditional update that re-checks the current status, mirroring the
// transition table enforced by the database trigger.
type ReportRepository interface {
	EnsureDraft(ctx context.Context, batchID string) error
	GetByBatchID(ctx context.Context, batchID string) (*domain.Report, error)
	MarkEmitted(ctx context.Context, batchID string, contentHash string, emittedAt time.Time) error
	MarkDelivered(ctx context.Context, batchID string, remoteURL string, sentAt time.Time) error
	ListPendingDelivery(ctx context.Context) ([]domain.Report, error)
	CountEmittedSince(ctx context.Context, since time.Time) (int, error)
	CountDeliveredSince(ctx context.Context, since time.Time) (int, error)
	EmissionLatenciesSince(ctx context.Context, since time.Time) ([]time.Duration, error)
	DeliveryLatenciesSince(ctx context.Context, since time.Time) ([]time.Duration, error)
}

type GormReportRepo struct {
	db *gorm.DB
}

func NewGormReportRepo(db *gorm.DB) *GormReportRepo {
	return &GormReportRepo{db: db}
}

// EnsureDraft reserves the report row under the batch's own id. Concurrent
// callers race on the primary key; the loser's insert is a no-op.
func (r *GormReportRepo) EnsureDraft(ctx context.Context, batchID string) error {
	model := &ReportModel{
		ID:     batchID,
		Status: domain.ReportStatusDraft,
	}
	err := conn(ctx, r.db).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model).Error
	if err != nil && !isUniqueViolationError(err) {
		return err
	}
	return nil
}

func (r *GormReportRepo) GetByBatchID(ctx context.Context, batchID string) (*domain.Report, error) {
	var model ReportModel
	err := conn(ctx, r.db).First(&model, "id = ?", batchID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return reportModelToDomain(&model), nil
}

// MarkEmitted finalizes the report content exactly once. The WHERE clause on
// DRAFT is the single-flight guarantee: of two concurrent emissions only one
// update matches, the other observes ErrAlreadyEmitted.
func (r *GormReportRepo) MarkEmitted(ctx context.Context, batchID string, contentHash string, emittedAt time.Time) error {
	result := conn(ctx, r.db).
		Model(&ReportModel{}).
		Where("id = ? AND status = ?", batchID, domain.ReportStatusDraft).
		Updates(map[string]any{
			"status":       domain.ReportStatusEmitted,
			"content_hash": contentHash,
			"emitted_at":   emittedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByBatchID(ctx, batchID); errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return domain.ErrAlreadyEmitted
	}
	return nil
}

// MarkDelivered sets the delivery fields exactly once, moving status
// strictly forward from EMITTED.
func (r *GormReportRepo) MarkDelivered(ctx context.Context, batchID string, remoteURL string, sentAt time.Time) error {
	result := conn(ctx, r.db).
		Model(&ReportModel{}).
		Where("id = ? AND status = ? AND sent_at IS NULL", batchID, domain.ReportStatusEmitted).
		Updates(map[string]any{
			"status":     domain.ReportStatusDelivered,
			"remote_url": remoteURL,
			"sent_at":    sentAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		report, err := r.GetByBatchID(ctx, batchID)
		if err != nil {
			return err
		}
		if report.Status == domain.ReportStatusDelivered {
			return domain.ErrAlreadyDelivered
		}
		return domain.ErrNotEmittedYet
	}
	return nil
}

// ListPendingDelivery returns emitted reports awaiting delivery, oldest
// emission first.
func (r *GormReportRepo) ListPendingDelivery(ctx context.Context) ([]domain.Report, error) {
	var models []ReportModel
	err := conn(ctx, r.db).
		Where("status = ?", domain.ReportStatusEmitted).
		Order("emitted_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	reports := make([]domain.Report, 0, len(models))
	for i := range models {
		reports = append(reports, *reportModelToDomain(&models[i]))
	}
	return reports, nil
}

func (r *GormReportRepo) CountEmittedSince(ctx context.Context, since time.Time) (int, error) {
	var count int64
	err := conn(ctx, r.db).
		Model(&ReportModel{}).
		Where("emitted_at >= ?", since).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *GormReportRepo) CountDeliveredSince(ctx context.Context, since time.Time) (int, error) {
	var count int64
	err := conn(ctx, r.db).
		Model(&ReportModel{}).
		Where("status = ? AND sent_at >= ?", domain.ReportStatusDelivered, since).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// EmissionLatenciesSince returns concluded-to-emitted durations for reports
// emitted inside the window. Latencies are extracted as whole milliseconds
// so the driver's numeric typing never leaks past this boundary.
func (r *GormReportRepo) EmissionLatenciesSince(ctx context.Context, since time.Time) ([]time.Duration, error) {
	var millis []int64
	err := conn(ctx, r.db).
		Model(&ReportModel{}).
		Joins("JOIN batches ON batches.id = reports.id").
		Where("reports.emitted_at >= ? AND batches.concluded_at IS NOT NULL", since).
		Pluck("CAST(EXTRACT(EPOCH FROM (reports.emitted_at - batches.concluded_at)) * 1000 AS BIGINT)", &millis).Error
	if err != nil {
		return nil, err
	}
	return durationsFromMillis(millis), nil
}

// DeliveryLatenciesSince returns emitted-to-delivered durations for reports
// delivered inside the window.
func (r *GormReportRepo) DeliveryLatenciesSince(ctx context.Context, since time.Time) ([]time.Duration, error) {
	var millis []int64
	err := conn(ctx, r.db).
		Model(&ReportModel{}).
		Where("status = ? AND sent_at >= ? AND emitted_at IS NOT NULL", domain.ReportStatusDelivered, since).
		Pluck("CAST(EXTRACT(EPOCH FROM (sent_at - emitted_at)) * 1000 AS BIGINT)", &millis).Error
	if err != nil {
		return nil, err
	}
	return durationsFromMillis(millis), nil
}

func durationsFromMillis(millis []int64) []time.Duration {
	durations := make([]time.Duration, 0, len(millis))
	for _, m := range millis {
		if m < 0 {
			m = 0
		}
		durations = append(durations, time.Duration(m)*time.Millisecond)
	}
	return durations
}
