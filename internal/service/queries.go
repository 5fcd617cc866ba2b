package service

import (
	"context"
	"fmt"

	"github.com/ronaldofilardo/Qwork-sub006/internal/domain"
	"github.com/ronaldofilardo/Qwork-sub006/internal/repository"
	"go.uber.org/zap"
)

// QueryService serves reads over batches, reports and the audit trail.
// Batch reads leave an access entry so report consultation is traceable.
type QueryService struct {
	batches repository.BatchRepository
	reports repository.ReportRepository
	audits  repository.AuditRepository
	audit   *AuditRecorder
	logger  *zap.Logger
}

func NewQueryService(
	batches repository.BatchRepository,
	reports repository.ReportRepository,
	audits repository.AuditRepository,
	audit *AuditRecorder,
	logger *zap.Logger,
) (*QueryService, error) {
	if batches == nil || reports == nil || audits == nil {
		return nil, fmt.Errorf("batch, report and audit repositories are required")
	}
	if audit == nil {
		return nil, fmt.Errorf("audit recorder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &QueryService{
		batches: batches,
		reports: reports,
		audits:  audits,
		audit:   audit,
		logger:  logger,
	}, nil
}

// GetBatch fetches a batch and records the access.
func (q *QueryService) GetBatch(ctx context.Context, actor domain.Actor, batchID string) (*domain.Batch, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := actor.Validate(); err != nil {
		return nil, err
	}

	batch, err := q.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}

	q.recordAccess(ctx, actor, batchID, map[string]any{"view": "batch"})
	return batch, nil
}

// GetReport fetches a batch's report and records the access.
func (q *QueryService) GetReport(ctx context.Context, actor domain.Actor, batchID string) (*domain.Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := actor.Validate(); err != nil {
		return nil, err
	}

	report, err := q.reports.GetByBatchID(ctx, batchID)
	if err != nil {
		return nil, err
	}

	q.recordAccess(ctx, actor, batchID, map[string]any{"view": "report"})
	return report, nil
}

// AuditTrail lists the append-only history for a resource.
func (q *QueryService) AuditTrail(ctx context.Context, actor domain.Actor, resourceType string, resourceID string) ([]domain.AuditEntry, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := actor.Validate(); err != nil {
		return nil, err
	}

	return q.audits.ListByResource(ctx, resourceType, resourceID)
}

func (q *QueryService) recordAccess(ctx context.Context, actor domain.Actor, batchID string, payload map[string]any) {
	if err := q.audit.Record(ctx, actor, domain.AuditActionBatchAccessed, domain.AuditResourceBatch, batchID, payload); err != nil {
		q.logger.Warn("failed to record batch access", zap.String("batchId", batchID), zap.Error(err))
	}
}
