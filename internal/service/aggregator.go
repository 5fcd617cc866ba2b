package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ronaldofilardo/Qwork-sub006/internal/domain"
	"github.com/ronaldofilardo/Qwork-sub006/internal/repository"
	"go.uber.org/zap"
)

const defaultGracePeriod = 10 * time.Minute

// Aggregator is the single writer of batch status and counts. It recomputes
// a batch from its evaluation aggregate and, on first conclusion, schedules
// automatic emission after the grace period.
type Aggregator struct {
	batches     repository.BatchRepository
	evaluations repository.EvaluationRepository
	reports     repository.ReportRepository
	audit       *AuditRecorder
	tx          repository.TxManager
	logger      *zap.Logger
	gracePeriod time.Duration
	now         func() time.Time
}

func NewAggregator(
	batches repository.BatchRepository,
	evaluations repository.EvaluationRepository,
	reports repository.ReportRepository,
	audit *AuditRecorder,
	tx repository.TxManager,
	gracePeriod time.Duration,
	logger *zap.Logger,
) (*Aggregator, error) {
	if batches == nil || evaluations == nil || reports == nil {
		return nil, fmt.Errorf("batch, evaluation and report repositories are required")
	}
	if audit == nil {
		return nil, fmt.Errorf("audit recorder is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx manager is required")
	}
	if gracePeriod <= 0 {
		gracePeriod = defaultGracePeriod
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		batches:     batches,
		evaluations: evaluations,
		reports:     reports,
		audit:       audit,
		tx:          tx,
		logger:      logger,
		gracePeriod: gracePeriod,
		now:         time.Now,
	}, nil
}

// Recompute derives the batch status from evaluation counts and persists it.
// Re-invocation with unchanged counts is a no-op. A batch whose report has
// been delivered never changes again.
func (a *Aggregator) Recompute(ctx context.Context, actor domain.Actor, batchID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := actor.Validate(); err != nil {
		return err
	}

	return a.tx.InTx(ctx, actor, func(ctx context.Context) error {
		batch, err := a.batches.GetByID(ctx, batchID)
		if err != nil {
			return err
		}

		counts, err := a.evaluations.CountsFor(ctx, batchID)
		if err != nil {
			return err
		}
		if err := counts.Validate(); err != nil {
			return err
		}

		newStatus := domain.DeriveBatchStatus(counts)
		unchanged := newStatus == batch.Status &&
			counts.Total == batch.TotalCount &&
			counts.Completed == batch.CompletedCount &&
			counts.Inactivated == batch.InactivatedCount
		if unchanged {
			return nil
		}

		if err := a.guardDeliveredBatch(ctx, batch, newStatus); err != nil {
			return err
		}

		update := repository.RecomputeUpdate{
			Status: newStatus,
			Counts: counts,
		}

		firstConclusion := newStatus == domain.BatchStatusConcluded && batch.Status != domain.BatchStatusConcluded
		if firstConclusion {
			now := a.now().UTC()
			scheduledAt := now.Add(a.gracePeriod)
			flag := true
			update.ConcludedAt = &now
			update.ScheduledAutoEmitAt = &scheduledAt
			update.AutoEmitFlag = &flag
		}

		if err := a.batches.ApplyRecompute(ctx, batchID, update); err != nil {
			return err
		}

		if newStatus != batch.Status {
			payload := map[string]any{
				"from":        batch.Status.String(),
				"to":          newStatus.String(),
				"total":       counts.Total,
				"completed":   counts.Completed,
				"inactivated": counts.Inactivated,
			}
			if err := a.audit.Record(ctx, actor, domain.AuditActionBatchStatusChanged, domain.AuditResourceBatch, batchID, payload); err != nil {
				return err
			}
		}

		if firstConclusion {
			payload := map[string]any{
				"scheduledAutoEmitAt": update.ScheduledAutoEmitAt.Format(time.RFC3339),
			}
			if err := a.audit.Record(ctx, actor, domain.AuditActionAutoEmitScheduled, domain.AuditResourceBatch, batchID, payload); err != nil {
				return err
			}
			a.logger.Info("batch concluded, auto-emission scheduled",
				zap.String("batchId", batchID),
				zap.Time("scheduledAutoEmitAt", *update.ScheduledAutoEmitAt),
			)
		}

		return nil
	})
}

// guardDeliveredBatch rejects any recompute that would move a batch whose
// report has already been delivered.
func (a *Aggregator) guardDeliveredBatch(ctx context.Context, batch *domain.Batch, newStatus domain.BatchStatus) error {
	report, err := a.reports.GetByBatchID(ctx, batch.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if report.Status == domain.ReportStatusDelivered {
		return fmt.Errorf("%w: batch %s has a delivered report and cannot change", domain.ErrStateConflict, batch.ID)
	}
	return nil
}
