package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ronaldofilardo/Qwork-sub006/internal/domain"
	"github.com/ronaldofilardo/Qwork-sub006/internal/observability"
	"github.com/ronaldofilardo/Qwork-sub006/internal/repository"
	"go.uber.org/zap"
)

// SweepResult summarizes one auto-emission sweep pass.
type SweepResult struct {
	Enqueued int `json:"enqueued"`
	Skipped  int `json:"skipped"`
}

// Scheduler finds concluded batches whose grace period has elapsed and hands
// them to the emission queue. Sweeps are safe to run concurrently: the
// queue's uniqueness constraint absorbs duplicate enqueues, and batches
// whose report was already finalized are skipped.
type Scheduler struct {
	batches  repository.BatchRepository
	reports  repository.ReportRepository
	queue    repository.QueueRepository
	audit    *AuditRecorder
	metrics  *observability.Metrics
	logger   *zap.Logger
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewScheduler(
	batches repository.BatchRepository,
	reports repository.ReportRepository,
	queue repository.QueueRepository,
	audit *AuditRecorder,
	limit int,
	interval time.Duration,
	logger *zap.Logger,
) (*Scheduler, error) {
	if batches == nil || reports == nil || queue == nil {
		return nil, fmt.Errorf("batch, report and queue repositories are required")
	}
	if audit == nil {
		return nil, fmt.Errorf("audit recorder is required")
	}
	if limit <= 0 {
		limit = 100
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		batches:  batches,
		reports:  reports,
		queue:    queue,
		audit:    audit,
		logger:   logger,
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}, nil
}

func (s *Scheduler) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Sweep enqueues emission work for every batch whose scheduled auto-emission
// time has passed and whose report has not been finalized yet.
func (s *Scheduler) Sweep(ctx context.Context) (SweepResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var result SweepResult
	now := s.now().UTC()
	actor := domain.SystemActor()

	due, err := s.batches.ListDueAutoEmit(ctx, now, s.limit)
	if err != nil {
		return result, err
	}

	for _, batch := range due {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		finalized, err := s.reportFinalized(ctx, batch.ID)
		if err != nil {
			s.logger.Warn("sweep: report lookup failed", zap.String("batchId", batch.ID), zap.Error(err))
			continue
		}
		if finalized {
			result.Skipped++
			s.metrics.IncAutoEmitSkip()
			payload := map[string]any{"reason": "report already finalized"}
			if err := s.audit.Record(ctx, actor, domain.AuditActionAutoEmitSkipped, domain.AuditResourceBatch, batch.ID, payload); err != nil {
				s.logger.Warn("sweep: failed to record skip", zap.String("batchId", batch.ID), zap.Error(err))
			}
			// Clear the flag so the batch is skipped (and audited) once,
			// not on every sweep until delivery.
			if err := s.batches.DisableAutoEmit(ctx, batch.ID); err != nil {
				s.logger.Warn("sweep: failed to clear auto-emit flag", zap.String("batchId", batch.ID), zap.Error(err))
			}
			continue
		}

		item := &domain.EmissionQueueItem{
			ID:            uuid.NewString(),
			BatchID:       batch.ID,
			Status:        domain.QueueStatusPending,
			Priority:      domain.PriorityNormal,
			NextAttemptAt: now,
		}
		inserted, err := s.queue.Enqueue(ctx, item)
		if err != nil {
			s.logger.Warn("sweep: enqueue failed", zap.String("batchId", batch.ID), zap.Error(err))
			continue
		}
		if inserted {
			result.Enqueued++
		}
	}

	s.logger.Info("auto-emission sweep finished",
		zap.Int("due", len(due)),
		zap.Int("enqueued", result.Enqueued),
		zap.Int("skipped", result.Skipped),
	)

	return result, nil
}

func (s *Scheduler) reportFinalized(ctx context.Context, batchID string) (bool, error) {
	report, err := s.reports.GetByBatchID(ctx, batchID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return report.Status.Finalized(), nil
}

// Start runs periodic sweeps until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("auto-emission sweep failed", zap.Error(err))
			}
		}
	}
}
