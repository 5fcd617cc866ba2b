package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ronaldofilardo/Qwork-sub006/internal/domain"
	"github.com/ronaldofilardo/Qwork-sub006/internal/observability"
	"github.com/ronaldofilardo/Qwork-sub006/internal/ratelimit"
	"github.com/ronaldofilardo/Qwork-sub006/internal/render"
	"github.com/ronaldofilardo/Qwork-sub006/internal/repository"
	"go.uber.org/zap"
)

const renderOperation = "render"

// ArtifactStore persists rendered artifacts between emission and delivery.
type ArtifactStore interface {
	Save(reportID string, data []byte) error
	Load(reportID string) ([]byte, error)
}

// Emitter generates the authoritative report for a concluded batch: renders
// the artifact, computes the content digest and finalizes the report row
// exactly once. Two concurrent calls for the same batch yield one success;
// the other observes ErrAlreadyEmitted through the conditional update.
type Emitter struct {
	batches   repository.BatchRepository
	reports   repository.ReportRepository
	audit     *AuditRecorder
	tx        repository.TxManager
	renderer  render.Renderer
	artifacts ArtifactStore
	limiter   ratelimit.RateLimiter
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

func NewEmitter(
	batches repository.BatchRepository,
	reports repository.ReportRepository,
	audit *AuditRecorder,
	tx repository.TxManager,
	renderer render.Renderer,
	artifacts ArtifactStore,
	limiter ratelimit.RateLimiter,
	logger *zap.Logger,
) (*Emitter, error) {
	if batches == nil || reports == nil {
		return nil, fmt.Errorf("batch and report repositories are required")
	}
	if audit == nil {
		return nil, fmt.Errorf("audit recorder is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx manager is required")
	}
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if artifacts == nil {
		return nil, fmt.Errorf("artifact store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Emitter{
		batches:   batches,
		reports:   reports,
		audit:     audit,
		tx:        tx,
		renderer:  renderer,
		artifacts: artifacts,
		limiter:   limiter,
		logger:    logger,
		now:       time.Now,
	}, nil
}

func (e *Emitter) SetMetrics(metrics *observability.Metrics) {
	if e == nil {
		return
	}
	e.metrics = metrics
}

// Generate emits the report for a concluded batch. A failure before the
// final write leaves the report absent or in draft, so the caller may retry.
func (e *Emitter) Generate(ctx context.Context, actor domain.Actor, batchID string) (*domain.Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if !actor.CanEmit() {
		return nil, fmt.Errorf("%w: actor %s may not emit reports", domain.ErrAuthorization, actor.ID)
	}

	batch, err := e.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != domain.BatchStatusConcluded {
		finalized := batch.CompletedCount + batch.InactivatedCount
		return nil, fmt.Errorf("%w: batch %s is not concluded: %d/%d finalized",
			domain.ErrStateConflict, batchID, finalized, batch.TotalCount)
	}

	if report, err := e.reports.GetByBatchID(ctx, batchID); err == nil && report.Status.Finalized() {
		return nil, domain.ErrAlreadyEmitted
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	// Reserve the report row under the batch's id before the expensive
	// render, so a queue item and a manual emission share one identity.
	if err := e.reports.EnsureDraft(ctx, batchID); err != nil {
		return nil, err
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, renderOperation); err != nil {
			return nil, fmt.Errorf("%w: render rate limiter unavailable: %v", domain.ErrTransient, err)
		}
	}

	aggregates := render.BatchAggregates{
		BatchID:     batch.ID,
		ClientRef:   batch.ClientRef,
		Total:       batch.TotalCount,
		Completed:   batch.CompletedCount,
		Inactivated: batch.InactivatedCount,
	}
	if batch.ConcludedAt != nil {
		aggregates.ConcludedAt = *batch.ConcludedAt
	}

	document, err := e.renderer.Render(ctx, aggregates)
	if err != nil {
		if render.IsTransient(err) {
			return nil, fmt.Errorf("%w: rendering engine unavailable: %v", domain.ErrTransient, err)
		}
		return nil, fmt.Errorf("rendering failed for batch %s: %w", batchID, err)
	}

	sum := sha256.Sum256(document)
	contentHash := hex.EncodeToString(sum[:])

	if err := e.artifacts.Save(batchID, document); err != nil {
		return nil, fmt.Errorf("%w: failed to persist artifact: %v", domain.ErrTransient, err)
	}

	emittedAt := e.now().UTC()
	err = e.tx.InTx(ctx, actor, func(ctx context.Context) error {
		if err := e.reports.MarkEmitted(ctx, batchID, contentHash, emittedAt); err != nil {
			return err
		}
		payload := map[string]any{
			"contentHash": contentHash,
			"emittedAt":   emittedAt.Format(time.RFC3339),
		}
		return e.audit.Record(ctx, actor, domain.AuditActionReportEmitted, domain.AuditResourceReport, batchID, payload)
	})
	if err != nil {
		return nil, err
	}

	e.metrics.IncEmission(emissionTrigger(actor))
	if batch.ConcludedAt != nil {
		e.metrics.ObserveEmissionDuration(emittedAt.Sub(*batch.ConcludedAt))
	}

	e.logger.Info("report emitted",
		zap.String("batchId", batchID),
		zap.String("contentHash", contentHash),
		zap.String("actorId", actor.ID),
	)

	return e.reports.GetByBatchID(ctx, batchID)
}

func emissionTrigger(actor domain.Actor) string {
	if actor.ID == domain.SystemActor().ID {
		return "auto"
	}
	return "manual"
}
