package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ronaldofilardo/Qwork-sub006/internal/domain"
	"github.com/ronaldofilardo/Qwork-sub006/internal/objectstore"
	"github.com/ronaldofilardo/Qwork-sub006/internal/observability"
	"github.com/ronaldofilardo/Qwork-sub006/internal/repository"
	"go.uber.org/zap"
)

// Dispatcher delivers emitted reports to the external object store. Delivery
// is idempotent: a report already delivered is returned as-is, and the
// one-shot conditional update in the repository prevents a second upload
// winner from overwriting the first delivery record.
type Dispatcher struct {
	reports       repository.ReportRepository
	audit         *AuditRecorder
	tx            repository.TxManager
	artifacts     ArtifactStore
	store         objectstore.ObjectStore
	metrics       *observability.Metrics
	logger        *zap.Logger
	uploadTimeout time.Duration
	now           func() time.Time
}

func NewDispatcher(
	reports repository.ReportRepository,
	audit *AuditRecorder,
	tx repository.TxManager,
	artifacts ArtifactStore,
	store objectstore.ObjectStore,
	uploadTimeout time.Duration,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if reports == nil {
		return nil, fmt.Errorf("report repository is required")
	}
	if audit == nil {
		return nil, fmt.Errorf("audit recorder is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx manager is required")
	}
	if artifacts == nil {
		return nil, fmt.Errorf("artifact store is required")
	}
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if uploadTimeout <= 0 {
		uploadTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		reports:       reports,
		audit:         audit,
		tx:            tx,
		artifacts:     artifacts,
		store:         store,
		logger:        logger,
		uploadTimeout: uploadTimeout,
		now:           time.Now,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// Deliver uploads the emitted report's artifact and records the delivery.
// Calling it again after a successful delivery returns the stored report
// without touching the object store.
func (d *Dispatcher) Deliver(ctx context.Context, actor domain.Actor, batchID string) (*domain.Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if !actor.CanEmit() {
		return nil, fmt.Errorf("%w: actor %s may not deliver reports", domain.ErrAuthorization, actor.ID)
	}

	report, err := d.reports.GetByBatchID(ctx, batchID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: no emitted report for batch %s", domain.ErrNotEmittedYet, batchID)
		}
		return nil, err
	}
	switch report.Status {
	case domain.ReportStatusDelivered:
		return report, nil
	case domain.ReportStatusDraft:
		return nil, fmt.Errorf("%w: report for batch %s is still a draft", domain.ErrNotEmittedYet, batchID)
	}

	document, err := d.artifacts.Load(batchID)
	if err != nil {
		return nil, fmt.Errorf("%w: artifact for report %s unavailable: %v", domain.ErrTransient, batchID, err)
	}
	if err := d.verifyIntegrity(ctx, actor, report, document); err != nil {
		return nil, err
	}

	uploadCtx, cancel := context.WithTimeout(ctx, d.uploadTimeout)
	defer cancel()

	result, err := d.store.Put(uploadCtx, batchID, document)
	if err != nil {
		if objectstore.IsTransient(err) {
			return nil, fmt.Errorf("%w: object store unavailable: %v", domain.ErrTransient, err)
		}
		return nil, fmt.Errorf("upload failed for report %s: %w", batchID, err)
	}
	if result.Checksum != "" && result.Checksum != report.ContentHash {
		return nil, d.recordIntegrityViolation(ctx, actor, report, "object store checksum mismatch", result.Checksum)
	}

	sentAt := d.now().UTC()
	err = d.tx.InTx(ctx, actor, func(ctx context.Context) error {
		if err := d.reports.MarkDelivered(ctx, batchID, result.URL, sentAt); err != nil {
			return err
		}
		payload := map[string]any{
			"remoteUrl": result.URL,
			"sentAt":    sentAt.Format(time.RFC3339),
		}
		return d.audit.Record(ctx, actor, domain.AuditActionReportDelivered, domain.AuditResourceReport, batchID, payload)
	})
	if err != nil {
		return nil, err
	}

	d.metrics.IncDelivery()
	if report.EmittedAt != nil {
		d.metrics.ObserveDeliveryDuration(sentAt.Sub(*report.EmittedAt))
	}

	d.logger.Info("report delivered",
		zap.String("batchId", batchID),
		zap.String("remoteUrl", result.URL),
	)

	return d.reports.GetByBatchID(ctx, batchID)
}

// verifyIntegrity recomputes the artifact digest and compares it against the
// hash frozen at emission time. A mismatch means the stored bytes no longer
// match what was emitted, which must never be delivered.
func (d *Dispatcher) verifyIntegrity(ctx context.Context, actor domain.Actor, report *domain.Report, document []byte) error {
	sum := sha256.Sum256(document)
	actual := hex.EncodeToString(sum[:])
	if actual == report.ContentHash {
		return nil
	}
	return d.recordIntegrityViolation(ctx, actor, report, "artifact digest mismatch", actual)
}

func (d *Dispatcher) recordIntegrityViolation(ctx context.Context, actor domain.Actor, report *domain.Report, detail string, observed string) error {
	payload := map[string]any{
		"detail":       detail,
		"expectedHash": report.ContentHash,
		"observedHash": observed,
	}
	if err := d.audit.Record(ctx, actor, domain.AuditActionIntegrityViolation, domain.AuditResourceReport, report.ID, payload); err != nil {
		d.logger.Error("failed to record integrity violation", zap.String("batchId", report.ID), zap.Error(err))
	}
	return fmt.Errorf("%w: %s for report %s", domain.ErrIntegrity, detail, report.ID)
}
