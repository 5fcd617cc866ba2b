package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ronaldofilardo/Qwork-sub006/internal/domain"
	"github.com/ronaldofilardo/Qwork-sub006/internal/render"
	"go.uber.org/zap"
)

func concludedBatch() *domain.Batch {
	concludedAt := time.Date(2026, 3, 10, 11, 50, 0, 0, time.UTC)
	return &domain.Batch{
		ID:               "b1",
		ClientRef:        "acme",
		Status:           domain.BatchStatusConcluded,
		TotalCount:       5,
		CompletedCount:   4,
		InactivatedCount: 1,
		ConcludedAt:      &concludedAt,
	}
}

func newTestEmitter(t *testing.T, batches *fakeBatchRepo, reports *fakeReportRepo, renderer *fakeRenderer, artifacts *fakeArtifactStore, audits *fakeAuditRepo) *Emitter {
	t.Helper()
	emitter, err := NewEmitter(batches, reports, newTestAuditRecorder(t, audits), &fakeTxManager{}, renderer, artifacts, &fakeRateLimiter{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEmitter() error = %v", err)
	}
	return emitter
}

func TestEmitterGenerateSuccess(t *testing.T) {
	t.Parallel()

	document := []byte("rendered-pdf")
	sum := sha256.Sum256(document)
	wantHash := hex.EncodeToString(sum[:])
	baseNow := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	var savedArtifact []byte
	var gotHash string
	var gotEmittedAt time.Time
	var auditAction string

	emittedState := &domain.Report{ID: "b1", Status: domain.ReportStatusDraft}

	batches := &fakeBatchRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Batch, error) {
			return concludedBatch(), nil
		},
	}
	reports := &fakeReportRepo{
		getByBatchIDFn: func(ctx context.Context, batchID string) (*domain.Report, error) {
			return emittedState, nil
		},
		markEmittedFn: func(ctx context.Context, batchID string, contentHash string, emittedAt time.Time) error {
			gotHash = contentHash
			gotEmittedAt = emittedAt
			emittedState = &domain.Report{ID: "b1", Status: domain.ReportStatusEmitted, ContentHash: contentHash, EmittedAt: &emittedAt}
			return nil
		},
	}
	renderer := &fakeRenderer{
		renderFn: func(ctx context.Context, aggregates render.BatchAggregates) ([]byte, error) {
			if aggregates.Total != 5 || aggregates.Completed != 4 {
				t.Fatalf("aggregates = %+v, want total 5 completed 4", aggregates)
			}
			return document, nil
		},
	}
	artifacts := &fakeArtifactStore{
		saveFn: func(reportID string, data []byte) error {
			savedArtifact = data
			return nil
		},
	}
	audits := &fakeAuditRepo{
		appendFn: func(ctx context.Context, entry *domain.AuditEntry) error {
			auditAction = entry.Action
			return nil
		},
	}

	emitter := newTestEmitter(t, batches, reports, renderer, artifacts, audits)
	emitter.now = func() time.Time { return baseNow }

	report, err := emitter.Generate(context.Background(), testActor(), "b1")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if gotHash != wantHash {
		t.Fatalf("content hash = %s, want %s", gotHash, wantHash)
	}
	if !gotEmittedAt.Equal(baseNow) {
		t.Fatalf("emittedAt = %v, want %v", gotEmittedAt, baseNow)
	}
	if string(savedArtifact) != string(document) {
		t.Fatal("artifact should hold the rendered document")
	}
	if auditAction != domain.AuditActionReportEmitted {
		t.Fatalf("audit action = %s, want %s", auditAction, domain.AuditActionReportEmitted)
	}
	if report.Status != domain.ReportStatusEmitted {
		t.Fatalf("report status = %s, want EMITTED", report.Status)
	}
}

func TestEmitterGenerateRejectsUnconcludedBatch(t *testing.T) {
	t.Parallel()

	batches := &fakeBatchRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Batch, error) {
			return &domain.Batch{
				ID:               "b1",
				ClientRef:        "acme",
				Status:           domain.BatchStatusActive,
				TotalCount:       5,
				CompletedCount:   2,
				InactivatedCount: 1,
			}, nil
		},
	}

	emitter := newTestEmitter(t, batches, &fakeReportRepo{}, &fakeRenderer{}, &fakeArtifactStore{}, &fakeAuditRepo{})

	_, err := emitter.Generate(context.Background(), testActor(), "b1")
	if !errors.Is(err, domain.ErrStateConflict) {
		t.Fatalf("Generate() error = %v, want state conflict", err)
	}
	if !strings.Contains(err.Error(), "3/5 finalized") {
		t.Fatalf("error should name the finalized ratio, got %q", err.Error())
	}
}

func TestEmitterGenerateRejectsViewer(t *testing.T) {
	t.Parallel()

	emitter := newTestEmitter(t, &fakeBatchRepo{}, &fakeReportRepo{}, &fakeRenderer{}, &fakeArtifactStore{}, &fakeAuditRepo{})

	viewer := domain.Actor{ID: "user-2", Role: domain.RoleViewer}
	_, err := emitter.Generate(context.Background(), viewer, "b1")
	if !errors.Is(err, domain.ErrAuthorization) {
		t.Fatalf("Generate() error = %v, want authorization error", err)
	}
}

func TestEmitterGenerateAlreadyEmitted(t *testing.T) {
	t.Parallel()

	emittedAt := time.Now()
	batches := &fakeBatchRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Batch, error) {
			return concludedBatch(), nil
		},
	}
	reports := &fakeReportRepo{
		getByBatchIDFn: func(ctx context.Context, batchID string) (*domain.Report, error) {
			return &domain.Report{
				ID:          "b1",
				Status:      domain.ReportStatusEmitted,
				ContentHash: strings.Repeat("a", 64),
				EmittedAt:   &emittedAt,
			}, nil
		},
		markEmittedFn: func(ctx context.Context, batchID string, contentHash string, at time.Time) error {
			t.Fatal("MarkEmitted should not run for an already emitted report")
			return nil
		},
	}

	emitter := newTestEmitter(t, batches, reports, &fakeRenderer{}, &fakeArtifactStore{}, &fakeAuditRepo{})

	_, err := emitter.Generate(context.Background(), testActor(), "b1")
	if !errors.Is(err, domain.ErrAlreadyEmitted) {
		t.Fatalf("Generate() error = %v, want already emitted", err)
	}
}

func TestEmitterGenerateSingleFlightLoser(t *testing.T) {
	t.Parallel()

	batches := &fakeBatchRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Batch, error) {
			return concludedBatch(), nil
		},
	}
	reports := &fakeReportRepo{
		getByBatchIDFn: func(ctx context.Context, batchID string) (*domain.Report, error) {
			return &domain.Report{ID: "b1", Status: domain.ReportStatusDraft}, nil
		},
		markEmittedFn: func(ctx context.Context, batchID string, contentHash string, at time.Time) error {
			return domain.ErrAlreadyEmitted
		},
	}

	emitter := newTestEmitter(t, batches, reports, &fakeRenderer{}, &fakeArtifactStore{}, &fakeAuditRepo{})

	_, err := emitter.Generate(context.Background(), testActor(), "b1")
	if !errors.Is(err, domain.ErrAlreadyEmitted) {
		t.Fatalf("Generate() error = %v, want already emitted", err)
	}
}

func TestEmitterGenerateTransientRenderFailure(t *testing.T) {
	t.Parallel()

	batches := &fakeBatchRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Batch, error) {
			return concludedBatch(), nil
		},
	}
	reports := &fakeReportRepo{
		getByBatchIDFn: func(ctx context.Context, batchID string) (*domain.Report, error) {
			return &domain.Report{ID: "b1", Status: domain.ReportStatusDraft}, nil
		},
	}
	renderer := &fakeRenderer{
		renderFn: func(ctx context.Context, aggregates render.BatchAggregates) ([]byte, error) {
			return nil, &render.EngineError{StatusCode: 503, Message: "engine busy", Transient: true}
		},
	}

	emitter := newTestEmitter(t, batches, reports, renderer, &fakeArtifactStore{}, &fakeAuditRepo{})

	_, err := emitter.Generate(context.Background(), testActor(), "b1")
	if !domain.IsRetryable(err) {
		t.Fatalf("Generate() error = %v, want retryable transient error", err)
	}
}
