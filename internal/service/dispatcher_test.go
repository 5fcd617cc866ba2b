package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/ronaldofilardo/Qwork-sub006/internal/domain"
	"github.com/ronaldofilardo/Qwork-sub006/internal/objectstore"
	"go.uber.org/zap"
)

func emittedReport(document []byte) *domain.Report {
	sum := sha256.Sum256(document)
	emittedAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return &domain.Report{
		ID:          "b1",
		Status:      domain.ReportStatusEmitted,
		ContentHash: hex.EncodeToString(sum[:]),
		EmittedAt:   &emittedAt,
	}
}

func newTestDispatcher(t *testing.T, reports *fakeReportRepo, artifacts *fakeArtifactStore, store *fakeObjectStore, audits *fakeAuditRepo) *Dispatcher {
	t.Helper()
	dispatcher, err := NewDispatcher(reports, newTestAuditRecorder(t, audits), &fakeTxManager{}, artifacts, store, 30*time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	return dispatcher
}

func TestDispatcherDeliverSuccess(t *testing.T) {
	t.Parallel()

	document := []byte("rendered-pdf")
	report := emittedReport(document)
	baseNow := time.Date(2026, 3, 10, 12, 5, 0, 0, time.UTC)

	var gotURL string
	var gotSentAt time.Time
	var auditAction string

	state := report
	reports := &fakeReportRepo{
		getByBatchIDFn: func(ctx context.Context, batchID string) (*domain.Report, error) {
			return state, nil
		},
		markDeliveredFn: func(ctx context.Context, batchID string, remoteURL string, sentAt time.Time) error {
			gotURL = remoteURL
			gotSentAt = sentAt
			delivered := *report
			delivered.Status = domain.ReportStatusDelivered
			delivered.RemoteURL = remoteURL
			delivered.SentAt = &sentAt
			state = &delivered
			return nil
		},
	}
	artifacts := &fakeArtifactStore{
		loadFn: func(reportID string) ([]byte, error) {
			return document, nil
		},
	}
	store := &fakeObjectStore{
		putFn: func(ctx context.Context, key string, blob []byte) (*objectstore.PutResult, error) {
			return &objectstore.PutResult{URL: "https://store.example/b1", Checksum: report.ContentHash}, nil
		},
	}
	audits := &fakeAuditRepo{
		appendFn: func(ctx context.Context, entry *domain.AuditEntry) error {
			auditAction = entry.Action
			return nil
		},
	}

	dispatcher := newTestDispatcher(t, reports, artifacts, store, audits)
	dispatcher.now = func() time.Time { return baseNow }

	delivered, err := dispatcher.Deliver(context.Background(), testActor(), "b1")
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if gotURL != "https://store.example/b1" {
		t.Fatalf("remote url = %s, want https://store.example/b1", gotURL)
	}
	if !gotSentAt.Equal(baseNow) {
		t.Fatalf("sentAt = %v, want %v", gotSentAt, baseNow)
	}
	if auditAction != domain.AuditActionReportDelivered {
		t.Fatalf("audit action = %s, want %s", auditAction, domain.AuditActionReportDelivered)
	}
	if delivered.Status != domain.ReportStatusDelivered {
		t.Fatalf("report status = %s, want DELIVERED", delivered.Status)
	}
}

func TestDispatcherDeliverAlreadyDeliveredIsIdempotent(t *testing.T) {
	t.Parallel()

	sentAt := time.Now()
	reports := &fakeReportRepo{
		getByBatchIDFn: func(ctx context.Context, batchID string) (*domain.Report, error) {
			return &domain.Report{
				ID:        "b1",
				Status:    domain.ReportStatusDelivered,
				RemoteURL: "https://store.example/b1",
				SentAt:    &sentAt,
			}, nil
		},
	}
	artifacts := &fakeArtifactStore{
		loadFn: func(reportID string) ([]byte, error) {
			t.Fatal("artifact should not be loaded for a delivered report")
			return nil, nil
		},
	}
	store := &fakeObjectStore{
		putFn: func(ctx context.Context, key string, blob []byte) (*objectstore.PutResult, error) {
			t.Fatal("object store should not be called for a delivered report")
			return nil, nil
		},
	}

	dispatcher := newTestDispatcher(t, reports, artifacts, store, &fakeAuditRepo{})

	report, err := dispatcher.Deliver(context.Background(), testActor(), "b1")
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if report.RemoteURL != "https://store.example/b1" {
		t.Fatalf("remote url = %s, want stored url", report.RemoteURL)
	}
}

func TestDispatcherDeliverRejectsViewer(t *testing.T) {
	t.Parallel()

	document := []byte("rendered-pdf")
	loaded := false
	uploaded := false

	reports := &fakeReportRepo{
		getByBatchIDFn: func(ctx context.Context, batchID string) (*domain.Report, error) {
			return emittedReport(document), nil
		},
	}
	artifacts := &fakeArtifactStore{
		loadFn: func(reportID string) ([]byte, error) {
			loaded = true
			return document, nil
		},
	}
	store := &fakeObjectStore{
		putFn: func(ctx context.Context, key string, blob []byte) (*objectstore.PutResult, error) {
			uploaded = true
			return &objectstore.PutResult{URL: "https://store.example/b1"}, nil
		},
	}

	dispatcher := newTestDispatcher(t, reports, artifacts, store, &fakeAuditRepo{})

	viewer := domain.Actor{ID: "user-2", Role: domain.RoleViewer}
	_, err := dispatcher.Deliver(context.Background(), viewer, "b1")
	if !errors.Is(err, domain.ErrAuthorization) {
		t.Fatalf("Deliver() error = %v, want authorization error", err)
	}
	if loaded || uploaded {
		t.Fatal("viewer delivery must not touch the artifact or the object store")
	}
}

func TestDispatcherDeliverDraftReport(t *testing.T) {
	t.Parallel()

	reports := &fakeReportRepo{
		getByBatchIDFn: func(ctx context.Context, batchID string) (*domain.Report, error) {
			return &domain.Report{ID: "b1", Status: domain.ReportStatusDraft}, nil
		},
	}

	dispatcher := newTestDispatcher(t, reports, &fakeArtifactStore{}, &fakeObjectStore{}, &fakeAuditRepo{})

	_, err := dispatcher.Deliver(context.Background(), testActor(), "b1")
	if !errors.Is(err, domain.ErrNotEmittedYet) {
		t.Fatalf("Deliver() error = %v, want not emitted yet", err)
	}
}

func TestDispatcherDeliverMissingReport(t *testing.T) {
	t.Parallel()

	dispatcher := newTestDispatcher(t, &fakeReportRepo{}, &fakeArtifactStore{}, &fakeObjectStore{}, &fakeAuditRepo{})

	_, err := dispatcher.Deliver(context.Background(), testActor(), "b1")
	if !errors.Is(err, domain.ErrNotEmittedYet) {
		t.Fatalf("Deliver() error = %v, want not emitted yet", err)
	}
}

func TestDispatcherDeliverDetectsTamperedArtifact(t *testing.T) {
	t.Parallel()

	report := emittedReport([]byte("original"))
	var auditAction string

	reports := &fakeReportRepo{
		getByBatchIDFn: func(ctx context.Context, batchID string) (*domain.Report, error) {
			return report, nil
		},
		markDeliveredFn: func(ctx context.Context, batchID string, remoteURL string, sentAt time.Time) error {
			t.Fatal("a tampered report must not be delivered")
			return nil
		},
	}
	artifacts := &fakeArtifactStore{
		loadFn: func(reportID string) ([]byte, error) {
			return []byte("tampered"), nil
		},
	}
	audits := &fakeAuditRepo{
		appendFn: func(ctx context.Context, entry *domain.AuditEntry) error {
			auditAction = entry.Action
			return nil
		},
	}

	dispatcher := newTestDispatcher(t, reports, artifacts, &fakeObjectStore{}, audits)

	_, err := dispatcher.Deliver(context.Background(), testActor(), "b1")
	if !errors.Is(err, domain.ErrIntegrity) {
		t.Fatalf("Deliver() error = %v, want integrity error", err)
	}
	if auditAction != domain.AuditActionIntegrityViolation {
		t.Fatalf("audit action = %s, want %s", auditAction, domain.AuditActionIntegrityViolation)
	}
}

func TestDispatcherDeliverTransientUploadFailure(t *testing.T) {
	t.Parallel()

	document := []byte("rendered-pdf")
	reports := &fakeReportRepo{
		getByBatchIDFn: func(ctx context.Context, batchID string) (*domain.Report, error) {
			return emittedReport(document), nil
		},
	}
	artifacts := &fakeArtifactStore{
		loadFn: func(reportID string) ([]byte, error) {
			return document, nil
		},
	}
	store := &fakeObjectStore{
		putFn: func(ctx context.Context, key string, blob []byte) (*objectstore.PutResult, error) {
			return nil, &objectstore.StoreError{StatusCode: 503, Message: "unavailable", Transient: true}
		},
	}

	dispatcher := newTestDispatcher(t, reports, artifacts, store, &fakeAuditRepo{})

	_, err := dispatcher.Deliver(context.Background(), testActor(), "b1")
	if !domain.IsRetryable(err) {
		t.Fatalf("Deliver() error = %v, want retryable transient error", err)
	}
}
