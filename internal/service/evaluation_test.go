package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ronaldofilardo/Qwork-sub006/internal/domain"
	"go.uber.org/zap"
)

func newTestEvaluationService(t *testing.T, batches *fakeBatchRepo, evaluations *fakeEvaluationRepo, reports *fakeReportRepo, audits *fakeAuditRepo) *EvaluationService {
	t.Helper()

	aggregator, err := NewAggregator(batches, evaluations, reports, newTestAuditRecorder(t, audits), &fakeTxManager{}, 10*time.Minute, zap.NewNop())
	if err != nil {
		t.Fatalf("NewAggregator() error = %v", err)
	}
	svc, err := NewEvaluationService(batches, evaluations, reports, newTestAuditRecorder(t, audits), &fakeTxManager{}, aggregator, 20, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEvaluationService() error = %v", err)
	}
	return svc
}

func TestEvaluationServiceCreateBatch(t *testing.T) {
	t.Parallel()

	var createdBatch *domain.Batch
	var createdEvaluations []*domain.Evaluation
	var auditAction string

	batches := &fakeBatchRepo{
		createFn: func(ctx context.Context, b *domain.Batch) error {
			createdBatch = b
			return nil
		},
		getByIDFn: func(ctx context.Context, id string) (*domain.Batch, error) {
			return createdBatch, nil
		},
	}
	evaluations := &fakeEvaluationRepo{
		createAllFn: func(ctx context.Context, evs []*domain.Evaluation) error {
			createdEvaluations = evs
			return nil
		},
	}
	audits := &fakeAuditRepo{
		appendFn: func(ctx context.Context, entry *domain.AuditEntry) error {
			auditAction = entry.Action
			return nil
		},
	}

	svc := newTestEvaluationService(t, batches, evaluations, &fakeReportRepo{}, audits)

	batch, err := svc.CreateBatch(context.Background(), testActor(), CreateBatchInput{
		ClientRef:   "acme",
		SubjectRefs: []string{"s1", "s2", "s3"},
	})
	if err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}

	if batch.Status != domain.BatchStatusActive {
		t.Fatalf("status = %s, want ACTIVE", batch.Status)
	}
	if batch.TotalCount != 3 {
		t.Fatalf("total = %d, want 3", batch.TotalCount)
	}
	if len(createdEvaluations) != 3 {
		t.Fatalf("created %d evaluations, want 3", len(createdEvaluations))
	}
	for _, ev := range createdEvaluations {
		if ev.Status != domain.EvaluationStatusStarted {
			t.Fatalf("evaluation status = %s, want STARTED", ev.Status)
		}
		if ev.BatchID != batch.ID {
			t.Fatalf("evaluation batch = %s, want %s", ev.BatchID, batch.ID)
		}
	}
	if auditAction != domain.AuditActionBatchCreated {
		t.Fatalf("audit action = %s, want %s", auditAction, domain.AuditActionBatchCreated)
	}
}

func TestEvaluationServiceCreateBatchRejectsDuplicateSubjects(t *testing.T) {
	t.Parallel()

	svc := newTestEvaluationService(t, &fakeBatchRepo{}, &fakeEvaluationRepo{}, &fakeReportRepo{}, &fakeAuditRepo{})

	_, err := svc.CreateBatch(context.Background(), testActor(), CreateBatchInput{
		ClientRef:   "acme",
		SubjectRefs: []string{"s1", "s1"},
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("CreateBatch() error = %v, want validation error", err)
	}
}

func TestEvaluationServiceSubmitConcludesAndRecomputes(t *testing.T) {
	t.Parallel()

	var concludedID string

	evaluation := &domain.Evaluation{
		ID:         "e1",
		BatchID:    "b1",
		SubjectRef: "s1",
		Status:     domain.EvaluationStatusStarted,
	}
	batches := &fakeBatchRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Batch, error) {
			return &domain.Batch{ID: "b1", ClientRef: "acme", Status: domain.BatchStatusActive, TotalCount: 2}, nil
		},
	}
	evaluations := &fakeEvaluationRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Evaluation, error) {
			return evaluation, nil
		},
		concludeFn: func(ctx context.Context, id string, responses json.RawMessage, at time.Time) error {
			concludedID = id
			return nil
		},
		countsForFn: func(ctx context.Context, batchID string) (domain.BatchCounts, error) {
			return domain.BatchCounts{Total: 2, Completed: 1}, nil
		},
	}

	svc := newTestEvaluationService(t, batches, evaluations, &fakeReportRepo{}, &fakeAuditRepo{})

	_, err := svc.Submit(context.Background(), testActor(), "e1", json.RawMessage(`{"q1":4}`))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if concludedID != "e1" {
		t.Fatalf("concluded id = %q, want e1", concludedID)
	}
}

func TestEvaluationServiceSubmitRejectsInvalidJSON(t *testing.T) {
	t.Parallel()

	svc := newTestEvaluationService(t, &fakeBatchRepo{}, &fakeEvaluationRepo{}, &fakeReportRepo{}, &fakeAuditRepo{})

	_, err := svc.Submit(context.Background(), testActor(), "e1", json.RawMessage(`{not-json`))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Submit() error = %v, want validation error", err)
	}
}

func TestEvaluationServiceResetRequiresSubstantiveReason(t *testing.T) {
	t.Parallel()

	svc := newTestEvaluationService(t, &fakeBatchRepo{}, &fakeEvaluationRepo{}, &fakeReportRepo{}, &fakeAuditRepo{})

	_, err := svc.Reset(context.Background(), testActor(), "e1", "too short")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Reset() error = %v, want validation error", err)
	}
}

func TestEvaluationServiceResetRejectsViewer(t *testing.T) {
	t.Parallel()

	evaluations := &fakeEvaluationRepo{
		reopenFn: func(ctx context.Context, id string) error {
			t.Fatal("reopen must not run for a viewer")
			return nil
		},
	}

	svc := newTestEvaluationService(t, &fakeBatchRepo{}, evaluations, &fakeReportRepo{}, &fakeAuditRepo{})

	viewer := domain.Actor{ID: "user-2", Role: domain.RoleViewer}
	_, err := svc.Reset(context.Background(), viewer, "e1", "subject reported an error in section two")
	if !errors.Is(err, domain.ErrAuthorization) {
		t.Fatalf("Reset() error = %v, want authorization error", err)
	}
}

func TestEvaluationServiceResetForbiddenAfterEmission(t *testing.T) {
	t.Parallel()

	emittedAt := time.Now()
	evaluations := &fakeEvaluationRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Evaluation, error) {
			return &domain.Evaluation{ID: "e1", BatchID: "b1", SubjectRef: "s1", Status: domain.EvaluationStatusConcluded}, nil
		},
		reopenFn: func(ctx context.Context, id string) error {
			t.Fatal("reopen must not run once the report is emitted")
			return nil
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
	}

	svc := newTestEvaluationService(t, &fakeBatchRepo{}, evaluations, reports, &fakeAuditRepo{})

	_, err := svc.Reset(context.Background(), testActor(), "e1", "subject reported an error in section two")
	if !errors.Is(err, domain.ErrStateConflict) {
		t.Fatalf("Reset() error = %v, want state conflict", err)
	}
}

func TestEvaluationServiceResetLeavesSingleAuditEntry(t *testing.T) {
	t.Parallel()

	var resetEntries []*domain.AuditEntry

	evaluation := &domain.Evaluation{ID: "e1", BatchID: "b1", SubjectRef: "s1", Status: domain.EvaluationStatusConcluded}
	batches := &fakeBatchRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Batch, error) {
			return &domain.Batch{ID: "b1", ClientRef: "acme", Status: domain.BatchStatusActive, TotalCount: 2, CompletedCount: 1}, nil
		},
	}
	evaluations := &fakeEvaluationRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Evaluation, error) {
			return evaluation, nil
		},
		countsForFn: func(ctx context.Context, batchID string) (domain.BatchCounts, error) {
			return domain.BatchCounts{Total: 2, Completed: 1}, nil
		},
	}
	audits := &fakeAuditRepo{
		appendFn: func(ctx context.Context, entry *domain.AuditEntry) error {
			if entry.Action == domain.AuditActionEvaluationReset {
				resetEntries = append(resetEntries, entry)
			}
			return nil
		},
	}

	svc := newTestEvaluationService(t, batches, evaluations, &fakeReportRepo{}, audits)

	reason := "subject reported an error in section two"
	_, err := svc.Reset(context.Background(), testActor(), "e1", reason)
	if err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	if len(resetEntries) != 1 {
		t.Fatalf("reset audit entries = %d, want exactly 1", len(resetEntries))
	}
	if got := string(resetEntries[0].Payload); !strings.Contains(got, reason) {
		t.Fatalf("audit payload = %s, want the reset reason", got)
	}
}
