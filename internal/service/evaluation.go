package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ronaldofilardo/Qwork-sub006/internal/domain"
	"github.com/ronaldofilardo/Qwork-sub006/internal/repository"
	"go.uber.org/zap"
)

// CreateBatchInput is the intake payload for a new evaluation batch.
type CreateBatchInput struct {
	ClientRef   string   `json:"clientRef"`
	SubjectRefs []string `json:"subjectRefs"`
}

// EvaluationService drives the evaluation lifecycle: intake, submission,
// inactivation and audited resets. Every mutation that can change the
// batch's aggregate triggers a recompute after its transaction commits.
type EvaluationService struct {
	batches     repository.BatchRepository
	evaluations repository.EvaluationRepository
	reports     repository.ReportRepository
	audit       *AuditRecorder
	tx          repository.TxManager
	aggregator  *Aggregator
	logger      *zap.Logger
	resetMinLen int
	now         func() time.Time
}

func NewEvaluationService(
	batches repository.BatchRepository,
	evaluations repository.EvaluationRepository,
	reports repository.ReportRepository,
	audit *AuditRecorder,
	tx repository.TxManager,
	aggregator *Aggregator,
	resetMinLen int,
	logger *zap.Logger,
) (*EvaluationService, error) {
	if batches == nil || evaluations == nil || reports == nil {
		return nil, fmt.Errorf("batch, evaluation and report repositories are required")
	}
	if audit == nil {
		return nil, fmt.Errorf("audit recorder is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx manager is required")
	}
	if aggregator == nil {
		return nil, fmt.Errorf("aggregator is required")
	}
	if resetMinLen <= 0 {
		resetMinLen = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EvaluationService{
		batches:     batches,
		evaluations: evaluations,
		reports:     reports,
		audit:       audit,
		tx:          tx,
		aggregator:  aggregator,
		logger:      logger,
		resetMinLen: resetMinLen,
		now:         time.Now,
	}, nil
}

// CreateBatch creates a batch with one started evaluation per subject.
func (s *EvaluationService) CreateBatch(ctx context.Context, actor domain.Actor, input CreateBatchInput) (*domain.Batch, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.ClientRef) == "" {
		return nil, fmt.Errorf("%w: client ref is required", domain.ErrValidation)
	}
	subjects, err := normalizeSubjectRefs(input.SubjectRefs)
	if err != nil {
		return nil, err
	}

	batch := &domain.Batch{
		ID:         uuid.NewString(),
		ClientRef:  strings.TrimSpace(input.ClientRef),
		Status:     domain.BatchStatusDraft,
		TotalCount: len(subjects),
	}
	if len(subjects) > 0 {
		batch.Status = domain.BatchStatusActive
	}
	if err := batch.Validate(); err != nil {
		return nil, err
	}

	evaluations := make([]*domain.Evaluation, 0, len(subjects))
	for _, subject := range subjects {
		evaluations = append(evaluations, &domain.Evaluation{
			ID:         uuid.NewString(),
			BatchID:    batch.ID,
			SubjectRef: subject,
			Status:     domain.EvaluationStatusStarted,
		})
	}

	err = s.tx.InTx(ctx, actor, func(ctx context.Context) error {
		if err := s.batches.Create(ctx, batch); err != nil {
			return err
		}
		if len(evaluations) > 0 {
			if err := s.evaluations.CreateAll(ctx, evaluations); err != nil {
				return err
			}
		}
		payload := map[string]any{
			"clientRef": batch.ClientRef,
			"subjects":  len(subjects),
		}
		return s.audit.Record(ctx, actor, domain.AuditActionBatchCreated, domain.AuditResourceBatch, batch.ID, payload)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("batch created",
		zap.String("batchId", batch.ID),
		zap.String("clientRef", batch.ClientRef),
		zap.Int("subjects", len(subjects)),
	)

	return s.batches.GetByID(ctx, batch.ID)
}

// Submit concludes a started evaluation with its responses and recomputes
// the batch aggregate.
func (s *EvaluationService) Submit(ctx context.Context, actor domain.Actor, evaluationID string, responses json.RawMessage) (*domain.Evaluation, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if len(responses) == 0 {
		return nil, fmt.Errorf("%w: responses are required", domain.ErrValidation)
	}
	if !json.Valid(responses) {
		return nil, fmt.Errorf("%w: responses must be valid JSON", domain.ErrValidation)
	}

	evaluation, err := s.evaluations.GetByID(ctx, evaluationID)
	if err != nil {
		return nil, err
	}

	completedAt := s.now().UTC()
	err = s.tx.InTx(ctx, actor, func(ctx context.Context) error {
		return s.evaluations.Conclude(ctx, evaluationID, responses, completedAt)
	})
	if err != nil {
		return nil, err
	}

	s.recompute(ctx, actor, evaluation.BatchID)
	return s.evaluations.GetByID(ctx, evaluationID)
}

// Inactivate removes a started evaluation from the pending set without
// responses, counting it as finalized for batch conclusion.
func (s *EvaluationService) Inactivate(ctx context.Context, actor domain.Actor, evaluationID string) (*domain.Evaluation, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := actor.Validate(); err != nil {
		return nil, err
	}

	evaluation, err := s.evaluations.GetByID(ctx, evaluationID)
	if err != nil {
		return nil, err
	}

	err = s.tx.InTx(ctx, actor, func(ctx context.Context) error {
		return s.evaluations.Inactivate(ctx, evaluationID)
	})
	if err != nil {
		return nil, err
	}

	s.recompute(ctx, actor, evaluation.BatchID)
	return s.evaluations.GetByID(ctx, evaluationID)
}

// Reset reopens a finalized evaluation. It requires a substantive reason,
// is forbidden once the batch's report has been emitted, and leaves exactly
// one audit entry carrying the reason.
func (s *EvaluationService) Reset(ctx context.Context, actor domain.Actor, evaluationID string, reason string) (*domain.Evaluation, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if !actor.CanEmit() {
		return nil, fmt.Errorf("%w: actor %s may not reset evaluations", domain.ErrAuthorization, actor.ID)
	}
	reason = strings.TrimSpace(reason)
	if len(reason) < s.resetMinLen {
		return nil, fmt.Errorf("%w: reset reason must be at least %d characters", domain.ErrValidation, s.resetMinLen)
	}

	evaluation, err := s.evaluations.GetByID(ctx, evaluationID)
	if err != nil {
		return nil, err
	}

	if report, err := s.reports.GetByBatchID(ctx, evaluation.BatchID); err == nil {
		if report.Status.Finalized() {
			return nil, fmt.Errorf("%w: batch %s report already emitted, evaluations are frozen",
				domain.ErrStateConflict, evaluation.BatchID)
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	err = s.tx.InTx(ctx, actor, func(ctx context.Context) error {
		if err := s.evaluations.Reopen(ctx, evaluationID); err != nil {
			return err
		}
		payload := map[string]any{
			"reason":         reason,
			"previousStatus": evaluation.Status.String(),
		}
		return s.audit.Record(ctx, actor, domain.AuditActionEvaluationReset, domain.AuditResourceEvaluation, evaluationID, payload)
	})
	if err != nil {
		return nil, err
	}

	s.recompute(ctx, actor, evaluation.BatchID)
	return s.evaluations.GetByID(ctx, evaluationID)
}

// recompute refreshes the batch aggregate after the mutation committed. It
// runs outside the mutation's transaction; a failure here is recoverable
// because recomputation is idempotent and re-triggered by the next mutation.
func (s *EvaluationService) recompute(ctx context.Context, actor domain.Actor, batchID string) {
	if err := s.aggregator.Recompute(ctx, actor, batchID); err != nil {
		s.logger.Error("batch recompute failed",
			zap.String("batchId", batchID),
			zap.Error(err),
		)
	}
}

func normalizeSubjectRefs(refs []string) ([]string, error) {
	seen := make(map[string]struct{}, len(refs))
	subjects := make([]string, 0, len(refs))
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			return nil, fmt.Errorf("%w: subject refs must not be blank", domain.ErrValidation)
		}
		if _, dup := seen[ref]; dup {
			return nil, fmt.Errorf("%w: duplicate subject ref %q", domain.ErrValidation, ref)
		}
		seen[ref] = struct{}{}
		subjects = append(subjects, ref)
	}
	return subjects, nil
}
