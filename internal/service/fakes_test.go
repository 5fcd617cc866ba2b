package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ronaldofilardo/Qwork-sub006/internal/domain"
	"github.com/ronaldofilardo/Qwork-sub006/internal/objectstore"
	"github.com/ronaldofilardo/Qwork-sub006/internal/render"
	"github.com/ronaldofilardo/Qwork-sub006/internal/repository"
)

type fakeBatchRepo struct {
	createFn              func(ctx context.Context, b *domain.Batch) error
	getByIDFn             func(ctx context.Context, id string) (*domain.Batch, error)
	applyRecomputeFn      func(ctx context.Context, id string, update repository.RecomputeUpdate) error
	listDueAutoEmitFn     func(ctx context.Context, now time.Time, limit int) ([]domain.Batch, error)
	listPendingEmissionFn func(ctx context.Context) ([]domain.Batch, error)
	disableAutoEmitFn     func(ctx context.Context, id string) error
}

func (f *fakeBatchRepo) Create(ctx context.Context, b *domain.Batch) error {
	if f.createFn == nil {
		return nil
	}
	return f.createFn(ctx, b)
}

func (f *fakeBatchRepo) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	if f.getByIDFn == nil {
		return nil, domain.ErrNotFound
	}
	return f.getByIDFn(ctx, id)
}

func (f *fakeBatchRepo) ApplyRecompute(ctx context.Context, id string, update repository.RecomputeUpdate) error {
	if f.applyRecomputeFn == nil {
		return nil
	}
	return f.applyRecomputeFn(ctx, id, update)
}

func (f *fakeBatchRepo) ListDueAutoEmit(ctx context.Context, now time.Time, limit int) ([]domain.Batch, error) {
	if f.listDueAutoEmitFn == nil {
		return nil, nil
	}
	return f.listDueAutoEmitFn(ctx, now, limit)
}

func (f *fakeBatchRepo) ListPendingEmission(ctx context.Context) ([]domain.Batch, error) {
	if f.listPendingEmissionFn == nil {
		return nil, nil
	}
	return f.listPendingEmissionFn(ctx)
}

func (f *fakeBatchRepo) DisableAutoEmit(ctx context.Context, id string) error {
	if f.disableAutoEmitFn == nil {
		return nil
	}
	return f.disableAutoEmitFn(ctx, id)
}

type fakeEvaluationRepo struct {
	createAllFn  func(ctx context.Context, evaluations []*domain.Evaluation) error
	getByIDFn    func(ctx context.Context, id string) (*domain.Evaluation, error)
	countsForFn  func(ctx context.Context, batchID string) (domain.BatchCounts, error)
	concludeFn   func(ctx context.Context, id string, responses json.RawMessage, at time.Time) error
	inactivateFn func(ctx context.Context, id string) error
	reopenFn     func(ctx context.Context, id string) error
}

func (f *fakeEvaluationRepo) CreateAll(ctx context.Context, evaluations []*domain.Evaluation) error {
	if f.createAllFn == nil {
		return nil
	}
	return f.createAllFn(ctx, evaluations)
}

func (f *fakeEvaluationRepo) GetByID(ctx context.Context, id string) (*domain.Evaluation, error) {
	if f.getByIDFn == nil {
		return nil, domain.ErrNotFound
	}
	return f.getByIDFn(ctx, id)
}

func (f *fakeEvaluationRepo) CountsFor(ctx context.Context, batchID string) (domain.BatchCounts, error) {
	if f.countsForFn == nil {
		return domain.BatchCounts{}, nil
	}
	return f.countsForFn(ctx, batchID)
}

func (f *fakeEvaluationRepo) Conclude(ctx context.Context, id string, responses json.RawMessage, at time.Time) error {
	if f.concludeFn == nil {
		return nil
	}
	return f.concludeFn(ctx, id, responses, at)
}

func (f *fakeEvaluationRepo) Inactivate(ctx context.Context, id string) error {
	if f.inactivateFn == nil {
		return nil
	}
	return f.inactivateFn(ctx, id)
}

func (f *fakeEvaluationRepo) Reopen(ctx context.Context, id string) error {
	if f.reopenFn == nil {
		return nil
	}
	return f.reopenFn(ctx, id)
}

type fakeReportRepo struct {
	ensureDraftFn            func(ctx context.Context, batchID string) error
	getByBatchIDFn           func(ctx context.Context, batchID string) (*domain.Report, error)
	markEmittedFn            func(ctx context.Context, batchID string, contentHash string, emittedAt time.Time) error
	markDeliveredFn          func(ctx context.Context, batchID string, remoteURL string, sentAt time.Time) error
	listPendingDeliveryFn    func(ctx context.Context) ([]domain.Report, error)
	countEmittedSinceFn      func(ctx context.Context, since time.Time) (int, error)
	countDeliveredSinceFn    func(ctx context.Context, since time.Time) (int, error)
	emissionLatenciesSinceFn func(ctx context.Context, since time.Time) ([]time.Duration, error)
	deliveryLatenciesSinceFn func(ctx context.Context, since time.Time) ([]time.Duration, error)
}

func (f *fakeReportRepo) EnsureDraft(ctx context.Context, batchID string) error {
	if f.ensureDraftFn == nil {
		return nil
	}
	return f.ensureDraftFn(ctx, batchID)
}

func (f *fakeReportRepo) GetByBatchID(ctx context.Context, batchID string) (*domain.Report, error) {
	if f.getByBatchIDFn == nil {
		return nil, domain.ErrNotFound
	}
	return f.getByBatchIDFn(ctx, batchID)
}

func (f *fakeReportRepo) MarkEmitted(ctx context.Context, batchID string, contentHash string, emittedAt time.Time) error {
	if f.markEmittedFn == nil {
		return nil
	}
	return f.markEmittedFn(ctx, batchID, contentHash, emittedAt)
}

func (f *fakeReportRepo) MarkDelivered(ctx context.Context, batchID string, remoteURL string, sentAt time.Time) error {
	if f.markDeliveredFn == nil {
		return nil
	}
	return f.markDeliveredFn(ctx, batchID, remoteURL, sentAt)
}

func (f *fakeReportRepo) ListPendingDelivery(ctx context.Context) ([]domain.Report, error) {
	if f.listPendingDeliveryFn == nil {
		return nil, nil
	}
	return f.listPendingDeliveryFn(ctx)
}

func (f *fakeReportRepo) CountEmittedSince(ctx context.Context, since time.Time) (int, error) {
	if f.countEmittedSinceFn == nil {
		return 0, nil
	}
	return f.countEmittedSinceFn(ctx, since)
}

func (f *fakeReportRepo) CountDeliveredSince(ctx context.Context, since time.Time) (int, error) {
	if f.countDeliveredSinceFn == nil {
		return 0, nil
	}
	return f.countDeliveredSinceFn(ctx, since)
}

func (f *fakeReportRepo) EmissionLatenciesSince(ctx context.Context, since time.Time) ([]time.Duration, error) {
	if f.emissionLatenciesSinceFn == nil {
		return nil, nil
	}
	return f.emissionLatenciesSinceFn(ctx, since)
}

func (f *fakeReportRepo) DeliveryLatenciesSince(ctx context.Context, since time.Time) ([]time.Duration, error) {
	if f.deliveryLatenciesSinceFn == nil {
		return nil, nil
	}
	return f.deliveryLatenciesSinceFn(ctx, since)
}

type fakeQueueRepo struct {
	enqueueFn         func(ctx context.Context, item *domain.EmissionQueueItem) (bool, error)
	claimNextFn       func(ctx context.Context, now time.Time) (*domain.EmissionQueueItem, error)
	markDoneFn        func(ctx context.Context, id string) error
	markForRetryFn    func(ctx context.Context, id string, nextAttemptAt time.Time, lastError string) error
	markFailedFn      func(ctx context.Context, id string, lastError string) error
	countPendingFn    func(ctx context.Context) (int, error)
	listFailedSinceFn func(ctx context.Context, since time.Time) ([]domain.EmissionQueueItem, error)
}

func (f *fakeQueueRepo) Enqueue(ctx context.Context, item *domain.EmissionQueueItem) (bool, error) {
	if f.enqueueFn == nil {
		return true, nil
	}
	return f.enqueueFn(ctx, item)
}

func (f *fakeQueueRepo) ClaimNext(ctx context.Context, now time.Time) (*domain.EmissionQueueItem, error) {
	if f.claimNextFn == nil {
		return nil, nil
	}
	return f.claimNextFn(ctx, now)
}

func (f *fakeQueueRepo) MarkDone(ctx context.Context, id string) error {
	if f.markDoneFn == nil {
		return nil
	}
	return f.markDoneFn(ctx, id)
}

func (f *fakeQueueRepo) MarkForRetry(ctx context.Context, id string, nextAttemptAt time.Time, lastError string) error {
	if f.markForRetryFn == nil {
		return nil
	}
	return f.markForRetryFn(ctx, id, nextAttemptAt, lastError)
}

func (f *fakeQueueRepo) MarkFailed(ctx context.Context, id string, lastError string) error {
	if f.markFailedFn == nil {
		return nil
	}
	return f.markFailedFn(ctx, id, lastError)
}

func (f *fakeQueueRepo) CountPending(ctx context.Context) (int, error) {
	if f.countPendingFn == nil {
		return 0, nil
	}
	return f.countPendingFn(ctx)
}

func (f *fakeQueueRepo) ListFailedSince(ctx context.Context, since time.Time) ([]domain.EmissionQueueItem, error) {
	if f.listFailedSinceFn == nil {
		return nil, nil
	}
	return f.listFailedSinceFn(ctx, since)
}

type fakeAuditRepo struct {
	appendFn           func(ctx context.Context, entry *domain.AuditEntry) error
	listByResourceFn   func(ctx context.Context, resourceType string, resourceID string) ([]domain.AuditEntry, error)
	countActionSinceFn func(ctx context.Context, action string, since time.Time) (int, error)
}

func (f *fakeAuditRepo) Append(ctx context.Context, entry *domain.AuditEntry) error {
	if f.appendFn == nil {
		return nil
	}
	return f.appendFn(ctx, entry)
}

func (f *fakeAuditRepo) ListByResource(ctx context.Context, resourceType string, resourceID string) ([]domain.AuditEntry, error) {
	if f.listByResourceFn == nil {
		return nil, nil
	}
	return f.listByResourceFn(ctx, resourceType, resourceID)
}

func (f *fakeAuditRepo) CountActionSince(ctx context.Context, action string, since time.Time) (int, error) {
	if f.countActionSinceFn == nil {
		return 0, nil
	}
	return f.countActionSinceFn(ctx, action, since)
}

// fakeTxManager runs the function directly; tests assert on repository calls.
type fakeTxManager struct {
	inTxFn func(ctx context.Context, actor domain.Actor, fn func(ctx context.Context) error) error
}

func (f *fakeTxManager) InTx(ctx context.Context, actor domain.Actor, fn func(ctx context.Context) error) error {
	if f.inTxFn == nil {
		return fn(ctx)
	}
	return f.inTxFn(ctx, actor, fn)
}

type fakeRenderer struct {
	renderFn func(ctx context.Context, aggregates render.BatchAggregates) ([]byte, error)
}

func (f *fakeRenderer) Render(ctx context.Context, aggregates render.BatchAggregates) ([]byte, error) {
	if f.renderFn == nil {
		return []byte("pdf"), nil
	}
	return f.renderFn(ctx, aggregates)
}

type fakeArtifactStore struct {
	saveFn func(reportID string, data []byte) error
	loadFn func(reportID string) ([]byte, error)
}

func (f *fakeArtifactStore) Save(reportID string, data []byte) error {
	if f.saveFn == nil {
		return nil
	}
	return f.saveFn(reportID, data)
}

func (f *fakeArtifactStore) Load(reportID string) ([]byte, error) {
	if f.loadFn == nil {
		return nil, domain.ErrNotFound
	}
	return f.loadFn(reportID)
}

type fakeObjectStore struct {
	putFn func(ctx context.Context, key string, blob []byte) (*objectstore.PutResult, error)
}

func (f *fakeObjectStore) Put(ctx context.Context, key string, blob []byte) (*objectstore.PutResult, error) {
	if f.putFn == nil {
		return &objectstore.PutResult{URL: "https://store.example/" + key}, nil
	}
	return f.putFn(ctx, key, blob)
}

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, operation string) (bool, error)
	waitFn  func(ctx context.Context, operation string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, operation string) (bool, error) {
	if f.allowFn == nil {
		return true, nil
	}
	return f.allowFn(ctx, operation)
}

func (f *fakeRateLimiter) Wait(ctx context.Context, operation string) error {
	if f.waitFn == nil {
		return nil
	}
	return f.waitFn(ctx, operation)
}

type fakePresence struct {
	availableCountFn func(ctx context.Context) (int, error)
}

func (f *fakePresence) AvailableCount(ctx context.Context) (int, error) {
	if f.availableCountFn == nil {
		return 1, nil
	}
	return f.availableCountFn(ctx)
}
