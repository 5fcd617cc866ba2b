package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/ronaldofilardo/Qwork-sub006/internal/domain"
	"github.com/ronaldofilardo/Qwork-sub006/internal/observability"
	"github.com/ronaldofilardo/Qwork-sub006/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultRetryBaseDelay = 30 * time.Second
	defaultRetryMaxDelay  = 15 * time.Minute
)

// Worker drains the emission queue: each claimed item is emitted and then
// delivered. Failures classified as transient are rescheduled with
// exponential backoff; everything else fails the item permanently.
type Worker struct {
	queue       repository.QueueRepository
	emitter     *Emitter
	dispatcher  *Dispatcher
	audit       *AuditRecorder
	metrics     *observability.Metrics
	logger      *zap.Logger
	concurrency int
	pollEvery   time.Duration
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	now         func() time.Time
	jitter      func(time.Duration) time.Duration
}

func NewWorker(
	queue repository.QueueRepository,
	emitter *Emitter,
	dispatcher *Dispatcher,
	audit *AuditRecorder,
	concurrency int,
	pollEvery time.Duration,
	maxAttempts int,
	logger *zap.Logger,
) (*Worker, error) {
	if queue == nil {
		return nil, fmt.Errorf("queue repository is required")
	}
	if emitter == nil || dispatcher == nil {
		return nil, fmt.Errorf("emitter and dispatcher are required")
	}
	if audit == nil {
		return nil, fmt.Errorf("audit recorder is required")
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if pollEvery <= 0 {
		pollEvery = 5 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Worker{
		queue:       queue,
		emitter:     emitter,
		dispatcher:  dispatcher,
		audit:       audit,
		logger:      logger,
		concurrency: concurrency,
		pollEvery:   pollEvery,
		maxAttempts: maxAttempts,
		baseDelay:   defaultRetryBaseDelay,
		maxDelay:    defaultRetryMaxDelay,
		now:         time.Now,
		jitter:      defaultJitter,
	}, nil
}

func (w *Worker) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

// Start runs the worker pool until the context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		group.Go(func() error {
			return w.loop(ctx)
		})
	}
	return group.Wait()
}

func (w *Worker) loop(ctx context.Context) error {
	ticker := time.NewTicker(w.pollEvery)
	defer ticker.Stop()

	for {
		// Drain eagerly; sleep only once the queue is empty.
		item, err := w.queue.ClaimNext(ctx, w.now().UTC())
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			w.logger.Error("queue claim failed", zap.Error(err))
		} else if item != nil {
			w.process(ctx, item)
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// process emits and delivers the claimed batch and resolves the queue item.
func (w *Worker) process(ctx context.Context, item *domain.EmissionQueueItem) {
	w.metrics.IncWorkerInFlight()
	defer w.metrics.DecWorkerInFlight()

	logger := w.logger.With(
		zap.String("queueItemId", item.ID),
		zap.String("batchId", item.BatchID),
		zap.Int("attempts", item.Attempts),
	)

	err := w.emitAndDeliver(ctx, item.BatchID)
	if err == nil {
		if markErr := w.queue.MarkDone(ctx, item.ID); markErr != nil {
			logger.Error("failed to complete queue item", zap.Error(markErr))
		}
		return
	}

	// Someone else finished this batch; the item's work is done.
	if errors.Is(err, domain.ErrAlreadyEmitted) || errors.Is(err, domain.ErrAlreadyDelivered) {
		logger.Info("batch already handled elsewhere", zap.Error(err))
		if markErr := w.queue.MarkDone(ctx, item.ID); markErr != nil {
			logger.Error("failed to complete queue item", zap.Error(markErr))
		}
		return
	}

	if domain.IsRetryable(err) && item.Attempts+1 < w.maxAttempts {
		delay := w.retryDelay(item.Attempts)
		nextAttempt := w.now().UTC().Add(delay)
		logger.Warn("emission attempt failed, scheduling retry",
			zap.Duration("delay", delay),
			zap.Time("nextAttemptAt", nextAttempt),
			zap.Error(err),
		)
		w.metrics.IncQueueRetry()
		if markErr := w.queue.MarkForRetry(ctx, item.ID, nextAttempt, err.Error()); markErr != nil {
			logger.Error("failed to schedule retry", zap.Error(markErr))
		}
		return
	}

	reason := "permanent_error"
	if domain.IsRetryable(err) {
		reason = "retry_exhausted"
	}
	logger.Error("emission failed permanently", zap.String("reason", reason), zap.Error(err))
	w.metrics.IncEmissionFailed(reason)
	if markErr := w.queue.MarkFailed(ctx, item.ID, err.Error()); markErr != nil {
		logger.Error("failed to fail queue item", zap.Error(markErr))
	}
	payload := map[string]any{
		"reason":   reason,
		"error":    err.Error(),
		"attempts": item.Attempts + 1,
	}
	if auditErr := w.audit.Record(ctx, domain.SystemActor(), domain.AuditActionEmissionFailed, domain.AuditResourceBatch, item.BatchID, payload); auditErr != nil {
		logger.Error("failed to record emission failure", zap.Error(auditErr))
	}
}

func (w *Worker) emitAndDeliver(ctx context.Context, batchID string) error {
	actor := domain.SystemActor()

	_, err := w.emitter.Generate(ctx, actor, batchID)
	if err != nil && !errors.Is(err, domain.ErrAlreadyEmitted) {
		return err
	}

	_, err = w.dispatcher.Deliver(ctx, actor, batchID)
	return err
}

// retryDelay doubles the base delay per attempt, capped, with up to 10%
// jitter so stalled items do not wake in lockstep.
func (w *Worker) retryDelay(attempts int) time.Duration {
	delay := w.baseDelay
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= w.maxDelay {
			delay = w.maxDelay
			break
		}
	}
	if delay > w.maxDelay {
		delay = w.maxDelay
	}
	return delay + w.jitter(delay)
}

func defaultJitter(delay time.Duration) time.Duration {
	span := int64(delay) / 10
	if span <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(span))
}
