package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ronaldofilardo/Qwork-sub006/internal/artifact"
	"github.com/ronaldofilardo/Qwork-sub006/internal/config"
	"github.com/ronaldofilardo/Qwork-sub006/internal/domain"
	"github.com/ronaldofilardo/Qwork-sub006/internal/infra/postgresql"
	"github.com/ronaldofilardo/Qwork-sub006/internal/infra/postgresql/migrations"
	infraredis "github.com/ronaldofilardo/Qwork-sub006/internal/infra/redis"
	"github.com/ronaldofilardo/Qwork-sub006/internal/objectstore"
	"github.com/ronaldofilardo/Qwork-sub006/internal/observability"
	"github.com/ronaldofilardo/Qwork-sub006/internal/render"
	"github.com/ronaldofilardo/Qwork-sub006/internal/repository"
	"github.com/ronaldofilardo/Qwork-sub006/internal/service"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel, "qwork-worker")
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, cfg.DBMaxOpenConns)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(context.Background(), cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	batches := repository.NewGormBatchRepo(db)
	reports := repository.NewGormReportRepo(db)
	queue := repository.NewGormQueueRepo(db)
	audits := repository.NewGormAuditRepo(db)
	txManager := repository.NewGormTxManager(db)

	auditRecorder, err := service.NewAuditRecorder(audits, logger)
	if err != nil {
		logger.Fatal("audit recorder init failed", zap.Error(err))
	}

	renderer, err := render.NewHTTPRenderer(cfg.RendererURL)
	if err != nil {
		logger.Fatal("renderer init failed", zap.Error(err))
	}

	artifacts, err := artifact.NewStore(cfg.ArtifactDir)
	if err != nil {
		logger.Fatal("artifact store init failed", zap.Error(err))
	}

	store, err := objectstore.NewHTTPStore(cfg.ObjectStoreURL, cfg.UploadTimeout())
	if err != nil {
		logger.Fatal("object store init failed", zap.Error(err))
	}

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RenderRatePerSec)
	if err != nil {
		logger.Fatal("rate limiter init failed", zap.Error(err))
	}

	emitter, err := service.NewEmitter(batches, reports, auditRecorder, txManager, renderer, artifacts, limiter, logger)
	if err != nil {
		logger.Fatal("emitter init failed", zap.Error(err))
	}

	dispatcher, err := service.NewDispatcher(reports, auditRecorder, txManager, artifacts, store, cfg.UploadTimeout(), logger)
	if err != nil {
		logger.Fatal("dispatcher init failed", zap.Error(err))
	}

	scheduler, err := service.NewScheduler(batches, reports, queue, auditRecorder, cfg.SweepLimit, cfg.SweepInterval(), logger)
	if err != nil {
		logger.Fatal("scheduler init failed", zap.Error(err))
	}

	worker, err := service.NewWorker(queue, emitter, dispatcher, auditRecorder, cfg.WorkerConcurrency, cfg.WorkerPollInterval(), cfg.MaxQueueAttempts, logger)
	if err != nil {
		logger.Fatal("worker init failed", zap.Error(err))
	}

	presence, err := infraredis.NewPresenceRegistry(rdb, cfg.PresenceTTL())
	if err != nil {
		logger.Fatal("presence registry init failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	emitter.SetMetrics(metrics)
	dispatcher.SetMetrics(metrics)
	scheduler.SetMetrics(metrics)
	worker.SetMetrics(metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return worker.Start(ctx)
	})
	group.Go(func() error {
		return scheduler.Start(ctx)
	})
	group.Go(func() error {
		return heartbeatLoop(ctx, presence, cfg.PresenceTTL(), logger)
	})

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		addr := fmt.Sprintf(":%d", cfg.MetricsPort)
		logger.Info("metrics endpoint started", zap.Int("port", cfg.MetricsPort))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics endpoint stopped", zap.Error(err))
		}
	}()

	logger.Info("emission worker started",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.Duration("pollInterval", cfg.WorkerPollInterval()),
	)

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("worker stopped", zap.Error(err))
	}
	logger.Info("worker shut down")
}

// heartbeatLoop keeps this process visible in the emitter presence registry.
// Beating at a third of the TTL tolerates two missed beats.
func heartbeatLoop(ctx context.Context, presence *infraredis.PresenceRegistry, ttl time.Duration, logger *zap.Logger) error {
	interval := ttl / 3
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	actorID := domain.SystemActor().ID
	for {
		if err := presence.Heartbeat(ctx, actorID); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("presence heartbeat failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
