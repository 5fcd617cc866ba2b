package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/ronaldofilardo/Qwork-sub006/internal/artifact"
	"github.com/ronaldofilardo/Qwork-sub006/internal/config"
	"github.com/ronaldofilardo/Qwork-sub006/internal/handler"
	"github.com/ronaldofilardo/Qwork-sub006/internal/infra/postgresql"
	"github.com/ronaldofilardo/Qwork-sub006/internal/infra/postgresql/migrations"
	infraredis "github.com/ronaldofilardo/Qwork-sub006/internal/infra/redis"
	"github.com/ronaldofilardo/Qwork-sub006/internal/objectstore"
	"github.com/ronaldofilardo/Qwork-sub006/internal/observability"
	"github.com/ronaldofilardo/Qwork-sub006/internal/render"
	"github.com/ronaldofilardo/Qwork-sub006/internal/repository"
	"github.com/ronaldofilardo/Qwork-sub006/internal/service"
	"github.com/ronaldofilardo/Qwork-sub006/internal/transport"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel, "qwork-api")
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
	evaluations := repository.NewGormEvaluationRepo(db)
	reports := repository.NewGormReportRepo(db)
	queue := repository.NewGormQueueRepo(db)
	audits := repository.NewGormAuditRepo(db)
	txManager := repository.NewGormTxManager(db)

	auditRecorder, err := service.NewAuditRecorder(audits, logger)
	if err != nil {
		logger.Fatal("audit recorder init failed", zap.Error(err))
	}

	aggregator, err := service.NewAggregator(batches, evaluations, reports, auditRecorder, txManager, cfg.GracePeriod(), logger)
	if err != nil {
		logger.Fatal("aggregator init failed", zap.Error(err))
	}

	evaluationService, err := service.NewEvaluationService(batches, evaluations, reports, auditRecorder, txManager, aggregator, cfg.ResetReasonMinLen, logger)
	if err != nil {
		logger.Fatal("evaluation service init failed", zap.Error(err))
	}

	queryService, err := service.NewQueryService(batches, reports, audits, auditRecorder, logger)
	if err != nil {
		logger.Fatal("query service init failed", zap.Error(err))
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

	presence, err := infraredis.NewPresenceRegistry(rdb, cfg.PresenceTTL())
	if err != nil {
		logger.Fatal("presence registry init failed", zap.Error(err))
	}

	monitor, err := service.NewMonitor(batches, reports, queue, audits, presence, cfg.MonitorWindow(), cfg.StuckThreshold(), logger)
	if err != nil {
		logger.Fatal("monitor init failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	emitter.SetMetrics(metrics)
	dispatcher.SetMetrics(metrics)
	scheduler.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(func(c *fiber.Ctx) error {
		if rid, ok := c.Locals(requestid.ConfigDefault.ContextKey).(string); ok && rid != "" {
			c.SetUserContext(observability.WithCorrelationID(c.UserContext(), rid))
		}
		return c.Next()
	})
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, handler.PostgresCheck(sqlDB), handler.RedisCheck(rdb))
	if err := handler.RegisterBatchRoutes(app, evaluationService, queryService, emitter, dispatcher); err != nil {
		logger.Fatal("batch routes init failed", zap.Error(err))
	}
	if err := handler.RegisterEvaluationRoutes(app, evaluationService); err != nil {
		logger.Fatal("evaluation routes init failed", zap.Error(err))
	}
	if err := handler.RegisterMonitoringRoutes(app, monitor, scheduler, presence); err != nil {
		logger.Fatal("monitoring routes init failed", zap.Error(err))
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		addr := fmt.Sprintf(":%d", cfg.MetricsPort)
		logger.Info("metrics endpoint started", zap.Int("port", cfg.MetricsPort))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics endpoint stopped", zap.Error(err))
		}
	}()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down api")
		if err := app.Shutdown(); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("api started", zap.Int("port", cfg.APIPort))
	if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
		logger.Fatal("api server stopped", zap.Error(err))
	}
}
