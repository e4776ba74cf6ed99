package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/coworkhub/coworkhub/internal/app"
	"github.com/coworkhub/coworkhub/internal/audit"
	jobmetrics "github.com/coworkhub/coworkhub/internal/jobs"
	"github.com/coworkhub/coworkhub/internal/platform/db"
	"github.com/coworkhub/coworkhub/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	store := audit.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("audit schema", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := jobmetrics.NewMetrics(nil)
	persistJob := jobs.NewAuditPersistJob(store, logger).WithMetrics(metrics)
	purgeJob := jobs.NewAuditPurgeJob(store, logger, nil).WithMetrics(metrics)

	purgeTask, err := jobs.NewAuditPurgeTask(cfg.AuditRetentionDays)
	if err != nil {
		logger.Error("build purge task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuditPersist, Handler: persistJob.Handle},
			{Type: jobs.TaskAuditPurge, Handler: purgeJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "30 3 * * *", Task: purgeTask, Options: []asynq.Option{asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting worker", slog.Int("concurrency", cfg.WorkerConcurrency), slog.Int("retention_days", cfg.AuditRetentionDays))
		if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AppShutdownGrace)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
