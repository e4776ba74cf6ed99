package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/coworkhub/coworkhub/internal/app"
	"github.com/coworkhub/coworkhub/internal/audit"
	audithttp "github.com/coworkhub/coworkhub/internal/audit/http"
	"github.com/coworkhub/coworkhub/internal/auth"
	"github.com/coworkhub/coworkhub/internal/observability"
	"github.com/coworkhub/coworkhub/internal/platform/cache"
	"github.com/coworkhub/coworkhub/internal/platform/db"
	"github.com/coworkhub/coworkhub/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	bundle, err := app.LoadPolicy(cfg.PolicyFile, cfg.AdminUnlisted)
	if err != nil {
		logger.Error("load policy", slog.Any("error", err), slog.String("path", cfg.PolicyFile))
		os.Exit(1)
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}

	auditStore := audit.NewPostgresStore(dbpool)
	if err := auditStore.EnsureSchema(ctx); err != nil {
		logger.Error("audit schema", slog.Any("error", err))
		os.Exit(1)
	}

	var sink audit.Sink
	switch cfg.AuditSink {
	case app.AuditSinkQueue:
		jobClient := jobs.NewClient(redisOpts)
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		sink = audit.NewQueueSink(jobClient)
	case app.AuditSinkPostgres:
		sink = auditStore
	default:
		sink = audit.LogSink{Logger: logger}
	}
	dispatcher := audit.NewDispatcher(sink, audit.DispatcherConfig{BufferSize: cfg.AuditBuffer, Logger: logger})

	metrics := observability.NewMetrics()
	metrics.RegisterAuditStats(dispatcher.Stats)

	gateway, err := app.NewGateway(app.GatewayDeps{
		Config:  cfg,
		Logger:  logger,
		Redis:   redisClient,
		Audit:   dispatcher,
		Metrics: metrics,
	}, bundle)
	if err != nil {
		logger.Error("init access gateway", slog.Any("error", err))
		os.Exit(1)
	}

	authRepo := auth.NewRepository(dbpool)
	if err := authRepo.EnsureSchema(ctx); err != nil {
		logger.Error("auth schema", slog.Any("error", err))
		os.Exit(1)
	}
	authService := auth.NewService(authRepo, gateway.Sessions, gateway.Revocations, logger)
	authHandler := auth.NewHandler(auth.HandlerConfig{
		Service:       authService,
		Verifier:      gateway.Verifier,
		Audit:         dispatcher,
		Metrics:       metrics,
		Logger:        logger,
		SecureCookies: cfg.IsProduction(),
		LoginLimit:    cfg.LoginRateLimit,
	})

	auditHandler := audithttp.NewHandler(logger, audit.NewService(auditStore))

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		Guard:        gateway.Guard,
		AuthHandler:  authHandler,
		AuditHandler: auditHandler,
		JobHandler:   jobHandler,
		Metrics:      metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = app.NewMetricsServer(cfg.MetricsAddr, metrics)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if metricsServer != nil {
		g.Go(func() error {
			logger.Info("serving metrics", slog.String("addr", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AppShutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown", slog.Any("error", err))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics shutdown", slog.Any("error", err))
			}
		}
		if err := dispatcher.Close(shutdownCtx); err != nil {
			logger.Warn("audit drain", slog.Any("error", err))
		}
		stats := dispatcher.Stats()
		logger.Info("audit dispatcher stopped",
			slog.Uint64("written", stats.Written),
			slog.Uint64("dropped", stats.Dropped),
			slog.Uint64("failed", stats.Failed),
		)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}
