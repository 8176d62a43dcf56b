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

	"golang.org/x/sync/errgroup"

	"github.com/nyumbani/nyumbani-access/internal/access"
	"github.com/nyumbani/nyumbani-access/internal/app"
	"github.com/nyumbani/nyumbani-access/internal/audit"
	"github.com/nyumbani/nyumbani-access/internal/identity"
	"github.com/nyumbani/nyumbani-access/internal/observability"
	"github.com/nyumbani/nyumbani-access/internal/platform/cache"
	"github.com/nyumbani/nyumbani-access/internal/platform/db"
	"github.com/nyumbani/nyumbani-access/internal/shared"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "nyumbani_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())

	metrics := observability.NewMetrics()

	identityRepo := identity.NewRepository(pool)
	identityService := identity.NewService(identityRepo)
	identityHandler := identity.NewHandler(logger, identityService, sessionManager)

	auditRecorder := audit.NewRecorder(pool)
	auditService := audit.NewService(audit.NewTimelineRepo(pool))
	auditHandler := audit.NewHandler(logger, auditService)

	effectiveCache := access.NewCache(redisClient, cfg.EffectiveCacheTTL)
	if err := effectiveCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("cache invalidation listener", slog.Any("error", err))
	}

	accessRepo := access.NewRepository(pool)
	accessService := access.NewService(accessRepo, auditRecorder, effectiveCache)
	guard := access.Guard{Service: accessService, Logger: logger, Sink: metrics}
	accessHandler := access.NewHandler(logger, accessService, identityRepo, guard)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SessionManager:  sessionManager,
		IdentityHandler: identityHandler,
		AccessHandler:   accessHandler,
		AuditHandler:    auditHandler,
		Guard:           guard,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("accessd listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("accessd run", slog.Any("error", err))
		os.Exit(1)
	}
}
