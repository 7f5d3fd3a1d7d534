package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gestcom-app/gestcom/internal/app"
	"github.com/gestcom-app/gestcom/internal/balance"
	"github.com/gestcom-app/gestcom/internal/billing"
	"github.com/gestcom-app/gestcom/internal/observability"
	"github.com/gestcom-app/gestcom/internal/payment"
	"github.com/gestcom-app/gestcom/internal/platform/cache"
	"github.com/gestcom-app/gestcom/internal/platform/db"
	"github.com/gestcom-app/gestcom/internal/shared"
	"github.com/gestcom-app/gestcom/internal/stock"
	"github.com/gestcom-app/gestcom/jobs"
	"github.com/gestcom-app/gestcom/report"
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
		// Balance reads fall back to recomputing from Postgres.
		logger.Warn("redis unavailable, balance cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	idempotencyStore := shared.NewIdempotencyStore(pool)

	stockRepo := stock.NewRepository(pool)
	stockService := stock.NewService(stockRepo, logger)
	stockService.SetMetrics(metrics)

	balanceCache := balance.NewCache(redisClient, cfg.BalanceCacheTTL)
	balanceRepo := balance.NewRepository(pool)
	balanceService := balance.NewService(balanceRepo, balanceCache)
	balanceHandler := balance.NewHandler(logger, balanceService)

	billingRepo := billing.NewRepository(pool)
	billingService := billing.NewService(billingRepo, stockService, balanceCache)
	billingHandler := billing.NewHandler(logger, billingService)

	paymentRepo := payment.NewRepository(pool)
	paymentService := payment.NewService(paymentRepo)
	paymentHandler := payment.NewHandler(logger, paymentService, idempotencyStore)

	reportClient := report.NewClient(cfg.GotenbergURL)
	reportHandler := report.NewHandler(reportClient, billingService, logger)

	var jobsHandler *jobs.Handler
	if redisClient != nil {
		inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobsHandler = jobs.NewHandler(inspector, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Pool:           pool,
		BillingHandler: billingHandler,
		PaymentHandler: paymentHandler,
		BalanceHandler: balanceHandler,
		ReportHandler:  reportHandler,
		JobsHandler:    jobsHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
