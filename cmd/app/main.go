// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"subscription-payments/internal/config"
	"subscription-payments/internal/domain/model"
	"subscription-payments/internal/infra/db/postgres"
	"subscription-payments/internal/infra/gateway"
	"subscription-payments/internal/infra/logging"
	"subscription-payments/internal/infra/metrics"
	red "subscription-payments/internal/infra/redis"
	"subscription-payments/internal/infra/sched"
	"subscription-payments/internal/infra/web"
	"subscription-payments/internal/infra/worker"
	"subscription-payments/internal/reconcile"
	"subscription-payments/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := postgres.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()

	// ---- Change streams ----
	listener := postgres.NewListener(pool, "payment_history_changes", logger)
	go listener.Run(ctx)
	subStream := red.NewSubscriptionStream(redisClient, logger)

	// ---- Repositories ----
	historyRepo := postgres.NewPaymentHistoryRepo(pool)
	subRepo := postgres.NewSubscriptionRepo(pool, subStream, logger)
	planRepo := postgres.NewPlanRepo(pool)

	// ---- Gateway ----
	gw := gateway.NewMercadoPagoGateway(cfg.Gateway.AccessToken, cfg.Gateway.BaseURL, cfg.Gateway.ReturnBaseURL)

	// ---- Use cases ----
	upgradeUC := usecase.NewUpgradeUseCase(historyRepo, subRepo, planRepo, gw, logger)

	// ---- Reconciliation core ----
	producers := []reconcile.Producer{
		reconcile.NewPollingChannel(upgradeUC, cfg.Reconcile.PollInterval, logger),
		reconcile.NewStreamChannel(model.SourcePaymentStream, listener, reconcile.PaymentHistoryMapper, logger),
		reconcile.NewStreamChannel(model.SourceProfileStream, subStream, reconcile.SubscriptionMapper, logger),
	}
	coord := reconcile.NewCoordinator(upgradeUC, reconcile.Callbacks{
		Activate: upgradeUC.Activate,
		Reject:   upgradeUC.Reject,
	}, producers, logger)

	wpool := worker.NewPool(cfg.Reconcile.Workers, logger)
	wpool.Start(ctx)

	surfaces := red.NewSurfaceRegistry(redisClient, 3*cfg.Reconcile.PollInterval)
	manager := reconcile.NewManager(coord, upgradeUC, surfaces, wpool, cfg.Reconcile.PollInterval, cfg.Reconcile.SessionDeadline, logger)
	manager.Start(ctx)

	// ---- Resync sweep ----
	resync := sched.NewResyncWorker(upgradeUC, historyRepo, cfg.Reconcile.ResyncInterval, cfg.Reconcile.StaleAfter, logger)
	go func() { _ = resync.Run(ctx) }()

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.Web.JWTSecret)
	srv := web.NewServer(cfg.Web.Port, manager, surfaces, auth, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	// ---- Shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
	wpool.Stop()
}
