// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"momo-subscription/internal/application"
	"momo-subscription/internal/config"
	"momo-subscription/internal/infra/adapters/payment"
	"momo-subscription/internal/infra/api"
	"momo-subscription/internal/infra/api/apiv1"
	pg "momo-subscription/internal/infra/db/postgres"
	"momo-subscription/internal/infra/logging"
	"momo-subscription/internal/infra/metrics"
	"momo-subscription/internal/infra/sched"
)

// set with -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted phones, log-only alerts)")
	mintToken := flag.Duration("mint-admin-token", 0, "print an admin bearer token valid for the given duration and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	auth := api.NewAdminAuth(cfg.Admin.JWTSecret, logger)

	if *mintToken > 0 {
		tok, err := auth.Mint("cli", *mintToken)
		if err != nil {
			logger.Fatal().Err(err).Msg("mint admin token")
		}
		fmt.Println(tok)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	// ---- Engine ----
	engine, err := application.NewEngine(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("engine init failed")
	}
	defer engine.Close()
	go pg.ReportPoolStats(ctx, engine.Pool, 15*time.Second)

	// ---- Reconciler ----
	if !cfg.Reconciler.Disabled {
		worker := sched.NewPaymentReconciler(engine.Reconcile, engine.Locker, cfg.Reconciler.Interval, cfg.Reconciler.LockTTL, logger)
		go func() { _ = worker.Run(ctx) }()
	} else {
		logger.Info().Msg("scheduled reconciliation disabled; run cmd/reconcile from cron")
	}

	// ---- HTTP ----
	v1 := apiv1.NewServer(engine.Payments, engine.Webhooks, engine.Reconcile, engine.Subscriptions, payment.SignatureHeader, cfg.Runtime.Dev, logger)
	if !auth.Enabled() {
		logger.Warn().Msg("admin.jwt_secret not set; admin routes are unauthenticated")
	}
	server := api.NewServer(cfg.HTTP, api.NewRouter(cfg.HTTP, v1, auth, logger), logger)
	errc := make(chan error, 1)
	go func() { errc <- server.Start() }()

	// ---- Graceful shutdown ----
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err := <-errc:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	logger.Info().Msg("bye")
}
