// Command reconcile runs one reconciliation pass and exits, for use from cron
// when the in-process reconciler is disabled.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"momo-subscription/internal/application"
	"momo-subscription/internal/config"
	"momo-subscription/internal/domain"
	"momo-subscription/internal/infra/logging"
	"momo-subscription/internal/infra/sched"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode")
	verifyID := flag.String("verify", "", "check a single transaction id instead of running a batch")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall deadline for the pass")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	engine, err := application.NewEngine(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("engine init failed")
	}
	defer engine.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if *verifyID != "" {
		item, err := engine.Reconcile.VerifyNow(ctx, *verifyID)
		_ = enc.Encode(item)
		if err != nil {
			logger.Error().Err(err).Str("transaction_id", *verifyID).Msg("verify failed")
			engine.Close()
			os.Exit(1)
		}
		return
	}

	if engine.Locker != nil {
		token, err := engine.Locker.TryLock(ctx, sched.LockKey, cfg.Reconciler.LockTTL)
		if errors.Is(err, domain.ErrAlreadyExists) {
			logger.Info().Msg("another reconcile pass is running; nothing to do")
			return
		}
		if err != nil {
			logger.Error().Err(err).Msg("could not take reconcile lock")
			engine.Close()
			os.Exit(1)
		}
		defer func() { _ = engine.Locker.Unlock(context.Background(), sched.LockKey, token) }()
	}

	report, err := engine.Reconcile.RunBatch(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("reconcile pass failed")
		engine.Close()
		os.Exit(1)
	}
	_ = enc.Encode(report)
	if report.Errors > 0 || report.RedispatchErrors > 0 {
		logger.Warn().Int("errors", report.Errors).Int("redispatch_errors", report.RedispatchErrors).Msg("pass finished with errors")
	}
}
