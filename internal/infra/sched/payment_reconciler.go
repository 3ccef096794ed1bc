package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"momo-subscription/internal/domain"
	"momo-subscription/internal/domain/ports/adapter"
	"momo-subscription/internal/infra/metrics"
	"momo-subscription/internal/usecase"
)

// LockKey guards the scheduled pass across replicas.
const LockKey = "momo:lock:reconcile"

// PaymentReconciler runs a reconciliation pass on every tick. With a locker
// set, a replica that cannot take the lock skips the tick.
type PaymentReconciler struct {
	uc       usecase.ReconcileUseCase
	locker   adapter.Locker
	interval time.Duration
	lockTTL  time.Duration
	log      *zerolog.Logger
}

func NewPaymentReconciler(uc usecase.ReconcileUseCase, locker adapter.Locker, interval, lockTTL time.Duration, logger *zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	compLog := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{
		uc:       uc,
		locker:   locker,
		interval: interval,
		lockTTL:  lockTTL,
		log:      &compLog,
	}
}

func (w *PaymentReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting payment reconciler")
	w.tick(ctx)

	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping payment reconciler")
			return ctx.Err()
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *PaymentReconciler) tick(ctx context.Context) {
	if w.locker != nil {
		token, err := w.locker.TryLock(ctx, LockKey, w.lockTTL)
		switch {
		case errors.Is(err, domain.ErrAlreadyExists):
			metrics.IncReconcileLock("busy")
			w.log.Debug().Msg("reconcile pass held by another replica")
			return
		case err != nil:
			metrics.IncReconcileLock("error")
			w.log.Error().Err(err).Msg("could not take reconcile lock")
			return
		}
		metrics.IncReconcileLock("acquired")
		defer func() {
			// release with a fresh context so shutdown still frees the key
			uctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := w.locker.Unlock(uctx, LockKey, token); err != nil {
				w.log.Warn().Err(err).Msg("reconcile lock release failed")
			}
		}()
	}

	report, err := w.uc.RunBatch(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("reconcile pass failed")
		return
	}
	if report.Checked > 0 || report.Redispatched > 0 || report.RedispatchErrors > 0 {
		w.log.Info().
			Int("checked", report.Checked).
			Int("updated", report.Updated).
			Int("not_found", report.NotFound).
			Int("errors", report.Errors).
			Int("redispatched", report.Redispatched).
			Bool("interrupted", report.Interrupted).
			Msg("reconcile pass finished")
	}
}
