package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"momo-subscription/internal/domain"
	"momo-subscription/internal/domain/model"
	"momo-subscription/internal/domain/ports/adapter"
	"momo-subscription/internal/domain/ports/repository"
	"momo-subscription/internal/infra/logging"
	"momo-subscription/internal/infra/metrics"
)

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

type ItemOutcome string

const (
	ItemUpdated   ItemOutcome = "updated"
	ItemUnchanged ItemOutcome = "unchanged"
	ItemNotFound  ItemOutcome = "not_found"
	ItemError     ItemOutcome = "error"
)

type BatchItem struct {
	TransactionID  string                  `json:"transactionId"`
	GatewayTransID string                  `json:"gatewayTransId,omitempty"`
	Outcome        ItemOutcome             `json:"outcome"`
	Status         model.TransactionStatus `json:"status,omitempty"`
	Decision       model.Transition        `json:"decision,omitempty"`
	Error          string                  `json:"error,omitempty"`
}

// BatchReport summarises one reconciliation pass.
type BatchReport struct {
	StartedAt        time.Time   `json:"startedAt"`
	FinishedAt       time.Time   `json:"finishedAt"`
	Checked          int         `json:"checked"`
	Updated          int         `json:"updated"`
	Unchanged        int         `json:"unchanged"`
	NotFound         int         `json:"notFound"`
	Errors           int         `json:"errors"`
	Redispatched     int         `json:"redispatched"`
	RedispatchErrors int         `json:"redispatchErrors"`
	Interrupted      bool        `json:"interrupted"`
	Items            []BatchItem `json:"items"`
}

func (r *BatchReport) add(item BatchItem) {
	r.Checked++
	switch item.Outcome {
	case ItemUpdated:
		r.Updated++
	case ItemUnchanged:
		r.Unchanged++
	case ItemNotFound:
		r.NotFound++
	case ItemError:
		r.Errors++
	}
	r.Items = append(r.Items, item)
	metrics.IncReconcileItem(string(item.Outcome))
}

type ReconcileUseCase interface {
	// RunBatch polls the provider for a bounded batch of unresolved
	// transactions, then re-runs side effects that never completed. It stops
	// between items when ctx is cancelled.
	RunBatch(ctx context.Context) (BatchReport, error)
	// VerifyNow checks a single transaction against the provider.
	VerifyNow(ctx context.Context, transactionID string) (BatchItem, error)
}

type ReconcilePolicy struct {
	BatchSize       int
	StaleAfter      time.Duration
	CallDelay       time.Duration
	RedispatchGrace time.Duration
}

type reconcileUC struct {
	txs        repository.TransactionRepository
	gateway    adapter.PaymentGateway
	dispatcher StatusChangeDispatcher
	policy     ReconcilePolicy
	tr         *transitioner
	log        *zerolog.Logger
}

func NewReconcileUseCase(
	txs repository.TransactionRepository,
	gateway adapter.PaymentGateway,
	dispatcher StatusChangeDispatcher,
	notifier adapter.Notifier,
	policy ReconcilePolicy,
	logger *zerolog.Logger,
) *reconcileUC {
	if policy.BatchSize <= 0 {
		policy.BatchSize = 50
	}
	l := logger.With().Str("component", "reconcile_uc").Logger()
	return &reconcileUC{
		txs:        txs,
		gateway:    gateway,
		dispatcher: dispatcher,
		policy:     policy,
		tr:         newTransitioner(txs, dispatcher, notifier, &l),
		log:        &l,
	}
}

func (u *reconcileUC) RunBatch(ctx context.Context) (BatchReport, error) {
	defer logging.TraceDuration(u.log, "ReconcileUC.RunBatch")()
	report := BatchReport{StartedAt: time.Now(), Items: []BatchItem{}}
	defer func() {
		report.FinishedAt = time.Now()
		metrics.ObserveReconcileBatch(report.FinishedAt.Sub(report.StartedAt).Seconds())
	}()

	due, err := u.txs.ListDueForCheck(ctx, repository.DueCheckQuery{
		Statuses:    []model.TransactionStatus{model.TransactionStatusCreated, model.TransactionStatusPending},
		StaleBefore: report.StartedAt.Add(-u.policy.StaleAfter),
		Limit:       u.policy.BatchSize,
	})
	if err != nil {
		return report, storageErr("list transactions due for check", err)
	}

	for i, tx := range due {
		if i > 0 && !sleepCtx(ctx, u.policy.CallDelay) {
			report.Interrupted = true
			break
		}
		if ctx.Err() != nil {
			report.Interrupted = true
			break
		}
		report.add(u.check(ctx, tx, SourcePoller))
	}

	if !report.Interrupted {
		u.redispatch(ctx, &report)
	}

	u.log.Info().
		Int("checked", report.Checked).
		Int("updated", report.Updated).
		Int("unchanged", report.Unchanged).
		Int("not_found", report.NotFound).
		Int("errors", report.Errors).
		Int("redispatched", report.Redispatched).
		Bool("interrupted", report.Interrupted).
		Msg("reconciliation pass finished")
	return report, nil
}

func (u *reconcileUC) VerifyNow(ctx context.Context, transactionID string) (BatchItem, error) {
	tx, err := u.txs.FindByID(ctx, transactionID)
	if err != nil {
		return BatchItem{}, storageErr("find transaction", err)
	}
	if tx.GatewayTransID == nil {
		return BatchItem{TransactionID: tx.ID, Outcome: ItemUnchanged, Status: tx.Status},
			fmt.Errorf("%w: transaction has no gateway id yet", domain.ErrStateConflict)
	}
	item := u.check(ctx, tx, SourceVerify)
	metrics.IncReconcileItem(string(item.Outcome))
	return item, nil
}

// check asks the provider about one transaction and applies the answer
// through the shared transition path. It never returns an error; failures are
// reported in the item.
func (u *reconcileUC) check(ctx context.Context, tx *model.Transaction, source Source) BatchItem {
	item := BatchItem{TransactionID: tx.ID, GatewayTransID: tx.GatewayID(), Status: tx.Status}
	log := u.log.With().Str("transaction_id", tx.ID).Str("gateway_trans_id", tx.GatewayID()).Logger()

	p, err := u.gateway.GetStatus(ctx, tx.GatewayID())
	if err != nil {
		notFound := errors.Is(err, domain.ErrNotFound)
		if _, uerr := u.txs.Update(ctx, tx.ID, func(t *model.Transaction) error {
			now := time.Now()
			t.RecordCheck(now)
			if !notFound {
				t.AddNote(now, "%s: status check failed: %v", source, err)
			}
			return nil
		}); uerr != nil {
			log.Error().Err(uerr).Msg("failed to record status check")
		}
		if notFound {
			item.Outcome = ItemNotFound
			return item
		}
		log.Warn().Err(err).Msg("status check failed")
		item.Outcome, item.Error = ItemError, err.Error()
		return item
	}

	res, err := u.tr.apply(ctx, tx.ID, source, applyProvider(p, source))
	if res.Transaction != nil {
		item.Status = res.Transaction.Status
	}
	item.Decision = res.Decision
	if err != nil {
		item.Outcome, item.Error = ItemError, err.Error()
		return item
	}
	if res.Decision == model.TransitionForward {
		item.Outcome = ItemUpdated
	} else {
		item.Outcome = ItemUnchanged
	}
	return item
}

// redispatch re-runs the dispatcher for terminal transactions whose side
// effects never completed (crash, storage error, notifier outage).
func (u *reconcileUC) redispatch(ctx context.Context, report *BatchReport) {
	if u.policy.RedispatchGrace <= 0 {
		return
	}
	pending, err := u.txs.ListUnreconciled(ctx, time.Now().Add(-u.policy.RedispatchGrace), u.policy.BatchSize)
	if err != nil {
		u.log.Error().Err(err).Msg("failed to list unreconciled transactions")
		return
	}
	for _, tx := range pending {
		if ctx.Err() != nil {
			report.Interrupted = true
			return
		}
		res := u.dispatcher.Dispatch(ctx, tx, tx.Status)
		if res.Outcome == DispatchFailed {
			report.RedispatchErrors++
			metrics.IncRedispatch("error")
			continue
		}
		report.Redispatched++
		metrics.IncRedispatch("ok")
	}
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
