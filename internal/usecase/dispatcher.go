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
	"momo-subscription/internal/infra/metrics"
)

// Compile-time check
var _ StatusChangeDispatcher = (*dispatcher)(nil)

type DispatchOutcome string

const (
	DispatchOK      DispatchOutcome = "ok"
	DispatchPartial DispatchOutcome = "partial" // entitlement settled, bookkeeping or notice failed
	DispatchFailed  DispatchOutcome = "failed"  // entitlement side effect did not happen
)

// DispatchResult reports what the side effects of one status change did.
type DispatchResult struct {
	Outcome      DispatchOutcome
	Reason       string
	Subscription *model.Subscription
	Err          error
}

// StatusChangeDispatcher runs the side effects of a transaction reaching a
// new status. Callers invoke it only on forward transitions; running it again
// for the same status is safe.
type StatusChangeDispatcher interface {
	Dispatch(ctx context.Context, tx *model.Transaction, from model.TransactionStatus) DispatchResult
}

type dispatcher struct {
	txs      repository.TransactionRepository
	subs     SubscriptionUseCase
	notifier adapter.Notifier
	prices   model.PriceTable
	log      *zerolog.Logger
}

func NewStatusChangeDispatcher(
	txs repository.TransactionRepository,
	subs SubscriptionUseCase,
	notifier adapter.Notifier,
	prices model.PriceTable,
	logger *zerolog.Logger,
) *dispatcher {
	l := logger.With().Str("component", "dispatcher").Logger()
	return &dispatcher{txs: txs, subs: subs, notifier: notifier, prices: prices, log: &l}
}

var errStatusMoved = errors.New("transaction status moved during dispatch")

func (d *dispatcher) Dispatch(ctx context.Context, tx *model.Transaction, from model.TransactionStatus) DispatchResult {
	if !tx.Status.IsTerminal() {
		return DispatchResult{Outcome: DispatchOK}
	}
	log := d.log.With().Str("transaction_id", tx.ID).Str("status", string(tx.Status)).Logger()

	var (
		sub *model.Subscription
		err error
	)
	switch tx.Status {
	case model.TransactionStatusSuccessful:
		sub, err = d.grant(ctx, tx)
	case model.TransactionStatusFailed, model.TransactionStatusExpired:
		sub, err = d.downgrade(ctx, tx)
	}
	if err != nil {
		res := DispatchResult{Outcome: DispatchFailed, Reason: "subscription update", Err: err}
		d.recordFailure(ctx, tx, res)
		log.Error().Err(err).Msg("status change side effect failed")
		return res
	}

	res := DispatchResult{Outcome: DispatchOK, Subscription: sub}
	now := time.Now()
	updated, err := d.txs.Update(ctx, tx.ID, func(t *model.Transaction) error {
		if t.Status != tx.Status {
			return errStatusMoved
		}
		t.Reconciled = true
		if sub != nil && t.SubscriptionID == nil {
			id := sub.ID
			t.SubscriptionID = &id
		}
		if t.Status == model.TransactionStatusSuccessful && t.DateConfirmed == nil {
			t.DateConfirmed = &now
		}
		t.UpdatedAt = now
		return nil
	})
	if err != nil {
		res.Outcome, res.Reason, res.Err = DispatchPartial, "mark reconciled", err
		log.Warn().Err(err).Msg("could not mark transaction reconciled; redispatch sweep will retry")
	} else {
		*tx = *updated
	}

	if nerr := d.notifier.NotifyStatusChange(ctx, adapter.StatusChange{Transaction: tx, From: from, Subscription: sub}); nerr != nil {
		metrics.IncNotification("status_change", "error")
		log.Warn().Err(nerr).Msg("status change notification failed")
		if res.Outcome == DispatchOK {
			res.Outcome, res.Reason, res.Err = DispatchPartial, "notify", nerr
		}
	} else {
		metrics.IncNotification("status_change", "sent")
	}

	metrics.IncDispatch(string(tx.Status), string(res.Outcome))
	if tx.Status == model.TransactionStatusSuccessful && res.Outcome != DispatchFailed && tx.Revenue != nil && from != tx.Status {
		metrics.AddPaymentRevenue(*tx.Revenue)
	}
	return res
}

func (d *dispatcher) grant(ctx context.Context, tx *model.Transaction) (*model.Subscription, error) {
	plan := d.prices.DeterminePlan(tx.Amount)
	if plan == model.PlanNone {
		d.log.Info().
			Str("transaction_id", tx.ID).
			Int64("amount", tx.Amount).
			Msg("amount matches no plan; not a subscription payment")
		return nil, nil
	}

	if tx.SubscriptionID != nil {
		r, err := d.subs.ExtendExisting(ctx, *tx.SubscriptionID, plan, tx.Amount, tx.ID)
		if err == nil {
			return r.Subscription, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		d.log.Warn().
			Str("transaction_id", tx.ID).
			Str("subscription_id", *tx.SubscriptionID).
			Msg("linked subscription missing; falling back to user lookup")
	}
	r, err := d.subs.FindOrCreate(ctx, tx.UserID, plan, tx.Amount, tx.ID)
	if err != nil {
		return nil, err
	}
	return r.Subscription, nil
}

func (d *dispatcher) downgrade(ctx context.Context, tx *model.Transaction) (*model.Subscription, error) {
	if tx.SubscriptionID == nil {
		return nil, nil
	}
	status := model.SubscriptionPaymentFailed
	if tx.Status == model.TransactionStatusExpired {
		status = model.SubscriptionPaymentExpired
	}
	r, err := d.subs.RecordUnpaid(ctx, *tx.SubscriptionID, status)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.Subscription, nil
}

// recordFailure leaves a note on the transaction and pages operators. The
// transaction stays unreconciled so the redispatch sweep picks it up.
func (d *dispatcher) recordFailure(ctx context.Context, tx *model.Transaction, res DispatchResult) {
	metrics.IncDispatch(string(tx.Status), string(res.Outcome))
	now := time.Now()
	if _, err := d.txs.Update(ctx, tx.ID, func(t *model.Transaction) error {
		t.AddNote(now, "dispatch %s failed: %s: %v", t.Status, res.Reason, res.Err)
		return nil
	}); err != nil {
		d.log.Error().Err(err).Str("transaction_id", tx.ID).Msg("failed to record dispatch failure note")
	}

	level := adapter.AlertWarning
	if tx.Status == model.TransactionStatusSuccessful {
		level = adapter.AlertCritical
	}
	alert := adapter.Alert{
		Level:         level,
		Source:        "dispatcher",
		TransactionID: tx.ID,
		Message:       fmt.Sprintf("%s side effect failed (%s): %v", tx.Status, res.Reason, res.Err),
	}
	if err := d.notifier.Alert(ctx, alert); err != nil {
		metrics.IncNotification("alert", "error")
		d.log.Error().Err(err).Msg("failed to deliver alert")
		return
	}
	metrics.IncNotification("alert", "sent")
}
