package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"momo-subscription/internal/domain/model"
	"momo-subscription/internal/domain/ports/adapter"
	"momo-subscription/internal/domain/ports/repository"
	"momo-subscription/internal/infra/metrics"
)

// Source names the channel a status update arrived through.
type Source string

const (
	SourceInitiate Source = "initiate"
	SourceWebhook  Source = "webhook"
	SourcePoller   Source = "poller"
	SourceVerify   Source = "verify"
)

// ApplyResult is the outcome of one atomic status update.
type ApplyResult struct {
	Transaction *model.Transaction
	From        model.TransactionStatus
	Target      model.TransactionStatus
	Decision    model.Transition
	Dispatch    *DispatchResult // set only on forward transitions
}

// statusMutation edits t inside the atomic update and reports the proposed
// status and the state machine's decision.
type statusMutation func(t *model.Transaction, now time.Time) (model.TransactionStatus, model.Transition)

// transitioner is the single write path shared by Initiate, the webhook and
// the poller. The decision and the write happen in one repository Update, and
// the dispatcher runs only when that Update moved the status forward.
type transitioner struct {
	txs        repository.TransactionRepository
	dispatcher StatusChangeDispatcher
	notifier   adapter.Notifier
	log        *zerolog.Logger
}

func newTransitioner(txs repository.TransactionRepository, d StatusChangeDispatcher, n adapter.Notifier, logger *zerolog.Logger) *transitioner {
	return &transitioner{txs: txs, dispatcher: d, notifier: n, log: logger}
}

// applyProvider returns a mutation that records the delivery on the channel's
// metadata fields and applies the provider's status.
func applyProvider(p model.ProviderTransaction, source Source) statusMutation {
	return func(t *model.Transaction, now time.Time) (model.TransactionStatus, model.Transition) {
		switch source {
		case SourceWebhook:
			t.RecordWebhook(now)
		case SourcePoller, SourceVerify:
			t.RecordCheck(now)
		}
		if p.Amount > 0 && p.Amount != t.Amount {
			t.AddNote(now, "%s: provider amount %d differs from requested %d", source, p.Amount, t.Amount)
		}
		return model.MapProviderStatus(p.Status), t.ApplyProvider(p, now)
	}
}

func (tr *transitioner) apply(ctx context.Context, id string, source Source, fn statusMutation) (ApplyResult, error) {
	var res ApplyResult
	now := time.Now()
	tx, err := tr.txs.Update(ctx, id, func(t *model.Transaction) error {
		res.From = t.Status
		res.Target, res.Decision = fn(t, now)
		switch res.Decision {
		case model.TransitionConflict:
			t.AddNote(now, "%s: rejected transition %s -> %s", source, res.From, res.Target)
		case model.TransitionIgnored:
			t.AddNote(now, "%s: ignored unrecognised provider status", source)
		}
		t.UpdatedAt = now
		return nil
	})
	if err != nil {
		return res, storageErr("update transaction "+id, err)
	}
	res.Transaction = tx
	metrics.IncTransition(string(source), string(res.Target), string(res.Decision))

	log := tr.log.With().
		Str("transaction_id", tx.ID).
		Str("source", string(source)).
		Str("from", string(res.From)).
		Str("to", string(res.Target)).
		Logger()

	switch res.Decision {
	case model.TransitionForward:
		log.Info().Msg("transaction status advanced")
		dr := tr.dispatcher.Dispatch(ctx, tx, res.From)
		res.Dispatch = &dr
		if dr.Outcome == DispatchFailed {
			return res, fmt.Errorf("dispatch %s for %s: %w", tx.Status, tx.ID, dr.Err)
		}
	case model.TransitionSame:
		log.Debug().Msg("duplicate status delivery")
	case model.TransitionStale:
		metrics.IncStateAnomaly("stale")
		log.Info().Msg("dropped out-of-order status")
	case model.TransitionConflict:
		metrics.IncStateAnomaly("conflict")
		log.Warn().Msg("rejected conflicting terminal status")
		alert := adapter.Alert{
			Level:         adapter.AlertWarning,
			Source:        string(source),
			TransactionID: tx.ID,
			Message:       fmt.Sprintf("provider reported %s for a %s transaction", res.Target, res.From),
		}
		if aerr := tr.notifier.Alert(ctx, alert); aerr != nil {
			log.Error().Err(aerr).Msg("failed to deliver alert")
		}
	case model.TransitionIgnored:
		metrics.IncStateAnomaly("ignored")
		log.Warn().Msg("provider status not recognised")
	}
	return res, nil
}
