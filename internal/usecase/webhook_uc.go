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
var _ WebhookUseCase = (*webhookUC)(nil)

type WebhookResult string

const (
	WebhookApplied   WebhookResult = "applied"   // forward transition, side effects ran
	WebhookDuplicate WebhookResult = "duplicate" // same status again; metadata only
	WebhookUnmatched WebhookResult = "unmatched" // no local transaction for the event
	WebhookRejected  WebhookResult = "rejected"  // stale, conflicting or unknown status
	WebhookInvalid   WebhookResult = "invalid"
	WebhookError     WebhookResult = "error"
)

type WebhookOutcome struct {
	Result        WebhookResult
	TransactionID string
	Status        model.TransactionStatus
}

type WebhookUseCase interface {
	// Handle validates and applies one provider push. An error wrapping
	// domain.ErrInvalidPayload means the payload was refused; any other
	// error is internal and must not be reported to the provider.
	Handle(ctx context.Context, raw []byte, signature string) (WebhookOutcome, error)
}

type webhookUC struct {
	txs     repository.TransactionRepository
	gateway adapter.PaymentGateway
	tr      *transitioner
	log     *zerolog.Logger
}

func NewWebhookUseCase(
	txs repository.TransactionRepository,
	gateway adapter.PaymentGateway,
	dispatcher StatusChangeDispatcher,
	notifier adapter.Notifier,
	logger *zerolog.Logger,
) *webhookUC {
	l := logger.With().Str("component", "webhook_uc").Logger()
	return &webhookUC{
		txs:     txs,
		gateway: gateway,
		tr:      newTransitioner(txs, dispatcher, notifier, &l),
		log:     &l,
	}
}

func (u *webhookUC) Handle(ctx context.Context, raw []byte, signature string) (out WebhookOutcome, err error) {
	start := time.Now()
	defer func() { metrics.ObserveWebhook(string(out.Result), time.Since(start).Seconds()) }()

	event, err := u.gateway.ValidateWebhookPayload(raw, signature)
	if err != nil {
		u.log.Warn().Err(err).Int("bytes", len(raw)).Msg("webhook payload refused")
		if !errors.Is(err, domain.ErrInvalidPayload) {
			err = fmt.Errorf("%w: %w", domain.ErrInvalidPayload, err)
		}
		return WebhookOutcome{Result: WebhookInvalid}, err
	}
	log := u.log.With().Str("gateway_trans_id", event.TransID).Str("provider_status", event.Status).Logger()

	tx, err := u.match(ctx, event)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn().Str("external_id", event.ExternalID).Msg("webhook for unknown transaction")
		return WebhookOutcome{Result: WebhookUnmatched}, nil
	}
	if err != nil {
		log.Error().Err(err).Msg("transaction lookup failed")
		return WebhookOutcome{Result: WebhookError}, err
	}

	res, err := u.tr.apply(ctx, tx.ID, SourceWebhook, applyProvider(event, SourceWebhook))
	out = WebhookOutcome{TransactionID: tx.ID, Status: tx.Status}
	if res.Transaction != nil {
		out.Status = res.Transaction.Status
	}
	if err != nil {
		out.Result = WebhookError
		log.Error().Err(err).Str("transaction_id", tx.ID).Msg("webhook processing failed")
		return out, err
	}
	switch res.Decision {
	case model.TransitionForward:
		out.Result = WebhookApplied
	case model.TransitionSame:
		out.Result = WebhookDuplicate
	default:
		out.Result = WebhookRejected
	}
	return out, nil
}

// match finds the local row for a provider event, by provider id first and by
// our external id for rows whose acknowledgement was never stored.
func (u *webhookUC) match(ctx context.Context, event model.ProviderTransaction) (*model.Transaction, error) {
	tx, err := u.txs.FindByGatewayTransID(ctx, event.TransID)
	if err == nil {
		return tx, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, storageErr("find transaction by gateway id", err)
	}
	if event.ExternalID == "" {
		return nil, domain.ErrNotFound
	}
	tx, err = u.txs.FindByExternalID(ctx, event.ExternalID)
	if err != nil {
		return nil, storageErr("find transaction by external id", err)
	}
	if tx.GatewayTransID != nil && *tx.GatewayTransID != event.TransID {
		return nil, domain.ErrNotFound
	}
	return tx, nil
}
