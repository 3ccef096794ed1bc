// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"momo-subscription/internal/domain"
	"momo-subscription/internal/domain/model"
	"momo-subscription/internal/domain/ports/adapter"
	"momo-subscription/internal/domain/ports/repository"
	"momo-subscription/internal/infra/logging"
	"momo-subscription/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

type InitiateInput struct {
	UserID         string
	Amount         int64
	Phone          string
	Medium         string
	Name           string
	Email          string
	Message        string
	ExternalID     string // optional client idempotency key
	SubscriptionID string // optional explicit link
}

type InitiateOutput struct {
	Transaction *model.Transaction
	Existing    bool // ExternalID was already on file; nothing was charged
}

type PaymentUseCase interface {
	// Initiate validates the request, records a transaction and opens the
	// provider-side payment. A failed call must be retried with a fresh
	// external id.
	Initiate(ctx context.Context, in InitiateInput) (InitiateOutput, error)
	Get(ctx context.Context, transactionID string) (*model.Transaction, error)
}

// PaymentPolicy holds the Initiate validation and throttling rules.
type PaymentPolicy struct {
	MinAmount       int64
	Phone           *regexp.Regexp
	CountryCode     string
	DefaultMessage  string
	RateLimit       int
	RateLimitWindow time.Duration
	Dev             bool
}

type paymentUC struct {
	txs     repository.TransactionRepository
	subs    SubscriptionUseCase
	gateway adapter.PaymentGateway
	limiter adapter.RateLimiter // optional
	prices  model.PriceTable
	policy  PaymentPolicy
	tr      *transitioner
	log     *zerolog.Logger
}

func NewPaymentUseCase(
	txs repository.TransactionRepository,
	subs SubscriptionUseCase,
	gateway adapter.PaymentGateway,
	dispatcher StatusChangeDispatcher,
	notifier adapter.Notifier,
	limiter adapter.RateLimiter,
	prices model.PriceTable,
	policy PaymentPolicy,
	logger *zerolog.Logger,
) *paymentUC {
	l := logger.With().Str("component", "payment_uc").Logger()
	return &paymentUC{
		txs:     txs,
		subs:    subs,
		gateway: gateway,
		limiter: limiter,
		prices:  prices,
		policy:  policy,
		tr:      newTransitioner(txs, dispatcher, notifier, &l),
		log:     &l,
	}
}

func (u *paymentUC) Initiate(ctx context.Context, in InitiateInput) (InitiateOutput, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Initiate")()

	phone, err := u.validate(in)
	if err != nil {
		metrics.IncPaymentInitiated("validation")
		return InitiateOutput{}, err
	}
	log := u.log.With().
		Str("user_id", in.UserID).
		Str("phone", logging.Redact(phone, u.policy.Dev)).
		Int64("amount", in.Amount).
		Logger()

	externalID := strings.TrimSpace(in.ExternalID)
	if externalID != "" {
		existing, err := u.txs.FindByExternalID(ctx, externalID)
		switch {
		case err == nil:
			if existing.UserID != in.UserID {
				metrics.IncPaymentInitiated("validation")
				return InitiateOutput{}, fmt.Errorf("%w: externalId already used", domain.ErrValidation)
			}
			metrics.IncPaymentInitiated("duplicate")
			return InitiateOutput{Transaction: existing, Existing: true}, nil
		case !errors.Is(err, domain.ErrNotFound):
			metrics.IncPaymentInitiated("error")
			return InitiateOutput{}, storageErr("find transaction by external id", err)
		}
	} else {
		externalID = ulid.Make().String()
	}

	if err := u.throttle(ctx, in.UserID); err != nil {
		metrics.IncPaymentInitiated("rate_limited")
		return InitiateOutput{}, err
	}

	subID, err := u.linkSubscription(ctx, in)
	if err != nil {
		metrics.IncPaymentInitiated("validation")
		return InitiateOutput{}, err
	}

	tx, err := model.NewTransaction(uuid.NewString(), externalID, in.UserID, in.Amount, phone, time.Now())
	if err != nil {
		metrics.IncPaymentInitiated("validation")
		return InitiateOutput{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if subID != "" {
		tx.SubscriptionID = &subID
	}
	if err := u.txs.Create(ctx, tx); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Concurrent Initiate with the same external id won the insert.
			if existing, ferr := u.txs.FindByExternalID(ctx, externalID); ferr == nil && existing.UserID == in.UserID {
				metrics.IncPaymentInitiated("duplicate")
				return InitiateOutput{Transaction: existing, Existing: true}, nil
			}
		}
		metrics.IncPaymentInitiated("error")
		return InitiateOutput{}, storageErr("create transaction", err)
	}
	log = log.With().Str("transaction_id", tx.ID).Str("external_id", externalID).Logger()

	message := in.Message
	if message == "" {
		message = u.policy.DefaultMessage
	}
	ack, gerr := u.gateway.InitiatePayment(ctx, adapter.InitiateRequest{
		Amount:     in.Amount,
		Phone:      phone,
		Medium:     in.Medium,
		PayerName:  in.Name,
		PayerEmail: in.Email,
		UserID:     in.UserID,
		ExternalID: externalID,
		Message:    message,
	})
	if gerr != nil {
		return InitiateOutput{Transaction: tx}, u.gatewayFailed(ctx, tx, gerr, &log)
	}

	res, err := u.tr.apply(ctx, tx.ID, SourceInitiate, func(t *model.Transaction, now time.Time) (model.TransactionStatus, model.Transition) {
		if t.GatewayTransID == nil && ack.GatewayTransID != "" {
			id := ack.GatewayTransID
			t.GatewayTransID = &id
		}
		decision := t.Status.Decide(model.TransactionStatusPending)
		if decision == model.TransitionForward {
			t.Status = model.TransactionStatusPending
			if !ack.DateInitiated.IsZero() {
				t.DateInitiated = ack.DateInitiated
			}
		}
		return model.TransactionStatusPending, decision
	})
	if err != nil {
		// The provider has the payment; the poller will settle the row once
		// the gateway id is stored, and the webhook can match on external id.
		metrics.IncPaymentInitiated("error")
		log.Error().Err(err).Str("gateway_trans_id", ack.GatewayTransID).Msg("failed to record gateway acknowledgement")
		return InitiateOutput{Transaction: tx}, err
	}

	metrics.IncPaymentInitiated("ok")
	log.Info().Str("gateway_trans_id", ack.GatewayTransID).Str("status", string(res.Transaction.Status)).Msg("payment initiated")
	return InitiateOutput{Transaction: res.Transaction}, nil
}

func (u *paymentUC) Get(ctx context.Context, transactionID string) (*model.Transaction, error) {
	return u.txs.FindByID(ctx, transactionID)
}

func (u *paymentUC) validate(in InitiateInput) (string, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return "", fmt.Errorf("%w: userId is required", domain.ErrValidation)
	}
	if in.Amount < u.policy.MinAmount {
		return "", fmt.Errorf("%w: amount must be at least %d", domain.ErrValidation, u.policy.MinAmount)
	}
	phone := NormalizePhone(in.Phone, u.policy.CountryCode)
	if phone == "" {
		return "", fmt.Errorf("%w: phone is required", domain.ErrValidation)
	}
	if u.policy.Phone != nil && !u.policy.Phone.MatchString(phone) {
		return "", fmt.Errorf("%w: phone number is not valid", domain.ErrValidation)
	}
	return phone, nil
}

func (u *paymentUC) throttle(ctx context.Context, userID string) error {
	if u.limiter == nil || u.policy.RateLimit <= 0 {
		return nil
	}
	ok, err := u.limiter.Allow(ctx, "initiate:"+userID, u.policy.RateLimit, u.policy.RateLimitWindow)
	if err != nil {
		// fail open; the limiter only protects the provider quota
		metrics.IncRateLimit("initiate", "error")
		u.log.Warn().Err(err).Str("user_id", userID).Msg("rate limiter unavailable")
		return nil
	}
	if !ok {
		metrics.IncRateLimit("initiate", "limited")
		return domain.ErrRateLimited
	}
	metrics.IncRateLimit("initiate", "allowed")
	return nil
}

// linkSubscription resolves the subscription a new transaction points at. An
// explicit id must belong to the user; otherwise a plan-priced amount links to
// (or provisionally creates) the user's subscription.
func (u *paymentUC) linkSubscription(ctx context.Context, in InitiateInput) (string, error) {
	if in.SubscriptionID != "" {
		s, err := u.subs.Get(ctx, in.SubscriptionID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return "", fmt.Errorf("%w: subscription not found", domain.ErrValidation)
			}
			return "", err
		}
		if s.UserID != in.UserID {
			return "", fmt.Errorf("%w: subscription belongs to another user", domain.ErrValidation)
		}
		return s.ID, nil
	}

	plan := u.prices.DeterminePlan(in.Amount)
	if plan == model.PlanNone {
		return "", nil
	}
	s, err := u.subs.FindOrCreatePending(ctx, in.UserID, plan)
	if err != nil {
		// Not fatal: the dispatcher finds the user's subscription on success.
		u.log.Warn().Err(err).Str("user_id", in.UserID).Msg("could not pre-link subscription")
		return "", nil
	}
	return s.ID, nil
}

func (u *paymentUC) gatewayFailed(ctx context.Context, tx *model.Transaction, gerr error, log *zerolog.Logger) error {
	if errors.Is(gerr, domain.ErrGatewayRejected) {
		metrics.IncPaymentInitiated("rejected")
		log.Warn().Err(gerr).Msg("gateway rejected payment")
		_, err := u.tr.apply(ctx, tx.ID, SourceInitiate, func(t *model.Transaction, now time.Time) (model.TransactionStatus, model.Transition) {
			decision := t.Status.Decide(model.TransactionStatusFailed)
			if decision == model.TransitionForward {
				t.Status = model.TransactionStatusFailed
				t.Reconciled = false
			}
			t.AddNote(now, "initiate rejected by gateway: %v", gerr)
			return model.TransactionStatusFailed, decision
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to record gateway rejection")
		}
		return gerr
	}

	metrics.IncPaymentInitiated("unavailable")
	log.Error().Err(gerr).Msg("gateway unavailable; transaction left in created state")
	if _, err := u.txs.Update(ctx, tx.ID, func(t *model.Transaction) error {
		t.AddNote(time.Now(), "initiate failed: %v; client must retry with a new externalId", gerr)
		return nil
	}); err != nil {
		log.Error().Err(err).Msg("failed to annotate transaction")
	}
	if !errors.Is(gerr, domain.ErrGatewayUnavailable) {
		return fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, gerr)
	}
	return gerr
}

// NormalizePhone strips formatting and a leading country code so that
// "+237 6 71 23 45 67" and "671234567" compare equal.
func NormalizePhone(raw, countryCode string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	digits = strings.TrimPrefix(digits, "00")
	if countryCode != "" && len(digits) > len(countryCode)+8 && strings.HasPrefix(digits, countryCode) {
		digits = digits[len(countryCode):]
	}
	return digits
}
