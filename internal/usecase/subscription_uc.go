// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"momo-subscription/internal/domain"
	"momo-subscription/internal/domain/model"
	"momo-subscription/internal/domain/ports/repository"
	"momo-subscription/internal/infra/metrics"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

// SubscriptionResult describes what a lifecycle call did to the subscription.
type SubscriptionResult struct {
	Subscription *model.Subscription
	Created      bool // a new subscription row was inserted
	Duplicate    bool // the transaction had already been counted; nothing changed
	Suppressed   bool // a downgrade was skipped because a paid period is still running
}

type SubscriptionUseCase interface {
	// FindOrCreate grants one plan period for a successful transaction,
	// creating the user's subscription or extending the existing one.
	FindOrCreate(ctx context.Context, userID string, plan model.Plan, amount int64, transactionID string) (SubscriptionResult, error)
	// ExtendExisting grants one plan period on a known subscription. A
	// transaction already on the subscription is never counted twice.
	ExtendExisting(ctx context.Context, subscriptionID string, plan model.Plan, amount int64, transactionID string) (SubscriptionResult, error)
	// FindOrCreatePending returns the user's subscription, creating a
	// provisional one (paymentStatus=pending) when there is none.
	FindOrCreatePending(ctx context.Context, userID string, plan model.Plan) (*model.Subscription, error)
	// RecordUnpaid applies a failed/expired payment to a linked subscription.
	RecordUnpaid(ctx context.Context, subscriptionID string, status model.SubscriptionPaymentStatus) (SubscriptionResult, error)

	Get(ctx context.Context, subscriptionID string) (*model.Subscription, error)
	FindByUser(ctx context.Context, userID string) (*model.Subscription, error)
}

type subscriptionUC struct {
	subs repository.SubscriptionRepository
	log  *zerolog.Logger
}

func NewSubscriptionUseCase(subs repository.SubscriptionRepository, logger *zerolog.Logger) *subscriptionUC {
	l := logger.With().Str("component", "subscription_uc").Logger()
	return &subscriptionUC{subs: subs, log: &l}
}

func (u *subscriptionUC) FindOrCreate(ctx context.Context, userID string, plan model.Plan, amount int64, transactionID string) (SubscriptionResult, error) {
	if userID == "" || transactionID == "" || !plan.Valid() {
		return SubscriptionResult{}, domain.ErrInvalidArgument
	}
	existing, err := u.subs.FindByUser(ctx, userID)
	switch {
	case err == nil:
		return u.extend(ctx, existing.ID, plan, amount, transactionID)
	case !errors.Is(err, domain.ErrNotFound):
		return SubscriptionResult{}, storageErr("find subscription by user", err)
	}

	now := time.Now()
	s, err := model.NewSubscription(uuid.NewString(), userID, plan, now, model.SubscriptionPaymentPaid)
	if err != nil {
		return SubscriptionResult{}, err
	}
	s.Transactions = []string{transactionID}

	if err := u.subs.Create(ctx, s); err != nil {
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return SubscriptionResult{}, storageErr("create subscription", err)
		}
		// Another writer created the user's row first; extend theirs.
		existing, ferr := u.subs.FindByUser(ctx, userID)
		if ferr != nil {
			return SubscriptionResult{}, storageErr("find subscription by user", ferr)
		}
		return u.extend(ctx, existing.ID, plan, amount, transactionID)
	}

	metrics.IncSubscriptionChange("created")
	u.log.Info().
		Str("subscription_id", s.ID).
		Str("user_id", userID).
		Str("plan", string(plan)).
		Int64("amount", amount).
		Time("end_date", s.EndDate).
		Msg("subscription created")
	return SubscriptionResult{Subscription: s, Created: true}, nil
}

func (u *subscriptionUC) ExtendExisting(ctx context.Context, subscriptionID string, plan model.Plan, amount int64, transactionID string) (SubscriptionResult, error) {
	if subscriptionID == "" || transactionID == "" || !plan.Valid() {
		return SubscriptionResult{}, domain.ErrInvalidArgument
	}
	return u.extend(ctx, subscriptionID, plan, amount, transactionID)
}

func (u *subscriptionUC) extend(ctx context.Context, subscriptionID string, plan model.Plan, amount int64, transactionID string) (SubscriptionResult, error) {
	now := time.Now()
	var previousEnd time.Time
	s, err := u.subs.Update(ctx, subscriptionID, func(s *model.Subscription) error {
		previousEnd = s.EndDate
		return s.ApplyPayment(plan, transactionID, now)
	})
	if errors.Is(err, domain.ErrAlreadyApplied) {
		cur, ferr := u.subs.FindByID(ctx, subscriptionID)
		if ferr != nil {
			return SubscriptionResult{}, storageErr("find subscription", ferr)
		}
		metrics.IncSubscriptionChange("duplicate")
		u.log.Debug().
			Str("subscription_id", subscriptionID).
			Str("transaction_id", transactionID).
			Msg("transaction already counted on subscription")
		return SubscriptionResult{Subscription: cur, Duplicate: true}, nil
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return SubscriptionResult{}, err
		}
		return SubscriptionResult{}, storageErr("extend subscription", err)
	}

	metrics.IncSubscriptionChange("extended")
	u.log.Info().
		Str("subscription_id", s.ID).
		Str("transaction_id", transactionID).
		Str("plan", string(plan)).
		Int64("amount", amount).
		Time("previous_end", previousEnd).
		Time("end_date", s.EndDate).
		Msg("subscription extended")
	return SubscriptionResult{Subscription: s}, nil
}

func (u *subscriptionUC) FindOrCreatePending(ctx context.Context, userID string, plan model.Plan) (*model.Subscription, error) {
	existing, err := u.subs.FindByUser(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, storageErr("find subscription by user", err)
	}

	s, err := model.NewSubscription(uuid.NewString(), userID, plan, time.Now(), model.SubscriptionPaymentPending)
	if err != nil {
		return nil, err
	}
	if err := u.subs.Create(ctx, s); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return u.subs.FindByUser(ctx, userID)
		}
		return nil, storageErr("create subscription", err)
	}
	metrics.IncSubscriptionChange("provisional")
	return s, nil
}

func (u *subscriptionUC) RecordUnpaid(ctx context.Context, subscriptionID string, status model.SubscriptionPaymentStatus) (SubscriptionResult, error) {
	now := time.Now()
	suppressed := false
	s, err := u.subs.Update(ctx, subscriptionID, func(s *model.Subscription) error {
		suppressed = !s.MarkUnpaid(status, now)
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return SubscriptionResult{}, err
		}
		return SubscriptionResult{}, storageErr("downgrade subscription", err)
	}
	if suppressed {
		metrics.IncSubscriptionChange("downgrade_suppressed")
		u.log.Info().
			Str("subscription_id", subscriptionID).
			Str("status", string(status)).
			Time("end_date", s.EndDate).
			Msg("kept paid subscription; period still running")
		return SubscriptionResult{Subscription: s, Suppressed: true}, nil
	}
	metrics.IncSubscriptionChange("downgraded")
	return SubscriptionResult{Subscription: s}, nil
}

func (u *subscriptionUC) Get(ctx context.Context, subscriptionID string) (*model.Subscription, error) {
	return u.subs.FindByID(ctx, subscriptionID)
}

func (u *subscriptionUC) FindByUser(ctx context.Context, userID string) (*model.Subscription, error) {
	return u.subs.FindByUser(ctx, userID)
}

// storageErr tags repository failures with domain.ErrStorage. Not-found and
// already-tagged errors pass through.
func storageErr(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrStorage) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorage, err)
}
