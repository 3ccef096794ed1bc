package model

import (
	"time"

	"momo-subscription/internal/domain"
)

type SubscriptionPaymentStatus string

const (
	SubscriptionPaymentPending SubscriptionPaymentStatus = "pending" // provisional, linked at initiate
	SubscriptionPaymentPaid    SubscriptionPaymentStatus = "paid"
	SubscriptionPaymentFailed  SubscriptionPaymentStatus = "failed"
	SubscriptionPaymentExpired SubscriptionPaymentStatus = "expired"
)

// Subscription is a user's paid-access window. One per user.
type Subscription struct {
	ID            string // UUID
	UserID        string
	Plan          Plan
	StartDate     time.Time
	EndDate       time.Time
	PaymentStatus SubscriptionPaymentStatus
	Transactions  []string // contributing transaction ids, append-only

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSubscription builds a subscription covering one plan period from start.
func NewSubscription(id, userID string, plan Plan, start time.Time, status SubscriptionPaymentStatus) (*Subscription, error) {
	if id == "" || userID == "" || !plan.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	return &Subscription{
		ID:            id,
		UserID:        userID,
		Plan:          plan,
		StartDate:     start,
		EndDate:       plan.Advance(start),
		PaymentStatus: status,
		Transactions:  []string{},
		CreatedAt:     start,
		UpdatedAt:     start,
	}, nil
}

func (s *Subscription) HasTransaction(txID string) bool {
	for _, id := range s.Transactions {
		if id == txID {
			return true
		}
	}
	return false
}

// IsCurrent reports whether a paid period covers at.
func (s *Subscription) IsCurrent(at time.Time) bool {
	return s.PaymentStatus == SubscriptionPaymentPaid && at.Before(s.EndDate)
}

// ApplyPayment extends the subscription by one plan period for a successful
// transaction. A renewal bought before expiry stacks on the remaining period;
// one bought after expiry (or the first payment of a provisional subscription)
// starts at now. Returns domain.ErrAlreadyApplied if txID was counted before.
func (s *Subscription) ApplyPayment(plan Plan, txID string, now time.Time) error {
	if !plan.Valid() || txID == "" {
		return domain.ErrInvalidArgument
	}
	if s.HasTransaction(txID) {
		return domain.ErrAlreadyApplied
	}
	neverPaid := len(s.Transactions) == 0
	effectiveStart := now
	if !neverPaid && s.EndDate.After(now) {
		effectiveStart = s.EndDate
	} else if now.After(s.StartDate) {
		// lapsed or provisional: the new period begins today
		s.StartDate = now
	}
	newEnd := plan.Advance(effectiveStart)
	if newEnd.After(s.EndDate) || neverPaid {
		s.EndDate = newEnd
	}
	s.Plan = plan
	s.PaymentStatus = SubscriptionPaymentPaid
	s.Transactions = append(s.Transactions, txID)
	s.UpdatedAt = now
	return nil
}

// MarkUnpaid records a failed or expired payment against the subscription.
// A paid period that is still running is left alone so that a late failure
// cannot revoke time another transaction paid for. Returns false when the
// status was kept.
func (s *Subscription) MarkUnpaid(status SubscriptionPaymentStatus, now time.Time) bool {
	if status != SubscriptionPaymentFailed && status != SubscriptionPaymentExpired {
		return false
	}
	if s.IsCurrent(now) {
		return false
	}
	s.PaymentStatus = status
	s.UpdatedAt = now
	return true
}
