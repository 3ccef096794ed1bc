package model

import (
	"fmt"
	"strings"
	"time"

	"momo-subscription/internal/domain"
)

type TransactionStatus string

const (
	TransactionStatusCreated    TransactionStatus = "created"    // row exists locally, provider not yet acknowledged
	TransactionStatusPending    TransactionStatus = "pending"    // provider acknowledged; awaiting payer
	TransactionStatusSuccessful TransactionStatus = "successful" // provider confirmed the charge
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusExpired    TransactionStatus = "expired"
	TransactionStatusRefunded   TransactionStatus = "refunded" // administrative only
	TransactionStatusUnknown    TransactionStatus = "unknown"  // provider sent something we do not recognise
)

// rank orders statuses for the forward-only rule. Terminal outcomes share a rank.
func (s TransactionStatus) rank() int {
	switch s {
	case TransactionStatusCreated:
		return 0
	case TransactionStatusPending:
		return 1
	case TransactionStatusSuccessful, TransactionStatusFailed, TransactionStatusExpired:
		return 2
	case TransactionStatusRefunded:
		return 3
	default:
		return -1
	}
}

// IsTerminal reports whether no provider update may move the status any further.
func (s TransactionStatus) IsTerminal() bool { return s.rank() >= 2 }

func (s TransactionStatus) Valid() bool { return s.rank() >= 0 }

// Transition is the outcome of comparing a current status with a proposed one.
type Transition string

const (
	TransitionForward  Transition = "forward"  // apply and dispatch side effects
	TransitionSame     Transition = "same"     // duplicate delivery; refresh metadata only
	TransitionStale    Transition = "stale"    // older than what we have; drop
	TransitionConflict Transition = "conflict" // terminal -> different terminal, or illegal jump
	TransitionIgnored  Transition = "ignored"  // unrecognised target status
)

// Decide applies the transaction state machine:
// created < pending < {successful, failed, expired}, refunded only from successful.
func (s TransactionStatus) Decide(target TransactionStatus) Transition {
	if !target.Valid() {
		return TransitionIgnored
	}
	if target == s {
		return TransitionSame
	}
	if target == TransactionStatusRefunded && s != TransactionStatusSuccessful {
		return TransitionConflict
	}
	switch cur, next := s.rank(), target.rank(); {
	case next > cur:
		return TransitionForward
	case next < cur:
		return TransitionStale
	default:
		return TransitionConflict
	}
}

// Transaction records one payment attempt end to end.
type Transaction struct {
	ID                string  // UUID
	ExternalID        string  // idempotency key sent to the provider (ULID)
	GatewayTransID    *string // provider id, nil until acknowledged
	UserID            string
	SubscriptionID    *string
	Amount            int64 // same unit as the configured plan prices; immutable
	Phone             string
	Status            TransactionStatus
	PaymentMedium     string
	Revenue           *int64 // amount net of provider fee, set on success
	FinancialTransID  string // mobile-money network reference
	DateInitiated     time.Time
	DateConfirmed     *time.Time
	WebhookReceived   bool
	WebhookReceivedAt *time.Time
	LastStatusCheck   *time.Time
	StatusCheckCount  int
	Reconciled        bool // dispatcher side effects for the current terminal status are done
	Notes             string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewTransaction validates and constructs a transaction in the created state.
func NewTransaction(id, externalID, userID string, amount int64, phone string, now time.Time) (*Transaction, error) {
	if id == "" || externalID == "" || userID == "" || amount <= 0 || phone == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &Transaction{
		ID:            id,
		ExternalID:    externalID,
		UserID:        userID,
		Amount:        amount,
		Phone:         phone,
		Status:        TransactionStatusCreated,
		DateInitiated: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// GatewayID returns the provider id or "".
func (t *Transaction) GatewayID() string {
	if t.GatewayTransID == nil {
		return ""
	}
	return *t.GatewayTransID
}

// AddNote appends a timestamped line to the diagnostic trail.
func (t *Transaction) AddNote(at time.Time, format string, args ...any) {
	line := at.UTC().Format(time.RFC3339) + " " + fmt.Sprintf(format, args...)
	if t.Notes == "" {
		t.Notes = line
		return
	}
	t.Notes = strings.TrimRight(t.Notes, "\n") + "\n" + line
}

// RecordCheck marks one status poll against the provider.
func (t *Transaction) RecordCheck(at time.Time) {
	t.LastStatusCheck = &at
	t.StatusCheckCount++
}

// RecordWebhook marks the receipt of a provider push.
func (t *Transaction) RecordWebhook(at time.Time) {
	t.WebhookReceived = true
	t.WebhookReceivedAt = &at
}

// ApplyProvider moves the transaction to the provider's status when the state
// machine allows it and copies the provider's terminal fields. It returns the
// transition decision; only TransitionForward mutates Status.
func (t *Transaction) ApplyProvider(p ProviderTransaction, at time.Time) Transition {
	target := MapProviderStatus(p.Status)
	decision := t.Status.Decide(target)
	if t.GatewayTransID == nil && p.TransID != "" {
		id := p.TransID
		t.GatewayTransID = &id
	}
	if decision != TransitionForward {
		return decision
	}
	t.Status = target
	t.Reconciled = false
	if p.Medium != "" {
		t.PaymentMedium = p.Medium
	}
	if p.FinancialTransID != "" {
		t.FinancialTransID = p.FinancialTransID
	}
	if target == TransactionStatusSuccessful {
		if p.Revenue != nil {
			rev := *p.Revenue
			t.Revenue = &rev
		}
		if t.DateConfirmed == nil {
			confirmed := at
			if p.DateConfirmed != nil {
				confirmed = *p.DateConfirmed
			}
			t.DateConfirmed = &confirmed
		}
	}
	return decision
}
