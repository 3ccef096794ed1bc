package model

import (
	"strings"
	"time"
)

// ProviderTransaction is the validated view of a gateway transaction, from
// either a status poll or a webhook push.
type ProviderTransaction struct {
	TransID          string
	Status           string // raw provider status (CREATED, PENDING, ...)
	Amount           int64
	Revenue          *int64
	Medium           string
	FinancialTransID string
	ExternalID       string
	UserID           string
	PayerName        string
	Email            string
	DateInitiated    *time.Time
	DateConfirmed    *time.Time
}

// MapProviderStatus converts a provider status to the internal state. Anything
// unrecognised maps to unknown and is never coerced into a terminal state.
func MapProviderStatus(providerStatus string) TransactionStatus {
	switch strings.ToUpper(strings.TrimSpace(providerStatus)) {
	case "CREATED":
		return TransactionStatusCreated
	case "PENDING":
		return TransactionStatusPending
	case "SUCCESSFUL":
		return TransactionStatusSuccessful
	case "FAILED":
		return TransactionStatusFailed
	case "EXPIRED":
		return TransactionStatusExpired
	default:
		return TransactionStatusUnknown
	}
}
