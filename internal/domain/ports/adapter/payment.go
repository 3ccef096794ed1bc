package adapter

import (
	"context"
	"time"

	"momo-subscription/internal/domain/model"
)

// InitiateRequest carries everything the provider needs to open a collection.
type InitiateRequest struct {
	Amount     int64
	Phone      string
	Medium     string // optional; provider picks from the phone prefix when empty
	PayerName  string
	PayerEmail string
	UserID     string
	ExternalID string // idempotency key
	Message    string
}

type InitiateResult struct {
	GatewayTransID string
	DateInitiated  time.Time
}

// PaymentGateway is the hex port for the mobile-money provider.
type PaymentGateway interface {
	Name() string

	// InitiatePayment opens a provider-side payment. Fails with
	// domain.ErrGatewayUnavailable after retries or domain.ErrGatewayRejected
	// on a permanent provider error. Callers must not retry with the same
	// external id after a failure.
	InitiatePayment(ctx context.Context, req InitiateRequest) (InitiateResult, error)
	// GetStatus fetches the provider's view of a transaction. domain.ErrNotFound
	// means the provider has no record yet.
	GetStatus(ctx context.Context, gatewayTransID string) (model.ProviderTransaction, error)
	// ValidateWebhookPayload checks a raw push body (and signature when the
	// provider signs). It never touches storage.
	ValidateWebhookPayload(raw []byte, signature string) (model.ProviderTransaction, error)
}
