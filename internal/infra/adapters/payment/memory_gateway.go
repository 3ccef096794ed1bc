package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"momo-subscription/internal/domain"
	"momo-subscription/internal/domain/model"
	"momo-subscription/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*MemoryGateway)(nil)

// MemoryGateway is an in-process gateway for local runs and tests. Payments
// stay PENDING until Settle is called.
type MemoryGateway struct {
	mu            sync.Mutex
	seq           int64
	webhookSecret string
	payments      map[string]*model.ProviderTransaction // transId -> state
}

func NewMemoryGateway(webhookSecret string) *MemoryGateway {
	return &MemoryGateway{
		webhookSecret: webhookSecret,
		payments:      make(map[string]*model.ProviderTransaction),
	}
}

func (g *MemoryGateway) Name() string { return "memory" }

func (g *MemoryGateway) next() string {
	g.seq++
	return fmt.Sprintf("mem-%06d", g.seq)
}

func (g *MemoryGateway) InitiatePayment(ctx context.Context, req adapter.InitiateRequest) (adapter.InitiateResult, error) {
	if req.Amount <= 0 || req.Phone == "" || req.ExternalID == "" {
		return adapter.InitiateResult{}, fmt.Errorf("%w: memory gateway: amount, phone and externalId are required", domain.ErrGatewayRejected)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	id := g.next()
	g.payments[id] = &model.ProviderTransaction{
		TransID:       id,
		Status:        "PENDING",
		Amount:        req.Amount,
		Medium:        req.Medium,
		ExternalID:    req.ExternalID,
		UserID:        req.UserID,
		PayerName:     req.PayerName,
		Email:         req.PayerEmail,
		DateInitiated: &now,
	}
	return adapter.InitiateResult{GatewayTransID: id, DateInitiated: now}, nil
}

func (g *MemoryGateway) GetStatus(ctx context.Context, gatewayTransID string) (model.ProviderTransaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[gatewayTransID]
	if !ok {
		return model.ProviderTransaction{}, domain.ErrNotFound
	}
	return *p, nil
}

func (g *MemoryGateway) ValidateWebhookPayload(raw []byte, signature string) (model.ProviderTransaction, error) {
	if err := verifySignature(g.webhookSecret, raw, signature); err != nil {
		return model.ProviderTransaction{}, err
	}
	return decodeEvent(raw)
}

// Settle moves a payment to a provider status (SUCCESSFUL, FAILED, EXPIRED).
// Revenue is set to the amount less a flat 3% fee on success.
func (g *MemoryGateway) Settle(gatewayTransID, status string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[gatewayTransID]
	if !ok {
		return domain.ErrNotFound
	}
	p.Status = status
	if model.MapProviderStatus(status) == model.TransactionStatusSuccessful {
		now := time.Now()
		rev := p.Amount - p.Amount*3/100
		p.Revenue = &rev
		p.DateConfirmed = &now
		p.FinancialTransID = "mem-fin-" + gatewayTransID
	}
	return nil
}
