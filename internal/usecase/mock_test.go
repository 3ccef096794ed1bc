//go:build !integration

package usecase_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"momo-subscription/internal/domain"
	"momo-subscription/internal/domain/model"
	"momo-subscription/internal/domain/ports/adapter"
	"momo-subscription/internal/domain/ports/repository"
	"momo-subscription/internal/usecase"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func strPtr(s string) *string { return &s }
func i64Ptr(v int64) *int64   { return &v }

var testPrices = model.PriceTable{Monthly: 3000, Yearly: 30000, Tolerance: 0.05}

// =============================
// Repositories
// =============================

// ---- MockTransactionRepo ----

// MockTransactionRepo is an in-memory store whose Update holds a lock across
// read, mutate and write, like a row lock in the real store.
type MockTransactionRepo struct {
	mu   sync.Mutex
	rows map[string]*model.Transaction

	UpdateErr   error // returned by Update before touching the row
	UpdateCalls int
}

var _ repository.TransactionRepository = (*MockTransactionRepo)(nil)

func NewMockTransactionRepo() *MockTransactionRepo {
	return &MockTransactionRepo{rows: make(map[string]*model.Transaction)}
}

func cloneTx(t *model.Transaction) *model.Transaction {
	c := *t
	return &c
}

func (m *MockTransactionRepo) Create(ctx context.Context, t *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[t.ID]; ok {
		return domain.ErrAlreadyExists
	}
	for _, r := range m.rows {
		if r.ExternalID == t.ExternalID {
			return domain.ErrAlreadyExists
		}
	}
	t.Version = 1
	m.rows[t.ID] = cloneTx(t)
	return nil
}

func (m *MockTransactionRepo) FindByID(ctx context.Context, id string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rows[id]; ok {
		return cloneTx(r), nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockTransactionRepo) FindByGatewayTransID(ctx context.Context, gatewayTransID string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.GatewayTransID != nil && *r.GatewayTransID == gatewayTransID {
			return cloneTx(r), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockTransactionRepo) FindByExternalID(ctx context.Context, externalID string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ExternalID == externalID {
			return cloneTx(r), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockTransactionRepo) ListDueForCheck(ctx context.Context, q repository.DueCheckQuery) ([]*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Transaction
	for _, r := range m.rows {
		if r.GatewayTransID == nil {
			continue
		}
		match := false
		for _, s := range q.Statuses {
			if r.Status == s {
				match = true
			}
		}
		if !match {
			continue
		}
		if r.LastStatusCheck != nil && !r.LastStatusCheck.Before(q.StaleBefore) {
			continue
		}
		out = append(out, cloneTx(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateInitiated.Before(out[j].DateInitiated) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MockTransactionRepo) ListUnreconciled(ctx context.Context, touchedBefore time.Time, limit int) ([]*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Transaction
	for _, r := range m.rows {
		if r.Status.IsTerminal() && !r.Reconciled && r.UpdatedAt.Before(touchedBefore) {
			out = append(out, cloneTx(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockTransactionRepo) Update(ctx context.Context, id string, fn repository.TransactionMutator) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls++
	if m.UpdateErr != nil {
		return nil, m.UpdateErr
	}
	r, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := cloneTx(r)
	if err := fn(c); err != nil {
		return nil, err
	}
	c.Version = r.Version + 1
	m.rows[id] = c
	return cloneTx(c), nil
}

// Put stores a row directly, bypassing Create's checks.
func (m *MockTransactionRepo) Put(t *model.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[t.ID] = cloneTx(t)
}

func (m *MockTransactionRepo) Get(id string) *model.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rows[id]; ok {
		return cloneTx(r)
	}
	return nil
}

func (m *MockTransactionRepo) All() []*model.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Transaction, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, cloneTx(r))
	}
	return out
}

// ---- MockSubscriptionRepo ----

type MockSubscriptionRepo struct {
	mu   sync.Mutex
	rows map[string]*model.Subscription

	UpdateErr error
	CreateErr error
	Updates   int
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{rows: make(map[string]*model.Subscription)}
}

func cloneSub(s *model.Subscription) *model.Subscription {
	c := *s
	c.Transactions = append([]string(nil), s.Transactions...)
	return &c
}

func (m *MockSubscriptionRepo) Create(ctx context.Context, s *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	for _, r := range m.rows {
		if r.UserID == s.UserID {
			return domain.ErrAlreadyExists
		}
	}
	s.Version = 1
	m.rows[s.ID] = cloneSub(s)
	return nil
}

func (m *MockSubscriptionRepo) FindByID(ctx context.Context, id string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rows[id]; ok {
		return cloneSub(r), nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockSubscriptionRepo) FindByUser(ctx context.Context, userID string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.UserID == userID {
			return cloneSub(r), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockSubscriptionRepo) Update(ctx context.Context, id string, fn repository.SubscriptionMutator) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return nil, m.UpdateErr
	}
	r, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := cloneSub(r)
	if err := fn(c); err != nil {
		return nil, err
	}
	c.Version = r.Version + 1
	m.rows[id] = c
	m.Updates++
	return cloneSub(c), nil
}

func (m *MockSubscriptionRepo) Put(s *model.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[s.ID] = cloneSub(s)
}

func (m *MockSubscriptionRepo) ByUser(userID string) *model.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.UserID == userID {
			return cloneSub(r)
		}
	}
	return nil
}

func (m *MockSubscriptionRepo) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// =============================
// Adapters
// =============================

// ---- MockGateway ----

type MockGateway struct {
	mu sync.Mutex

	InitiateFunc func(ctx context.Context, req adapter.InitiateRequest) (adapter.InitiateResult, error)
	StatusFunc   func(ctx context.Context, gatewayTransID string) (model.ProviderTransaction, error)
	ValidateFunc func(raw []byte, signature string) (model.ProviderTransaction, error)

	Initiated   []adapter.InitiateRequest
	StatusCalls []string
}

var _ adapter.PaymentGateway = (*MockGateway)(nil)

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) InitiatePayment(ctx context.Context, req adapter.InitiateRequest) (adapter.InitiateResult, error) {
	m.mu.Lock()
	m.Initiated = append(m.Initiated, req)
	m.mu.Unlock()
	if m.InitiateFunc != nil {
		return m.InitiateFunc(ctx, req)
	}
	return adapter.InitiateResult{GatewayTransID: "gw-" + req.ExternalID, DateInitiated: time.Now()}, nil
}

func (m *MockGateway) GetStatus(ctx context.Context, gatewayTransID string) (model.ProviderTransaction, error) {
	m.mu.Lock()
	m.StatusCalls = append(m.StatusCalls, gatewayTransID)
	m.mu.Unlock()
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, gatewayTransID)
	}
	return model.ProviderTransaction{}, domain.ErrNotFound
}

// ValidateWebhookPayload refuses everything unless ValidateFunc is set.
func (m *MockGateway) ValidateWebhookPayload(raw []byte, signature string) (model.ProviderTransaction, error) {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(raw, signature)
	}
	return model.ProviderTransaction{}, domain.ErrInvalidPayload
}

// ---- MockNotifier ----

type MockNotifier struct {
	mu      sync.Mutex
	Changes []adapter.StatusChange
	Alerts  []adapter.Alert

	NotifyErr error
}

var _ adapter.Notifier = (*MockNotifier)(nil)

func (m *MockNotifier) NotifyStatusChange(ctx context.Context, change adapter.StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Changes = append(m.Changes, change)
	return m.NotifyErr
}

func (m *MockNotifier) Alert(ctx context.Context, alert adapter.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Alerts = append(m.Alerts, alert)
	return nil
}

func (m *MockNotifier) ChangeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Changes)
}

func (m *MockNotifier) AlertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Alerts)
}

// ---- MockRateLimiter ----

type MockRateLimiter struct {
	AllowFunc func(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

var _ adapter.RateLimiter = (*MockRateLimiter)(nil)

func (m *MockRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, key, limit, window)
	}
	return true, nil
}

// =============================
// Fixtures
// =============================

// pendingTx returns a transaction that Initiate would have left in pending.
func pendingTx(id, userID string, amount int64) *model.Transaction {
	at := time.Now().Add(-10 * time.Minute)
	return &model.Transaction{
		ID:             id,
		ExternalID:     "ext-" + id,
		GatewayTransID: strPtr("gw-" + id),
		UserID:         userID,
		Amount:         amount,
		Phone:          "671234567",
		Status:         model.TransactionStatusPending,
		DateInitiated:  at,
		Version:        1,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

func successEvent(id string, amount int64) model.ProviderTransaction {
	confirmed := time.Now()
	return model.ProviderTransaction{
		TransID:          "gw-" + id,
		Status:           "SUCCESSFUL",
		Amount:           amount,
		Revenue:          i64Ptr(amount - amount/30),
		Medium:           "mobile money",
		FinancialTransID: "fin-" + id,
		ExternalID:       "ext-" + id,
		DateConfirmed:    &confirmed,
	}
}

// =============================
// Harness
// =============================

type harness struct {
	txs      *MockTransactionRepo
	subs     *MockSubscriptionRepo
	gateway  *MockGateway
	notifier *MockNotifier
	limiter  *MockRateLimiter

	subscriptions usecase.SubscriptionUseCase
	dispatcher    usecase.StatusChangeDispatcher
	payments      usecase.PaymentUseCase
	webhooks      usecase.WebhookUseCase
	reconciler    usecase.ReconcileUseCase
}

func newHarness() *harness {
	h := &harness{
		txs:      NewMockTransactionRepo(),
		subs:     NewMockSubscriptionRepo(),
		gateway:  &MockGateway{},
		notifier: &MockNotifier{},
		limiter:  &MockRateLimiter{},
	}
	h.gateway.ValidateFunc = func(raw []byte, signature string) (model.ProviderTransaction, error) {
		var p model.ProviderTransaction
		if err := json.Unmarshal(raw, &p); err != nil || p.TransID == "" {
			return model.ProviderTransaction{}, fmt.Errorf("%w: bad test payload", domain.ErrInvalidPayload)
		}
		return p, nil
	}

	logger := newTestLogger()
	h.subscriptions = usecase.NewSubscriptionUseCase(h.subs, logger)
	h.dispatcher = usecase.NewStatusChangeDispatcher(h.txs, h.subscriptions, h.notifier, testPrices, logger)
	h.payments = usecase.NewPaymentUseCase(h.txs, h.subscriptions, h.gateway, h.dispatcher, h.notifier, h.limiter, testPrices, usecase.PaymentPolicy{
		MinAmount:       100,
		Phone:           regexp.MustCompile(`^6[0-9]{8}$`),
		CountryCode:     "237",
		DefaultMessage:  "Subscription payment",
		RateLimit:       5,
		RateLimitWindow: time.Minute,
	}, logger)
	h.webhooks = usecase.NewWebhookUseCase(h.txs, h.gateway, h.dispatcher, h.notifier, logger)
	h.reconciler = usecase.NewReconcileUseCase(h.txs, h.gateway, h.dispatcher, h.notifier, usecase.ReconcilePolicy{
		BatchSize:       50,
		StaleAfter:      5 * time.Minute,
		CallDelay:       time.Millisecond,
		RedispatchGrace: time.Minute,
	}, logger)
	return h
}

func eventBody(p model.ProviderTransaction) []byte {
	b, _ := json.Marshal(p)
	return b
}
