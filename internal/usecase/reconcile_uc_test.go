//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"momo-subscription/internal/domain"
	"momo-subscription/internal/domain/model"
	"momo-subscription/internal/domain/ports/repository"
	"momo-subscription/internal/usecase"
)

func TestReconcileUseCase_RunBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("should settle a payment when no webhook arrives", func(t *testing.T) {
		// --- Arrange ---
		h := newHarness()
		out, err := h.payments.Initiate(ctx, usecase.InitiateInput{UserID: "user-1", Amount: 3000, Phone: "+237 671 234 567"})
		if err != nil {
			t.Fatalf("initiate: %v", err)
		}
		gwID := out.Transaction.GatewayID()
		h.gateway.StatusFunc = func(ctx context.Context, id string) (model.ProviderTransaction, error) {
			return model.ProviderTransaction{TransID: id, Status: "SUCCESSFUL", Amount: 3000, Revenue: i64Ptr(2900)}, nil
		}

		// --- Act ---
		report, err := h.reconciler.RunBatch(ctx)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if report.Checked != 1 || report.Updated != 1 {
			t.Errorf("expected 1 checked / 1 updated, got %+v", report)
		}
		stored := h.txs.Get(out.Transaction.ID)
		if stored.Status != model.TransactionStatusSuccessful || stored.DateConfirmed == nil {
			t.Errorf("expected successful with dateConfirmed, got %s %v", stored.Status, stored.DateConfirmed)
		}
		if stored.StatusCheckCount != 1 || stored.LastStatusCheck == nil {
			t.Errorf("expected one recorded check, got %d", stored.StatusCheckCount)
		}
		sub := h.subs.ByUser("user-1")
		if sub == nil || sub.PaymentStatus != model.SubscriptionPaymentPaid || sub.Plan != model.PlanMonthly {
			t.Fatalf("expected a paid monthly subscription, got %+v", sub)
		}
		if want := model.PlanMonthly.Advance(sub.StartDate); !sub.EndDate.Equal(want) {
			t.Errorf("expected end = start + 1 month, got %v", sub.EndDate)
		}
		if h.gateway.StatusCalls[0] != gwID {
			t.Errorf("expected status call for %s, got %v", gwID, h.gateway.StatusCalls)
		}
	})

	t.Run("should record the check but keep the status when the provider has no record", func(t *testing.T) {
		// --- Arrange ---
		h := newHarness()
		h.txs.Put(pendingTx("tx-1", "user-1", 3000))

		// --- Act ---
		report, err := h.reconciler.RunBatch(ctx)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if report.NotFound != 1 {
			t.Errorf("expected one not_found item, got %+v", report)
		}
		stored := h.txs.Get("tx-1")
		if stored.Status != model.TransactionStatusPending || stored.StatusCheckCount != 1 {
			t.Errorf("expected pending with one check, got %s / %d", stored.Status, stored.StatusCheckCount)
		}
	})

	t.Run("should keep going after a failing item", func(t *testing.T) {
		// --- Arrange ---
		h := newHarness()
		first := pendingTx("tx-1", "user-1", 3000)
		first.DateInitiated = time.Now().Add(-2 * time.Hour)
		h.txs.Put(first)
		h.txs.Put(pendingTx("tx-2", "user-2", 3000))
		h.gateway.StatusFunc = func(ctx context.Context, id string) (model.ProviderTransaction, error) {
			if id == "gw-tx-1" {
				return model.ProviderTransaction{}, domain.ErrGatewayUnavailable
			}
			return model.ProviderTransaction{TransID: id, Status: "EXPIRED"}, nil
		}

		// --- Act ---
		report, err := h.reconciler.RunBatch(ctx)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if report.Errors != 1 || report.Updated != 1 {
			t.Errorf("expected 1 error / 1 updated, got %+v", report)
		}
		if report.Items[0].TransactionID != "tx-1" {
			t.Errorf("expected oldest first, got %s", report.Items[0].TransactionID)
		}
		if !strings.Contains(h.txs.Get("tx-1").Notes, "status check failed") {
			t.Error("expected a note on the failing transaction")
		}
		if got := h.txs.Get("tx-2").Status; got != model.TransactionStatusExpired {
			t.Errorf("expected expired, got %s", got)
		}
	})

	t.Run("should skip transactions checked inside the staleness window", func(t *testing.T) {
		// --- Arrange ---
		h := newHarness()
		tx := pendingTx("tx-1", "user-1", 3000)
		recent := time.Now().Add(-time.Minute)
		tx.LastStatusCheck = &recent
		h.txs.Put(tx)

		// --- Act ---
		report, _ := h.reconciler.RunBatch(ctx)

		// --- Assert ---
		if report.Checked != 0 {
			t.Errorf("expected nothing checked, got %d", report.Checked)
		}
	})

	t.Run("should stop between items when cancelled", func(t *testing.T) {
		// --- Arrange ---
		h := newHarness()
		h.txs.Put(pendingTx("tx-1", "user-1", 3000))
		h.txs.Put(pendingTx("tx-2", "user-2", 3000))
		cctx, cancel := context.WithCancel(ctx)
		h.gateway.StatusFunc = func(ctx context.Context, id string) (model.ProviderTransaction, error) {
			cancel()
			return model.ProviderTransaction{}, domain.ErrNotFound
		}

		// --- Act ---
		report, err := h.reconciler.RunBatch(cctx)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !report.Interrupted || report.Checked != 1 {
			t.Errorf("expected interrupted after one item, got %+v", report)
		}
	})

	t.Run("should redispatch a successful transaction whose side effects never ran", func(t *testing.T) {
		// --- Arrange ---
		h := newHarness()
		tx := pendingTx("tx-1", "user-1", 3000)
		tx.Status = model.TransactionStatusSuccessful
		tx.UpdatedAt = time.Now().Add(-10 * time.Minute)
		h.txs.Put(tx)

		// --- Act ---
		report, err := h.reconciler.RunBatch(ctx)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if report.Redispatched != 1 {
			t.Errorf("expected one redispatch, got %+v", report)
		}
		if !h.txs.Get("tx-1").Reconciled {
			t.Error("expected transaction to be reconciled")
		}
		if sub := h.subs.ByUser("user-1"); sub == nil || !sub.HasTransaction("tx-1") {
			t.Error("expected subscription granted by the sweep")
		}
	})

	t.Run("should surface a storage failure when listing", func(t *testing.T) {
		// --- Arrange ---
		h := newHarness()
		failing := &failingListRepo{MockTransactionRepo: h.txs}
		uc := usecase.NewReconcileUseCase(failing, h.gateway, h.dispatcher, h.notifier, usecase.ReconcilePolicy{}, newTestLogger())

		// --- Act ---
		_, err := uc.RunBatch(ctx)

		// --- Assert ---
		if !errors.Is(err, domain.ErrStorage) {
			t.Fatalf("expected ErrStorage, got %v", err)
		}
	})
}

func TestReconcileUseCase_VerifyNow(t *testing.T) {
	ctx := context.Background()

	t.Run("should check a single transaction on demand", func(t *testing.T) {
		// --- Arrange ---
		h := newHarness()
		tx := pendingTx("tx-1", "user-1", 3000)
		recent := time.Now()
		tx.LastStatusCheck = &recent
		h.txs.Put(tx)
		h.gateway.StatusFunc = func(ctx context.Context, id string) (model.ProviderTransaction, error) {
			return model.ProviderTransaction{TransID: id, Status: "FAILED"}, nil
		}

		// --- Act ---
		item, err := h.reconciler.VerifyNow(ctx, "tx-1")

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if item.Outcome != usecase.ItemUpdated || item.Status != model.TransactionStatusFailed {
			t.Errorf("expected updated/failed, got %+v", item)
		}
	})

	t.Run("should return not found for an unknown transaction", func(t *testing.T) {
		// --- Arrange ---
		h := newHarness()

		// --- Act ---
		_, err := h.reconciler.VerifyNow(ctx, "missing")

		// --- Assert ---
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should refuse a transaction the provider never acknowledged", func(t *testing.T) {
		// --- Arrange ---
		h := newHarness()
		tx := pendingTx("tx-1", "user-1", 3000)
		tx.GatewayTransID = nil
		h.txs.Put(tx)

		// --- Act ---
		_, err := h.reconciler.VerifyNow(ctx, "tx-1")

		// --- Assert ---
		if !errors.Is(err, domain.ErrStateConflict) {
			t.Fatalf("expected ErrStateConflict, got %v", err)
		}
	})
}

func TestConcurrentWebhookAndPoll(t *testing.T) {
	ctx := context.Background()

	// --- Arrange ---
	h := newHarness()
	h.txs.Put(pendingTx("tx-1", "user-1", 3000))
	event := successEvent("tx-1", 3000)
	h.gateway.StatusFunc = func(ctx context.Context, id string) (model.ProviderTransaction, error) {
		return event, nil
	}

	// --- Act ---
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = h.webhooks.Handle(ctx, eventBody(event), "")
		}()
		go func() {
			defer wg.Done()
			_, _ = h.reconciler.VerifyNow(ctx, "tx-1")
		}()
	}
	wg.Wait()

	// --- Assert ---
	sub := h.subs.ByUser("user-1")
	if sub == nil {
		t.Fatal("expected a subscription")
	}
	if len(sub.Transactions) != 1 {
		t.Errorf("expected exactly one extension, got %v", sub.Transactions)
	}
	if h.subs.Count() != 1 {
		t.Errorf("expected one subscription, got %d", h.subs.Count())
	}
	if want := model.PlanMonthly.Advance(sub.StartDate); !sub.EndDate.Equal(want) {
		t.Errorf("expected a single month granted, got %v -> %v", sub.StartDate, sub.EndDate)
	}
	if h.notifier.ChangeCount() != 1 {
		t.Errorf("expected one status change notice, got %d", h.notifier.ChangeCount())
	}
}

type failingListRepo struct {
	*MockTransactionRepo
}

func (r *failingListRepo) ListDueForCheck(ctx context.Context, q repository.DueCheckQuery) ([]*model.Transaction, error) {
	return nil, errors.New("connection refused")
}
