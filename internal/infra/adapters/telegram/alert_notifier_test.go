//go:build !integration

package telegram

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"momo-subscription/internal/domain/model"
	"momo-subscription/internal/domain/ports/adapter"
)

type mockSender struct {
	sent   []tgbotapi.MessageConfig
	failID int64
}

func (m *mockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg := c.(tgbotapi.MessageConfig)
	if msg.ChatID == m.failID {
		return tgbotapi.Message{}, errors.New("forbidden")
	}
	m.sent = append(m.sent, msg)
	return tgbotapi.Message{}, nil
}

func nopLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

func TestAlertNotifier(t *testing.T) {
	t.Run("should send an alert to every chat", func(t *testing.T) {
		// --- Arrange ---
		bot := &mockSender{}
		n := newAlertNotifier(bot, []int64{1, 2}, nopLogger())

		// --- Act ---
		err := n.Alert(context.Background(), adapter.Alert{
			Level: adapter.AlertCritical, Source: "dispatcher", TransactionID: "tx-1", Message: "grant failed",
		})

		// --- Assert ---
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(bot.sent) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(bot.sent))
		}
		if want := "[CRITICAL] dispatcher tx=tx-1\ngrant failed"; bot.sent[0].Text != want {
			t.Errorf("unexpected text %q", bot.sent[0].Text)
		}
	})

	t.Run("should keep sending after one chat fails", func(t *testing.T) {
		// --- Arrange ---
		bot := &mockSender{failID: 1}
		n := newAlertNotifier(bot, []int64{1, 2}, nopLogger())

		// --- Act ---
		err := n.Alert(context.Background(), adapter.Alert{Level: adapter.AlertWarning, Source: "poller", Message: "x"})

		// --- Assert ---
		if err == nil || !strings.Contains(err.Error(), "chat 1") {
			t.Errorf("expected the chat 1 failure, got %v", err)
		}
		if len(bot.sent) != 1 || bot.sent[0].ChatID != 2 {
			t.Errorf("expected delivery to chat 2, got %+v", bot.sent)
		}
	})

	t.Run("should describe a confirmed payment", func(t *testing.T) {
		// --- Arrange ---
		bot := &mockSender{}
		n := newAlertNotifier(bot, []int64{1}, nopLogger())
		rev := int64(2910)
		change := adapter.StatusChange{
			Transaction: &model.Transaction{ID: "tx-1", UserID: "u-1", Amount: 3000, Revenue: &rev, Status: model.TransactionStatusSuccessful},
			From:        model.TransactionStatusPending,
			Subscription: &model.Subscription{
				ID: "sub-1", Plan: model.PlanMonthly, PaymentStatus: model.SubscriptionPaymentPaid,
				EndDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			},
		}

		// --- Act ---
		_ = n.NotifyStatusChange(context.Background(), change)

		// --- Assert ---
		text := bot.sent[0].Text
		for _, want := range []string{"pending -> successful", "revenue=2910", "plan=monthly", "until 2026-02-01"} {
			if !strings.Contains(text, want) {
				t.Errorf("expected %q in %q", want, text)
			}
		}
	})

	t.Run("should stop on a cancelled context", func(t *testing.T) {
		bot := &mockSender{}
		n := newAlertNotifier(bot, []int64{1, 2}, nopLogger())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := n.Alert(ctx, adapter.Alert{Message: "x"})

		if !errors.Is(err, context.Canceled) || len(bot.sent) != 0 {
			t.Errorf("expected cancel before sending, got err=%v sent=%d", err, len(bot.sent))
		}
	})
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)
	n := NewLogNotifier(&l)

	_ = n.Alert(context.Background(), adapter.Alert{Level: adapter.AlertCritical, Source: "webhook", TransactionID: "tx-9", Message: "conflict"})

	out := buf.String()
	if !strings.Contains(out, `"level":"error"`) || !strings.Contains(out, `"transaction_id":"tx-9"`) {
		t.Errorf("unexpected log line %s", out)
	}
}
