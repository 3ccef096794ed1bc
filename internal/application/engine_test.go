//go:build !integration

package application

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"momo-subscription/internal/config"
	payAdapters "momo-subscription/internal/infra/adapters/payment"
	tele "momo-subscription/internal/infra/adapters/telegram"
)

func nopLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

func TestNewGateway(t *testing.T) {
	t.Run("memory provider", func(t *testing.T) {
		g, err := NewGateway(config.GatewayConfig{Provider: "memory"}, nopLogger())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := g.(*payAdapters.MemoryGateway); !ok {
			t.Errorf("expected *MemoryGateway, got %T", g)
		}
	})

	t.Run("fapshi provider", func(t *testing.T) {
		g, err := NewGateway(config.GatewayConfig{
			Provider: "fapshi", BaseURL: "https://sandbox.fapshi.com", APIUser: "u", APIKey: "k",
			Timeout: time.Second, MaxAttempts: 1, BackoffBase: time.Millisecond,
		}, nopLogger())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if g.Name() != "fapshi" {
			t.Errorf("expected fapshi, got %s", g.Name())
		}
	})

	t.Run("fapshi without credentials", func(t *testing.T) {
		g, err := NewGateway(config.GatewayConfig{Provider: "fapshi", BaseURL: "https://x"}, nopLogger())
		if err == nil || g != nil {
			t.Errorf("expected an error and a nil gateway, got %v, %v", g, err)
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		if _, err := NewGateway(config.GatewayConfig{Provider: "mtn"}, nopLogger()); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestNewNotifier(t *testing.T) {
	n, err := NewNotifier(config.AlertsConfig{}, false, nopLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := n.(*tele.LogNotifier); !ok {
		t.Errorf("expected *LogNotifier without a token, got %T", n)
	}

	n, _ = NewNotifier(config.AlertsConfig{TelegramToken: "tok", ChatIDs: []int64{1}}, true, nopLogger())
	if _, ok := n.(*tele.LogNotifier); !ok {
		t.Errorf("expected *LogNotifier in dev, got %T", n)
	}
}

func TestPaymentPolicy(t *testing.T) {
	cfg := &config.Config{
		Payments: config.PaymentsConfig{MinAmount: 100, PhonePattern: `^6[0-9]{8}$`, CountryCode: "237", RateLimit: 5, RateLimitWindow: time.Minute},
		Runtime:  config.RuntimeConfig{Dev: true},
	}

	p, err := PaymentPolicy(cfg)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Phone.MatchString("670000000") || p.Phone.MatchString("570000000") {
		t.Error("phone pattern not compiled from config")
	}
	if p.MinAmount != 100 || p.RateLimit != 5 || !p.Dev {
		t.Errorf("unexpected policy: %+v", p)
	}

	cfg.Payments.PhonePattern = "("
	if _, err := PaymentPolicy(cfg); err == nil {
		t.Error("expected an error for a bad pattern")
	}
}

func TestPriceTable(t *testing.T) {
	pt := PriceTable(config.PlansConfig{Monthly: 3000, Yearly: 30000, Tolerance: 0.05})
	if pt.Monthly != 3000 || pt.Yearly != 30000 || pt.Tolerance != 0.05 {
		t.Errorf("unexpected table: %+v", pt)
	}
}
