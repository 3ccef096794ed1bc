package application

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"momo-subscription/internal/config"
	"momo-subscription/internal/domain/model"
	"momo-subscription/internal/domain/ports/adapter"
	"momo-subscription/internal/domain/ports/repository"
	payAdapters "momo-subscription/internal/infra/adapters/payment"
	tele "momo-subscription/internal/infra/adapters/telegram"
	pg "momo-subscription/internal/infra/db/postgres"
	red "momo-subscription/internal/infra/redis"
	"momo-subscription/internal/usecase"
)

// Engine holds the wired payment engine shared by the server and the
// one-shot reconcile command.
type Engine struct {
	Payments      usecase.PaymentUseCase
	Webhooks      usecase.WebhookUseCase
	Reconcile     usecase.ReconcileUseCase
	Subscriptions usecase.SubscriptionUseCase
	Gateway       adapter.PaymentGateway
	Notifier      adapter.Notifier
	Locker        adapter.Locker // nil without redis
	Pool          *pgxpool.Pool

	closers []func()
}

// NewEngine connects storage, picks the gateway and notifier from cfg and
// builds the use cases.
func NewEngine(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*Engine, error) {
	e := &Engine{}

	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	e.Pool = pool
	e.closers = append(e.closers, pool.Close)
	if cfg.Database.Migrate {
		if err := pg.Migrate(ctx, pool); err != nil {
			e.Close()
			return nil, err
		}
	}

	var limiter adapter.RateLimiter
	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, cfg.Redis)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.closers = append(e.closers, func() { _ = rc.Close() })
		limiter = red.NewRateLimiter(rc)
		e.Locker = red.NewLocker(rc)
	} else {
		logger.Warn().Msg("redis.url not set; rate limiting and the reconcile lock are disabled")
	}

	gateway, err := NewGateway(cfg.Gateway, logger)
	if err != nil {
		e.Close()
		return nil, err
	}
	notifier, err := NewNotifier(cfg.Alerts, cfg.Runtime.Dev, logger)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.Gateway, e.Notifier = gateway, notifier

	policy, err := PaymentPolicy(cfg)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.wire(pg.NewTransactionRepo(pool), pg.NewSubscriptionRepo(pool), limiter, policy, cfg, logger)
	return e, nil
}

func (e *Engine) wire(
	txs repository.TransactionRepository,
	subsRepo repository.SubscriptionRepository,
	limiter adapter.RateLimiter,
	policy usecase.PaymentPolicy,
	cfg *config.Config,
	logger *zerolog.Logger,
) {
	prices := PriceTable(cfg.Plans)
	subs := usecase.NewSubscriptionUseCase(subsRepo, logger)
	dispatcher := usecase.NewStatusChangeDispatcher(txs, subs, e.Notifier, prices, logger)

	e.Subscriptions = subs
	e.Payments = usecase.NewPaymentUseCase(txs, subs, e.Gateway, dispatcher, e.Notifier, limiter, prices, policy, logger)
	e.Webhooks = usecase.NewWebhookUseCase(txs, e.Gateway, dispatcher, e.Notifier, logger)
	e.Reconcile = usecase.NewReconcileUseCase(txs, e.Gateway, dispatcher, e.Notifier, usecase.ReconcilePolicy{
		BatchSize:       cfg.Reconciler.BatchSize,
		StaleAfter:      cfg.Reconciler.StaleAfter,
		CallDelay:       cfg.Reconciler.CallDelay,
		RedispatchGrace: cfg.Reconciler.RedispatchGrace,
	}, logger)
}

// Close releases connections in reverse order of acquisition.
func (e *Engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

// NewGateway returns the provider client named by cfg.Provider.
func NewGateway(cfg config.GatewayConfig, logger *zerolog.Logger) (adapter.PaymentGateway, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "fapshi":
		g, err := payAdapters.NewFapshiGateway(cfg, logger)
		if err != nil {
			return nil, err
		}
		return g, nil
	case "memory":
		logger.Warn().Msg("using the in-memory payment gateway; no real money moves")
		return payAdapters.NewMemoryGateway(cfg.WebhookSecret), nil
	default:
		return nil, fmt.Errorf("unknown gateway.provider %q", cfg.Provider)
	}
}

// NewNotifier returns the Telegram notifier when a token is configured and
// the log notifier otherwise.
func NewNotifier(cfg config.AlertsConfig, dev bool, logger *zerolog.Logger) (adapter.Notifier, error) {
	if cfg.TelegramToken == "" || dev {
		return tele.NewLogNotifier(logger), nil
	}
	n, err := tele.NewAlertNotifier(cfg, logger)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func PriceTable(p config.PlansConfig) model.PriceTable {
	return model.PriceTable{Monthly: p.Monthly, Yearly: p.Yearly, Tolerance: p.Tolerance}
}

func PaymentPolicy(cfg *config.Config) (usecase.PaymentPolicy, error) {
	re, err := regexp.Compile(cfg.Payments.PhonePattern)
	if err != nil {
		return usecase.PaymentPolicy{}, fmt.Errorf("payments.phone_pattern: %w", err)
	}
	return usecase.PaymentPolicy{
		MinAmount:       cfg.Payments.MinAmount,
		Phone:           re,
		CountryCode:     cfg.Payments.CountryCode,
		DefaultMessage:  cfg.Payments.DefaultMessage,
		RateLimit:       cfg.Payments.RateLimit,
		RateLimitWindow: cfg.Payments.RateLimitWindow,
		Dev:             cfg.Runtime.Dev,
	}, nil
}
