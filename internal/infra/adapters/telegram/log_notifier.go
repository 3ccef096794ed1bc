package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"momo-subscription/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*LogNotifier)(nil)

// LogNotifier writes notifications to the log instead of Telegram. Used in dev
// and when no bot token is configured.
type LogNotifier struct {
	log *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	l := logger.With().Str("component", "LogNotifier").Logger()
	return &LogNotifier{log: &l}
}

func (n *LogNotifier) NotifyStatusChange(ctx context.Context, c adapter.StatusChange) error {
	ev := n.log.Info().
		Str("transaction_id", c.Transaction.ID).
		Str("from", string(c.From)).
		Str("to", string(c.Transaction.Status)).
		Int64("amount", c.Transaction.Amount)
	if c.Subscription != nil {
		ev = ev.Str("subscription_id", c.Subscription.ID).Time("end_date", c.Subscription.EndDate)
	}
	ev.Msg("payment status changed")
	return nil
}

func (n *LogNotifier) Alert(ctx context.Context, a adapter.Alert) error {
	ev := n.log.Warn()
	if a.Level == adapter.AlertCritical {
		ev = n.log.Error()
	}
	ev.Str("source", a.Source).Str("transaction_id", a.TransactionID).Msg(a.Message)
	return nil
}
