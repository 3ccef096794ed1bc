package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"momo-subscription/internal/config"
	"momo-subscription/internal/domain/model"
	"momo-subscription/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*AlertNotifier)(nil)

// sender is the part of tgbotapi.BotAPI the notifier uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// AlertNotifier posts status changes and operator alerts to Telegram chats.
type AlertNotifier struct {
	bot     sender
	chatIDs []int64
	log     *zerolog.Logger
}

func NewAlertNotifier(cfg config.AlertsConfig, logger *zerolog.Logger) (*AlertNotifier, error) {
	if cfg.TelegramToken == "" {
		return nil, errors.New("alerts.telegram_token is empty")
	}
	if len(cfg.ChatIDs) == 0 {
		return nil, errors.New("alerts.chat_ids is empty")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newAlertNotifier(bot, cfg.ChatIDs, logger), nil
}

func newAlertNotifier(bot sender, chatIDs []int64, logger *zerolog.Logger) *AlertNotifier {
	l := logger.With().Str("component", "AlertNotifier").Logger()
	return &AlertNotifier{bot: bot, chatIDs: chatIDs, log: &l}
}

func (n *AlertNotifier) NotifyStatusChange(ctx context.Context, change adapter.StatusChange) error {
	return n.broadcast(ctx, formatStatusChange(change))
}

func (n *AlertNotifier) Alert(ctx context.Context, alert adapter.Alert) error {
	return n.broadcast(ctx, formatAlert(alert))
}

// broadcast sends text to every chat and reports all failures together.
func (n *AlertNotifier) broadcast(ctx context.Context, text string) error {
	var errs []error
	for _, id := range n.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := n.bot.Send(tgbotapi.NewMessage(id, text)); err != nil {
			n.log.Warn().Err(err).Int64("chat_id", id).Msg("telegram send failed")
			errs = append(errs, fmt.Errorf("chat %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func formatAlert(a adapter.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", strings.ToUpper(string(a.Level)), a.Source)
	if a.TransactionID != "" {
		fmt.Fprintf(&b, " tx=%s", a.TransactionID)
	}
	b.WriteString("\n")
	b.WriteString(a.Message)
	return b.String()
}

func formatStatusChange(c adapter.StatusChange) string {
	t := c.Transaction
	var b strings.Builder
	fmt.Fprintf(&b, "Payment %s: %s -> %s\n", t.ID, c.From, t.Status)
	fmt.Fprintf(&b, "user=%s amount=%d", t.UserID, t.Amount)
	if t.Status == model.TransactionStatusSuccessful && t.Revenue != nil {
		fmt.Fprintf(&b, " revenue=%d", *t.Revenue)
	}
	if s := c.Subscription; s != nil {
		fmt.Fprintf(&b, "\nsubscription=%s plan=%s status=%s until %s", s.ID, s.Plan, s.PaymentStatus, s.EndDate.Format("2006-01-02"))
	}
	return b.String()
}
