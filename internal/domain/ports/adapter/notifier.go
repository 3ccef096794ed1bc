package adapter

import (
	"context"

	"momo-subscription/internal/domain/model"
)

type AlertLevel string

const (
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// Alert is an operator-facing message about something that needs follow-up.
type Alert struct {
	Level         AlertLevel
	Source        string // webhook | poller | initiate | dispatcher
	TransactionID string
	Message       string
}

// StatusChange is emitted once per genuine forward transition.
type StatusChange struct {
	Transaction  *model.Transaction
	From         model.TransactionStatus
	Subscription *model.Subscription // nil unless the change touched one
}

// Notifier delivers status-change notices and operator alerts out of band.
type Notifier interface {
	NotifyStatusChange(ctx context.Context, change StatusChange) error
	Alert(ctx context.Context, alert Alert) error
}
