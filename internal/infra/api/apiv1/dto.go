package apiv1

import (
	"time"

	"momo-subscription/internal/domain/model"
)

type initiateRequest struct {
	UserID         string `json:"userId"`
	Amount         int64  `json:"amount"`
	Phone          string `json:"phone"`
	Medium         string `json:"medium,omitempty"`
	Name           string `json:"name,omitempty"`
	Email          string `json:"email,omitempty"`
	Message        string `json:"message,omitempty"`
	ExternalID     string `json:"externalId,omitempty"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
}

type initiateResponse struct {
	TransactionID  string                  `json:"transactionId"`
	GatewayTransID string                  `json:"gatewayTransId,omitempty"`
	ExternalID     string                  `json:"externalId"`
	DateInitiated  time.Time               `json:"dateInitiated"`
	Status         model.TransactionStatus `json:"status"`
	SubscriptionID string                  `json:"subscriptionId,omitempty"`
}

// Transaction is the admin view of a payment attempt.
type Transaction struct {
	ID                string                  `json:"id"`
	ExternalID        string                  `json:"externalId"`
	GatewayTransID    string                  `json:"gatewayTransId,omitempty"`
	UserID            string                  `json:"userId"`
	SubscriptionID    string                  `json:"subscriptionId,omitempty"`
	Amount            int64                   `json:"amount"`
	Phone             string                  `json:"phone"`
	Status            model.TransactionStatus `json:"status"`
	PaymentMedium     string                  `json:"paymentMedium,omitempty"`
	Revenue           *int64                  `json:"revenue,omitempty"`
	FinancialTransID  string                  `json:"financialTransId,omitempty"`
	DateInitiated     time.Time               `json:"dateInitiated"`
	DateConfirmed     *time.Time              `json:"dateConfirmed,omitempty"`
	WebhookReceived   bool                    `json:"webhookReceived"`
	WebhookReceivedAt *time.Time              `json:"webhookReceivedAt,omitempty"`
	LastStatusCheck   *time.Time              `json:"lastStatusCheck,omitempty"`
	StatusCheckCount  int                     `json:"statusCheckCount"`
	Reconciled        bool                    `json:"reconciled"`
	Notes             string                  `json:"notes,omitempty"`
	UpdatedAt         time.Time               `json:"updatedAt"`
}

// Subscription is the admin view of a user's subscription.
type Subscription struct {
	ID            string                          `json:"id"`
	UserID        string                          `json:"userId"`
	Plan          model.Plan                      `json:"plan"`
	StartDate     time.Time                       `json:"startDate"`
	EndDate       time.Time                       `json:"endDate"`
	PaymentStatus model.SubscriptionPaymentStatus `json:"paymentStatus"`
	Active        bool                            `json:"active"`
	Transactions  []string                        `json:"transactions"`
}

type webhookResponse struct {
	Result string `json:"result"`
}

func toTransaction(t *model.Transaction, phone string) Transaction {
	out := Transaction{
		ID:                t.ID,
		ExternalID:        t.ExternalID,
		GatewayTransID:    t.GatewayID(),
		UserID:            t.UserID,
		Amount:            t.Amount,
		Phone:             phone,
		Status:            t.Status,
		PaymentMedium:     t.PaymentMedium,
		Revenue:           t.Revenue,
		FinancialTransID:  t.FinancialTransID,
		DateInitiated:     t.DateInitiated,
		DateConfirmed:     t.DateConfirmed,
		WebhookReceived:   t.WebhookReceived,
		WebhookReceivedAt: t.WebhookReceivedAt,
		LastStatusCheck:   t.LastStatusCheck,
		StatusCheckCount:  t.StatusCheckCount,
		Reconciled:        t.Reconciled,
		Notes:             t.Notes,
		UpdatedAt:         t.UpdatedAt,
	}
	if t.SubscriptionID != nil {
		out.SubscriptionID = *t.SubscriptionID
	}
	return out
}

func toSubscription(s *model.Subscription, now time.Time) Subscription {
	txs := s.Transactions
	if txs == nil {
		txs = []string{}
	}
	return Subscription{
		ID:            s.ID,
		UserID:        s.UserID,
		Plan:          s.Plan,
		StartDate:     s.StartDate,
		EndDate:       s.EndDate,
		PaymentStatus: s.PaymentStatus,
		Active:        s.IsCurrent(now),
		Transactions:  txs,
	}
}
