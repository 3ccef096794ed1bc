package repository

import (
	"context"

	"momo-subscription/internal/domain/model"
)

type SubscriptionMutator func(s *model.Subscription) error

// SubscriptionRepository is the port for user subscriptions. A user has at
// most one subscription; Create returns domain.ErrAlreadyExists when the user
// already owns one. Update has the same atomicity contract as
// TransactionRepository.Update.
type SubscriptionRepository interface {
	Create(ctx context.Context, s *model.Subscription) error
	FindByID(ctx context.Context, id string) (*model.Subscription, error)
	FindByUser(ctx context.Context, userID string) (*model.Subscription, error)
	Update(ctx context.Context, id string, fn SubscriptionMutator) (*model.Subscription, error)
}
