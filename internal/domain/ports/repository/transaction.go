package repository

import (
	"context"
	"time"

	"momo-subscription/internal/domain/model"
)

// TransactionMutator edits a transaction inside an atomic update. Returning an
// error aborts the update and nothing is written.
type TransactionMutator func(t *model.Transaction) error

// DueCheckQuery selects transactions the poller should ask the provider about.
type DueCheckQuery struct {
	Statuses    []model.TransactionStatus
	StaleBefore time.Time // lastStatusCheck is null or older than this
	Limit       int
}

// TransactionRepository is the port for payment attempts.
//
// Update is a single read-modify-write keyed by id: implementations must make
// the read, the mutator and the write atomic with respect to other Update calls
// on the same id (row lock or version compare-and-swap with retry).
type TransactionRepository interface {
	Create(ctx context.Context, t *model.Transaction) error
	FindByID(ctx context.Context, id string) (*model.Transaction, error)
	FindByGatewayTransID(ctx context.Context, gatewayTransID string) (*model.Transaction, error)
	FindByExternalID(ctx context.Context, externalID string) (*model.Transaction, error)
	// ListDueForCheck returns unresolved transactions with a provider id,
	// oldest dateInitiated first.
	ListDueForCheck(ctx context.Context, q DueCheckQuery) ([]*model.Transaction, error)
	// ListUnreconciled returns terminal transactions whose dispatcher side
	// effects have not completed and that were last touched before the cutoff.
	ListUnreconciled(ctx context.Context, touchedBefore time.Time, limit int) ([]*model.Transaction, error)
	Update(ctx context.Context, id string, fn TransactionMutator) (*model.Transaction, error)
}
