package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"momo-subscription/internal/domain"
	"momo-subscription/internal/domain/model"
	"momo-subscription/internal/domain/ports/repository"
	"momo-subscription/internal/infra/metrics"
)

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subColumns = `id, user_id, plan, start_date, end_date, payment_status, transactions, version, created_at, updated_at`

// Create inserts the user's subscription. The unique index on user_id turns
// a concurrent second insert into domain.ErrAlreadyExists.
func (r *subscriptionRepo) Create(ctx context.Context, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (` + subColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,1,$8,$9);`
	txs := s.Transactions
	if txs == nil {
		txs = []string{}
	}
	_, err := r.pool.Exec(ctx, q, s.ID, s.UserID, string(s.Plan), s.StartDate, s.EndDate, string(s.PaymentStatus), txs, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return mapErr("insert subscription", err)
	}
	s.Version = 1
	return nil
}

func (r *subscriptionRepo) FindByID(ctx context.Context, id string) (*model.Subscription, error) {
	return r.queryOne(ctx, `SELECT `+subColumns+` FROM subscriptions WHERE id=$1;`, id)
}

func (r *subscriptionRepo) FindByUser(ctx context.Context, userID string) (*model.Subscription, error) {
	return r.queryOne(ctx, `SELECT `+subColumns+` FROM subscriptions WHERE user_id=$1;`, userID)
}

func (r *subscriptionRepo) Update(ctx context.Context, id string, fn repository.SubscriptionMutator) (*model.Subscription, error) {
	const q = `
UPDATE subscriptions SET
  plan=$3, start_date=$4, end_date=$5, payment_status=$6, transactions=$7, updated_at=$8, version=version+1
WHERE id=$1 AND version=$2;`

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		cur, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		next := *cur
		next.Transactions = append([]string(nil), cur.Transactions...)
		if err := fn(&next); err != nil {
			return nil, err
		}
		if next.UpdatedAt.IsZero() || !next.UpdatedAt.After(cur.UpdatedAt) {
			next.UpdatedAt = time.Now()
		}

		tag, err := r.pool.Exec(ctx, q, id, cur.Version,
			string(next.Plan), next.StartDate, next.EndDate, string(next.PaymentStatus), next.Transactions, next.UpdatedAt)
		if err != nil {
			return nil, mapErr("update subscription", err)
		}
		if tag.RowsAffected() == 1 {
			next.Version = cur.Version + 1
			return &next, nil
		}
		metrics.IncDBUpdateRetry("subscriptions", "retried")
	}
	metrics.IncDBUpdateRetry("subscriptions", "exhausted")
	return nil, domain.ErrConcurrentUpdate
}

func (r *subscriptionRepo) queryOne(ctx context.Context, sql string, args ...any) (*model.Subscription, error) {
	s, err := scanSubscription(r.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, mapErr("select subscription", err)
	}
	return s, nil
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	var plan, status string
	if err := row.Scan(&s.ID, &s.UserID, &plan, &s.StartDate, &s.EndDate, &status, &s.Transactions, &s.Version, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Plan = model.Plan(plan)
	s.PaymentStatus = model.SubscriptionPaymentStatus(status)
	return s, nil
}
