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

var _ repository.TransactionRepository = (*transactionRepo)(nil)

type transactionRepo struct{ pool *pgxpool.Pool }

func NewTransactionRepo(pool *pgxpool.Pool) *transactionRepo {
	return &transactionRepo{pool: pool}
}

const txColumns = `id, external_id, gateway_trans_id, user_id, subscription_id, amount, phone, status,
  payment_medium, revenue, financial_trans_id, date_initiated, date_confirmed, webhook_received,
  webhook_received_at, last_status_check, status_check_count, reconciled, notes, version, created_at, updated_at`

func (r *transactionRepo) Create(ctx context.Context, t *model.Transaction) error {
	const q = `
INSERT INTO payment_transactions (` + txColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,1,$20,$21);`

	_, err := r.pool.Exec(ctx, q,
		t.ID, t.ExternalID, t.GatewayTransID, t.UserID, t.SubscriptionID, t.Amount, t.Phone, string(t.Status),
		t.PaymentMedium, t.Revenue, t.FinancialTransID, t.DateInitiated, t.DateConfirmed, t.WebhookReceived,
		t.WebhookReceivedAt, t.LastStatusCheck, t.StatusCheckCount, t.Reconciled, t.Notes, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return mapErr("insert transaction", err)
	}
	t.Version = 1
	return nil
}

func (r *transactionRepo) FindByID(ctx context.Context, id string) (*model.Transaction, error) {
	return r.queryOne(ctx, r.pool, `SELECT `+txColumns+` FROM payment_transactions WHERE id=$1;`, id)
}

func (r *transactionRepo) FindByGatewayTransID(ctx context.Context, gatewayTransID string) (*model.Transaction, error) {
	return r.queryOne(ctx, r.pool, `SELECT `+txColumns+` FROM payment_transactions WHERE gateway_trans_id=$1;`, gatewayTransID)
}

func (r *transactionRepo) FindByExternalID(ctx context.Context, externalID string) (*model.Transaction, error) {
	return r.queryOne(ctx, r.pool, `SELECT `+txColumns+` FROM payment_transactions WHERE external_id=$1;`, externalID)
}

func (r *transactionRepo) ListDueForCheck(ctx context.Context, q repository.DueCheckQuery) ([]*model.Transaction, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	statuses := make([]string, len(q.Statuses))
	for i, s := range q.Statuses {
		statuses[i] = string(s)
	}
	const sql = `SELECT ` + txColumns + ` FROM payment_transactions
WHERE status = ANY($1)
  AND gateway_trans_id IS NOT NULL
  AND (last_status_check IS NULL OR last_status_check < $2)
ORDER BY date_initiated ASC
LIMIT $3;`
	return r.queryMany(ctx, sql, statuses, q.StaleBefore, q.Limit)
}

func (r *transactionRepo) ListUnreconciled(ctx context.Context, touchedBefore time.Time, limit int) ([]*model.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	const sql = `SELECT ` + txColumns + ` FROM payment_transactions
WHERE reconciled = FALSE
  AND status IN ('successful', 'failed', 'expired')
  AND updated_at < $1
ORDER BY updated_at ASC
LIMIT $2;`
	return r.queryMany(ctx, sql, touchedBefore, limit)
}

// Update is an optimistic read-modify-write: the row is written only if its
// version is unchanged since the read, otherwise the mutator is re-run on a
// fresh copy.
func (r *transactionRepo) Update(ctx context.Context, id string, fn repository.TransactionMutator) (*model.Transaction, error) {
	const q = `
UPDATE payment_transactions SET
  gateway_trans_id=$3, subscription_id=$4, status=$5, payment_medium=$6, revenue=$7,
  financial_trans_id=$8, date_initiated=$9, date_confirmed=$10, webhook_received=$11,
  webhook_received_at=$12, last_status_check=$13, status_check_count=$14, reconciled=$15,
  notes=$16, updated_at=$17, version=version+1
WHERE id=$1 AND version=$2;`

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		cur, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		next := *cur
		if err := fn(&next); err != nil {
			return nil, err
		}
		// amount, identity and ownership are immutable
		next.ID, next.ExternalID, next.UserID, next.Amount, next.Phone = cur.ID, cur.ExternalID, cur.UserID, cur.Amount, cur.Phone
		if next.StatusCheckCount < cur.StatusCheckCount {
			next.StatusCheckCount = cur.StatusCheckCount
		}
		if next.UpdatedAt.IsZero() || !next.UpdatedAt.After(cur.UpdatedAt) {
			next.UpdatedAt = time.Now()
		}

		tag, err := r.pool.Exec(ctx, q, id, cur.Version,
			next.GatewayTransID, next.SubscriptionID, string(next.Status), next.PaymentMedium, next.Revenue,
			next.FinancialTransID, next.DateInitiated, next.DateConfirmed, next.WebhookReceived,
			next.WebhookReceivedAt, next.LastStatusCheck, next.StatusCheckCount, next.Reconciled,
			next.Notes, next.UpdatedAt)
		if err != nil {
			return nil, mapErr("update transaction", err)
		}
		if tag.RowsAffected() == 1 {
			next.Version = cur.Version + 1
			return &next, nil
		}
		metrics.IncDBUpdateRetry("payment_transactions", "retried")
	}
	metrics.IncDBUpdateRetry("payment_transactions", "exhausted")
	return nil, domain.ErrConcurrentUpdate
}

func (r *transactionRepo) queryOne(ctx context.Context, qx querier, sql string, args ...any) (*model.Transaction, error) {
	t, err := scanTransaction(qx.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, mapErr("select transaction", err)
	}
	return t, nil
}

func (r *transactionRepo) queryMany(ctx context.Context, sql string, args ...any) ([]*model.Transaction, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapErr("list transactions", err)
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, mapErr("scan transaction", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list transactions", err)
	}
	return out, nil
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	t := &model.Transaction{}
	var status string
	if err := row.Scan(
		&t.ID, &t.ExternalID, &t.GatewayTransID, &t.UserID, &t.SubscriptionID, &t.Amount, &t.Phone, &status,
		&t.PaymentMedium, &t.Revenue, &t.FinancialTransID, &t.DateInitiated, &t.DateConfirmed, &t.WebhookReceived,
		&t.WebhookReceivedAt, &t.LastStatusCheck, &t.StatusCheckCount, &t.Reconciled, &t.Notes, &t.Version,
		&t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	t.Status = model.TransactionStatus(status)
	return t, nil
}
