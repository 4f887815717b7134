package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"subscription-payments/internal/domain"
	"subscription-payments/internal/domain/model"
	"subscription-payments/internal/domain/ports/repository"
)

var _ repository.PaymentHistoryRepository = (*paymentHistoryRepo)(nil)

type paymentHistoryRepo struct{ pool *pgxpool.Pool }

func NewPaymentHistoryRepo(pool *pgxpool.Pool) *paymentHistoryRepo {
	return &paymentHistoryRepo{pool: pool}
}

const historyColumns = `id, user_id, plan_id, plan_name, session_id, mp_id, preference_id, amount, status, created_at, updated_at`

func (r *paymentHistoryRepo) Append(ctx context.Context, rec *model.PaymentHistoryRecord) error {
	const q = `
INSERT INTO payment_history (` + historyColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11);`

	_, err := r.pool.Exec(ctx, q,
		rec.ID, rec.UserID, rec.PlanID, rec.PlanName, rec.SessionID,
		rec.GatewayPaymentID, rec.GatewayPreferenceID, rec.Amount, rec.Status,
		rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentHistoryRepo) FindBySession(ctx context.Context, sessionID string) (*model.PaymentHistoryRecord, error) {
	const q = `SELECT ` + historyColumns + ` FROM payment_history WHERE session_id=$1 ORDER BY created_at DESC LIMIT 1;`

	rec, err := scanHistory(r.pool.QueryRow(ctx, q, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return rec, nil
}

func (r *paymentHistoryRepo) MarkStatus(ctx context.Context, sessionID string, status model.PaymentHistoryStatus, gatewayPaymentID string) error {
	const q = `
UPDATE payment_history
SET status=$2, mp_id=COALESCE(NULLIF($3,''), mp_id), updated_at=NOW()
WHERE session_id=$1;`

	tag, err := r.pool.Exec(ctx, q, sessionID, status, gatewayPaymentID)
	if err != nil {
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *paymentHistoryRepo) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.PaymentHistoryRecord, error) {
	const q = `SELECT ` + historyColumns + ` FROM payment_history
WHERE status='pending' AND created_at < $1
ORDER BY created_at DESC LIMIT $2;`

	rows, err := r.pool.Query(ctx, q, cutoff, limit)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.PaymentHistoryRecord
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanHistory(row rowScanner) (*model.PaymentHistoryRecord, error) {
	rec := &model.PaymentHistoryRecord{}
	err := row.Scan(&rec.ID, &rec.UserID, &rec.PlanID, &rec.PlanName, &rec.SessionID,
		&rec.GatewayPaymentID, &rec.GatewayPreferenceID, &rec.Amount, &rec.Status,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
