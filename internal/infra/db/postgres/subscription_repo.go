package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"subscription-payments/internal/domain"
	"subscription-payments/internal/domain/model"
	"subscription-payments/internal/domain/ports/repository"
	"subscription-payments/internal/domain/ports/stream"
)

// SubscriptionEventPublisher mirrors every subscription change onto the
// profile change stream so the redundant confirmation path fires even for
// activations that never touch payment_history.
type SubscriptionEventPublisher interface {
	PublishSubscriptionUpdate(ctx context.Context, ev stream.ChangeEvent) error
}

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool   *pgxpool.Pool
	events SubscriptionEventPublisher
	log    *zerolog.Logger
}

func NewSubscriptionRepo(pool *pgxpool.Pool, events SubscriptionEventPublisher, logger *zerolog.Logger) *subscriptionRepo {
	repoLog := logger.With().Str("component", "SubscriptionRepo").Logger()
	return &subscriptionRepo{pool: pool, events: events, log: &repoLog}
}

func (r *subscriptionRepo) FindByUser(ctx context.Context, userID string) (*model.UserSubscription, error) {
	const q = `SELECT user_id, plan_id, status, expires_at, updated_at FROM subscriptions WHERE user_id=$1;`

	s := &model.UserSubscription{}
	err := r.pool.QueryRow(ctx, q, userID).Scan(&s.UserID, &s.PlanID, &s.Status, &s.ExpiresAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}

// Activate upserts the record to active for the plan. Idempotent: the upsert
// converges on the same row no matter how many times it runs.
func (r *subscriptionRepo) Activate(ctx context.Context, userID, planID string, expiresAt time.Time) error {
	old, err := r.FindByUser(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	const q = `
INSERT INTO subscriptions (user_id, plan_id, status, expires_at, updated_at)
VALUES ($1,$2,'active',$3,NOW())
ON CONFLICT (user_id) DO UPDATE SET plan_id=$2, status='active', expires_at=$3, updated_at=NOW();`

	if _, err := r.pool.Exec(ctx, q, userID, planID, expiresAt); err != nil {
		return domain.ErrOperationFailed
	}
	r.publish(ctx, userID, planID, string(model.SubscriptionStatusActive), old)
	return nil
}

func (r *subscriptionRepo) Deactivate(ctx context.Context, userID string) error {
	old, err := r.FindByUser(ctx, userID)
	if err != nil {
		return err
	}

	const q = `UPDATE subscriptions SET status='inactive', updated_at=NOW() WHERE user_id=$1;`
	if _, err := r.pool.Exec(ctx, q, userID); err != nil {
		return domain.ErrOperationFailed
	}
	r.publish(ctx, userID, old.PlanID, string(model.SubscriptionStatusInactive), old)
	return nil
}

func (r *subscriptionRepo) publish(ctx context.Context, userID, planID, status string, old *model.UserSubscription) {
	if r.events == nil {
		return
	}
	ev := stream.ChangeEvent{
		Table: "subscriptions",
		Op:    "UPDATE",
		New:   map[string]any{"user_id": userID, "plan_id": planID, "status": status},
		Old:   map[string]any{},
	}
	if old != nil {
		ev.Old = map[string]any{"user_id": old.UserID, "plan_id": old.PlanID, "status": string(old.Status)}
	}
	if err := r.events.PublishSubscriptionUpdate(ctx, ev); err != nil {
		// The stream is a redundant path; losing one event is tolerable.
		r.log.Warn().Err(err).Str("user_id", userID).Msg("subscription event publish failed")
	}
}
