package repository

import (
	"context"
	"time"

	"subscription-payments/internal/domain/model"
)

// SubscriptionRepository owns the user subscription/profile record.
type SubscriptionRepository interface {
	FindByUser(ctx context.Context, userID string) (*model.UserSubscription, error)
	// Activate upserts the record to active for the given plan. Idempotent:
	// re-activating an already-active record with the same plan is a no-op.
	Activate(ctx context.Context, userID, planID string, expiresAt time.Time) error
	Deactivate(ctx context.Context, userID string) error
}

// PlanRepository reads purchasable plans.
type PlanRepository interface {
	FindByID(ctx context.Context, id string) (*model.SubscriptionPlan, error)
	List(ctx context.Context) ([]*model.SubscriptionPlan, error)
}
