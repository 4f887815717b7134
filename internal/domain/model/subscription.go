package model

import (
	"time"

	"subscription-payments/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusPending  SubscriptionStatus = "pending"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusInactive SubscriptionStatus = "inactive"
)

// UserSubscription is the user's subscription/profile record. It is mutated
// only through the activation path or directly by backend jobs; once active
// for a given session no channel of that session may cause a second
// externally-visible action.
type UserSubscription struct {
	UserID    string
	PlanID    string
	Status    SubscriptionStatus
	ExpiresAt *time.Time
	UpdatedAt time.Time
}

// ActiveFor reports whether the record confirms the given plan upgrade.
func (s *UserSubscription) ActiveFor(planID string) bool {
	return s != nil && s.Status == SubscriptionStatusActive && s.PlanID == planID
}

// SubscriptionPlan is a purchasable plan with a fixed duration and price.
type SubscriptionPlan struct {
	ID           string
	Name         string
	DurationDays int
	PriceCents   int64
	Currency     string
	CreatedAt    time.Time
}

func (p *SubscriptionPlan) IsZero() bool { return p == nil || p.ID == "" }

// NewSubscriptionPlan validates and constructs a plan.
func NewSubscriptionPlan(id, name string, durationDays int, priceCents int64, currency string) (*SubscriptionPlan, error) {
	if id == "" || name == "" || durationDays <= 0 || priceCents <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &SubscriptionPlan{
		ID:           id,
		Name:         name,
		DurationDays: durationDays,
		PriceCents:   priceCents,
		Currency:     currency,
		CreatedAt:    time.Now(),
	}, nil
}
