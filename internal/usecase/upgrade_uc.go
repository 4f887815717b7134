package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"subscription-payments/internal/domain"
	"subscription-payments/internal/domain/model"
	"subscription-payments/internal/domain/ports/adapter"
	"subscription-payments/internal/domain/ports/repository"
)

// Compile-time check
var _ UpgradeUseCase = (*upgradeUC)(nil)

type UpgradeUseCase interface {
	// CreateCheckout registers a preference with the gateway and appends the
	// pending payment-history record for the session.
	CreateCheckout(ctx context.Context, s model.PaymentSession) (preferenceID, initPoint string, err error)
	// CheckStatus asks the oracle about the session's payment and maps the
	// answer onto the closed signal union.
	CheckStatus(ctx context.Context, s model.PaymentSession) (model.SignalOutcome, error)
	// Activate grants the upgrade. Idempotent: called at most once per
	// session by the coordinator, and again harmlessly by resync paths.
	Activate(ctx context.Context, s model.PaymentSession) error
	// Reject records the failed attempt without touching the subscription.
	Reject(ctx context.Context, s model.PaymentSession) error
	// Resync finalizes a stale pending history record with one oracle query.
	Resync(ctx context.Context, rec *model.PaymentHistoryRecord) (model.Resolution, error)
}

type upgradeUC struct {
	history repository.PaymentHistoryRepository
	subs    repository.SubscriptionRepository
	plans   repository.PlanRepository
	gateway adapter.CheckoutGateway
	log     *zerolog.Logger
}

func NewUpgradeUseCase(history repository.PaymentHistoryRepository, subs repository.SubscriptionRepository, plans repository.PlanRepository, gateway adapter.CheckoutGateway, logger *zerolog.Logger) *upgradeUC {
	ucLog := logger.With().Str("component", "UpgradeUC").Logger()
	return &upgradeUC{history: history, subs: subs, plans: plans, gateway: gateway, log: &ucLog}
}

func (u *upgradeUC) CreateCheckout(ctx context.Context, s model.PaymentSession) (string, string, error) {
	plan, err := u.plans.FindByID(ctx, s.PlanID)
	if err != nil {
		return "", "", err
	}

	preferenceID, initPoint, err := u.gateway.CreatePreference(ctx, plan, s)
	if err != nil {
		return "", "", err
	}

	now := time.Now()
	rec := &model.PaymentHistoryRecord{
		ID:                  s.ID,
		UserID:              s.UserID,
		PlanID:              s.PlanID,
		PlanName:            plan.Name,
		SessionID:           s.ID,
		GatewayPreferenceID: preferenceID,
		Amount:              plan.PriceCents,
		Status:              model.PaymentHistoryPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := u.history.Append(ctx, rec); err != nil {
		return "", "", err
	}
	return preferenceID, initPoint, nil
}

func (u *upgradeUC) CheckStatus(ctx context.Context, s model.PaymentSession) (model.SignalOutcome, error) {
	paymentID, preferenceID, err := s.PaymentRef()
	if err != nil {
		return model.OutcomeStillPending, err
	}
	report, err := u.gateway.CheckPaymentStatus(ctx, adapter.StatusQuery{
		UserID:       s.UserID,
		PlanID:       s.PlanID,
		PaymentID:    paymentID,
		PreferenceID: preferenceID,
	})
	if err != nil {
		return model.OutcomeStillPending, err
	}
	return report.Outcome(), nil
}

func (u *upgradeUC) Activate(ctx context.Context, s model.PaymentSession) error {
	plan, err := u.plans.FindByID(ctx, s.PlanID)
	if err != nil {
		return err
	}
	expiresAt := time.Now().Add(time.Duration(plan.DurationDays) * 24 * time.Hour)
	if err := u.subs.Activate(ctx, s.UserID, s.PlanID, expiresAt); err != nil {
		return err
	}
	if err := u.history.MarkStatus(ctx, s.ID, model.PaymentHistoryApproved, s.GatewayPaymentID); err != nil {
		// The entitlement is granted; the trail catches up via resync.
		u.log.Warn().Err(err).Str("session_id", s.ID).Msg("history mark approved failed")
	}
	u.log.Info().Str("session_id", s.ID).Str("user_id", s.UserID).Str("plan_id", s.PlanID).
		Msg("subscription activated")
	return nil
}

func (u *upgradeUC) Reject(ctx context.Context, s model.PaymentSession) error {
	if err := u.history.MarkStatus(ctx, s.ID, model.PaymentHistoryRejected, s.GatewayPaymentID); err != nil {
		return err
	}
	u.log.Info().Str("session_id", s.ID).Str("user_id", s.UserID).Msg("payment rejected")
	return nil
}

func (u *upgradeUC) Resync(ctx context.Context, rec *model.PaymentHistoryRecord) (model.Resolution, error) {
	if rec.GatewayPaymentID == "" && rec.GatewayPreferenceID == "" {
		return model.ResolutionAbandoned, domain.ErrMissingPaymentRef
	}
	report, err := u.gateway.CheckPaymentStatus(ctx, adapter.StatusQuery{
		UserID:       rec.UserID,
		PlanID:       rec.PlanID,
		PaymentID:    rec.GatewayPaymentID,
		PreferenceID: rec.GatewayPreferenceID,
	})
	if err != nil {
		return model.ResolutionAbandoned, err
	}

	s := model.PaymentSession{
		ID:                  rec.SessionID,
		UserID:              rec.UserID,
		PlanID:              rec.PlanID,
		GatewayPaymentID:    rec.GatewayPaymentID,
		GatewayPreferenceID: rec.GatewayPreferenceID,
	}
	switch report.Outcome() {
	case model.OutcomeApproved:
		return model.ResolutionApproved, u.Activate(ctx, s)
	case model.OutcomeRejected:
		return model.ResolutionRejected, u.Reject(ctx, s)
	default:
		return model.ResolutionAbandoned, nil
	}
}
