package adapter

import (
	"context"

	"subscription-payments/internal/domain/model"
)

// StatusQuery carries the identifiers known for an in-flight payment. At
// least one of PaymentID/PreferenceID must be set; absence of both is a
// caller error.
type StatusQuery struct {
	UserID       string
	PlanID       string
	PaymentID    string
	PreferenceID string
}

// StatusReport is the oracle's answer for a status query.
type StatusReport struct {
	Approved     bool
	LatestStatus string
}

// Outcome maps the report onto the closed signal union.
func (r StatusReport) Outcome() model.SignalOutcome {
	if r.Approved {
		return model.OutcomeApproved
	}
	return model.OutcomeForStatus(r.LatestStatus)
}

// StatusOracle answers whether a payment reached a terminal outcome. Treated
// as a black box with non-trivial latency and occasional failure.
type StatusOracle interface {
	CheckPaymentStatus(ctx context.Context, q StatusQuery) (StatusReport, error)
}

// CheckoutGateway is the hex port for the external payment provider.
type CheckoutGateway interface {
	StatusOracle

	Name() string
	// CreatePreference registers a checkout intent with the provider and
	// returns the preference id plus the init-point URL the surface is
	// redirected to. The session id rides along in the return URLs so the
	// return pages can re-attach to the in-flight session.
	CreatePreference(ctx context.Context, plan *model.SubscriptionPlan, s model.PaymentSession) (preferenceID, initPoint string, err error)
}
