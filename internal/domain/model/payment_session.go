package model

import (
	"time"

	"subscription-payments/internal/domain"
)

// SignalSource identifies which observer produced a confirmation signal.
type SignalSource string

const (
	SourcePolling       SignalSource = "polling"
	SourcePaymentStream SignalSource = "payment_stream"
	SourceProfileStream SignalSource = "profile_stream"
	SourceFinalCheck    SignalSource = "final_check"
)

// SignalOutcome is the closed set of outcomes a channel can report.
type SignalOutcome string

const (
	OutcomeApproved     SignalOutcome = "approved"
	OutcomeRejected     SignalOutcome = "rejected"
	OutcomeStillPending SignalOutcome = "still_pending"
)

// Terminal reports whether the outcome ends the session.
func (o SignalOutcome) Terminal() bool {
	return o == OutcomeApproved || o == OutcomeRejected
}

// ConfirmationSignal is a transient observation produced by one of the
// confirmation channels and consumed exactly once by the coordinator.
type ConfirmationSignal struct {
	Source     SignalSource
	Outcome    SignalOutcome
	ObservedAt time.Time
}

// Resolution is the single committed outcome of a payment session.
type Resolution string

const (
	ResolutionApproved  Resolution = "approved"
	ResolutionRejected  Resolution = "rejected"
	ResolutionAbandoned Resolution = "abandoned"
)

// PaymentSession identifies one in-flight upgrade attempt. It is owned by its
// coordinator for its whole lifetime and destroyed once a resolution is
// committed or the deadline elapses.
type PaymentSession struct {
	ID                  string
	UserID              string
	PlanID              string
	Email               string
	GatewayPreferenceID string // set once the checkout URL is obtained
	GatewayPaymentID    string // assigned by the gateway, may arrive late
	CreatedAt           time.Time
	Deadline            time.Time
	WinningSource       SignalSource // set when a terminal signal is committed
}

// NewPaymentSession validates and constructs a session with the given horizon.
func NewPaymentSession(id, userID, planID, email string, horizon time.Duration) (*PaymentSession, error) {
	if id == "" || userID == "" || planID == "" || horizon <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &PaymentSession{
		ID:        id,
		UserID:    userID,
		PlanID:    planID,
		Email:     email,
		CreatedAt: now,
		Deadline:  now.Add(horizon),
	}, nil
}

// PaymentRef returns the best identifier known for gateway lookups, preferring
// the payment id over the preference id.
func (s *PaymentSession) PaymentRef() (paymentID, preferenceID string, err error) {
	if s.GatewayPaymentID == "" && s.GatewayPreferenceID == "" {
		return "", "", domain.ErrMissingPaymentRef
	}
	return s.GatewayPaymentID, s.GatewayPreferenceID, nil
}
