package model

import "time"

type PaymentHistoryStatus string

const (
	PaymentHistoryPending   PaymentHistoryStatus = "pending"
	PaymentHistoryApproved  PaymentHistoryStatus = "approved"
	PaymentHistoryRejected  PaymentHistoryStatus = "rejected"
	PaymentHistoryCancelled PaymentHistoryStatus = "cancelled"
)

// PaymentHistoryRecord is the append-only per-attempt trail. A session's
// terminal outcome is monotonic over the statuses observed for its gateway
// ids: once approved or a final negative is seen, earlier pendings are
// irrelevant.
type PaymentHistoryRecord struct {
	ID                  string
	UserID              string
	PlanID              string
	PlanName            string
	SessionID           string
	GatewayPaymentID    string // gateway transaction id (mp_id)
	GatewayPreferenceID string
	Amount              int64 // minor units
	Status              PaymentHistoryStatus
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// OutcomeForStatus maps a raw payment-history status onto the closed signal
// union. Every stream and poll result goes through this single mapping so the
// coordinator never inspects raw payloads.
func OutcomeForStatus(status string) SignalOutcome {
	switch PaymentHistoryStatus(status) {
	case PaymentHistoryApproved:
		return OutcomeApproved
	case PaymentHistoryRejected, PaymentHistoryCancelled:
		return OutcomeRejected
	default:
		return OutcomeStillPending
	}
}
