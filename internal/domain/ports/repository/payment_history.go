package repository

import (
	"context"
	"time"

	"subscription-payments/internal/domain/model"
)

// PaymentHistoryRepository persists the append-only payment trail.
type PaymentHistoryRepository interface {
	Append(ctx context.Context, rec *model.PaymentHistoryRecord) error
	FindBySession(ctx context.Context, sessionID string) (*model.PaymentHistoryRecord, error)
	// MarkStatus records a status transition for the session's latest record
	// and fills in the gateway payment id once it is known.
	MarkStatus(ctx context.Context, sessionID string, status model.PaymentHistoryStatus, gatewayPaymentID string) error
	// ListPendingOlderThan returns pending records created before cutoff,
	// newest first, capped at limit. Used by the resync sweep.
	ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.PaymentHistoryRecord, error)
}
