package sched

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"subscription-payments/internal/domain"
	"subscription-payments/internal/domain/model"
)

type fakeHistoryRepo struct {
	mu      sync.Mutex
	pending []*model.PaymentHistoryRecord
}

func (r *fakeHistoryRepo) Append(ctx context.Context, rec *model.PaymentHistoryRecord) error {
	return nil
}

func (r *fakeHistoryRepo) FindBySession(ctx context.Context, sessionID string) (*model.PaymentHistoryRecord, error) {
	return nil, domain.ErrNotFound
}

func (r *fakeHistoryRepo) MarkStatus(ctx context.Context, sessionID string, status model.PaymentHistoryStatus, gatewayPaymentID string) error {
	return nil
}

func (r *fakeHistoryRepo) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.PaymentHistoryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.PaymentHistoryRecord, len(r.pending))
	copy(out, r.pending)
	return out, nil
}

type fakeUpgradeUC struct {
	mu       sync.Mutex
	resynced []string
	result   model.Resolution
	err      error
}

func (u *fakeUpgradeUC) CreateCheckout(ctx context.Context, s model.PaymentSession) (string, string, error) {
	return "", "", nil
}

func (u *fakeUpgradeUC) CheckStatus(ctx context.Context, s model.PaymentSession) (model.SignalOutcome, error) {
	return model.OutcomeStillPending, nil
}

func (u *fakeUpgradeUC) Activate(ctx context.Context, s model.PaymentSession) error { return nil }

func (u *fakeUpgradeUC) Reject(ctx context.Context, s model.PaymentSession) error { return nil }

func (u *fakeUpgradeUC) Resync(ctx context.Context, rec *model.PaymentHistoryRecord) (model.Resolution, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if rec.GatewayPaymentID == "" && rec.GatewayPreferenceID == "" {
		return model.ResolutionAbandoned, domain.ErrMissingPaymentRef
	}
	u.resynced = append(u.resynced, rec.SessionID)
	return u.result, u.err
}

func (u *fakeUpgradeUC) resyncedSessions() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.resynced...)
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func TestResyncWorker_SweepsStalePendings(t *testing.T) {
	history := &fakeHistoryRepo{pending: []*model.PaymentHistoryRecord{
		{SessionID: "sess-1", UserID: "user-1", GatewayPreferenceID: "pref-1", Status: model.PaymentHistoryPending},
		{SessionID: "sess-2", UserID: "user-2", Status: model.PaymentHistoryPending}, // no gateway ref
		{SessionID: "sess-3", UserID: "user-3", GatewayPaymentID: "mp-3", Status: model.PaymentHistoryPending},
	}}
	uc := &fakeUpgradeUC{result: model.ResolutionApproved}
	w := NewResyncWorker(uc, history, 10*time.Millisecond, time.Minute, nopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for {
		got := uc.resyncedSessions()
		if len(got) >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("sweep never ran, resynced: %v", got)
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	for _, id := range uc.resyncedSessions() {
		if id == "sess-2" {
			t.Error("record without a gateway reference must be skipped")
		}
	}
}

func TestResyncWorker_StopsOnContextCancel(t *testing.T) {
	w := NewResyncWorker(&fakeUpgradeUC{}, &fakeHistoryRepo{}, 5*time.Millisecond, time.Minute, nopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on cancel")
	}
}
