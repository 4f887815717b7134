package usecase

import (
	"context"
	"sync"
	"time"

	"subscription-payments/internal/domain"
	"subscription-payments/internal/domain/model"
	"subscription-payments/internal/domain/ports/adapter"
)

// In-memory repositories backing the usecase tests.

type memHistoryRepo struct {
	mu   sync.Mutex
	recs map[string]*model.PaymentHistoryRecord // by session id
}

func newMemHistoryRepo() *memHistoryRepo {
	return &memHistoryRepo{recs: make(map[string]*model.PaymentHistoryRecord)}
}

func (r *memHistoryRepo) Append(ctx context.Context, rec *model.PaymentHistoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.recs[rec.SessionID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *rec
	r.recs[rec.SessionID] = &cp
	return nil
}

func (r *memHistoryRepo) FindBySession(ctx context.Context, sessionID string) (*model.PaymentHistoryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *memHistoryRepo) MarkStatus(ctx context.Context, sessionID string, status model.PaymentHistoryStatus, gatewayPaymentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	rec.Status = status
	if gatewayPaymentID != "" {
		rec.GatewayPaymentID = gatewayPaymentID
	}
	rec.UpdatedAt = time.Now()
	return nil
}

func (r *memHistoryRepo) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.PaymentHistoryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.PaymentHistoryRecord
	for _, rec := range r.recs {
		if rec.Status == model.PaymentHistoryPending && rec.CreatedAt.Before(cutoff) {
			cp := *rec
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type memSubscriptionRepo struct {
	mu        sync.Mutex
	subs      map[string]*model.UserSubscription
	activates int
}

func newMemSubscriptionRepo() *memSubscriptionRepo {
	return &memSubscriptionRepo{subs: make(map[string]*model.UserSubscription)}
}

func (r *memSubscriptionRepo) FindByUser(ctx context.Context, userID string) (*model.UserSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

func (r *memSubscriptionRepo) Activate(ctx context.Context, userID, planID string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activates++
	r.subs[userID] = &model.UserSubscription{
		UserID:    userID,
		PlanID:    planID,
		Status:    model.SubscriptionStatusActive,
		ExpiresAt: &expiresAt,
		UpdatedAt: time.Now(),
	}
	return nil
}

func (r *memSubscriptionRepo) Deactivate(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[userID]
	if !ok {
		return domain.ErrNotFound
	}
	sub.Status = model.SubscriptionStatusInactive
	return nil
}

type memPlanRepo struct {
	plans map[string]*model.SubscriptionPlan
}

func newMemPlanRepo(plans ...*model.SubscriptionPlan) *memPlanRepo {
	r := &memPlanRepo{plans: make(map[string]*model.SubscriptionPlan)}
	for _, p := range plans {
		r.plans[p.ID] = p
	}
	return r
}

func (r *memPlanRepo) FindByID(ctx context.Context, id string) (*model.SubscriptionPlan, error) {
	p, ok := r.plans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (r *memPlanRepo) List(ctx context.Context) ([]*model.SubscriptionPlan, error) {
	var out []*model.SubscriptionPlan
	for _, p := range r.plans {
		out = append(out, p)
	}
	return out, nil
}

// mockGateway is a hand-rolled CheckoutGateway with pluggable Func fields.
type mockGateway struct {
	mu          sync.Mutex
	prefCalls   int
	statusCalls []adapter.StatusQuery

	CreatePreferenceFunc   func(plan *model.SubscriptionPlan, s model.PaymentSession) (string, string, error)
	CheckPaymentStatusFunc func(q adapter.StatusQuery) (adapter.StatusReport, error)
}

func (g *mockGateway) Name() string { return "mock" }

func (g *mockGateway) CreatePreference(ctx context.Context, plan *model.SubscriptionPlan, s model.PaymentSession) (string, string, error) {
	g.mu.Lock()
	g.prefCalls++
	g.mu.Unlock()
	if g.CreatePreferenceFunc == nil {
		return "pref-1", "https://gateway.example/init/pref-1", nil
	}
	return g.CreatePreferenceFunc(plan, s)
}

func (g *mockGateway) CheckPaymentStatus(ctx context.Context, q adapter.StatusQuery) (adapter.StatusReport, error) {
	g.mu.Lock()
	g.statusCalls = append(g.statusCalls, q)
	g.mu.Unlock()
	if g.CheckPaymentStatusFunc == nil {
		return adapter.StatusReport{LatestStatus: string(model.PaymentHistoryPending)}, nil
	}
	return g.CheckPaymentStatusFunc(q)
}
