package reconcile

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"subscription-payments/internal/domain"
	"subscription-payments/internal/domain/model"
	"subscription-payments/internal/infra/metrics"
	"subscription-payments/internal/infra/worker"
)

// CheckoutCreator obtains a checkout URL from the external gateway for the
// session and records the pending payment trail.
type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, s model.PaymentSession) (preferenceID, initPoint string, err error)
}

// SurfaceRegistry tracks the browser-side checkout surface. The surface is
// kept alive by client heartbeats; a lapsed heartbeat means the user closed
// the window.
type SurfaceRegistry interface {
	Register(ctx context.Context, sessionID string, ttl time.Duration) error
	Refresh(ctx context.Context, sessionID string) error
	Alive(ctx context.Context, sessionID string) (bool, error)
	SetRedirectURL(ctx context.Context, sessionID, url string) error
	RedirectURL(ctx context.Context, sessionID string) (string, error)
	SetFinalState(ctx context.Context, sessionID string, res model.Resolution) error
	Close(ctx context.Context, sessionID string) error
}

// CheckoutStatus is what the placeholder page polls while the checkout URL is
// being obtained and, later, while the session is in flight.
type CheckoutStatus struct {
	SessionID   string           `json:"session_id"`
	RedirectURL string           `json:"redirect_url,omitempty"`
	Resolved    bool             `json:"resolved"`
	Resolution  model.Resolution `json:"resolution,omitempty"`
}

type activeSession struct {
	session       *Session
	handle        *Handle
	blocked       bool
	closedByOwner atomic.Bool // manager closed the surface itself
}

// Manager owns the lifecycle of checkout surfaces and their sessions: it
// registers the surface before any asynchronous work begins, redirects it
// once the checkout URL exists, watches for user-initiated closure, and
// evicts the session once the coordinator commits a resolution.
type Manager struct {
	coord    *Coordinator
	checkout CheckoutCreator
	surfaces SurfaceRegistry
	pool     *worker.Pool

	pollInterval time.Duration
	horizon      time.Duration
	surfaceTTL   time.Duration

	ctx context.Context

	mu       sync.Mutex
	sessions map[string]*activeSession

	log *zerolog.Logger
}

func NewManager(coord *Coordinator, checkout CheckoutCreator, surfaces SurfaceRegistry, pool *worker.Pool, pollInterval, horizon time.Duration, logger *zerolog.Logger) *Manager {
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	if horizon <= 0 {
		horizon = 10 * time.Minute
	}
	mgrLog := logger.With().Str("component", "SessionManager").Logger()
	return &Manager{
		coord:        coord,
		checkout:     checkout,
		surfaces:     surfaces,
		pool:         pool,
		pollInterval: pollInterval,
		horizon:      horizon,
		surfaceTTL:   3 * pollInterval,
		sessions:     make(map[string]*activeSession),
		log:          &mgrLog,
	}
}

// Start pins the context under which coordinators run. Must be called before
// the first OpenCheckout.
func (m *Manager) Start(ctx context.Context) { m.ctx = ctx }

// OpenCheckout creates a payment session for the upgrade attempt. The surface
// is registered synchronously, before the gateway is contacted, mirroring the
// popup that must be opened in the same turn as the user's click; the
// checkout URL is filled in asynchronously for the placeholder page to pick
// up. blocked=true means the client could not open a popup and will navigate
// full-page instead, so no heartbeat watch applies.
func (m *Manager) OpenCheckout(ctx context.Context, userID, planID, email string, blocked bool) (*CheckoutStatus, error) {
	ps, err := model.NewPaymentSession(ulid.Make().String(), userID, planID, email, m.horizon)
	if err != nil {
		return nil, err
	}

	if !blocked {
		if err := m.surfaces.Register(ctx, ps.ID, m.surfaceTTL); err != nil {
			// Degraded mode: behave as if the popup were blocked.
			m.log.Warn().Err(err).Str("session_id", ps.ID).Msg("surface register failed; full-page fallback")
			blocked = true
		}
	}
	metrics.IncSurfaceOpened(blocked)

	session := NewSession(ps)
	if err := m.pool.Submit(func(taskCtx context.Context) error {
		return m.obtainCheckoutURL(taskCtx, session)
	}); err != nil {
		if !blocked {
			_ = m.surfaces.Close(ctx, ps.ID)
		}
		return nil, err
	}

	handle := m.coord.Start(m.ctx, session)
	as := &activeSession{session: session, handle: handle, blocked: blocked}
	m.mu.Lock()
	m.sessions[ps.ID] = as
	m.mu.Unlock()

	go m.watch(as)

	m.log.Info().Str("session_id", ps.ID).Str("user_id", userID).Str("plan_id", planID).
		Bool("blocked", blocked).Msg("checkout opened")
	return &CheckoutStatus{SessionID: ps.ID}, nil
}

func (m *Manager) obtainCheckoutURL(ctx context.Context, session *Session) error {
	preferenceID, initPoint, err := m.checkout.CreateCheckout(ctx, session.Snapshot())
	if err != nil {
		// The session stays up: streams can still confirm, and the deadline
		// path abandons cleanly if nothing ever does.
		m.log.Error().Err(err).Str("session_id", session.ID()).Msg("checkout preference creation failed")
		return err
	}
	session.SetPreferenceID(preferenceID)
	if err := m.surfaces.SetRedirectURL(ctx, session.ID(), initPoint); err != nil {
		m.log.Warn().Err(err).Str("session_id", session.ID()).Msg("redirect url publish failed")
	}
	return nil
}

// watch polls the surface heartbeat on the same cadence as the polling
// channel and reports a user-initiated close to the coordinator as a
// cancellation request.
func (m *Manager) watch(as *activeSession) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-as.handle.Done():
			m.finish(as)
			return
		case <-m.ctx.Done():
			m.evict(as.session.ID())
			return
		case <-ticker.C:
			if as.blocked {
				continue
			}
			alive, err := m.surfaces.Alive(m.ctx, as.session.ID())
			if err != nil {
				m.log.Warn().Err(err).Str("session_id", as.session.ID()).Msg("surface liveness check failed")
				continue
			}
			if !alive && !as.closedByOwner.Load() {
				m.log.Info().Str("session_id", as.session.ID()).Msg("surface closed by user")
				as.handle.Cancel()
			}
		}
	}
}

// finish tears the surface down after a resolution. The registry key is
// removed by the manager itself, so the watcher never misreads the teardown
// as a user close.
func (m *Manager) finish(as *activeSession) {
	as.closedByOwner.Store(true)
	res, _ := as.handle.Resolution()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(m.ctx), 5*time.Second)
	defer cancel()
	if err := m.surfaces.SetFinalState(ctx, as.session.ID(), res); err != nil {
		m.log.Warn().Err(err).Str("session_id", as.session.ID()).Msg("final state publish failed")
	}
	if !as.blocked {
		_ = m.surfaces.Close(ctx, as.session.ID())
	}
	m.evict(as.session.ID())
}

func (m *Manager) evict(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

func (m *Manager) lookup(sessionID string) (*activeSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	as, ok := m.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return as, nil
}

// Heartbeat refreshes the surface TTL; called by the checkout page.
func (m *Manager) Heartbeat(ctx context.Context, sessionID string) error {
	if _, err := m.lookup(sessionID); err != nil {
		return err
	}
	return m.surfaces.Refresh(ctx, sessionID)
}

// Status reports the redirect URL once known and the resolution once
// committed; the placeholder page polls it.
func (m *Manager) Status(ctx context.Context, sessionID string) (*CheckoutStatus, error) {
	as, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	st := &CheckoutStatus{SessionID: sessionID}
	if url, err := m.surfaces.RedirectURL(ctx, sessionID); err == nil {
		st.RedirectURL = url
	}
	if res, ok := as.handle.Resolution(); ok {
		st.Resolved = true
		st.Resolution = res
	}
	return st, nil
}

// Cancel is the user-initiated abort (explicit cancel button, or the page
// noticing its own teardown).
func (m *Manager) Cancel(sessionID string) error {
	as, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	as.handle.Cancel()
	return nil
}

// Attach re-drives an in-flight session from the pending return page and
// records the gateway payment id carried by the redirect query parameters.
func (m *Manager) Attach(sessionID, gatewayPaymentID string) (*Handle, error) {
	as, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	as.session.SetPaymentID(gatewayPaymentID)
	return as.handle, nil
}
