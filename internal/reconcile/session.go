package reconcile

import (
	"sync"

	"subscription-payments/internal/domain/model"
)

// Session wraps the domain payment session with synchronized access to the
// two gateway identifiers, which are assigned after the channels are already
// running (the preference id once the checkout URL is obtained, the payment
// id whenever the gateway first mentions it).
type Session struct {
	mu sync.RWMutex
	s  model.PaymentSession
}

func NewSession(s *model.PaymentSession) *Session {
	return &Session{s: *s}
}

// Snapshot returns a copy of the current session state.
func (s *Session) Snapshot() model.PaymentSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.s
}

func (s *Session) ID() string     { return s.s.ID }
func (s *Session) UserID() string { return s.s.UserID }
func (s *Session) PlanID() string { return s.s.PlanID }

// SetPreferenceID records the preference id once the checkout URL exists.
func (s *Session) SetPreferenceID(id string) {
	s.mu.Lock()
	s.s.GatewayPreferenceID = id
	s.mu.Unlock()
}

// SetPaymentID records the gateway payment id the first time it is seen;
// later observations never overwrite it.
func (s *Session) SetPaymentID(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	if s.s.GatewayPaymentID == "" {
		s.s.GatewayPaymentID = id
	}
	s.mu.Unlock()
}

// Ref returns the identifiers currently known for gateway lookups.
func (s *Session) Ref() (paymentID, preferenceID string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.s.GatewayPaymentID, s.s.GatewayPreferenceID
}

func (s *Session) setWinningSource(src model.SignalSource) {
	s.mu.Lock()
	s.s.WinningSource = src
	s.mu.Unlock()
}
