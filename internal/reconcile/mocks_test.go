package reconcile

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"subscription-payments/internal/domain/model"
	"subscription-payments/internal/domain/ports/stream"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func newTestSession(t *testing.T, horizon time.Duration) *Session {
	t.Helper()
	ps, err := model.NewPaymentSession("sess-1", "user-1", "plan-pro", "u@example.com", horizon)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return NewSession(ps)
}

// mockChecker is a hand-rolled StatusChecker with a pluggable Func field.
type mockChecker struct {
	mu        sync.Mutex
	calls     int
	CheckFunc func(s model.PaymentSession) (model.SignalOutcome, error)
}

func (m *mockChecker) CheckStatus(ctx context.Context, s model.PaymentSession) (model.SignalOutcome, error) {
	m.mu.Lock()
	m.calls++
	fn := m.CheckFunc
	m.mu.Unlock()
	if fn == nil {
		return model.OutcomeStillPending, nil
	}
	return fn(s)
}

func (m *mockChecker) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// callbackRecorder counts externally-visible actions.
type callbackRecorder struct {
	activations atomic.Int32
	rejections  atomic.Int32
}

func (r *callbackRecorder) callbacks() Callbacks {
	return Callbacks{
		Activate: func(ctx context.Context, s model.PaymentSession) error {
			r.activations.Add(1)
			return nil
		},
		Reject: func(ctx context.Context, s model.PaymentSession) error {
			r.rejections.Add(1)
			return nil
		},
	}
}

type producerFunc func(ctx context.Context, s *Session, out chan<- model.ConfirmationSignal)

func (f producerFunc) Run(ctx context.Context, s *Session, out chan<- model.ConfirmationSignal) {
	f(ctx, s, out)
}

// emitAfter produces one signal from the given source after a delay.
func emitAfter(d time.Duration, source model.SignalSource, outcome model.SignalOutcome) Producer {
	return producerFunc(func(ctx context.Context, s *Session, out chan<- model.ConfirmationSignal) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(d):
		}
		select {
		case out <- model.ConfirmationSignal{Source: source, Outcome: outcome, ObservedAt: time.Now()}:
		case <-ctx.Done():
		}
	})
}

// emitSequence produces the outcomes in order with a small gap between them.
func emitSequence(source model.SignalSource, gap time.Duration, outcomes ...model.SignalOutcome) Producer {
	return producerFunc(func(ctx context.Context, s *Session, out chan<- model.ConfirmationSignal) {
		for _, o := range outcomes {
			select {
			case <-ctx.Done():
				return
			case <-time.After(gap):
			}
			select {
			case out <- model.ConfirmationSignal{Source: source, Outcome: o, ObservedAt: time.Now()}:
			case <-ctx.Done():
				return
			}
		}
	})
}

// mockStream is an in-memory ChangeStream.
type mockStream struct {
	mu   sync.Mutex
	subs map[string][]chan stream.ChangeEvent
}

func newMockStream() *mockStream {
	return &mockStream{subs: make(map[string][]chan stream.ChangeEvent)}
}

func (m *mockStream) Subscribe(ctx context.Context, userID string) (<-chan stream.ChangeEvent, func(), error) {
	ch := make(chan stream.ChangeEvent, 8)
	m.mu.Lock()
	m.subs[userID] = append(m.subs[userID], ch)
	m.mu.Unlock()
	return ch, func() {}, nil
}

func (m *mockStream) emit(userID string, ev stream.ChangeEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs[userID] {
		ch <- ev
	}
}

func waitResolved(t *testing.T, h *Handle, within time.Duration) model.Resolution {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), within)
	defer cancel()
	res, err := h.Wait(ctx)
	if err != nil {
		t.Fatalf("session did not resolve within %s", within)
	}
	return res
}
