package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"subscription-payments/internal/domain/model"
	"subscription-payments/internal/infra/metrics"
)

// StatusChecker performs one direct oracle query for the session and maps the
// answer onto the closed signal union.
type StatusChecker interface {
	CheckStatus(ctx context.Context, s model.PaymentSession) (model.SignalOutcome, error)
}

// Callbacks are the externally-visible actions a resolution may trigger.
// Activate fires exactly once on an approved resolution, Reject exactly once
// on a rejected one; an abandoned session triggers neither.
type Callbacks struct {
	Activate func(ctx context.Context, s model.PaymentSession) error
	Reject   func(ctx context.Context, s model.PaymentSession) error
}

// Producer is one confirmation channel: it observes payment state and writes
// signals into out until ctx is cancelled. Producers never resolve anything
// themselves and never cancel each other.
type Producer interface {
	Run(ctx context.Context, s *Session, out chan<- model.ConfirmationSignal)
}

// Handle is the caller's view of a running session.
type Handle struct {
	session *Session

	mu         sync.Mutex
	resolved   bool
	resolution model.Resolution

	cancelOnce sync.Once
	cancelReq  chan struct{}
	done       chan struct{}
}

// Cancel requests a user-initiated abort (popup closed). The coordinator
// performs one final oracle check before resolving, so a user who closes the
// window right after paying is not punished by a missed signal.
func (h *Handle) Cancel() {
	h.cancelOnce.Do(func() { close(h.cancelReq) })
}

// Done is closed once a resolution has been committed.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Resolution returns the committed resolution, if any.
func (h *Handle) Resolution() (model.Resolution, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resolution, h.resolved
}

// Wait blocks until the session resolves or ctx ends.
func (h *Handle) Wait(ctx context.Context) (model.Resolution, error) {
	select {
	case <-h.done:
		res, _ := h.Resolution()
		return res, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// tryResolve flips the one-shot resolved flag. Returns false if a resolution
// was already committed, which is how concurrently-arriving duplicate or
// conflicting terminal signals are provably ignored.
func (h *Handle) tryResolve(res model.Resolution) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.resolved {
		return false
	}
	h.resolved = true
	h.resolution = res
	return true
}

// Coordinator owns the race between the confirmation channels: it consumes
// signals one at a time, commits the first terminal signal exactly once, and
// tears the remaining channels down.
type Coordinator struct {
	checker   StatusChecker
	callbacks Callbacks
	producers []Producer

	signalBuffer    int
	finalCheckLimit time.Duration
	log             *zerolog.Logger
}

func NewCoordinator(checker StatusChecker, callbacks Callbacks, producers []Producer, logger *zerolog.Logger) *Coordinator {
	coordLog := logger.With().Str("component", "Coordinator").Logger()
	return &Coordinator{
		checker:         checker,
		callbacks:       callbacks,
		producers:       producers,
		signalBuffer:    16,
		finalCheckLimit: 10 * time.Second,
		log:             &coordLog,
	}
}

// Start fans the producers out and returns a handle for the session. The
// producers and the consumer loop stop as soon as a resolution is committed,
// the session deadline passes, Cancel is called, or ctx ends.
func (c *Coordinator) Start(ctx context.Context, session *Session) *Handle {
	h := &Handle{
		session:   session,
		cancelReq: make(chan struct{}),
		done:      make(chan struct{}),
	}

	runCtx, cancel := context.WithCancel(ctx)
	signals := make(chan model.ConfirmationSignal, c.signalBuffer)

	for _, p := range c.producers {
		go p.Run(runCtx, session, signals)
	}
	go c.run(runCtx, cancel, h, signals)
	return h
}

func (c *Coordinator) run(ctx context.Context, cancel context.CancelFunc, h *Handle, signals <-chan model.ConfirmationSignal) {
	snap := h.session.Snapshot()
	deadline := time.NewTimer(time.Until(snap.Deadline))
	defer deadline.Stop()

	for {
		select {
		case sig := <-signals:
			metrics.IncSignal(string(sig.Source), string(sig.Outcome))
			if !sig.Outcome.Terminal() {
				continue
			}
			// An approved signal buffered behind this one must win: gateways
			// emit transient rejected-then-approved sequences during
			// multi-step authorization.
			sig = preferApproved(sig, signals)
			c.commit(ctx, cancel, h, sig)
			return
		case <-deadline.C:
			c.finalize(ctx, cancel, h, signals, "deadline")
			return
		case <-h.cancelReq:
			c.finalize(ctx, cancel, h, signals, "surface_closed")
			return
		case <-ctx.Done():
			// Shutdown: no callbacks, no oracle call. A later manual resync
			// picks the session up from the history table.
			c.abandon(cancel, h, "shutdown")
			return
		}
	}
}

// finalize runs the one-shot final oracle query used on deadline expiry and
// user cancellation. A terminal signal already buffered takes priority over
// the query.
func (c *Coordinator) finalize(ctx context.Context, cancel context.CancelFunc, h *Handle, signals <-chan model.ConfirmationSignal, reason string) {
	if sig, ok := drainTerminal(signals); ok {
		c.commit(ctx, cancel, h, sig)
		return
	}

	snap := h.session.Snapshot()
	checkCtx, checkCancel := context.WithTimeout(context.WithoutCancel(ctx), c.finalCheckLimit)
	defer checkCancel()

	outcome, err := c.checker.CheckStatus(checkCtx, snap)
	if err != nil {
		// Confirmation could not be obtained; that is not a rejection.
		c.log.Warn().Err(err).Str("session_id", snap.ID).Str("reason", reason).
			Msg("final status check failed; abandoning")
		metrics.IncOracleCheck("error")
		c.abandon(cancel, h, reason)
		return
	}
	metrics.IncOracleCheck(string(outcome))
	if !outcome.Terminal() {
		c.abandon(cancel, h, reason)
		return
	}
	c.commit(ctx, cancel, h, model.ConfirmationSignal{
		Source:     model.SourceFinalCheck,
		Outcome:    outcome,
		ObservedAt: time.Now(),
	})
}

// commit applies the winning terminal signal exactly once: flip the resolved
// flag, run the matching callback, then cancel every channel.
func (c *Coordinator) commit(ctx context.Context, cancel context.CancelFunc, h *Handle, sig model.ConfirmationSignal) {
	res := model.ResolutionRejected
	if sig.Outcome == model.OutcomeApproved {
		res = model.ResolutionApproved
	}
	if !h.tryResolve(res) {
		return
	}
	h.session.setWinningSource(sig.Source)
	snap := h.session.Snapshot()

	cbCtx, cbCancel := context.WithTimeout(context.WithoutCancel(ctx), c.finalCheckLimit)
	defer cbCancel()

	var err error
	switch res {
	case model.ResolutionApproved:
		err = c.callbacks.Activate(cbCtx, snap)
	case model.ResolutionRejected:
		err = c.callbacks.Reject(cbCtx, snap)
	}
	if err != nil {
		c.log.Error().Err(err).Str("session_id", snap.ID).Str("resolution", string(res)).
			Msg("resolution callback failed")
	}

	metrics.IncResolution(string(res), string(sig.Source))
	metrics.ObserveResolutionLatency(time.Since(snap.CreatedAt))
	c.log.Info().
		Str("session_id", snap.ID).
		Str("resolution", string(res)).
		Str("source", string(sig.Source)).
		Msg("session resolved")

	cancel()
	close(h.done)
}

func (c *Coordinator) abandon(cancel context.CancelFunc, h *Handle, reason string) {
	if !h.tryResolve(model.ResolutionAbandoned) {
		return
	}
	snap := h.session.Snapshot()
	metrics.IncResolution(string(model.ResolutionAbandoned), reason)
	c.log.Info().Str("session_id", snap.ID).Str("reason", reason).Msg("session abandoned")
	cancel()
	close(h.done)
}

// preferApproved drains whatever is already buffered and returns an approved
// signal if one is among them; otherwise the first terminal signal stands.
func preferApproved(first model.ConfirmationSignal, more <-chan model.ConfirmationSignal) model.ConfirmationSignal {
	if first.Outcome == model.OutcomeApproved {
		return first
	}
	for {
		select {
		case sig := <-more:
			if sig.Outcome == model.OutcomeApproved {
				return sig
			}
		default:
			return first
		}
	}
}

// drainTerminal performs a non-blocking sweep of the buffer for a terminal
// signal, preferring approved over rejected.
func drainTerminal(signals <-chan model.ConfirmationSignal) (model.ConfirmationSignal, bool) {
	var terminal model.ConfirmationSignal
	found := false
	for {
		select {
		case sig := <-signals:
			if sig.Outcome == model.OutcomeApproved {
				return sig, true
			}
			if sig.Outcome.Terminal() && !found {
				terminal, found = sig, true
			}
		default:
			return terminal, found
		}
	}
}
