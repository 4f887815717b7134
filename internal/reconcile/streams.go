package reconcile

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"subscription-payments/internal/domain/model"
	"subscription-payments/internal/domain/ports/stream"
)

// EventMapper turns one change event into a confirmation signal, or reports
// that the event is not about this session. All raw-payload inspection lives
// here; the coordinator only ever sees the closed signal union.
type EventMapper func(s *Session, ev stream.ChangeEvent) (model.ConfirmationSignal, bool)

// StreamChannel pumps a change stream into the coordinator through a mapper.
// It tolerates duplicate events, events for unrelated sessions of the same
// account, and delivery out of order relative to the polling channel.
type StreamChannel struct {
	source model.SignalSource
	stream stream.ChangeStream
	mapFn  EventMapper
	log    *zerolog.Logger
}

func NewStreamChannel(source model.SignalSource, cs stream.ChangeStream, mapFn EventMapper, logger *zerolog.Logger) *StreamChannel {
	chanLog := logger.With().Str("component", "StreamChannel").Str("source", string(source)).Logger()
	return &StreamChannel{source: source, stream: cs, mapFn: mapFn, log: &chanLog}
}

func (c *StreamChannel) Run(ctx context.Context, s *Session, out chan<- model.ConfirmationSignal) {
	events, cancel, err := c.stream.Subscribe(ctx, s.UserID())
	if err != nil {
		// The other channels keep the session covered; the streams are
		// deliberately redundant.
		c.log.Warn().Err(err).Str("session_id", s.ID()).Msg("stream subscribe failed")
		return
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			sig, relevant := c.mapFn(s, ev)
			if !relevant {
				continue
			}
			sig.Source = c.source
			if sig.ObservedAt.IsZero() {
				sig.ObservedAt = time.Now()
			}
			select {
			case out <- sig:
			case <-ctx.Done():
				return
			}
		}
	}
}

// PaymentHistoryMapper maps update events on the payment_history table. The
// subscription is account-broad, so events are filtered client-side; matching
// falls back to user+plan identity to tolerate the gateway payment id
// arriving late.
func PaymentHistoryMapper(s *Session, ev stream.ChangeEvent) (model.ConfirmationSignal, bool) {
	if ev.Table != "payment_history" {
		return model.ConfirmationSignal{}, false
	}
	if !paymentEventMatches(s, ev) {
		return model.ConfirmationSignal{}, false
	}
	status := ev.Str("status")
	if status == "" || status == ev.OldStr("status") {
		// Not a real transition; redelivered or no-op update.
		return model.ConfirmationSignal{}, false
	}
	// Adopt the gateway transaction id as soon as any event carries it.
	s.SetPaymentID(ev.Str("mp_id"))
	return model.ConfirmationSignal{Outcome: model.OutcomeForStatus(status)}, true
}

func paymentEventMatches(s *Session, ev stream.ChangeEvent) bool {
	paymentID, preferenceID := s.Ref()
	if paymentID != "" && ev.Str("mp_id") == paymentID {
		return true
	}
	if preferenceID != "" && ev.Str("preference_id") == preferenceID {
		return true
	}
	return ev.Str("user_id") == s.UserID() && ev.Str("plan_id") == s.PlanID()
}

// SubscriptionMapper maps update events on the user's subscription record.
// This path is redundant with the payment-history stream on purpose: a
// backend job can activate the profile without ever touching payment_history.
func SubscriptionMapper(s *Session, ev stream.ChangeEvent) (model.ConfirmationSignal, bool) {
	if ev.Table != "subscriptions" {
		return model.ConfirmationSignal{}, false
	}
	if ev.Str("user_id") != s.UserID() {
		return model.ConfirmationSignal{}, false
	}
	status := ev.Str("status")
	if status == ev.OldStr("status") && ev.Str("plan_id") == ev.OldStr("plan_id") {
		return model.ConfirmationSignal{}, false
	}
	if status == string(model.SubscriptionStatusActive) && ev.Str("plan_id") == s.PlanID() {
		return model.ConfirmationSignal{Outcome: model.OutcomeApproved}, true
	}
	// The profile record has no rejection vocabulary; anything else is noise.
	return model.ConfirmationSignal{Outcome: model.OutcomeStillPending}, true
}
