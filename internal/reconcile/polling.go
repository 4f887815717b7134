package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"subscription-payments/internal/domain"
	"subscription-payments/internal/domain/model"
)

// PollingChannel asks the oracle for the payment status on a fixed interval.
// A single failed poll never aborts the channel; only cancellation from the
// coordinator (or the session deadline driving it) does.
type PollingChannel struct {
	checker  StatusChecker
	interval time.Duration
	log      *zerolog.Logger
}

func NewPollingChannel(checker StatusChecker, interval time.Duration, logger *zerolog.Logger) *PollingChannel {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	pollLog := logger.With().Str("component", "PollingChannel").Logger()
	return &PollingChannel{checker: checker, interval: interval, log: &pollLog}
}

func (p *PollingChannel) Run(ctx context.Context, s *Session, out chan<- model.ConfirmationSignal) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			outcome, err := p.checker.CheckStatus(ctx, s.Snapshot())
			if err != nil {
				if errors.Is(err, domain.ErrMissingPaymentRef) {
					// Checkout URL not obtained yet; nothing to ask about.
					continue
				}
				p.log.Warn().Err(err).Str("session_id", s.ID()).Msg("status poll failed")
				continue
			}
			select {
			case out <- model.ConfirmationSignal{
				Source:     model.SourcePolling,
				Outcome:    outcome,
				ObservedAt: time.Now(),
			}:
			case <-ctx.Done():
				return
			}
		}
	}
}
