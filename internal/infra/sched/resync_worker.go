package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"subscription-payments/internal/domain"
	"subscription-payments/internal/domain/model"
	"subscription-payments/internal/domain/ports/repository"
	"subscription-payments/internal/usecase"
)

// ResyncWorker periodically sweeps stale pending payment-history records and
// tries to finalize each with one oracle query. This is the backstop behind
// abandoned sessions: a user whose confirmation was never observed (crash,
// closed popup, oracle outage) gets picked up here instead of losing the
// payment.
type ResyncWorker struct {
	uc         usecase.UpgradeUseCase
	history    repository.PaymentHistoryRepository
	interval   time.Duration // how often to sweep
	staleAfter time.Duration // how old a pending record must be to retry
	log        *zerolog.Logger
}

func NewResyncWorker(uc usecase.UpgradeUseCase, history repository.PaymentHistoryRepository, interval, staleAfter time.Duration, logger *zerolog.Logger) *ResyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	workerLog := logger.With().Str("component", "ResyncWorker").Logger()
	return &ResyncWorker{uc: uc, history: history, interval: interval, staleAfter: staleAfter, log: &workerLog}
}

func (w *ResyncWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting resync worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping resync worker")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ResyncWorker) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	pending, err := w.history.ListPendingOlderThan(ctx, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("list stale pendings failed")
		return
	}
	for _, rec := range pending {
		res, err := w.uc.Resync(ctx, rec)
		if err != nil {
			if errors.Is(err, domain.ErrMissingPaymentRef) {
				continue
			}
			w.log.Warn().Err(err).Str("session_id", rec.SessionID).Msg("resync failed")
			continue
		}
		if res != model.ResolutionAbandoned {
			w.log.Info().Str("session_id", rec.SessionID).Str("resolution", string(res)).
				Msg("stale payment reconciled")
		}
	}
}
