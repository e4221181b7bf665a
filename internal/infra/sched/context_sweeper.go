package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"newspay-l402/internal/infra/metrics"
	"newspay-l402/internal/usecase"
)

// ContextSweeper periodically drops long-expired payment contexts.
type ContextSweeper struct {
	interval time.Duration
	contexts usecase.PaymentContextUseCase
	locker   Locker
	log      *zerolog.Logger
}

func NewContextSweeper(interval time.Duration, contexts usecase.PaymentContextUseCase, locker Locker, logger *zerolog.Logger) *ContextSweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	l := logger.With().Str("component", "ContextSweeper").Logger()
	return &ContextSweeper{interval: interval, contexts: contexts, locker: locker, log: &l}
}

func (w *ContextSweeper) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting context sweeper")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping context sweeper")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *ContextSweeper) tick(ctx context.Context) {
	release, ok := acquire(ctx, w.locker, "context-sweeper", w.interval, w.log)
	if !ok {
		return
	}
	defer release()

	n, err := w.contexts.SweepExpired(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("sweep failed")
		return
	}
	if n > 0 {
		metrics.AddContextsSwept(n)
		w.log.Info().Int("count", n).Msg("expired payment contexts swept")
	}
}
