package sched

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"newspay-l402/internal/infra/worker"
	"newspay-l402/internal/usecase"
)

// SessionReconciler periodically resolves PENDING payment sessions whose
// webhook never arrived: the buyer closed the tab, the delivery failed or the
// process crashed mid-confirm. Reconcile is idempotent, so overlapping ticks
// are harmless, and it never hands a token out: one issued here waits sealed
// for the buyer's next poll.
type SessionReconciler struct {
	broker     usecase.PaymentSessionBroker
	pool       *worker.Pool
	locker     Locker
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old a pending session must be to poll
	batch      int
	log        *zerolog.Logger
}

func NewSessionReconciler(broker usecase.PaymentSessionBroker, pool *worker.Pool, locker Locker, interval, staleAfter time.Duration, logger *zerolog.Logger) *SessionReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}
	l := logger.With().Str("component", "SessionReconciler").Logger()
	return &SessionReconciler{
		broker:     broker,
		pool:       pool,
		locker:     locker,
		interval:   interval,
		staleAfter: staleAfter,
		batch:      200,
		log:        &l,
	}
}

func (w *SessionReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Dur("stale_after", w.staleAfter).Msg("Starting session reconciler")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping session reconciler")
			return ctx.Err()
		case <-t.C:
			w.tick(ctx)
		}
	}
}

// tick returns once every submitted resolve finished or ctx ended.
func (w *SessionReconciler) tick(ctx context.Context) int {
	release, ok := acquire(ctx, w.locker, "session-reconciler", w.interval, w.log)
	if !ok {
		return 0
	}
	defer release()

	pending, err := w.broker.ListStale(ctx, w.staleAfter, w.batch)
	if err != nil {
		w.log.Error().Err(err).Msg("list stale sessions failed")
		return 0
	}

	var wg sync.WaitGroup
	submitted := 0
	for _, s := range pending {
		id := s.ID
		wg.Add(1)
		err := w.pool.Submit(func(ctx context.Context) error {
			defer wg.Done()
			s, err := w.broker.Reconcile(ctx, id)
			if err != nil {
				return err
			}
			if s.State.IsTerminal() {
				w.log.Info().Str("session_id", id).Str("state", string(s.State)).Msg("reconciled session")
			}
			return nil
		})
		if err != nil {
			wg.Done()
			w.log.Warn().Err(err).Str("session_id", id).Msg("reconcile task dropped")
			continue
		}
		submitted++
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return submitted
}
