// File: internal/usecase/context_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"newspay-l402/internal/domain"
	"newspay-l402/internal/domain/model"
	"newspay-l402/internal/domain/ports/repository"
	"newspay-l402/internal/infra/logging"
	"newspay-l402/internal/infra/metrics"
)

// Compile-time check
var _ PaymentContextUseCase = (*paymentContextUC)(nil)

// PaymentContextUseCase is the payment-context store contract: create always
// succeeds with a fresh OPEN token, consume is atomic and lazily expiring.
type PaymentContextUseCase interface {
	Create(ctx context.Context) (*model.PaymentContext, error)
	Get(ctx context.Context, token string) (*model.PaymentContext, error)
	Consume(ctx context.Context, token string) (*model.PaymentContext, error)
	// Reopen undoes a Consume whose payment session could not be created.
	Reopen(ctx context.Context, token string) error
	SweepExpired(ctx context.Context) (int, error)
}

type paymentContextUC struct {
	repo  repository.PaymentContextRepository
	ttl   time.Duration
	clock Clock
	log   *zerolog.Logger
}

func NewPaymentContextUseCase(repo repository.PaymentContextRepository, ttl time.Duration, clock Clock, logger *zerolog.Logger) *paymentContextUC {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	l := logger.With().Str("component", "PaymentContextUC").Logger()
	return &paymentContextUC{repo: repo, ttl: ttl, clock: clock, log: &l}
}

func (u *paymentContextUC) Create(ctx context.Context) (*model.PaymentContext, error) {
	c, err := model.NewPaymentContext(u.clock.now(), u.ttl)
	if err != nil {
		return nil, err
	}
	if err := u.repo.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("save payment context: %w", err)
	}
	metrics.IncContext("created")
	return c, nil
}

func (u *paymentContextUC) Get(ctx context.Context, token string) (*model.PaymentContext, error) {
	if token == "" {
		return nil, domain.ErrNotFound
	}
	c, err := u.repo.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	c.State = c.EffectiveState(u.clock.now())
	return c, nil
}

func (u *paymentContextUC) Consume(ctx context.Context, token string) (*model.PaymentContext, error) {
	if token == "" {
		return nil, domain.ErrNotFound
	}
	c, err := u.repo.Consume(ctx, token, u.clock.now())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyConsumed):
			metrics.IncContext("replayed")
		case errors.Is(err, domain.ErrExpired):
			metrics.IncContext("expired")
		}
		l := logging.With(ctx, u.log)
		l.Debug().Err(err).Str("context_token", logging.Redact(token, false)).Msg("context consume rejected")
		return nil, err
	}
	metrics.IncContext("consumed")
	return c, nil
}

func (u *paymentContextUC) Reopen(ctx context.Context, token string) error {
	if err := u.repo.Reopen(ctx, token); err != nil {
		return err
	}
	metrics.IncContext("reopened")
	return nil
}

// SweepExpired drops contexts one TTL after their deadline. Until then an
// expired or consumed token still reports its real state instead of not-found.
func (u *paymentContextUC) SweepExpired(ctx context.Context) (int, error) {
	n, err := u.repo.SweepExpired(ctx, u.clock.now().Add(-u.ttl))
	if err != nil {
		return 0, fmt.Errorf("sweep payment contexts: %w", err)
	}
	return n, nil
}
