package repository

import (
	"context"
	"time"

	"newspay-l402/internal/domain/model"
)

// PaymentContextRepository stores payment contexts. Consume is the single
// serialization point for a context token: under concurrent callers at most
// one observes success.
type PaymentContextRepository interface {
	Save(ctx context.Context, c *model.PaymentContext) error
	FindByToken(ctx context.Context, token string) (*model.PaymentContext, error)
	// Consume atomically moves an OPEN, unexpired context to CONSUMED.
	// Returns domain.ErrNotFound, domain.ErrAlreadyConsumed or domain.ErrExpired.
	Consume(ctx context.Context, token string, now time.Time) (*model.PaymentContext, error)
	// Reopen moves a CONSUMED context back to OPEN. Used only when the
	// session the consume was meant for never came into existence.
	Reopen(ctx context.Context, token string) error
	// SweepExpired drops contexts whose deadline is before cutoff, whatever
	// their state, and returns how many went.
	SweepExpired(ctx context.Context, cutoff time.Time) (int, error)
}
