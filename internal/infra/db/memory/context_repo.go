// Package memory holds process-local stores. They satisfy the same atomicity
// contracts as the durable ones, but only within a single process.
package memory

import (
	"context"
	"sync"
	"time"

	"newspay-l402/internal/domain"
	"newspay-l402/internal/domain/model"
	"newspay-l402/internal/domain/ports/repository"
)

// Compile-time check
var _ repository.PaymentContextRepository = (*contextRepo)(nil)

type contextRepo struct {
	mu   sync.Mutex
	byID map[string]model.PaymentContext
}

func NewPaymentContextRepo() *contextRepo {
	return &contextRepo{byID: make(map[string]model.PaymentContext)}
}

func (r *contextRepo) Save(_ context.Context, c *model.PaymentContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[c.Token]; ok {
		return domain.ErrAlreadyExists
	}
	r.byID[c.Token] = *c
	return nil
}

func (r *contextRepo) FindByToken(_ context.Context, token string) (*model.PaymentContext, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[token]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (r *contextRepo) Consume(_ context.Context, token string, now time.Time) (*model.PaymentContext, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[token]
	if !ok {
		return nil, domain.ErrNotFound
	}
	err := c.Consume(now)
	r.byID[token] = c
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *contextRepo) Reopen(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[token]
	if !ok {
		return domain.ErrNotFound
	}
	switch c.State {
	case model.ContextStateOpen:
		return nil
	case model.ContextStateConsumed:
		c.State = model.ContextStateOpen
		c.ConsumedAt = nil
		r.byID[token] = c
		return nil
	default:
		return domain.ErrInvalidTransition
	}
}

func (r *contextRepo) SweepExpired(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for token, c := range r.byID {
		if c.ExpiresAt.Before(cutoff) {
			delete(r.byID, token)
			n++
		}
	}
	return n, nil
}
