package model

import (
	"time"

	"github.com/google/uuid"

	"newspay-l402/internal/domain"
)

type ContextState string

const (
	ContextStateOpen     ContextState = "open"
	ContextStateConsumed ContextState = "consumed"
	ContextStateExpired  ContextState = "expired"
)

// PaymentContext correlates an unauthenticated caller's 402 with its later
// payment request. It is consumed exactly once.
type PaymentContext struct {
	Token      string       `json:"token"`
	CreatedAt  time.Time    `json:"created_at"`
	ExpiresAt  time.Time    `json:"expires_at"`
	State      ContextState `json:"state"`
	ConsumedAt *time.Time   `json:"consumed_at,omitempty"`
}

// NewPaymentContext mints an OPEN context with a fresh random token.
func NewPaymentContext(now time.Time, ttl time.Duration) (*PaymentContext, error) {
	if ttl <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &PaymentContext{
		Token:     uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		State:     ContextStateOpen,
	}, nil
}

// EffectiveState applies lazy expiry: an OPEN context past its deadline is
// EXPIRED even if no sweeper has touched it yet.
func (c *PaymentContext) EffectiveState(now time.Time) ContextState {
	if c.State == ContextStateOpen && !now.Before(c.ExpiresAt) {
		return ContextStateExpired
	}
	return c.State
}

// Consume transitions OPEN -> CONSUMED in place. Callers must hold whatever
// per-record serialization their store provides.
func (c *PaymentContext) Consume(now time.Time) error {
	switch c.EffectiveState(now) {
	case ContextStateOpen:
		c.State = ContextStateConsumed
		c.ConsumedAt = &now
		return nil
	case ContextStateConsumed:
		return domain.ErrAlreadyConsumed
	default:
		c.State = ContextStateExpired
		return domain.ErrExpired
	}
}
