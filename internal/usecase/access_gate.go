package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"newspay-l402/internal/domain"
	"newspay-l402/internal/domain/model"
	"newspay-l402/internal/domain/ports/repository"
	"newspay-l402/internal/infra/logging"
	"newspay-l402/internal/infra/metrics"
)

// Compile-time check
var _ AccessGate = (*accessGate)(nil)

type DenyReason string

const (
	DenyNone            DenyReason = ""
	DenyNotFound        DenyReason = "not_found"
	DenyExpired         DenyReason = "expired"
	DenyAlreadyConsumed DenyReason = "already_consumed"
	DenyScopeMismatch   DenyReason = "scope_mismatch"
	DenyInternal        DenyReason = "internal_error"
)

// Decision is the outcome of a credential check. Credential is set on Allow.
type Decision struct {
	Allowed    bool
	Reason     DenyReason
	Credential *model.BearerCredential
}

// Err maps a deny reason back onto the domain error taxonomy.
func (d Decision) Err() error {
	switch d.Reason {
	case DenyNone:
		return nil
	case DenyNotFound:
		return domain.ErrNotFound
	case DenyExpired:
		return domain.ErrExpired
	case DenyAlreadyConsumed:
		return domain.ErrAlreadyConsumed
	case DenyScopeMismatch:
		return domain.ErrScopeMismatch
	default:
		return domain.ErrCorruptCredential
	}
}

// AccessGate validates bearer credentials against a requested category. An
// empty category asks for whatever the credential's own scope covers.
type AccessGate interface {
	// Verify runs lookup, expiry, consumption and scope checks without
	// consuming anything.
	Verify(ctx context.Context, token, category string) Decision
	// Authorize is Verify plus the atomic consume of single-use credentials.
	Authorize(ctx context.Context, token, category string) Decision
}

type accessGate struct {
	creds  repository.CredentialRepository
	events *EventSink
	clock  Clock
	log    *zerolog.Logger
}

func NewAccessGate(creds repository.CredentialRepository, events *EventSink, clock Clock, logger *zerolog.Logger) *accessGate {
	l := logger.With().Str("component", "AccessGate").Logger()
	return &accessGate{creds: creds, events: events, clock: clock, log: &l}
}

func (g *accessGate) Verify(ctx context.Context, token, category string) Decision {
	d, _ := g.check(ctx, token, category)
	return d
}

func (g *accessGate) Authorize(ctx context.Context, token, category string) Decision {
	d, hash := g.check(ctx, token, category)
	if !d.Allowed {
		metrics.IncAccessDecision("deny", string(d.Reason))
		return d
	}
	cred := d.Credential
	if cred.SingleUse {
		now := g.clock.now()
		ok, err := g.creds.ConsumeIfUnused(ctx, hash, now)
		if err != nil {
			l := logging.With(ctx, g.log)
			l.Error().Err(err).Str("credential_id", cred.ID).Msg("consume failed; denying")
			metrics.IncAccessDecision("deny", string(DenyInternal))
			return Decision{Reason: DenyInternal}
		}
		if !ok {
			metrics.IncAccessDecision("deny", string(DenyAlreadyConsumed))
			return Decision{Reason: DenyAlreadyConsumed}
		}
		cred.Consumed = true
		cred.ConsumedAt = &now
		g.events.emit(ctx, model.PaymentEvent{
			Type:         model.EventCredentialConsumed,
			SessionID:    cred.SessionID,
			OfferID:      cred.OfferID,
			CredentialID: cred.ID,
			Scope:        cred.Scope,
			OccurredAt:   now,
		})
	}
	metrics.IncAccessDecision("allow", "")
	return d
}

func (g *accessGate) check(ctx context.Context, token, category string) (Decision, string) {
	if token == "" {
		return Decision{Reason: DenyNotFound}, ""
	}
	hash := model.HashToken(token)
	cred, err := g.creds.FindByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Decision{Reason: DenyNotFound}, hash
		}
		l := logging.With(ctx, g.log)
		l.Error().Err(err).Msg("credential lookup failed; denying")
		return Decision{Reason: DenyInternal}, hash
	}

	if category == "" {
		category = string(cred.Scope)
	}
	switch err := cred.Check(g.clock.now(), category); {
	case err == nil:
		return Decision{Allowed: true, Credential: cred}, hash
	case errors.Is(err, domain.ErrExpired):
		return Decision{Reason: DenyExpired}, hash
	case errors.Is(err, domain.ErrAlreadyConsumed):
		return Decision{Reason: DenyAlreadyConsumed}, hash
	case errors.Is(err, domain.ErrScopeMismatch):
		return Decision{Reason: DenyScopeMismatch}, hash
	default:
		l := logging.With(ctx, g.log)
		l.Error().Err(err).Str("credential_id", cred.ID).Msg("credential failed invariant check")
		return Decision{Reason: DenyInternal}, hash
	}
}
