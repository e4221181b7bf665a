package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"newspay-l402/internal/domain/model"
	"newspay-l402/internal/domain/ports/repository"
	"newspay-l402/internal/infra/metrics"
)

// Compile-time check
var _ TokenIssuer = (*tokenIssuer)(nil)

type TokenIssuer interface {
	// Issue mints and stores a credential scoped to scope. The returned value
	// is the only place the plaintext token ever appears.
	Issue(ctx context.Context, offer *model.Offer, scope model.Scope, sessionID string) (*model.BearerCredential, error)
}

type tokenIssuer struct {
	creds repository.CredentialRepository
	clock Clock
	log   *zerolog.Logger
}

func NewTokenIssuer(creds repository.CredentialRepository, clock Clock, logger *zerolog.Logger) *tokenIssuer {
	l := logger.With().Str("component", "TokenIssuer").Logger()
	return &tokenIssuer{creds: creds, clock: clock, log: &l}
}

func (t *tokenIssuer) Issue(ctx context.Context, offer *model.Offer, scope model.Scope, sessionID string) (*model.BearerCredential, error) {
	cred, err := model.NewBearerCredential(offer, scope, sessionID, t.clock.now())
	if err != nil {
		return nil, fmt.Errorf("mint credential: %w", err)
	}
	if err := t.creds.Save(ctx, cred); err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}
	metrics.IncCredentialIssued(offer.ID)
	t.log.Info().
		Str("credential_id", cred.ID).
		Str("session_id", sessionID).
		Str("scope", string(scope)).
		Bool("single_use", cred.SingleUse).
		Msg("credential issued")
	return cred, nil
}
