package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"newspay-l402/internal/domain/model"
	"newspay-l402/internal/domain/ports/adapter"
	"newspay-l402/internal/infra/logging"
)

// Compile-time check
var _ ContentUseCase = (*contentUC)(nil)

type ContentUseCase interface {
	// Fetch serves gated content for a bearer token. The content lookup runs
	// before a single-use credential is consumed, so an infrastructure failure
	// never burns a paid grant.
	Fetch(ctx context.Context, token, category string) ([]model.NewsItem, Decision, error)
	// Preview returns every item for the browser view.
	Preview(ctx context.Context) ([]model.NewsItem, error)
}

type contentUC struct {
	gate     AccessGate
	provider adapter.ContentProvider
	log      *zerolog.Logger
}

func NewContentUseCase(gate AccessGate, provider adapter.ContentProvider, logger *zerolog.Logger) *contentUC {
	l := logger.With().Str("component", "ContentUC").Logger()
	return &contentUC{gate: gate, provider: provider, log: &l}
}

func (u *contentUC) Fetch(ctx context.Context, token, category string) ([]model.NewsItem, Decision, error) {
	d := u.gate.Verify(ctx, token, category)
	if !d.Allowed {
		return nil, d, nil
	}
	scope := model.Scope(category)
	if category == "" {
		scope = d.Credential.Scope
	}
	items, err := u.provider.List(ctx, scope)
	if err != nil {
		l := logging.With(ctx, u.log)
		l.Error().Err(err).Str("scope", string(scope)).Msg("content lookup failed; credential left unspent")
		return nil, d, fmt.Errorf("list content: %w", err)
	}

	d = u.gate.Authorize(ctx, token, category)
	if !d.Allowed {
		return nil, d, nil
	}
	return items, d, nil
}

func (u *contentUC) Preview(ctx context.Context) ([]model.NewsItem, error) {
	return u.provider.List(ctx, model.ScopeAll)
}
