package events

import (
	"context"

	"github.com/rs/zerolog"

	"newspay-l402/internal/domain/model"
	"newspay-l402/internal/domain/ports/adapter"
	"newspay-l402/internal/infra/logging"
)

var _ adapter.EventPublisher = (*LogPublisher)(nil)

// LogPublisher writes events to the log instead of a broker.
type LogPublisher struct {
	log *zerolog.Logger
}

func NewLogPublisher(logger *zerolog.Logger) *LogPublisher {
	l := logger.With().Str("component", "LogPublisher").Logger()
	return &LogPublisher{log: &l}
}

func (p *LogPublisher) Publish(ctx context.Context, ev model.PaymentEvent) error {
	l := logging.With(ctx, p.log)
	l.Info().
		Str("type", string(ev.Type)).
		Str("session_id", ev.SessionID).
		Str("offer_id", ev.OfferID).
		Str("credential_id", ev.CredentialID).
		Str("scope", string(ev.Scope)).
		Time("occurred_at", ev.OccurredAt).
		Msg("payment event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }
