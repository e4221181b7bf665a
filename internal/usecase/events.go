package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"newspay-l402/internal/domain/model"
	"newspay-l402/internal/domain/ports/adapter"
	"newspay-l402/internal/infra/metrics"
)

// EventSink publishes lifecycle events best effort. A nil sink or publisher
// drops events silently.
type EventSink struct {
	pub adapter.EventPublisher
	log *zerolog.Logger
}

func NewEventSink(pub adapter.EventPublisher, logger *zerolog.Logger) *EventSink {
	l := logger.With().Str("component", "EventSink").Logger()
	return &EventSink{pub: pub, log: &l}
}

func (s *EventSink) emit(ctx context.Context, ev model.PaymentEvent) {
	if s == nil || s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, ev); err != nil {
		metrics.IncEventPublish("error")
		s.log.Warn().Err(err).Str("type", string(ev.Type)).Str("session_id", ev.SessionID).Msg("event publish failed")
		return
	}
	metrics.IncEventPublish("ok")
}
