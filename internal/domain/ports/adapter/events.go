package adapter

import (
	"context"

	"newspay-l402/internal/domain/model"
)

// EventPublisher emits payment lifecycle events to downstream consumers.
// Publishing is best effort: callers log failures and carry on.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.PaymentEvent) error
	Close() error
}
