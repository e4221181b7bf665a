package adapter

import (
	"context"

	"newspay-l402/internal/domain/model"
)

// PaymentOutcome is the provider-agnostic status of a checkout session.
type PaymentOutcome string

const (
	OutcomePending PaymentOutcome = "pending"
	OutcomePaid    PaymentOutcome = "paid"
	OutcomeFailed  PaymentOutcome = "failed"
	OutcomeExpired PaymentOutcome = "expired"
)

// SessionState maps an outcome onto the session state machine.
func (o PaymentOutcome) SessionState() model.SessionState {
	switch o {
	case OutcomePaid:
		return model.SessionStatePaid
	case OutcomeFailed:
		return model.SessionStateFailed
	case OutcomeExpired:
		return model.SessionStateExpired
	default:
		return model.SessionStatePending
	}
}

// CheckoutRequest carries everything a provider needs to open a hosted checkout.
type CheckoutRequest struct {
	ContextToken   string
	OfferID        string
	Scope          model.Scope
	Description    string
	Amount         int64
	Currency       string
	PaymentMethods []string
}

// CheckoutSession is what the provider hands back: its own session id and
// the URL the buyer is sent to.
type CheckoutSession struct {
	ID          string
	CheckoutURL string
}

// ConfirmationSignal is a provider statement about a session, delivered either
// by webhook push or by polling.
type ConfirmationSignal struct {
	SessionID string
	Outcome   PaymentOutcome
}

// PaymentGateway is the hex port for payment providers.
type PaymentGateway interface {
	Name() string

	// CreateCheckout opens a hosted checkout session.
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	// QueryStatus polls the provider for the current outcome of a session.
	QueryStatus(ctx context.Context, sessionID string) (PaymentOutcome, error)
}

// WebhookVerifier authenticates and decodes provider push notifications.
// ok is false for well-formed events that carry no session outcome.
type WebhookVerifier interface {
	Provider() string
	Parse(payload []byte, signature string) (sig ConfirmationSignal, ok bool, err error)
}
