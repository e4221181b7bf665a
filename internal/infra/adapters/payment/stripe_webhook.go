package payment

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"newspay-l402/internal/domain"
	"newspay-l402/internal/domain/ports/adapter"
)

var _ adapter.WebhookVerifier = (*StripeWebhook)(nil)

// StripeWebhook verifies the Stripe-Signature header and maps checkout
// session events onto confirmation signals.
type StripeWebhook struct {
	secret string
}

func NewStripeWebhook(secret string) (*StripeWebhook, error) {
	if secret == "" {
		return nil, errors.New("stripe webhook secret empty")
	}
	return &StripeWebhook{secret: secret}, nil
}

func (w *StripeWebhook) Provider() string { return "stripe" }

func (w *StripeWebhook) Parse(payload []byte, signature string) (adapter.ConfirmationSignal, bool, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, w.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return adapter.ConfirmationSignal{}, false, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}

	var outcome adapter.PaymentOutcome
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		outcome = adapter.OutcomePaid
	case "checkout.session.async_payment_failed":
		outcome = adapter.OutcomeFailed
	case "checkout.session.expired":
		outcome = adapter.OutcomeExpired
	default:
		return adapter.ConfirmationSignal{}, false, nil
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil || cs.ID == "" {
		return adapter.ConfirmationSignal{}, false, fmt.Errorf("stripe webhook: bad checkout session payload: %w", domain.ErrInvalidArgument)
	}
	// completed fires before async methods settle; wait for the follow-up event.
	if event.Type == "checkout.session.completed" && checkoutOutcome(&cs) != adapter.OutcomePaid {
		return adapter.ConfirmationSignal{}, false, nil
	}
	return adapter.ConfirmationSignal{SessionID: cs.ID, Outcome: outcome}, true, nil
}
