// File: internal/infra/adapters/payment/stripe_gateway.go
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"newspay-l402/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*StripeGateway)(nil)

// StripeGateway implements adapter.PaymentGateway with hosted Checkout
// Sessions. The session id Stripe assigns becomes our payment session id.
type StripeGateway struct {
	api        *client.API
	successURL string
	cancelURL  string
}

// NewStripeGateway passes backends straight to the stripe client; nil uses
// the live API.
func NewStripeGateway(secretKey, successURL, cancelURL string, backends *stripe.Backends) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, errors.New("stripe secret key empty")
	}
	if successURL == "" || cancelURL == "" {
		return nil, errors.New("stripe success and cancel urls are required")
	}
	return &StripeGateway{
		api:        client.New(secretKey, backends),
		successURL: successURL,
		cancelURL:  cancelURL,
	}, nil
}

func (s *StripeGateway) Name() string { return "stripe" }

func (s *StripeGateway) CreateCheckout(ctx context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice(stripeMethods(req.PaymentMethods)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(strings.ToLower(req.Currency)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
				UnitAmount: stripe.Int64(req.Amount),
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:        stripe.String(s.successURL),
		CancelURL:         stripe.String(s.cancelURL),
		ClientReferenceID: stripe.String(req.ContextToken),
	}
	params.Context = ctx
	params.AddMetadata("offer_id", req.OfferID)
	params.AddMetadata("scope", string(req.Scope))

	cs, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create checkout: %w", err)
	}
	return &adapter.CheckoutSession{ID: cs.ID, CheckoutURL: cs.URL}, nil
}

func (s *StripeGateway) QueryStatus(ctx context.Context, sessionID string) (adapter.PaymentOutcome, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	cs, err := s.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return "", fmt.Errorf("stripe get checkout: %w", err)
	}
	return checkoutOutcome(cs), nil
}

// checkoutOutcome folds Stripe's (status, payment_status) pair into ours.
// A completed session that is still unpaid is waiting on an async method.
func checkoutOutcome(cs *stripe.CheckoutSession) adapter.PaymentOutcome {
	switch {
	case cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return adapter.OutcomePaid
	case cs.Status == stripe.CheckoutSessionStatusExpired:
		return adapter.OutcomeExpired
	default:
		return adapter.OutcomePending
	}
}

// stripeMethods maps catalog payment methods onto Stripe method types.
// "stripe" is the catalog's generic name for card checkout.
func stripeMethods(methods []string) []string {
	out := make([]string, 0, len(methods))
	seen := map[string]bool{}
	for _, m := range methods {
		m = strings.ToLower(strings.TrimSpace(m))
		if m == "stripe" || m == "" {
			m = "card"
		}
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		out = append(out, "card")
	}
	return out
}
