package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/oklog/ulid/v2"

	"newspay-l402/internal/domain"
	"newspay-l402/internal/domain/ports/adapter"
)

var (
	_ adapter.PaymentGateway  = (*NoopPaymentGateway)(nil)
	_ adapter.WebhookVerifier = (*NoopWebhook)(nil)
)

// NoopPaymentGateway is an in-memory provider for development, the demo and
// tests. Sessions stay pending until Settle is called.
type NoopPaymentGateway struct {
	mu       sync.Mutex
	baseURL  string
	sessions map[string]adapter.PaymentOutcome
	failWith error
}

// NewNoopPaymentGateway builds checkout URLs under baseURL (the public URL of
// this service) so the success page can be reached in a browser.
func NewNoopPaymentGateway(baseURL string) *NoopPaymentGateway {
	return &NoopPaymentGateway{
		baseURL:  baseURL,
		sessions: make(map[string]adapter.PaymentOutcome),
	}
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

func (g *NoopPaymentGateway) CreateCheckout(_ context.Context, req adapter.CheckoutRequest) (*adapter.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return nil, g.failWith
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("noop: amount must be positive: %w", domain.ErrInvalidArgument)
	}
	id := "noop_cs_" + ulid.Make().String()
	g.sessions[id] = adapter.OutcomePending
	return &adapter.CheckoutSession{
		ID:          id,
		CheckoutURL: g.baseURL + "/payment/success?session_id=" + url.QueryEscape(id),
	}, nil
}

func (g *NoopPaymentGateway) QueryStatus(_ context.Context, sessionID string) (adapter.PaymentOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failWith != nil {
		return "", g.failWith
	}
	o, ok := g.sessions[sessionID]
	if !ok {
		return "", fmt.Errorf("noop: session %s: %w", sessionID, domain.ErrNotFound)
	}
	return o, nil
}

// Settle records the buyer's outcome, as the hosted checkout would.
func (g *NoopPaymentGateway) Settle(sessionID string, outcome adapter.PaymentOutcome) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.sessions[sessionID]; !ok {
		return domain.ErrNotFound
	}
	g.sessions[sessionID] = outcome
	return nil
}

// FailWith makes every call return err until reset with nil.
func (g *NoopPaymentGateway) FailWith(err error) {
	g.mu.Lock()
	g.failWith = err
	g.mu.Unlock()
}

// NoopWebhook accepts unsigned {"session_id","outcome"} bodies. Only mount it
// in dev mode.
type NoopWebhook struct {
	gw *NoopPaymentGateway
}

func NewNoopWebhook(gw *NoopPaymentGateway) *NoopWebhook { return &NoopWebhook{gw: gw} }

func (w *NoopWebhook) Provider() string { return "noop" }

func (w *NoopWebhook) Parse(payload []byte, _ string) (adapter.ConfirmationSignal, bool, error) {
	var body struct {
		SessionID string `json:"session_id"`
		Outcome   string `json:"outcome"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return adapter.ConfirmationSignal{}, false, fmt.Errorf("noop webhook: %w", domain.ErrInvalidArgument)
	}
	sig := adapter.ConfirmationSignal{SessionID: body.SessionID, Outcome: adapter.PaymentOutcome(body.Outcome)}
	switch sig.Outcome {
	case adapter.OutcomePaid, adapter.OutcomeFailed, adapter.OutcomeExpired:
	default:
		return adapter.ConfirmationSignal{}, false, nil
	}
	if body.SessionID == "" {
		return adapter.ConfirmationSignal{}, false, fmt.Errorf("noop webhook: missing session_id: %w", domain.ErrInvalidArgument)
	}
	// Keep polling consistent with what was pushed.
	_ = w.gw.Settle(sig.SessionID, sig.Outcome)
	return sig, true, nil
}
