package model

import "time"

type SessionState string

const (
	SessionStatePending SessionState = "pending"
	SessionStatePaid    SessionState = "paid"
	SessionStateFailed  SessionState = "failed"
	SessionStateExpired SessionState = "expired"
)

func (s SessionState) IsTerminal() bool {
	return s == SessionStatePaid || s == SessionStateFailed || s == SessionStateExpired
}

// PaymentSession is one attempt to pay for one offer under one context.
// ID is assigned by the payment provider.
type PaymentSession struct {
	ID           string       `json:"session_id"`
	ContextToken string       `json:"context_token"`
	OfferID      string       `json:"offer_id"`
	Scope        Scope        `json:"scope"`
	State        SessionState `json:"state"`
	CheckoutURL  string       `json:"checkout_reference"`
	Provider     string       `json:"provider"`
	Amount       int64        `json:"amount"`
	Currency     string       `json:"currency"`
	CredentialID string       `json:"credential_id,omitempty"` // audit link, set once PAID
	SealedToken  string       `json:"sealed_token,omitempty"`  // encrypted bearer token for pickup
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	ResolvedAt   *time.Time   `json:"resolved_at,omitempty"`
}

// NewPendingSession links a provider session to its context and offer.
func NewPendingSession(id, contextToken string, offer *Offer, scope Scope, checkoutURL, provider string, now time.Time) *PaymentSession {
	return &PaymentSession{
		ID:           id,
		ContextToken: contextToken,
		OfferID:      offer.ID,
		Scope:        scope,
		State:        SessionStatePending,
		CheckoutURL:  checkoutURL,
		Provider:     provider,
		Amount:       offer.Amount,
		Currency:     offer.Currency,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// TransitionFromPending applies a terminal transition in place and reports
// whether it happened.
func (s *PaymentSession) TransitionFromPending(to SessionState, at time.Time) bool {
	if s.State != SessionStatePending || !to.IsTerminal() {
		return false
	}
	s.State = to
	s.UpdatedAt = at
	s.ResolvedAt = &at
	return true
}
