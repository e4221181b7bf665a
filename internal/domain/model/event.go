package model

import "time"

type EventType string

const (
	EventSessionOpened      EventType = "payment.session.opened"
	EventSessionPaid        EventType = "payment.session.paid"
	EventSessionFailed      EventType = "payment.session.failed"
	EventSessionExpired     EventType = "payment.session.expired"
	EventCredentialIssued   EventType = "credential.issued"
	EventCredentialConsumed EventType = "credential.consumed"
)

// PaymentEvent is published on every payment-session and credential state change.
type PaymentEvent struct {
	Type         EventType `json:"type"`
	SessionID    string    `json:"session_id,omitempty"`
	OfferID      string    `json:"offer_id,omitempty"`
	CredentialID string    `json:"credential_id,omitempty"`
	Scope        Scope     `json:"scope,omitempty"`
	Amount       int64     `json:"amount,omitempty"`
	Currency     string    `json:"currency,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// SessionEventType maps a terminal session state to its event type.
func SessionEventType(s SessionState) EventType {
	switch s {
	case SessionStatePaid:
		return EventSessionPaid
	case SessionStateFailed:
		return EventSessionFailed
	case SessionStateExpired:
		return EventSessionExpired
	default:
		return EventSessionOpened
	}
}
