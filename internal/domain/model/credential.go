package model

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"newspay-l402/internal/domain"
)

const tokenBytes = 32

// BearerCredential is the access artifact handed to a caller after payment.
// Only TokenHash is persisted; Token is populated on the issuing call alone.
type BearerCredential struct {
	ID         string     `json:"id"`
	Token      string     `json:"-"`
	TokenHash  string     `json:"token_hash"`
	Scope      Scope      `json:"scope"`
	OfferID    string     `json:"offer_id"`
	SessionID  string     `json:"session_id"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	SingleUse  bool       `json:"single_use"`
	Consumed   bool       `json:"consumed"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}

// NewBearerCredential mints a credential for offer with the given scope.
// A zero offer duration yields a single-use credential without expiry.
func NewBearerCredential(offer *Offer, scope Scope, sessionID string, now time.Time) (*BearerCredential, error) {
	if offer == nil || scope == "" {
		return nil, domain.ErrInvalidArgument
	}
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("read entropy: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	c := &BearerCredential{
		ID:        ulid.Make().String(),
		Token:     token,
		TokenHash: HashToken(token),
		Scope:     scope,
		OfferID:   offer.ID,
		SessionID: sessionID,
		IssuedAt:  now,
	}
	if offer.IsSubscription() {
		exp := now.Add(offer.Duration)
		c.ExpiresAt = &exp
	} else {
		c.SingleUse = true
	}
	return c, nil
}

// HashToken is the lookup key stores use for a bearer token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Validate checks the fields every stored credential must carry.
func (c *BearerCredential) Validate() error {
	if c == nil || c.ID == "" || c.TokenHash == "" || c.Scope == "" || c.IssuedAt.IsZero() {
		return domain.ErrCorruptCredential
	}
	if !c.SingleUse && c.ExpiresAt == nil {
		return domain.ErrCorruptCredential
	}
	return nil
}

// Check runs expiry, consumption and scope rules without mutating the record.
func (c *BearerCredential) Check(now time.Time, category string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return domain.ErrExpired
	}
	if c.SingleUse && c.Consumed {
		return domain.ErrAlreadyConsumed
	}
	if !c.Scope.Covers(category) {
		return domain.ErrScopeMismatch
	}
	return nil
}
