package model

import (
	"strings"
	"time"

	"newspay-l402/internal/domain"
)

// Scope names what a credential (or an offer's entitlement) grants access to:
// a single category or every category.
type Scope string

// ScopeAll is the wildcard "all categories" entitlement.
const ScopeAll Scope = "*"

func (s Scope) IsAll() bool { return s == ScopeAll }

// Covers reports whether the scope grants access to category.
func (s Scope) Covers(category string) bool {
	if s == ScopeAll {
		return true
	}
	return s != "" && string(s) == category
}

type OfferType string

const (
	OfferTypeOneTime      OfferType = "one_time"
	OfferTypeSubscription OfferType = "subscription"
)

// Offer is an immutable catalog entry. Amount is in minor units.
//
// Entitlement is ScopeAll, a fixed category, or empty when the buyer picks the
// category at payment-request time.
type Offer struct {
	ID             string
	Title          string
	Description    string
	Amount         int64
	Currency       string
	Entitlement    Scope
	Duration       time.Duration // zero => single-use grant
	DurationLabel  string        // shown to clients, e.g. "1 month"
	PaymentMethods []string
}

// NewOffer validates and constructs an offer.
func NewOffer(id, title, description string, amount int64, currency string, entitlement Scope, duration time.Duration, durationLabel string, methods []string) (*Offer, error) {
	id = strings.TrimSpace(id)
	if id == "" || title == "" || amount <= 0 || len(currency) != 3 || duration < 0 {
		return nil, domain.ErrInvalidArgument
	}
	if len(methods) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &Offer{
		ID:             id,
		Title:          title,
		Description:    description,
		Amount:         amount,
		Currency:       strings.ToUpper(currency),
		Entitlement:    entitlement,
		Duration:       duration,
		DurationLabel:  durationLabel,
		PaymentMethods: append([]string(nil), methods...),
	}, nil
}

func (o *Offer) IsSubscription() bool { return o.Duration > 0 }

func (o *Offer) Type() OfferType {
	if o.IsSubscription() {
		return OfferTypeSubscription
	}
	return OfferTypeOneTime
}

// BuyerChoosesCategory is true for single-category offers without a fixed category.
func (o *Offer) BuyerChoosesCategory() bool { return o.Entitlement == "" }

// ScopeFor resolves the scope a purchase of this offer grants. category is only
// consulted for buyer's-choice offers; for fixed entitlements it must be empty
// or equal to the entitlement.
func (o *Offer) ScopeFor(category string) (Scope, error) {
	category = strings.TrimSpace(strings.ToLower(category))
	switch {
	case o.BuyerChoosesCategory():
		if category == "" {
			return "", domain.ErrInvalidCategory
		}
		return Scope(category), nil
	case category == "" || o.Entitlement.IsAll() || string(o.Entitlement) == category:
		return o.Entitlement, nil
	default:
		return "", domain.ErrInvalidCategory
	}
}
