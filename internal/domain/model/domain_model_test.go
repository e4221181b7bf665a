//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"newspay-l402/internal/domain"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// --- Offer Tests ---

func TestNewOffer(t *testing.T) {
	t.Run("should create an offer and normalise the currency", func(t *testing.T) {
		o, err := NewOffer(" one_category ", "Single Category Access", "", 100, "usd", "", 0, "", []string{"stripe"})
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if o.ID != "one_category" || o.Currency != "USD" {
			t.Errorf("unexpected offer: %+v", o)
		}
		if o.IsSubscription() || o.Type() != OfferTypeOneTime || !o.BuyerChoosesCategory() {
			t.Errorf("expected a buyer's-choice one-time offer: %+v", o)
		}
	})

	t.Run("should fail with invalid arguments", func(t *testing.T) {
		cases := map[string]func() (*Offer, error){
			"empty id":     func() (*Offer, error) { return NewOffer("", "t", "", 1, "USD", "", 0, "", []string{"stripe"}) },
			"zero amount":  func() (*Offer, error) { return NewOffer("a", "t", "", 0, "USD", "", 0, "", []string{"stripe"}) },
			"bad currency": func() (*Offer, error) { return NewOffer("a", "t", "", 1, "US", "", 0, "", []string{"stripe"}) },
			"no methods":   func() (*Offer, error) { return NewOffer("a", "t", "", 1, "USD", "", 0, "", nil) },
			"negative term": func() (*Offer, error) {
				return NewOffer("a", "t", "", 1, "USD", "", -time.Hour, "", []string{"stripe"})
			},
		}
		for name, build := range cases {
			if o, err := build(); !errors.Is(err, domain.ErrInvalidArgument) || o != nil {
				t.Errorf("%s: expected ErrInvalidArgument, got %v", name, err)
			}
		}
	})
}

func TestOfferScopeFor(t *testing.T) {
	choice, _ := NewOffer("one", "One", "", 100, "USD", "", 0, "", []string{"stripe"})
	all, _ := NewOffer("all", "All", "", 500, "USD", ScopeAll, 720*time.Hour, "1 month", []string{"stripe"})
	fixed, _ := NewOffer("sports", "Sports", "", 250, "USD", "sports", 0, "", []string{"stripe"})

	tests := []struct {
		name     string
		offer    *Offer
		category string
		want     Scope
		wantErr  bool
	}{
		{"buyer picks", choice, " Politics ", "politics", false},
		{"buyer must pick", choice, "", "", true},
		{"all ignores category", all, "sports", ScopeAll, false},
		{"fixed without category", fixed, "", "sports", false},
		{"fixed matching", fixed, "SPORTS", "sports", false},
		{"fixed mismatch", fixed, "politics", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.offer.ScopeFor(tt.category)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrInvalidCategory) {
					t.Fatalf("expected ErrInvalidCategory, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("got %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}

func TestScopeCovers(t *testing.T) {
	if !ScopeAll.Covers("economy") || !Scope("sports").Covers("sports") {
		t.Error("expected coverage")
	}
	if Scope("sports").Covers("politics") || Scope("").Covers("") {
		t.Error("unexpected coverage")
	}
}

// --- Payment Context Tests ---

func TestPaymentContext(t *testing.T) {
	t.Run("should consume an open context once", func(t *testing.T) {
		c, err := NewPaymentContext(now, 15*time.Minute)
		if err != nil || c.Token == "" || c.State != ContextStateOpen {
			t.Fatalf("new: %+v, %v", c, err)
		}
		if err := c.Consume(now); err != nil {
			t.Fatalf("consume: %v", err)
		}
		if c.ConsumedAt == nil || !c.ConsumedAt.Equal(now) {
			t.Errorf("consumed at %v", c.ConsumedAt)
		}
		if err := c.Consume(now); !errors.Is(err, domain.ErrAlreadyConsumed) {
			t.Fatalf("expected ErrAlreadyConsumed, got %v", err)
		}
	})

	t.Run("should expire at the deadline", func(t *testing.T) {
		c, _ := NewPaymentContext(now, time.Minute)
		if c.EffectiveState(now.Add(59*time.Second)) != ContextStateOpen {
			t.Error("expired early")
		}
		if err := c.Consume(now.Add(time.Minute)); !errors.Is(err, domain.ErrExpired) {
			t.Fatalf("expected ErrExpired, got %v", err)
		}
		if c.State != ContextStateExpired {
			t.Errorf("state = %s", c.State)
		}
	})

	t.Run("should reject a non-positive ttl", func(t *testing.T) {
		if _, err := NewPaymentContext(now, 0); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

// --- Payment Session Tests ---

func TestPaymentSessionTransition(t *testing.T) {
	offer, _ := NewOffer("one", "One", "", 100, "USD", "", 0, "", []string{"stripe"})
	s := NewPendingSession("cs_1", "ctx", offer, "politics", "https://pay/cs_1", "stripe", now)
	if s.Amount != 100 || s.Currency != "USD" || s.State != SessionStatePending {
		t.Fatalf("session: %+v", s)
	}
	if s.TransitionFromPending(SessionStatePending, now) {
		t.Fatal("pending is not a terminal target")
	}
	later := now.Add(time.Minute)
	if !s.TransitionFromPending(SessionStatePaid, later) || s.ResolvedAt == nil || !s.ResolvedAt.Equal(later) {
		t.Fatalf("transition: %+v", s)
	}
	if s.TransitionFromPending(SessionStateFailed, later) || s.State != SessionStatePaid {
		t.Fatal("terminal state changed")
	}
	if SessionEventType(SessionStateExpired) != EventSessionExpired {
		t.Error("event mapping")
	}
}

// --- Bearer Credential Tests ---

func TestBearerCredential(t *testing.T) {
	one, _ := NewOffer("one", "One", "", 100, "USD", "", 0, "", []string{"stripe"})
	month, _ := NewOffer("all", "All", "", 500, "USD", ScopeAll, 720*time.Hour, "1 month", []string{"stripe"})

	t.Run("should mint a single-use credential for one-time offers", func(t *testing.T) {
		c, err := NewBearerCredential(one, "politics", "cs_1", now)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if !c.SingleUse || c.ExpiresAt != nil || c.TokenHash != HashToken(c.Token) {
			t.Errorf("credential: %+v", c)
		}
		if err := c.Check(now.Add(365*24*time.Hour), "politics"); err != nil {
			t.Errorf("single-use credential should not expire: %v", err)
		}
		c.Consumed = true
		if err := c.Check(now, "politics"); !errors.Is(err, domain.ErrAlreadyConsumed) {
			t.Errorf("expected ErrAlreadyConsumed, got %v", err)
		}
	})

	t.Run("should mint a time-boxed credential for subscriptions", func(t *testing.T) {
		c, _ := NewBearerCredential(month, ScopeAll, "cs_2", now)
		if c.SingleUse || c.ExpiresAt == nil {
			t.Fatalf("credential: %+v", c)
		}
		if err := c.Check(*c.ExpiresAt, "sports"); err != nil {
			t.Errorf("at expiry: %v", err)
		}
		if err := c.Check(c.ExpiresAt.Add(time.Nanosecond), "sports"); !errors.Is(err, domain.ErrExpired) {
			t.Errorf("expected ErrExpired, got %v", err)
		}
	})

	t.Run("should report scope mismatches and corrupt records", func(t *testing.T) {
		c, _ := NewBearerCredential(one, "politics", "cs_3", now)
		if err := c.Check(now, "sports"); !errors.Is(err, domain.ErrScopeMismatch) {
			t.Errorf("expected ErrScopeMismatch, got %v", err)
		}
		c.SingleUse = false
		if err := c.Check(now, "politics"); !errors.Is(err, domain.ErrCorruptCredential) {
			t.Errorf("expected ErrCorruptCredential, got %v", err)
		}
	})
}
