//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	t.Run("should apply defaults to an empty document", func(t *testing.T) {
		cfg, err := Parse([]byte("{}"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.Server.Addr != ":8080" || cfg.Server.Language != "en" {
			t.Errorf("addr = %q language = %q", cfg.Server.Addr, cfg.Server.Language)
		}
		if cfg.L402.Version != "0.2.3" {
			t.Errorf("version = %q", cfg.L402.Version)
		}
		if cfg.L402.ContextTTL != 15*time.Minute {
			t.Errorf("context ttl = %v", cfg.L402.ContextTTL)
		}
		if len(cfg.Categories) != 6 {
			t.Errorf("expected 6 default categories, got %v", cfg.Categories)
		}
		if len(cfg.Offers) != 2 || cfg.Offers[1].Entitlement != "*" {
			t.Errorf("unexpected default offers: %+v", cfg.Offers)
		}
		if cfg.Storage.Driver != "memory" || cfg.Payment.Provider != "noop" {
			t.Errorf("driver=%q provider=%q", cfg.Storage.Driver, cfg.Payment.Provider)
		}
		if !strings.HasPrefix(cfg.Payment.Stripe.SuccessURL, "http://localhost:8080/payment/success") {
			t.Errorf("success url = %q", cfg.Payment.Stripe.SuccessURL)
		}
	})

	t.Run("should decode durations and offers", func(t *testing.T) {
		doc := `
l402:
  public_url: https://news.example.com/
  context_ttl: 5m
categories: [politics, sports]
offers:
  - id: sports_week
    title: Sports week
    amount: 250
    currency: eur
    entitlement: Sports
    duration: 168h
    duration_label: 1 week
    payment_methods: [stripe]
`
		cfg, err := Parse([]byte(doc))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.L402.PublicURL != "https://news.example.com" {
			t.Errorf("public url = %q", cfg.L402.PublicURL)
		}
		if cfg.L402.ContextTTL != 5*time.Minute {
			t.Errorf("context ttl = %v", cfg.L402.ContextTTL)
		}
		off, err := cfg.Offers[0].Offer()
		if err != nil {
			t.Fatalf("offer: %v", err)
		}
		if off.Entitlement != "sports" || off.Currency != "EUR" || !off.IsSubscription() {
			t.Errorf("unexpected offer: %+v", off)
		}
	})

	t.Run("should reject invalid settings", func(t *testing.T) {
		cases := map[string]string{
			"unknown driver":   "storage: {driver: sqlite}",
			"durable no db":    "storage: {driver: durable}\nredis: {url: redis://x}",
			"durable no redis": "storage: {driver: durable}\ndatabase: {url: postgres://x}",
			"stripe no key":    "payment: {provider: stripe}",
			"unknown provider": "payment: {provider: paypal}",
			"bad offer":        "offers: [{id: x, title: X, amount: 0, currency: USD, payment_methods: [stripe]}]",
			"duplicate offer":  "offers: [{id: x, title: X, amount: 1, currency: USD, payment_methods: [stripe]}, {id: x, title: Y, amount: 1, currency: USD, payment_methods: [stripe]}]",
		}
		for name, doc := range cases {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Errorf("%s: expected error", name)
			}
		}
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("should read file and set runtime flags", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("log: {level: debug}\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadConfig(path, true)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !cfg.Runtime.Dev || cfg.Log.Level != "debug" {
			t.Errorf("unexpected config: %+v", cfg)
		}
	})

	t.Run("should fail for a missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), false); err == nil {
			t.Fatal("expected error")
		}
	})
}
