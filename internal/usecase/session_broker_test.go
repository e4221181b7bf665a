//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"newspay-l402/internal/domain"
	"newspay-l402/internal/domain/model"
	"newspay-l402/internal/domain/ports/adapter"
)

func TestPaymentSessionBroker_Open(t *testing.T) {
	ctx := context.Background()

	t.Run("should open a pending session scoped to the chosen category", func(t *testing.T) {
		// --- Arrange ---
		deps := newL402Deps()
		pc, _ := deps.contexts.Create(ctx)

		// --- Act ---
		s, err := deps.broker.Open(ctx, pc.Token, "one_category", "Politics")

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if s.State != model.SessionStatePending || s.Scope != "politics" || s.ContextToken != pc.Token {
			t.Errorf("unexpected session: %+v", s)
		}
		if s.Amount != 100 || s.Currency != "USD" || s.Provider != "mockpay" || s.CheckoutURL == "" {
			t.Errorf("unexpected session: %+v", s)
		}
		reqs := deps.gateway.Requests()
		if len(reqs) != 1 || reqs[0].Description != "Access to politics category" || reqs[0].ContextToken != pc.Token {
			t.Errorf("unexpected checkout request: %+v", reqs)
		}
		if _, err := deps.contexts.Consume(ctx, pc.Token); !errors.Is(err, domain.ErrAlreadyConsumed) {
			t.Errorf("context should be consumed, got %v", err)
		}
		if deps.events.Count(model.EventSessionOpened) != 1 {
			t.Errorf("events = %v", deps.events.Types())
		}
	})

	t.Run("should take a fixed entitlement from the offer", func(t *testing.T) {
		deps := newL402Deps()
		pc, _ := deps.contexts.Create(ctx)
		s, err := deps.broker.Open(ctx, pc.Token, "sports_week", "")
		if err != nil || s.Scope != "sports" {
			t.Fatalf("open: %+v, %v", s, err)
		}
		pc2, _ := deps.contexts.Create(ctx)
		if _, err := deps.broker.Open(ctx, pc2.Token, "sports_week", "politics"); !errors.Is(err, domain.ErrInvalidCategory) {
			t.Fatalf("expected ErrInvalidCategory, got %v", err)
		}
	})

	t.Run("should map context failures", func(t *testing.T) {
		deps := newL402Deps()
		if _, err := deps.broker.Open(ctx, "missing", "all_categories", ""); !errors.Is(err, domain.ErrContextNotFound) {
			t.Errorf("unknown: expected ErrContextNotFound, got %v", err)
		}

		pc, _ := deps.contexts.Create(ctx)
		deps.clock.Advance(16 * time.Minute)
		_, err := deps.broker.Open(ctx, pc.Token, "all_categories", "")
		if !errors.Is(err, domain.ErrContextNotOpen) || !errors.Is(err, domain.ErrExpired) {
			t.Errorf("expired: expected ErrContextNotOpen+ErrExpired, got %v", err)
		}
	})

	t.Run("should not touch the context for catalog errors", func(t *testing.T) {
		deps := newL402Deps()
		pc, _ := deps.contexts.Create(ctx)
		if _, err := deps.broker.Open(ctx, pc.Token, "lifetime", ""); !errors.Is(err, domain.ErrOfferNotFound) {
			t.Fatalf("expected ErrOfferNotFound, got %v", err)
		}
		if _, err := deps.broker.Open(ctx, pc.Token, "one_category", "weather"); !errors.Is(err, domain.ErrInvalidCategory) {
			t.Fatalf("expected ErrInvalidCategory, got %v", err)
		}
		if got, _ := deps.contexts.Get(ctx, pc.Token); got.State != model.ContextStateOpen {
			t.Fatalf("context state = %s", got.State)
		}
	})

	t.Run("should reopen the context when the provider fails", func(t *testing.T) {
		deps := newL402Deps()
		deps.gateway.CreateCheckoutFunc = func(context.Context, adapter.CheckoutRequest) (*adapter.CheckoutSession, error) {
			return nil, errors.New("503 from provider")
		}
		pc, _ := deps.contexts.Create(ctx)
		if _, err := deps.broker.Open(ctx, pc.Token, "all_categories", ""); !errors.Is(err, domain.ErrProviderError) {
			t.Fatalf("expected ErrProviderError, got %v", err)
		}
		if got, _ := deps.contexts.Get(ctx, pc.Token); got.State != model.ContextStateOpen {
			t.Fatalf("context not reopened: %s", got.State)
		}

		deps.gateway.CreateCheckoutFunc = nil
		if _, err := deps.broker.Open(ctx, pc.Token, "all_categories", ""); err != nil {
			t.Fatalf("retry: %v", err)
		}
	})

	t.Run("should treat an empty provider session as a provider error", func(t *testing.T) {
		deps := newL402Deps()
		deps.gateway.CreateCheckoutFunc = func(context.Context, adapter.CheckoutRequest) (*adapter.CheckoutSession, error) {
			return &adapter.CheckoutSession{}, nil
		}
		pc, _ := deps.contexts.Create(ctx)
		if _, err := deps.broker.Open(ctx, pc.Token, "all_categories", ""); !errors.Is(err, domain.ErrProviderError) {
			t.Fatalf("expected ErrProviderError, got %v", err)
		}
	})

	t.Run("should reopen the context when the session cannot be stored", func(t *testing.T) {
		deps := newL402Deps()
		deps.sessions.SaveFunc = func(context.Context, *model.PaymentSession) error { return errors.New("disk full") }
		pc, _ := deps.contexts.Create(ctx)
		if _, err := deps.broker.Open(ctx, pc.Token, "all_categories", ""); err == nil {
			t.Fatal("expected error")
		}
		if got, _ := deps.contexts.Get(ctx, pc.Token); got.State != model.ContextStateOpen {
			t.Fatalf("context not reopened: %s", got.State)
		}
	})

	t.Run("should let exactly one concurrent open win", func(t *testing.T) {
		deps := newL402Deps()
		pc, _ := deps.contexts.Create(ctx)

		const n = 16
		var (
			wg       sync.WaitGroup
			wins     atomic.Int32
			notOpen  atomic.Int32
			start    = make(chan struct{})
			otherErr = make(chan error, n)
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := deps.broker.Open(ctx, pc.Token, "all_categories", "")
				switch {
				case err == nil:
					wins.Add(1)
				case errors.Is(err, domain.ErrContextNotOpen) && errors.Is(err, domain.ErrAlreadyConsumed):
					notOpen.Add(1)
				default:
					otherErr <- err
				}
			}()
		}
		close(start)
		wg.Wait()
		close(otherErr)

		for err := range otherErr {
			t.Errorf("unexpected error: %v", err)
		}
		if wins.Load() != 1 || notOpen.Load() != n-1 {
			t.Fatalf("wins=%d notOpen=%d", wins.Load(), notOpen.Load())
		}
		if got := len(deps.gateway.Requests()); got != 1 {
			t.Errorf("provider called %d times", got)
		}
	})
}

func TestPaymentSessionBroker_Resolve(t *testing.T) {
	ctx := context.Background()

	open := func(t *testing.T, deps *l402Deps, offer, category string) *model.PaymentSession {
		t.Helper()
		pc, _ := deps.contexts.Create(ctx)
		s, err := deps.broker.Open(ctx, pc.Token, offer, category)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		return s
	}

	t.Run("should stay pending while the provider is", func(t *testing.T) {
		deps := newL402Deps()
		s := open(t, deps, "one_category", "politics")
		res, err := deps.broker.Resolve(ctx, s.ID)
		if err != nil || res.Session.State != model.SessionStatePending || res.Credential != nil {
			t.Fatalf("resolve: %+v, %v", res, err)
		}
	})

	t.Run("should issue a single-use credential on payment exactly once", func(t *testing.T) {
		deps := newL402Deps()
		s := open(t, deps, "one_category", "politics")
		var calls atomic.Int32
		deps.gateway.QueryStatusFunc = func(context.Context, string) (adapter.PaymentOutcome, error) {
			calls.Add(1)
			return adapter.OutcomePaid, nil
		}

		first, err := deps.broker.Resolve(ctx, s.ID)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if !first.Issued || first.Credential == nil || first.Credential.Token == "" {
			t.Fatalf("expected an issued credential, got %+v", first)
		}
		cred := first.Credential
		if cred.Scope != "politics" || !cred.SingleUse || cred.ExpiresAt != nil || cred.SessionID != s.ID {
			t.Errorf("unexpected credential: %+v", cred)
		}
		if first.Session.CredentialID != cred.ID {
			t.Errorf("session not linked to credential: %+v", first.Session)
		}

		again, err := deps.broker.Resolve(ctx, s.ID)
		if err != nil || again.Issued || again.Session.State != model.SessionStatePaid {
			t.Fatalf("repeat resolve: %+v, %v", again, err)
		}
		if again.Credential != nil {
			t.Error("repeat resolve handed the token out again")
		}
		if again.Session.SealedToken != "" {
			t.Error("a token delivered to the poller should not be kept sealed")
		}
		if calls.Load() != 1 {
			t.Errorf("terminal session polled the provider %d times", calls.Load())
		}
		if deps.events.Count(model.EventCredentialIssued) != 1 || deps.events.Count(model.EventSessionPaid) != 1 {
			t.Errorf("events = %v", deps.events.Types())
		}
	})

	t.Run("should issue a time-boxed credential for subscriptions", func(t *testing.T) {
		deps := newL402Deps()
		res, err := deps.paid(ctx, "all_categories", "")
		if err != nil {
			t.Fatalf("paid: %v", err)
		}
		c := res.Credential
		if c.Scope != model.ScopeAll || c.SingleUse || c.ExpiresAt == nil || !c.ExpiresAt.Equal(t0.Add(30*24*time.Hour)) {
			t.Fatalf("unexpected credential: %+v", c)
		}
	})

	t.Run("should record failure without a credential and stay idempotent", func(t *testing.T) {
		deps := newL402Deps()
		s := open(t, deps, "one_category", "sports")
		deps.gateway.QueryStatusFunc = func(context.Context, string) (adapter.PaymentOutcome, error) {
			return adapter.OutcomeFailed, nil
		}
		for i := 0; i < 3; i++ {
			res, err := deps.broker.Resolve(ctx, s.ID)
			if err != nil || res.Session.State != model.SessionStateFailed || res.Credential != nil {
				t.Fatalf("resolve %d: %+v, %v", i, res, err)
			}
		}
		// a late paid webhook cannot revive it
		res, err := deps.broker.Confirm(ctx, adapter.ConfirmationSignal{SessionID: s.ID, Outcome: adapter.OutcomePaid})
		if err != nil || res.Session.State != model.SessionStateFailed || res.Credential != nil {
			t.Fatalf("confirm: %+v, %v", res, err)
		}
		if deps.events.Count(model.EventCredentialIssued) != 0 {
			t.Errorf("events = %v", deps.events.Types())
		}
	})

	t.Run("should surface provider errors without changing state", func(t *testing.T) {
		deps := newL402Deps()
		s := open(t, deps, "one_category", "sports")
		deps.gateway.QueryStatusFunc = func(context.Context, string) (adapter.PaymentOutcome, error) {
			return "", errors.New("timeout")
		}
		if _, err := deps.broker.Resolve(ctx, s.ID); !errors.Is(err, domain.ErrProviderError) {
			t.Fatalf("expected ErrProviderError, got %v", err)
		}
		if got, _ := deps.broker.Get(ctx, s.ID); got.State != model.SessionStatePending {
			t.Fatalf("state = %s", got.State)
		}
	})

	t.Run("should expire sessions pending past the timeout", func(t *testing.T) {
		deps := newL402Deps()
		s := open(t, deps, "one_category", "sports")
		deps.clock.Advance(25 * time.Hour)
		deps.gateway.QueryStatusFunc = func(context.Context, string) (adapter.PaymentOutcome, error) {
			return "", errors.New("session gone")
		}
		res, err := deps.broker.Resolve(ctx, s.ID)
		if err != nil || res.Session.State != model.SessionStateExpired {
			t.Fatalf("resolve: %+v, %v", res, err)
		}
	})

	t.Run("should report unknown sessions", func(t *testing.T) {
		deps := newL402Deps()
		for _, id := range []string{"", "cs_missing"} {
			if _, err := deps.broker.Resolve(ctx, id); !errors.Is(err, domain.ErrSessionNotFound) {
				t.Errorf("resolve %q: expected ErrSessionNotFound, got %v", id, err)
			}
		}
	})

	t.Run("should issue once under concurrent webhook and poll", func(t *testing.T) {
		deps := newL402Deps()
		s := open(t, deps, "all_categories", "")
		deps.gateway.QueryStatusFunc = func(context.Context, string) (adapter.PaymentOutcome, error) {
			return adapter.OutcomePaid, nil
		}

		var (
			wg     sync.WaitGroup
			issued atomic.Int32
		)
		for i := 0; i < 8; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				if res, err := deps.broker.Resolve(ctx, s.ID); err == nil && res.Issued {
					issued.Add(1)
				}
			}()
			go func() {
				defer wg.Done()
				sig := adapter.ConfirmationSignal{SessionID: s.ID, Outcome: adapter.OutcomePaid}
				if res, err := deps.broker.Confirm(ctx, sig); err == nil && res.Issued {
					issued.Add(1)
				}
			}()
		}
		wg.Wait()
		if issued.Load() != 1 {
			t.Fatalf("issued %d credentials", issued.Load())
		}
	})

	t.Run("should let exactly one poller collect a webhook-issued token", func(t *testing.T) {
		deps := newL402Deps()
		res, err := deps.paid(ctx, "all_categories", "")
		if err != nil {
			t.Fatalf("paid: %v", err)
		}
		if res.Credential == nil || res.Credential.Token != "" || res.Session.SealedToken == "" {
			t.Fatalf("webhook path should seal the token, got %+v", res)
		}

		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			tokens []string
		)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				got, err := deps.broker.Resolve(ctx, res.Session.ID)
				if err != nil {
					t.Errorf("resolve: %v", err)
					return
				}
				if got.Credential != nil {
					mu.Lock()
					tokens = append(tokens, got.Credential.Token)
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if len(tokens) != 1 || tokens[0] == "" {
			t.Fatalf("collected %d tokens", len(tokens))
		}
		if d := deps.gate.Verify(ctx, tokens[0], "sports"); !d.Allowed {
			t.Errorf("collected token rejected: %+v", d)
		}
		stored, _ := deps.broker.Get(ctx, res.Session.ID)
		if stored.SealedToken != "" || stored.CredentialID != res.Session.CredentialID {
			t.Errorf("stored session: %+v", stored)
		}
	})

	t.Run("should reconcile without handing the token out", func(t *testing.T) {
		deps := newL402Deps()
		s := open(t, deps, "one_category", "politics")
		deps.gateway.QueryStatusFunc = func(context.Context, string) (adapter.PaymentOutcome, error) {
			return adapter.OutcomePaid, nil
		}
		got, err := deps.broker.Reconcile(ctx, s.ID)
		if err != nil || got.State != model.SessionStatePaid || got.SealedToken == "" {
			t.Fatalf("reconcile: %+v, %v", got, err)
		}
		res, err := deps.broker.Resolve(ctx, s.ID)
		if err != nil || res.Issued || res.Credential == nil || res.Credential.Token == "" {
			t.Fatalf("buyer pickup: %+v, %v", res, err)
		}
	})

	t.Run("should list stale pending sessions", func(t *testing.T) {
		deps := newL402Deps()
		old := open(t, deps, "one_category", "sports")
		deps.clock.Advance(10 * time.Minute)
		_ = open(t, deps, "one_category", "politics")

		stale, err := deps.broker.ListStale(ctx, 5*time.Minute, 10)
		if err != nil || len(stale) != 1 || stale[0].ID != old.ID {
			t.Fatalf("stale: %v, %v", stale, err)
		}
	})
}

func TestPaymentSessionBroker_CredentialFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("should fail the resolve when the credential cannot be stored", func(t *testing.T) {
		deps := newL402Deps()
		deps.creds.SaveFunc = func(context.Context, *model.BearerCredential) error { return errors.New("write failed") }
		pc, _ := deps.contexts.Create(ctx)
		s, err := deps.broker.Open(ctx, pc.Token, "one_category", "politics")
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		deps.gateway.QueryStatusFunc = func(context.Context, string) (adapter.PaymentOutcome, error) {
			return adapter.OutcomePaid, nil
		}
		if _, err := deps.broker.Resolve(ctx, s.ID); err == nil {
			t.Fatal("expected error")
		}
		stored, _ := deps.broker.Get(ctx, s.ID)
		if stored.State != model.SessionStatePaid || stored.CredentialID != "" {
			t.Fatalf("stored session: %+v", stored)
		}

		t.Run("should issue on the next resolve once storage recovers", func(t *testing.T) {
			deps.creds.SaveFunc = nil
			res, err := deps.broker.Resolve(ctx, s.ID)
			if err != nil || !res.Issued || res.Credential == nil || res.Credential.Token == "" {
				t.Fatalf("retry: %+v, %v", res, err)
			}
			if res.Session.CredentialID != res.Credential.ID {
				t.Errorf("session not linked: %+v", res.Session)
			}
			again, err := deps.broker.Resolve(ctx, s.ID)
			if err != nil || again.Issued || again.Credential != nil {
				t.Fatalf("repeat: %+v, %v", again, err)
			}
			if _, err := deps.broker.Confirm(ctx, adapter.ConfirmationSignal{SessionID: s.ID, Outcome: adapter.OutcomePaid}); err != nil {
				t.Fatalf("redelivered webhook: %v", err)
			}
			if n := deps.events.Count(model.EventCredentialIssued); n != 1 {
				t.Errorf("credential_issued events = %d", n)
			}
			if n := deps.events.Count(model.EventSessionPaid); n != 1 {
				t.Errorf("session_paid events = %d", n)
			}
		})
	})

	t.Run("should seal a credential owed to a redelivered webhook", func(t *testing.T) {
		deps := newL402Deps()
		deps.creds.SaveFunc = func(context.Context, *model.BearerCredential) error { return errors.New("write failed") }
		pc, _ := deps.contexts.Create(ctx)
		s, err := deps.broker.Open(ctx, pc.Token, "all_categories", "")
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		sig := adapter.ConfirmationSignal{SessionID: s.ID, Outcome: adapter.OutcomePaid}
		if _, err := deps.broker.Confirm(ctx, sig); err == nil {
			t.Fatal("expected error")
		}

		deps.creds.SaveFunc = nil
		res, err := deps.broker.Confirm(ctx, sig)
		if err != nil || !res.Issued || res.Session.SealedToken == "" {
			t.Fatalf("redelivery: %+v, %v", res, err)
		}
		got, err := deps.broker.Resolve(ctx, s.ID)
		if err != nil || got.Credential == nil || got.Credential.ID != res.Session.CredentialID {
			t.Fatalf("pickup: %+v, %v", got, err)
		}
	})

	t.Run("should degrade to no token when pickup lookup fails", func(t *testing.T) {
		deps := newL402Deps()
		res, err := deps.paid(ctx, "one_category", "politics")
		if err != nil {
			t.Fatalf("paid: %v", err)
		}
		deps.creds.FindByTokenHashFunc = func(context.Context, string) (*model.BearerCredential, error) {
			return nil, domain.ErrNotFound
		}
		again, err := deps.broker.Resolve(ctx, res.Session.ID)
		if err != nil || again.Session.State != model.SessionStatePaid || again.Credential != nil {
			t.Fatalf("resolve: %+v, %v", again, err)
		}
	})
}
