// Package storetest holds the behavioural checks every store backend must
// pass. Backend test files call these with a fresh repository per run.
package storetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"newspay-l402/internal/domain"
	"newspay-l402/internal/domain/model"
	"newspay-l402/internal/domain/ports/repository"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func PaymentContexts(t *testing.T, newRepo func(t *testing.T) repository.PaymentContextRepository) {
	ctx := context.Background()

	t.Run("should consume an open context exactly once", func(t *testing.T) {
		repo := newRepo(t)
		c, _ := model.NewPaymentContext(base, 15*time.Minute)
		if err := repo.Save(ctx, c); err != nil {
			t.Fatalf("save: %v", err)
		}

		got, err := repo.Consume(ctx, c.Token, base.Add(time.Minute))
		if err != nil {
			t.Fatalf("first consume: %v", err)
		}
		if got.State != model.ContextStateConsumed || got.ConsumedAt == nil {
			t.Errorf("unexpected state after consume: %+v", got)
		}
		if _, err := repo.Consume(ctx, c.Token, base.Add(2*time.Minute)); !errors.Is(err, domain.ErrAlreadyConsumed) {
			t.Errorf("second consume: want ErrAlreadyConsumed, got %v", err)
		}
	})

	t.Run("should report unknown tokens as not found", func(t *testing.T) {
		repo := newRepo(t)
		if _, err := repo.Consume(ctx, "missing", base); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("consume: want ErrNotFound, got %v", err)
		}
		if _, err := repo.FindByToken(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("find: want ErrNotFound, got %v", err)
		}
	})

	t.Run("should expire lazily at the deadline", func(t *testing.T) {
		repo := newRepo(t)
		c, _ := model.NewPaymentContext(base, time.Minute)
		_ = repo.Save(ctx, c)
		if _, err := repo.Consume(ctx, c.Token, base.Add(time.Minute)); !errors.Is(err, domain.ErrExpired) {
			t.Errorf("want ErrExpired, got %v", err)
		}
	})

	t.Run("should let exactly one concurrent consumer win", func(t *testing.T) {
		repo := newRepo(t)
		c, _ := model.NewPaymentContext(base, time.Hour)
		_ = repo.Save(ctx, c)

		const n = 16
		var wins, replays int32
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				_, err := repo.Consume(ctx, c.Token, base.Add(time.Second))
				switch {
				case err == nil:
					atomic.AddInt32(&wins, 1)
				case errors.Is(err, domain.ErrAlreadyConsumed):
					atomic.AddInt32(&replays, 1)
				}
			}()
		}
		wg.Wait()
		if wins != 1 || replays != n-1 {
			t.Errorf("wins=%d replays=%d", wins, replays)
		}
	})

	t.Run("should reopen a consumed context", func(t *testing.T) {
		repo := newRepo(t)
		c, _ := model.NewPaymentContext(base, time.Hour)
		_ = repo.Save(ctx, c)
		_, _ = repo.Consume(ctx, c.Token, base)

		if err := repo.Reopen(ctx, c.Token); err != nil {
			t.Fatalf("reopen: %v", err)
		}
		if _, err := repo.Consume(ctx, c.Token, base.Add(time.Second)); err != nil {
			t.Errorf("consume after reopen: %v", err)
		}
		if err := repo.Reopen(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("reopen missing: want ErrNotFound, got %v", err)
		}
	})

	t.Run("should sweep contexts past the cutoff", func(t *testing.T) {
		repo := newRepo(t)
		old, _ := model.NewPaymentContext(base, time.Minute)
		fresh, _ := model.NewPaymentContext(base.Add(time.Hour), time.Minute)
		_ = repo.Save(ctx, old)
		_ = repo.Save(ctx, fresh)

		n, err := repo.SweepExpired(ctx, base.Add(30*time.Minute))
		if err != nil {
			t.Fatalf("sweep: %v", err)
		}
		if n != 1 {
			t.Errorf("swept %d, want 1", n)
		}
		if _, err := repo.FindByToken(ctx, old.Token); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("old context still present: %v", err)
		}
		if _, err := repo.FindByToken(ctx, fresh.Token); err != nil {
			t.Errorf("fresh context gone: %v", err)
		}
	})
}

func newSession(id string, at time.Time) *model.PaymentSession {
	offer, _ := model.NewOffer("one_category", "Single", "", 100, "USD", "", 0, "", []string{"stripe"})
	return model.NewPendingSession(id, "ctx-"+id, offer, "politics", "https://pay.example/"+id, "noop", at)
}

func PaymentSessions(t *testing.T, newRepo func(t *testing.T) repository.PaymentSessionRepository) {
	ctx := context.Background()

	t.Run("should save and load a session", func(t *testing.T) {
		repo := newRepo(t)
		s := newSession("cs_1", base)
		if err := repo.Save(ctx, s); err != nil {
			t.Fatalf("save: %v", err)
		}
		if err := repo.Save(ctx, s); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("duplicate save: want ErrAlreadyExists, got %v", err)
		}
		got, err := repo.FindByID(ctx, "cs_1")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got.State != model.SessionStatePending || got.Scope != "politics" || got.Amount != 100 || got.ContextToken != "ctx-cs_1" {
			t.Errorf("unexpected session: %+v", got)
		}
		if _, err := repo.FindByID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("find missing: want ErrNotFound, got %v", err)
		}
	})

	t.Run("should transition out of pending once", func(t *testing.T) {
		repo := newRepo(t)
		_ = repo.Save(ctx, newSession("cs_2", base))

		const n = 8
		var wins int32
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				if ok, err := repo.TransitionFromPending(ctx, "cs_2", model.SessionStatePaid, base.Add(time.Minute)); err == nil && ok {
					atomic.AddInt32(&wins, 1)
				}
			}()
		}
		wg.Wait()
		if wins != 1 {
			t.Fatalf("wins=%d, want 1", wins)
		}
		ok, err := repo.TransitionFromPending(ctx, "cs_2", model.SessionStateFailed, base.Add(2*time.Minute))
		if err != nil || ok {
			t.Errorf("terminal session moved again: ok=%v err=%v", ok, err)
		}
		got, _ := repo.FindByID(ctx, "cs_2")
		if got.State != model.SessionStatePaid || got.ResolvedAt == nil {
			t.Errorf("unexpected session: %+v", got)
		}
	})

	t.Run("should attach the credential once", func(t *testing.T) {
		repo := newRepo(t)
		_ = repo.Save(ctx, newSession("cs_3", base))
		ok, err := repo.AttachCredential(ctx, "cs_3", "01HCRED", "c2VhbGVk")
		if err != nil || !ok {
			t.Fatalf("attach credential: ok=%v err=%v", ok, err)
		}
		ok, err = repo.AttachCredential(ctx, "cs_3", "01HOTHER", "b3RoZXI=")
		if err != nil || ok {
			t.Errorf("second attach: ok=%v err=%v", ok, err)
		}
		got, _ := repo.FindByID(ctx, "cs_3")
		if got.CredentialID != "01HCRED" || got.SealedToken != "c2VhbGVk" {
			t.Errorf("credential link = %q / %q", got.CredentialID, got.SealedToken)
		}
		if _, err := repo.AttachCredential(ctx, "cs_missing", "01HCRED", ""); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should hand the sealed token to one claimer", func(t *testing.T) {
		repo := newRepo(t)
		_ = repo.Save(ctx, newSession("cs_4", base))
		_, _ = repo.AttachCredential(ctx, "cs_4", "01HCRED", "c2VhbGVk")

		const n = 8
		var (
			wins int32
			wg   sync.WaitGroup
		)
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				sealed, err := repo.ClaimSealedToken(ctx, "cs_4")
				if err == nil && sealed != "" {
					if sealed != "c2VhbGVk" {
						t.Errorf("claimed %q", sealed)
					}
					atomic.AddInt32(&wins, 1)
				}
			}()
		}
		wg.Wait()
		if wins != 1 {
			t.Fatalf("wins=%d, want 1", wins)
		}
		got, _ := repo.FindByID(ctx, "cs_4")
		if got.SealedToken != "" || got.CredentialID != "01HCRED" {
			t.Errorf("after claim: %q / %q", got.CredentialID, got.SealedToken)
		}
		if _, err := repo.ClaimSealedToken(ctx, "cs_missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should list stale pending sessions oldest first", func(t *testing.T) {
		repo := newRepo(t)
		_ = repo.Save(ctx, newSession("cs_new", base.Add(50*time.Minute)))
		_ = repo.Save(ctx, newSession("cs_old", base))
		_ = repo.Save(ctx, newSession("cs_mid", base.Add(10*time.Minute)))
		_ = repo.Save(ctx, newSession("cs_done", base))
		_, _ = repo.TransitionFromPending(ctx, "cs_done", model.SessionStateFailed, base)

		got, err := repo.ListPendingOlderThan(ctx, base.Add(30*time.Minute), 10)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(got) != 2 || got[0].ID != "cs_old" || got[1].ID != "cs_mid" {
			t.Errorf("unexpected stale list: %v", ids(got))
		}
		got, _ = repo.ListPendingOlderThan(ctx, base.Add(30*time.Minute), 1)
		if len(got) != 1 {
			t.Errorf("limit ignored: %v", ids(got))
		}
	})
}

func ids(ss []*model.PaymentSession) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		out = append(out, s.ID)
	}
	return out
}

func Credentials(t *testing.T, newRepo func(t *testing.T) repository.CredentialRepository) {
	ctx := context.Background()
	single, _ := model.NewOffer("one_category", "Single", "", 100, "USD", "", 0, "", []string{"stripe"})
	sub, _ := model.NewOffer("all_categories", "All", "", 500, "USD", model.ScopeAll, 30*24*time.Hour, "1 month", []string{"stripe"})

	t.Run("should store only the hash and find by it", func(t *testing.T) {
		repo := newRepo(t)
		c, _ := model.NewBearerCredential(sub, model.ScopeAll, "cs_1", base)
		if err := repo.Save(ctx, c); err != nil {
			t.Fatalf("save: %v", err)
		}
		got, err := repo.FindByTokenHash(ctx, c.TokenHash)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got.Token != "" {
			t.Error("plaintext token was persisted")
		}
		if got.ID != c.ID || got.Scope != model.ScopeAll || got.ExpiresAt == nil || !got.ExpiresAt.Equal(*c.ExpiresAt) {
			t.Errorf("unexpected credential: %+v", got)
		}
		if _, err := repo.FindByTokenHash(ctx, model.HashToken("other")); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("want ErrNotFound, got %v", err)
		}
	})

	t.Run("should consume a single-use credential once under contention", func(t *testing.T) {
		repo := newRepo(t)
		c, _ := model.NewBearerCredential(single, "economy", "cs_2", base)
		_ = repo.Save(ctx, c)

		const n = 8
		var wins int32
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				if ok, err := repo.ConsumeIfUnused(ctx, c.TokenHash, base.Add(time.Minute)); err == nil && ok {
					atomic.AddInt32(&wins, 1)
				}
			}()
		}
		wg.Wait()
		if wins != 1 {
			t.Fatalf("wins=%d, want 1", wins)
		}
		got, _ := repo.FindByTokenHash(ctx, c.TokenHash)
		if !got.Consumed || got.ConsumedAt == nil {
			t.Errorf("credential not marked consumed: %+v", got)
		}
	})
}
