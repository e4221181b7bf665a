package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"newspay-l402/internal/domain"
	"newspay-l402/internal/domain/model"
	"newspay-l402/internal/domain/ports/repository"
)

// Compile-time check
var _ repository.PaymentSessionRepository = (*sessionRepo)(nil)

type sessionRepo struct {
	mu   sync.Mutex
	byID map[string]model.PaymentSession
}

func NewPaymentSessionRepo() *sessionRepo {
	return &sessionRepo{byID: make(map[string]model.PaymentSession)}
}

func (r *sessionRepo) Save(_ context.Context, s *model.PaymentSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[s.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.byID[s.ID] = *s
	return nil
}

func (r *sessionRepo) FindByID(_ context.Context, id string) (*model.PaymentSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (r *sessionRepo) TransitionFromPending(_ context.Context, id string, to model.SessionState, at time.Time) (bool, error) {
	if !to.IsTerminal() {
		return false, domain.ErrInvalidTransition
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if !s.TransitionFromPending(to, at) {
		return false, nil
	}
	r.byID[id] = s
	return true, nil
}

func (r *sessionRepo) AttachCredential(_ context.Context, id, credentialID, sealedToken string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if s.CredentialID != "" {
		return false, nil
	}
	s.CredentialID = credentialID
	s.SealedToken = sealedToken
	r.byID[id] = s
	return true, nil
}

func (r *sessionRepo) ClaimSealedToken(_ context.Context, id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	sealed := s.SealedToken
	s.SealedToken = ""
	r.byID[id] = s
	return sealed, nil
}

func (r *sessionRepo) ListPendingOlderThan(_ context.Context, cutoff time.Time, limit int) ([]*model.PaymentSession, error) {
	r.mu.Lock()
	var out []*model.PaymentSession
	for _, s := range r.byID {
		if s.State == model.SessionStatePending && s.CreatedAt.Before(cutoff) {
			s := s
			out = append(out, &s)
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
