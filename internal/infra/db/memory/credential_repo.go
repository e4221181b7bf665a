package memory

import (
	"context"
	"sync"
	"time"

	"newspay-l402/internal/domain"
	"newspay-l402/internal/domain/model"
	"newspay-l402/internal/domain/ports/repository"
)

// Compile-time check
var _ repository.CredentialRepository = (*credentialRepo)(nil)

// credentialRepo is keyed by token hash; plaintext tokens never reach it.
type credentialRepo struct {
	mu     sync.Mutex
	byHash map[string]model.BearerCredential
}

func NewCredentialRepo() *credentialRepo {
	return &credentialRepo{byHash: make(map[string]model.BearerCredential)}
}

func (r *credentialRepo) Save(_ context.Context, c *model.BearerCredential) error {
	if c.TokenHash == "" {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byHash[c.TokenHash]; ok {
		return domain.ErrAlreadyExists
	}
	stored := *c
	stored.Token = ""
	r.byHash[c.TokenHash] = stored
	return nil
}

func (r *credentialRepo) FindByTokenHash(_ context.Context, tokenHash string) (*model.BearerCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byHash[tokenHash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (r *credentialRepo) ConsumeIfUnused(_ context.Context, tokenHash string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byHash[tokenHash]
	if !ok {
		return false, domain.ErrNotFound
	}
	if c.Consumed {
		return false, nil
	}
	c.Consumed = true
	c.ConsumedAt = &at
	r.byHash[tokenHash] = c
	return true, nil
}
