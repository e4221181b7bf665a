package repository

import (
	"context"
	"time"

	"newspay-l402/internal/domain/model"
)

type CredentialRepository interface {
	Save(ctx context.Context, c *model.BearerCredential) error
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.BearerCredential, error)
	// ConsumeIfUnused flips consumed=false -> true atomically and reports
	// whether this caller did it.
	ConsumeIfUnused(ctx context.Context, tokenHash string, at time.Time) (bool, error)
}
