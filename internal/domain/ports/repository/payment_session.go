package repository

import (
	"context"
	"time"

	"newspay-l402/internal/domain/model"
)

type PaymentSessionRepository interface {
	// Save inserts a new session; domain.ErrAlreadyExists if the id is taken.
	Save(ctx context.Context, s *model.PaymentSession) error
	FindByID(ctx context.Context, id string) (*model.PaymentSession, error)
	// TransitionFromPending is a compare-and-set on state: it succeeds only
	// for the caller that moves the session out of PENDING.
	TransitionFromPending(ctx context.Context, id string, to model.SessionState, at time.Time) (bool, error)
	// AttachCredential binds the issued credential if none is bound yet and
	// reports whether this caller did it. sealedToken is the encrypted bearer
	// token kept for a single later pickup; it may be empty.
	AttachCredential(ctx context.Context, id, credentialID, sealedToken string) (bool, error)
	// ClaimSealedToken returns the sealed token and clears it in one step.
	// Only one caller ever gets a non-empty value.
	ClaimSealedToken(ctx context.Context, id string) (string, error)
	ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.PaymentSession, error)
}
