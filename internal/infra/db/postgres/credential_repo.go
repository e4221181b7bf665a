package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"newspay-l402/internal/domain"
	"newspay-l402/internal/domain/model"
	"newspay-l402/internal/domain/ports/repository"
)

var _ repository.CredentialRepository = (*credentialRepo)(nil)

// credentialRepo stores credentials keyed by token hash; the plaintext
// token has no column.
type credentialRepo struct{ pool *pgxpool.Pool }

func NewCredentialRepo(pool *pgxpool.Pool) *credentialRepo {
	return &credentialRepo{pool: pool}
}

func (r *credentialRepo) Save(ctx context.Context, c *model.BearerCredential) error {
	if c.TokenHash == "" {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO bearer_credentials (token_hash, id, scope, offer_id, session_id, issued_at, expires_at, single_use, consumed, consumed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);`

	_, err := execSQL(ctx, r.pool, q, c.TokenHash, c.ID, string(c.Scope), c.OfferID, c.SessionID,
		c.IssuedAt, c.ExpiresAt, c.SingleUse, c.Consumed, c.ConsumedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("%w: %v", domain.ErrOperationFailed, err)
	}
	return nil
}

func (r *credentialRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.BearerCredential, error) {
	const q = `SELECT token_hash, id, scope, offer_id, session_id, issued_at, expires_at, single_use, consumed, consumed_at FROM bearer_credentials WHERE token_hash=$1;`
	row, err := pickRow(ctx, r.pool, q, tokenHash)
	if err != nil {
		return nil, err
	}
	var (
		c     model.BearerCredential
		scope string
	)
	if err := row.Scan(&c.TokenHash, &c.ID, &scope, &c.OfferID, &c.SessionID, &c.IssuedAt, &c.ExpiresAt,
		&c.SingleUse, &c.Consumed, &c.ConsumedAt); err != nil {
		return nil, scanErr(err)
	}
	c.Scope = model.Scope(scope)
	return &c, nil
}

// ConsumeIfUnused atomically flips consumed for single-use credentials.
func (r *credentialRepo) ConsumeIfUnused(ctx context.Context, tokenHash string, at time.Time) (bool, error) {
	const q = `
    UPDATE bearer_credentials
       SET consumed = TRUE,
           consumed_at = $2
     WHERE token_hash = $1
       AND consumed = FALSE`

	cmd, err := execSQL(ctx, r.pool, q, tokenHash, at)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrOperationFailed, err)
	}
	if cmd.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := r.FindByTokenHash(ctx, tokenHash); err != nil {
		return false, err
	}
	return false, nil
}
