package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"newspay-l402/internal/domain"
	"newspay-l402/internal/domain/model"
	"newspay-l402/internal/domain/ports/repository"
)

var _ repository.PaymentSessionRepository = (*sessionRepo)(nil)

type sessionRepo struct{ pool *pgxpool.Pool }

func NewPaymentSessionRepo(pool *pgxpool.Pool) *sessionRepo {
	return &sessionRepo{pool: pool}
}

const sessionColumns = `id, context_token, offer_id, scope, state, checkout_url, provider, amount, currency, credential_id, sealed_token, created_at, updated_at, resolved_at`

func (r *sessionRepo) Save(ctx context.Context, s *model.PaymentSession) error {
	const q = `
INSERT INTO payment_sessions (` + sessionColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10,''),NULLIF($11,''),$12,$13,$14);`

	_, err := execSQL(ctx, r.pool, q, s.ID, s.ContextToken, s.OfferID, string(s.Scope), string(s.State),
		s.CheckoutURL, s.Provider, s.Amount, s.Currency, s.CredentialID, s.SealedToken, s.CreatedAt, s.UpdatedAt, s.ResolvedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("%w: %v", domain.ErrOperationFailed, err)
	}
	return nil
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.PaymentSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM payment_sessions WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, q, id)
	if err != nil {
		return nil, err
	}
	return scanSession(row)
}

// TransitionFromPending is the state CAS: the WHERE clause only matches a
// PENDING row, so concurrent callers race on the row lock and one wins.
func (r *sessionRepo) TransitionFromPending(ctx context.Context, id string, to model.SessionState, at time.Time) (bool, error) {
	if !to.IsTerminal() {
		return false, domain.ErrInvalidTransition
	}
	const q = `
    UPDATE payment_sessions
       SET state = $2,
           updated_at = $3,
           resolved_at = $3
     WHERE id = $1
       AND state = 'pending'`

	cmd, err := execSQL(ctx, r.pool, q, id, string(to), at)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrOperationFailed, err)
	}
	if cmd.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := r.FindByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// AttachCredential binds a credential once: the WHERE clause only matches a
// row with no credential yet.
func (r *sessionRepo) AttachCredential(ctx context.Context, id, credentialID, sealedToken string) (bool, error) {
	const q = `
    UPDATE payment_sessions
       SET credential_id = $2,
           sealed_token = NULLIF($3,'')
     WHERE id = $1
       AND credential_id IS NULL`

	cmd, err := execSQL(ctx, r.pool, q, id, credentialID, sealedToken)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrOperationFailed, err)
	}
	if cmd.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := r.FindByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// ClaimSealedToken locks the row, returns the old value and nulls it.
// A concurrent claimer re-checks the row after the lock and finds nothing.
func (r *sessionRepo) ClaimSealedToken(ctx context.Context, id string) (string, error) {
	const q = `
      WITH claimed AS (
    SELECT id, sealed_token
      FROM payment_sessions
     WHERE id = $1
       AND sealed_token IS NOT NULL
       FOR UPDATE
    )
    UPDATE payment_sessions p
       SET sealed_token = NULL
      FROM claimed
     WHERE p.id = claimed.id
 RETURNING claimed.sealed_token`

	row, err := pickRow(ctx, r.pool, q, id)
	if err != nil {
		return "", err
	}
	var sealed string
	if err := row.Scan(&sealed); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: %v", domain.ErrOperationFailed, err)
		}
		if _, err := r.FindByID(ctx, id); err != nil {
			return "", err
		}
		return "", nil
	}
	return sealed, nil
}

func (r *sessionRepo) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.PaymentSession, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + sessionColumns + ` FROM payment_sessions WHERE state='pending' AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, q, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrOperationFailed, err)
	}
	defer rows.Close()

	var out []*model.PaymentSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrOperationFailed, err)
	}
	return out, nil
}

func scanSession(row pgx.Row) (*model.PaymentSession, error) {
	var (
		s            model.PaymentSession
		scope, state string
		credentialID *string
		sealedToken  *string
	)
	if err := row.Scan(&s.ID, &s.ContextToken, &s.OfferID, &scope, &state, &s.CheckoutURL, &s.Provider,
		&s.Amount, &s.Currency, &credentialID, &sealedToken, &s.CreatedAt, &s.UpdatedAt, &s.ResolvedAt); err != nil {
		return nil, scanErr(err)
	}
	s.Scope = model.Scope(scope)
	s.State = model.SessionState(state)
	if credentialID != nil {
		s.CredentialID = *credentialID
	}
	if sealedToken != nil {
		s.SealedToken = *sealedToken
	}
	return &s, nil
}
