package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"

	"newspay-l402/internal/domain"
)

const uniqueViolation = "23505"

// querier is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

func execSQL(ctx context.Context, q querier, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	if q == nil {
		return nil, domain.ErrInvalidExecContext
	}
	return q.Exec(ctx, sql, args...)
}

func pickRow(ctx context.Context, q querier, sql string, args ...interface{}) (pgx.Row, error) {
	if q == nil {
		return nil, domain.ErrInvalidExecContext
	}
	return q.QueryRow(ctx, sql, args...), nil
}

func queryRows(ctx context.Context, q querier, sql string, args ...interface{}) (pgx.Rows, error) {
	if q == nil {
		return nil, domain.ErrInvalidExecContext
	}
	return q.Query(ctx, sql, args...)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// scanErr maps a Scan failure onto the domain taxonomy.
func scanErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return errors.Join(domain.ErrReadDatabaseRow, err)
}
