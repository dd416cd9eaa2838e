package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrAlreadyMember means the user_id uniqueness constraint rejected an insert.
	ErrAlreadyMember = errors.New("user is already a founding member")
	// ErrMemberNumberTaken means the member_number uniqueness constraint rejected an insert.
	ErrMemberNumberTaken = errors.New("member number already allocated")
)

const uniqueViolation = "23505"

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn returns tx when the caller runs inside a transaction, db otherwise.
func conn(db *sql.DB, tx *sql.Tx) execer {
	if tx != nil {
		return tx
	}
	return db
}

// uniqueConstraint reports the violated constraint name for a Postgres
// unique violation.
func uniqueConstraint(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}
