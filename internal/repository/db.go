package repository

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/lib/pq"

	"ledger-core/internal/errors"
)

// SQLExecutor represents both sql.DB and sql.Tx
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// DB represents a database that can begin transactions
type DB interface {
	SQLExecutor
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Ensure sql.DB implements DB interface
var _ DB = (*sql.DB)(nil)

// TxWrapper wraps sql.Tx to implement SQLExecutor
type TxWrapper struct {
	*sql.Tx
}

var _ SQLExecutor = (*TxWrapper)(nil)

// Open connects with lib/pq and checks the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// PostgreSQL error codes the ledger reacts to.
const (
	pqUniqueViolation      = "23505"
	pqCheckViolation       = "23514"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// mapError turns a driver error into an AppError. fallback names the
// operation for anything that is not a known constraint or concurrency code.
func mapError(err error, fallback string) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		switch {
		case pqErr.Code == pqUniqueViolation && pqErr.Table == "accounts":
			return errors.ErrDuplicateAccount.WithDetails(pqErr.Constraint)
		case pqErr.Code == pqUniqueViolation && pqErr.Table == "transaction_fingerprints":
			return errors.ErrDuplicateFingerprint.WithDetails(pqErr.Constraint)
		case pqErr.Code == pqCheckViolation && pqErr.Table == "accounts":
			return errors.ErrInsufficientFunds.WithDetails(pqErr.Constraint)
		case pqErr.Code == pqSerializationFailure, pqErr.Code == pqDeadlockDetected:
			return errors.ErrConflict.WithDetails(pqErr.Message)
		}
	}

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return errors.Internal(fallback, err)
}
