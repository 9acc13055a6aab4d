package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"ledger-core/internal/domain"
	"ledger-core/internal/errors"
)

const accountColumns = `id, user_id, account_type, account_number, balance, active, version, created_at, updated_at`

type accountRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func newAccountRepository(db SQLExecutor, logger *slog.Logger) *accountRepository {
	return &accountRepository{
		db:     db,
		logger: logger,
	}
}

func (r *accountRepository) insert(ctx context.Context, account domain.Account, now time.Time) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		account.ID,
		account.UserID,
		account.AccountType,
		account.AccountNumber,
		account.Balance.String(),
		account.Active,
		now,
	)
	if err != nil {
		r.logger.Warn("Failed to create account", "account_id", account.ID, "error", err)
		return mapError(err, "failed to create account")
	}
	return nil
}

// write replaces the mutable state of an account if it still carries the
// expected version and is active. A zero-row update is classified by
// re-reading the row.
func (r *accountRepository) write(ctx context.Context, w domain.AccountWrite, now time.Time) error {
	query := `
		UPDATE accounts
		SET account_type = $1, account_number = $2, balance = $3, active = $4,
			version = version + 1, updated_at = $5
		WHERE id = $6 AND version = $7 AND active
	`

	a := w.Account
	result, err := r.db.ExecContext(ctx, query,
		a.AccountType,
		a.AccountNumber,
		a.Balance.String(),
		a.Active,
		now,
		a.ID,
		w.ExpectedVersion,
	)
	if err != nil {
		return mapError(err, "failed to update account")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Internal("failed to get rows affected", err)
	}
	if rowsAffected == 1 {
		return nil
	}

	var active bool
	var version int64
	err = r.db.QueryRowContext(ctx, `SELECT active, version FROM accounts WHERE id = $1`, a.ID).Scan(&active, &version)
	switch {
	case stderrors.Is(err, sql.ErrNoRows):
		return errors.ErrAccountNotFound.WithDetails(a.ID)
	case err != nil:
		return mapError(err, "failed to classify account update")
	case !active:
		return errors.ErrAccountInactive.WithDetails(a.ID)
	default:
		r.logger.Debug("Stale account version", "account_id", a.ID, "expected", w.ExpectedVersion, "actual", version)
		return errors.ErrConflict.WithDetails(a.ID)
	}
}

func (r *accountRepository) get(ctx context.Context, id string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id), id)
}

func (r *accountRepository) getByNumber(ctx context.Context, number string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, number), number)
}

func (r *accountRepository) listByUser(ctx context.Context, userID string) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 ORDER BY created_at, id`
	return r.scanMany(ctx, query, userID)
}

func (r *accountRepository) list(ctx context.Context) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at, id`
	return r.scanMany(ctx, query)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *accountRepository) scanOne(row *sql.Row, key string) (*domain.Account, error) {
	account, err := scanAccount(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrAccountNotFound
		}
		r.logger.Error("Failed to get account", "key", key, "error", err)
		return nil, errors.Internal("failed to get account", err)
	}
	return account, nil
}

func (r *accountRepository) scanMany(ctx context.Context, query string, args ...interface{}) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Internal("failed to list accounts", err)
	}
	defer rows.Close()

	out := make([]domain.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, errors.Internal("failed to scan account", err)
		}
		out = append(out, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Internal("failed to list accounts", err)
	}
	return out, nil
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var account domain.Account
	var balanceStr string

	err := row.Scan(
		&account.ID,
		&account.UserID,
		&account.AccountType,
		&account.AccountNumber,
		&balanceStr,
		&account.Active,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, err
	}

	account.Balance = balance
	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()
	return &account, nil
}
