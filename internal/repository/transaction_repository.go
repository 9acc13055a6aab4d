package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"ledger-core/internal/domain"
	"ledger-core/internal/errors"
)

const transactionColumns = `id, account_id, transaction_type, amount, description, destination_account_id, created_at`

type transactionRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func newTransactionRepository(db SQLExecutor, logger *slog.Logger) *transactionRepository {
	return &transactionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *transactionRepository) insert(ctx context.Context, tx domain.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		tx.ID,
		tx.AccountID,
		string(tx.Type),
		tx.Amount.String(),
		tx.Description,
		nullString(tx.DestinationAccountID),
		tx.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create transaction",
			"transaction_id", tx.ID,
			"account_id", tx.AccountID,
			"amount", tx.Amount,
			"error", err)
		return mapError(err, "failed to create transaction")
	}
	return nil
}

func (r *transactionRepository) get(ctx context.Context, id string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrTransactionNotFound
		}
		r.logger.Error("Failed to get transaction", "transaction_id", id, "error", err)
		return nil, errors.Internal("failed to get transaction", err)
	}
	return tx, nil
}

func (r *transactionRepository) byAccount(ctx context.Context, accountID string) ([]domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = $1 OR destination_account_id = $1
		ORDER BY created_at DESC, seq DESC
	`
	return r.list(ctx, query, accountID)
}

func (r *transactionRepository) byUser(ctx context.Context, userID string) ([]domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id IN (SELECT id FROM accounts WHERE user_id = $1)
		   OR destination_account_id IN (SELECT id FROM accounts WHERE user_id = $1)
		ORDER BY created_at DESC, seq DESC
	`
	return r.list(ctx, query, userID)
}

func (r *transactionRepository) list(ctx context.Context, query string, args ...interface{}) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Internal("failed to list transactions", err)
	}
	defer rows.Close()

	out := make([]domain.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, errors.Internal("failed to scan transaction", err)
		}
		out = append(out, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Internal("failed to list transactions", err)
	}
	return out, nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var txType, amountStr string
	var dest sql.NullString

	err := row.Scan(
		&tx.ID,
		&tx.AccountID,
		&txType,
		&amountStr,
		&tx.Description,
		&dest,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, err
	}

	tx.Type = domain.TransactionType(txType)
	tx.Amount = amount
	tx.CreatedAt = tx.CreatedAt.UTC()
	if dest.Valid {
		tx.DestinationAccountID = &dest.String
	}
	return &tx, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
