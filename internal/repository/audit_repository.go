package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"

	"ledger-core/internal/domain"
	"ledger-core/internal/errors"
)

const fingerprintColumns = `transaction_id, fingerprint, created_at,
	from_user_id, to_user_id, from_account_id, to_account_id, from_account_number, to_account_number`

// AuditRepository is the PostgreSQL domain.AuditStore. Insertion order is
// the seq column.
type AuditRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewAuditRepository(db *sql.DB, logger *slog.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

var _ domain.AuditStore = (*AuditRepository)(nil)

func (r *AuditRepository) Append(ctx context.Context, entry domain.AuditFingerprint) error {
	query := `
		INSERT INTO transaction_fingerprints (` + fingerprintColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	m := entry.RoutingMetadata
	_, err := r.db.ExecContext(ctx, query,
		entry.TransactionID,
		entry.Fingerprint,
		entry.CreatedAt,
		nullString(m.FromUserID),
		nullString(m.ToUserID),
		nullString(m.FromAccountID),
		nullString(m.ToAccountID),
		nullString(m.FromAccountNumber),
		nullString(m.ToAccountNumber),
	)
	if err != nil {
		return mapError(err, "failed to record fingerprint")
	}
	return nil
}

func (r *AuditRepository) Find(ctx context.Context, transactionID string) (*domain.AuditFingerprint, error) {
	query := `SELECT ` + fingerprintColumns + ` FROM transaction_fingerprints WHERE transaction_id = $1`

	entry, err := scanFingerprint(r.db.QueryRowContext(ctx, query, transactionID))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to find fingerprint", "transaction_id", transactionID, "error", err)
		return nil, errors.Internal("failed to find fingerprint", err)
	}
	return entry, nil
}

func (r *AuditRepository) List(ctx context.Context, limit int) ([]domain.AuditFingerprint, error) {
	var rows *sql.Rows
	var err error

	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+fingerprintColumns+` FROM (
				SELECT seq, `+fingerprintColumns+`
				FROM transaction_fingerprints
				ORDER BY seq DESC
				LIMIT $1
			) recent
			ORDER BY seq ASC
		`, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, `SELECT `+fingerprintColumns+` FROM transaction_fingerprints ORDER BY seq ASC`)
	}
	if err != nil {
		return nil, errors.Internal("failed to list fingerprints", err)
	}
	defer rows.Close()

	out := make([]domain.AuditFingerprint, 0)
	for rows.Next() {
		entry, err := scanFingerprint(rows)
		if err != nil {
			return nil, errors.Internal("failed to scan fingerprint", err)
		}
		out = append(out, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Internal("failed to list fingerprints", err)
	}
	return out, nil
}

func scanFingerprint(row rowScanner) (*domain.AuditFingerprint, error) {
	var entry domain.AuditFingerprint
	var fromUser, toUser, fromAccount, toAccount, fromNumber, toNumber sql.NullString

	err := row.Scan(
		&entry.TransactionID,
		&entry.Fingerprint,
		&entry.CreatedAt,
		&fromUser,
		&toUser,
		&fromAccount,
		&toAccount,
		&fromNumber,
		&toNumber,
	)
	if err != nil {
		return nil, err
	}

	entry.CreatedAt = entry.CreatedAt.UTC()
	entry.RoutingMetadata = domain.RoutingMetadata{
		FromUserID:        stringPtr(fromUser),
		ToUserID:          stringPtr(toUser),
		FromAccountID:     stringPtr(fromAccount),
		ToAccountID:       stringPtr(toAccount),
		FromAccountNumber: stringPtr(fromNumber),
		ToAccountNumber:   stringPtr(toNumber),
	}
	return &entry, nil
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
