package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"sort"
	"time"

	"ledger-core/internal/domain"
	"ledger-core/internal/errors"
)

// Store is the PostgreSQL domain.LedgerStore. Reads go through whatever
// executor the store carries; ApplyAtomic always runs in its own SQL
// transaction.
type Store struct {
	executor SQLExecutor
	logger   *slog.Logger
}

// NewStore creates a new Store instance
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{
		executor: db,
		logger:   logger,
	}
}

var _ domain.LedgerStore = (*Store)(nil)

func (s *Store) accounts() *accountRepository {
	return newAccountRepository(s.executor, s.logger)
}

func (s *Store) transactions() *transactionRepository {
	return newTransactionRepository(s.executor, s.logger)
}

// WithTransaction executes a function within a database transaction
func (s *Store) WithTransaction(ctx context.Context, fn func(*Store) error) error {
	// Only sql.DB can begin transactions
	db, ok := s.executor.(DB)
	if !ok {
		return errors.Internal("cannot begin transaction on a transactional store", nil)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err, "failed to begin transaction")
	}

	txStore := &Store{
		executor: &TxWrapper{Tx: tx},
		logger:   s.logger,
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txStore); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapError(err, "failed to commit transaction")
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	return s.accounts().get(ctx, id)
}

func (s *Store) GetAccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	return s.accounts().getByNumber(ctx, number)
}

func (s *Store) ListAccountsByUser(ctx context.Context, userID string) ([]domain.Account, error) {
	return s.accounts().listByUser(ctx, userID)
}

func (s *Store) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return s.accounts().list(ctx)
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.transactions().get(ctx, id)
}

func (s *Store) TransactionsByAccount(ctx context.Context, accountID string) ([]domain.Transaction, error) {
	return s.transactions().byAccount(ctx, accountID)
}

func (s *Store) TransactionsByUser(ctx context.Context, userID string) ([]domain.Transaction, error) {
	return s.transactions().byUser(ctx, userID)
}

// ApplyAtomic commits the unit in one SQL transaction. Account updates are
// issued in ascending id order so concurrent units lock rows in the same
// order, and each update is guarded by the version the caller read.
func (s *Store) ApplyAtomic(ctx context.Context, unit *domain.UnitOfWork) error {
	now := time.Now().UTC().Truncate(time.Microsecond)

	writes := make([]domain.AccountWrite, len(unit.Writes))
	copy(writes, unit.Writes)
	sort.Slice(writes, func(i, j int) bool {
		return writes[i].Account.ID < writes[j].Account.ID
	})

	err := s.WithTransaction(ctx, func(tx *Store) error {
		accounts := tx.accounts()
		for _, a := range unit.Creates {
			if err := accounts.insert(ctx, a, now); err != nil {
				return err
			}
		}

		for _, w := range writes {
			if err := accounts.write(ctx, w, now); err != nil {
				return err
			}
		}

		txs := tx.transactions()
		for _, t := range unit.Transactions {
			t.CreatedAt = now
			if err := txs.insert(ctx, t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	unit.Stamp(now)
	return nil
}
