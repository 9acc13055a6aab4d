package service

import (
	"context"
	"log/slog"

	"ledger-core/internal/domain"
	"ledger-core/internal/errors"
)

// TransactionService serves the read side of the transaction log.
type TransactionService struct {
	log      domain.TransactionLog
	accounts domain.AccountStore
	logger   *slog.Logger
}

func NewTransactionService(log domain.TransactionLog, accounts domain.AccountStore, logger *slog.Logger) *TransactionService {
	return &TransactionService{
		log:      log,
		accounts: accounts,
		logger:   logger,
	}
}

func (s *TransactionService) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	if id == "" {
		return nil, errors.ErrInvalidInput.WithDetails("transaction id is required")
	}
	return s.log.GetTransaction(ctx, id)
}

// ByAccount returns every transaction the account took part in, newest
// first. The account must exist.
func (s *TransactionService) ByAccount(ctx context.Context, accountID string) ([]domain.Transaction, error) {
	if _, err := s.accounts.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.log.TransactionsByAccount(ctx, accountID)
}

func (s *TransactionService) ByUser(ctx context.Context, userID string) ([]domain.Transaction, error) {
	if userID == "" {
		return nil, errors.ErrInvalidInput.WithDetails("user_id is required")
	}
	return s.log.TransactionsByUser(ctx, userID)
}
