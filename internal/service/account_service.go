package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ledger-core/internal/domain"
	"ledger-core/internal/errors"
)

var maxInitialBalance = decimal.NewFromInt(10_000_000_000)

// CreateAccountRequest carries the fields a new account starts with.
type CreateAccountRequest struct {
	UserID         string
	AccountType    string
	AccountNumber  string
	InitialBalance decimal.Decimal
}

type AccountService struct {
	store  domain.LedgerStore
	ledger *LedgerService
	logger *slog.Logger
}

func NewAccountService(store domain.LedgerStore, ledger *LedgerService, logger *slog.Logger) *AccountService {
	return &AccountService{
		store:  store,
		ledger: ledger,
		logger: logger,
	}
}

// CreateAccount opens an active account. A positive opening balance is
// booked as an "initial deposit" transaction in the same commit.
func (s *AccountService) CreateAccount(ctx context.Context, req CreateAccountRequest) (*domain.Account, error) {
	s.logger.Info("Creating account", "user_id", req.UserID, "account_type", req.AccountType, "initial_balance", req.InitialBalance)

	if strings.TrimSpace(req.UserID) == "" {
		return nil, errors.ErrInvalidInput.WithDetails("user_id is required")
	}
	if strings.TrimSpace(req.AccountType) == "" {
		return nil, errors.ErrInvalidInput.WithDetails("account_type is required")
	}
	if req.InitialBalance.IsNegative() {
		return nil, errors.ErrInvalidAmount
	}
	if req.InitialBalance.GreaterThan(maxInitialBalance) {
		return nil, errors.NewAppError(errors.InvalidAmount, "initial balance exceeds maximum limit")
	}

	id := uuid.New()
	account := domain.Account{
		ID:            id.String(),
		UserID:        strings.TrimSpace(req.UserID),
		AccountType:   strings.TrimSpace(req.AccountType),
		AccountNumber: strings.TrimSpace(req.AccountNumber),
		Balance:       req.InitialBalance,
		Active:        true,
	}
	if account.AccountNumber == "" {
		account.AccountNumber = accountNumberFor(id)
	}

	unit := &domain.UnitOfWork{Creates: []domain.Account{account}}
	if req.InitialBalance.IsPositive() {
		unit.Transactions = []domain.Transaction{
			newTransaction(account.ID, domain.Deposit, req.InitialBalance, "initial deposit", nil),
		}
	}

	committed, err := s.ledger.commit(ctx, []string{account.ID}, func(context.Context) (*domain.UnitOfWork, error) {
		return unit, nil
	})
	if err != nil {
		s.logger.Warn("Account creation rejected", "user_id", req.UserID, "error", err)
		return nil, err
	}

	for _, tx := range committed.Transactions {
		s.ledger.record(ctx, tx, routing(&account, nil))
	}

	created, err := s.store.GetAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Account created successfully", "account_id", created.ID, "account_number", created.AccountNumber)
	return created, nil
}

func (s *AccountService) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	if accountID == "" {
		return nil, errors.ErrInvalidAccountID
	}
	return s.store.GetAccount(ctx, accountID)
}

func (s *AccountService) GetAccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	if number == "" {
		return nil, errors.ErrInvalidInput.WithDetails("account number is required")
	}
	return s.store.GetAccountByNumber(ctx, number)
}

// ListAccounts returns the accounts of userID, or every account when userID
// is empty.
func (s *AccountService) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	if userID == "" {
		return s.store.ListAccounts(ctx)
	}
	return s.store.ListAccountsByUser(ctx, userID)
}

// accountNumberFor derives a 12 digit number from the account uuid.
func accountNumberFor(id uuid.UUID) string {
	n := new(big.Int).SetBytes(id[:])
	n.Mod(n, big.NewInt(1_000_000_000_000))
	return fmt.Sprintf("%012d", n)
}
