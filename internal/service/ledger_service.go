package service

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ledger-core/internal/audit"
	"ledger-core/internal/domain"
	"ledger-core/internal/errors"
	"ledger-core/internal/events"
)

// Receipt describes a committed deposit, withdrawal or transfer.
type Receipt struct {
	TransactionID       string          `json:"transaction_id"`
	CreditTransactionID string          `json:"credit_transaction_id,omitempty"`
	Balance             decimal.Decimal `json:"balance"`
	Fingerprint         string          `json:"transaction_hash,omitempty"`
	ToAccountID         string          `json:"to_account_id,omitempty"`
	ToAccountNumber     string          `json:"to_account_number,omitempty"`
}

// TransferLeg is one credit of a multi-transfer.
type TransferLeg struct {
	ToAccountID string
	Amount      decimal.Decimal
}

// LegResult reports the transaction created for one multi-transfer leg.
type LegResult struct {
	TransactionID string `json:"transaction_id"`
	ToAccountID   string `json:"to_account_id"`
	Fingerprint   string `json:"hash,omitempty"`
}

// Fields of an account that UpdateAccount may change.
const (
	FieldAccountType   = "account_type"
	FieldAccountNumber = "account_number"
)

var (
	mutableFields   = map[string]bool{FieldAccountType: true, FieldAccountNumber: true}
	immutableFields = map[string]bool{
		"balance": true, "account_id": true, "id": true,
		"active": true, "user_id": true, "version": true,
	}
)

// LedgerService moves money between accounts. Every operation re-reads the
// accounts it touches, validates, and commits one unit of work.
type LedgerService struct {
	*committer
	logger *slog.Logger
}

func NewLedgerService(
	store domain.LedgerStore,
	trail *audit.Trail,
	publisher events.Publisher,
	logger *slog.Logger,
	retry RetryOptions,
) *LedgerService {
	return &LedgerService{
		committer: newCommitter(store, trail, publisher, logger, retry),
		logger:    logger,
	}
}

func (s *LedgerService) Deposit(ctx context.Context, accountID string, amount decimal.Decimal, description string) (*Receipt, error) {
	s.logger.Info("Processing deposit", "account_id", accountID, "amount", amount)

	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if accountID == "" {
		return nil, errors.ErrInvalidAccountID
	}

	var account *domain.Account

	unit, err := s.commit(ctx, []string{accountID}, func(ctx context.Context) (*domain.UnitOfWork, error) {
		acc, err := s.store.GetAccount(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if !acc.Active {
			return nil, errors.ErrAccountInactive.WithDetails("cannot deposit to inactive account " + accountID)
		}

		account = acc
		updated := *acc
		updated.Balance = acc.Balance.Add(amount)
		return &domain.UnitOfWork{
			Writes: []domain.AccountWrite{{Account: updated, ExpectedVersion: acc.Version}},
			Transactions: []domain.Transaction{
				newTransaction(accountID, domain.Deposit, amount, orDefault(description, "deposit"), nil),
			},
		}, nil
	})
	if err != nil {
		s.logger.Warn("Deposit rejected", "account_id", accountID, "error", err)
		return nil, err
	}

	tx := unit.Transactions[0]
	receipt := &Receipt{
		TransactionID: tx.ID,
		Balance:       unit.Writes[0].Account.Balance,
		Fingerprint:   s.record(ctx, tx, routing(account, nil)),
	}

	s.logger.Info("Deposit completed", "transaction_id", tx.ID, "account_id", accountID)
	return receipt, nil
}

func (s *LedgerService) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, description string) (*Receipt, error) {
	s.logger.Info("Processing withdrawal", "account_id", accountID, "amount", amount)

	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if accountID == "" {
		return nil, errors.ErrInvalidAccountID
	}

	var account *domain.Account

	unit, err := s.commit(ctx, []string{accountID}, func(ctx context.Context) (*domain.UnitOfWork, error) {
		acc, err := s.store.GetAccount(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if !acc.Active {
			return nil, errors.ErrAccountInactive.WithDetails("cannot withdraw from inactive account " + accountID)
		}
		if amount.GreaterThan(acc.Balance) {
			return nil, errors.ErrInsufficientFunds.WithDetails(
				"withdrawal of " + amount.String() + " exceeds balance " + acc.Balance.String())
		}

		account = acc
		updated := *acc
		updated.Balance = acc.Balance.Sub(amount)
		return &domain.UnitOfWork{
			Writes: []domain.AccountWrite{{Account: updated, ExpectedVersion: acc.Version}},
			Transactions: []domain.Transaction{
				newTransaction(accountID, domain.Withdrawal, amount, orDefault(description, "withdrawal"), nil),
			},
		}, nil
	})
	if err != nil {
		s.logger.Warn("Withdrawal rejected", "account_id", accountID, "error", err)
		return nil, err
	}

	tx := unit.Transactions[0]
	receipt := &Receipt{
		TransactionID: tx.ID,
		Balance:       unit.Writes[0].Account.Balance,
		Fingerprint:   s.record(ctx, tx, routing(account, nil)),
	}

	s.logger.Info("Withdrawal completed", "transaction_id", tx.ID, "account_id", accountID)
	return receipt, nil
}

// Transfer debits fromID and credits toID in one commit, recording a debit
// leg on the source and a credit leg on the destination. The receipt's
// TransactionID is the debit leg.
func (s *LedgerService) Transfer(ctx context.Context, fromID, toID string, amount decimal.Decimal, description string) (*Receipt, error) {
	s.logger.Info("Processing transfer",
		"source_account_id", fromID,
		"destination_account_id", toID,
		"amount", amount)

	if fromID == "" || toID == "" {
		return nil, errors.ErrInvalidAccountID
	}
	if fromID == toID {
		return nil, errors.ErrSameAccountTransfer
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	var from, to *domain.Account

	unit, err := s.commit(ctx, []string{fromID, toID}, func(ctx context.Context) (*domain.UnitOfWork, error) {
		src, err := s.lookup(ctx, fromID, "source")
		if err != nil {
			return nil, err
		}
		dst, err := s.lookup(ctx, toID, "destination")
		if err != nil {
			return nil, err
		}
		if !src.Active || !dst.Active {
			return nil, errors.ErrAccountInactive.WithDetails("cannot transfer to/from inactive account")
		}
		if amount.GreaterThan(src.Balance) {
			return nil, errors.ErrInsufficientFunds.WithDetails(
				"transfer of " + amount.String() + " exceeds balance " + src.Balance.String())
		}

		from, to = src, dst

		debited := *src
		debited.Balance = src.Balance.Sub(amount)
		credited := *dst
		credited.Balance = dst.Balance.Add(amount)

		debit := newTransaction(fromID, domain.Transfer, amount, orDefault(description, "transfer"), &toID)
		credit := newTransaction(toID, domain.Transfer, amount, orDefault(description, "transfer in"), &fromID)

		return &domain.UnitOfWork{
			Writes: []domain.AccountWrite{
				{Account: debited, ExpectedVersion: src.Version},
				{Account: credited, ExpectedVersion: dst.Version},
			},
			Transactions: []domain.Transaction{debit, credit},
		}, nil
	})
	if err != nil {
		s.logger.Warn("Transfer rejected", "source_account_id", fromID, "destination_account_id", toID, "error", err)
		return nil, err
	}

	debit, credit := unit.Transactions[0], unit.Transactions[1]
	meta := routing(from, to)

	receipt := &Receipt{
		TransactionID:       debit.ID,
		CreditTransactionID: credit.ID,
		Balance:             unit.Writes[0].Account.Balance,
		Fingerprint:         s.record(ctx, debit, meta),
		ToAccountID:         to.ID,
		ToAccountNumber:     to.AccountNumber,
	}
	s.record(ctx, credit, meta)

	s.logger.Info("Transfer completed", "transaction_id", debit.ID)
	return receipt, nil
}

// TransferByNumber resolves the destination through its account number.
func (s *LedgerService) TransferByNumber(ctx context.Context, fromID, toAccountNumber string, amount decimal.Decimal, description string) (*Receipt, error) {
	if toAccountNumber == "" {
		return nil, errors.ErrInvalidInput.WithDetails("to_account_number is required")
	}

	dest, err := s.store.GetAccountByNumber(ctx, toAccountNumber)
	if stderrors.Is(err, errors.ErrAccountNotFound) {
		return nil, errors.ErrAccountNotFound.WithDetails("destination account not found: " + toAccountNumber)
	}
	if err != nil {
		return nil, err
	}

	return s.Transfer(ctx, fromID, dest.ID, amount, orDefault(description, "transfer by account number"))
}

// MultiTransfer funds several credits from one debit. Destinations and
// amounts are validated first, then the aggregate is checked against the
// source balance; nothing is applied unless every leg can be.
func (s *LedgerService) MultiTransfer(ctx context.Context, fromID string, legs []TransferLeg, description string) ([]LegResult, error) {
	s.logger.Info("Processing multi-transfer", "source_account_id", fromID, "legs", len(legs))

	if fromID == "" {
		return nil, errors.ErrInvalidAccountID
	}
	if len(legs) == 0 {
		return nil, errors.ErrEmptyTransfers
	}

	ids := []string{fromID}
	for _, leg := range legs {
		if leg.ToAccountID == "" {
			return nil, errors.ErrInvalidInput.WithDetails("each transfer item requires to_account_id and amount")
		}
		if leg.ToAccountID == fromID {
			return nil, errors.ErrSameAccountTransfer.WithDetails("destination equals source: " + fromID)
		}
		if err := validateAmount(leg.Amount); err != nil {
			return nil, errors.ErrInvalidAmount.WithDetails("each transfer amount must be positive: " + leg.ToAccountID)
		}
		ids = append(ids, leg.ToAccountID)
	}

	var from *domain.Account
	dests := make(map[string]*domain.Account)

	unit, err := s.commit(ctx, ids, func(ctx context.Context) (*domain.UnitOfWork, error) {
		clear(dests)

		src, err := s.lookup(ctx, fromID, "source")
		if err != nil {
			return nil, err
		}
		if !src.Active {
			return nil, errors.ErrAccountInactive.WithDetails("cannot transfer from inactive account " + fromID)
		}

		credits := make(map[string]decimal.Decimal)
		total := decimal.Zero
		for _, leg := range legs {
			dst, ok := dests[leg.ToAccountID]
			if !ok {
				dst, err = s.lookup(ctx, leg.ToAccountID, "destination")
				if err != nil {
					return nil, err
				}
				dests[leg.ToAccountID] = dst
			}
			if !dst.Active {
				return nil, errors.ErrAccountInactive.WithDetails("destination account inactive: " + leg.ToAccountID)
			}
			credits[leg.ToAccountID] = credits[leg.ToAccountID].Add(leg.Amount)
			total = total.Add(leg.Amount)
		}

		if total.GreaterThan(src.Balance) {
			return nil, errors.ErrInsufficientFunds.WithDetails(
				"insufficient funds for aggregate multi-transfer amount " + total.String() +
					" (balance " + src.Balance.String() + ")")
		}

		from = src
		debited := *src
		debited.Balance = src.Balance.Sub(total)
		writes := []domain.AccountWrite{{Account: debited, ExpectedVersion: src.Version}}

		destIDs := make([]string, 0, len(credits))
		for id := range credits {
			destIDs = append(destIDs, id)
		}
		sort.Strings(destIDs)
		for _, id := range destIDs {
			credited := *dests[id]
			credited.Balance = credited.Balance.Add(credits[id])
			writes = append(writes, domain.AccountWrite{Account: credited, ExpectedVersion: dests[id].Version})
		}

		txs := make([]domain.Transaction, 0, len(legs))
		for _, leg := range legs {
			to := leg.ToAccountID
			txs = append(txs, newTransaction(fromID, domain.Transfer, leg.Amount, orDefault(description, "multi-transfer"), &to))
		}

		return &domain.UnitOfWork{Writes: writes, Transactions: txs}, nil
	})
	if err != nil {
		s.logger.Warn("Multi-transfer rejected", "source_account_id", fromID, "error", err)
		return nil, err
	}

	results := make([]LegResult, 0, len(unit.Transactions))
	for _, tx := range unit.Transactions {
		to := dests[*tx.DestinationAccountID]
		results = append(results, LegResult{
			TransactionID: tx.ID,
			ToAccountID:   to.ID,
			Fingerprint:   s.record(ctx, tx, routing(from, to)),
		})
	}

	s.logger.Info("Multi-transfer completed", "source_account_id", fromID, "legs", len(results))
	return results, nil
}

// CloseAccount deactivates an account whose balance is exactly zero.
// Closed is terminal.
func (s *LedgerService) CloseAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	s.logger.Info("Closing account", "account_id", accountID)

	if accountID == "" {
		return nil, errors.ErrInvalidAccountID
	}

	unit, err := s.commit(ctx, []string{accountID}, func(ctx context.Context) (*domain.UnitOfWork, error) {
		acc, err := s.store.GetAccount(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if !acc.Active {
			return nil, errors.ErrAccountInactive.WithDetails("account already closed: " + accountID)
		}
		if !acc.Balance.IsZero() {
			return nil, errors.ErrNonZeroBalance.WithDetails("balance is " + acc.Balance.String() + ", must be 0 to close")
		}

		closed := *acc
		closed.Active = false
		return &domain.UnitOfWork{
			Writes: []domain.AccountWrite{{Account: closed, ExpectedVersion: acc.Version}},
		}, nil
	})
	if err != nil {
		s.logger.Warn("Close rejected", "account_id", accountID, "error", err)
		return nil, err
	}

	closed := unit.Writes[0].Account
	s.logger.Info("Account closed", "account_id", accountID)
	return &closed, nil
}

// UpdateAccount changes non-financial fields. Only account_type and
// account_number are accepted; balance, identity and status fields are
// rejected here rather than trusted to be filtered upstream.
func (s *LedgerService) UpdateAccount(ctx context.Context, accountID string, fields map[string]string) (*domain.Account, error) {
	if accountID == "" {
		return nil, errors.ErrInvalidAccountID
	}
	if len(fields) == 0 {
		return nil, errors.ErrInvalidInput.WithDetails("no fields to update")
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch {
		case immutableFields[k]:
			return nil, errors.ErrImmutableField.WithDetails(k)
		case !mutableFields[k]:
			return nil, errors.ErrUnknownField.WithDetails(k)
		case strings.TrimSpace(fields[k]) == "":
			return nil, errors.ErrInvalidInput.WithDetails(k + " must not be empty")
		}
	}

	unit, err := s.commit(ctx, []string{accountID}, func(ctx context.Context) (*domain.UnitOfWork, error) {
		acc, err := s.store.GetAccount(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if !acc.Active {
			return nil, errors.ErrAccountInactive.WithDetails("cannot update closed account " + accountID)
		}

		updated := *acc
		if v, ok := fields[FieldAccountType]; ok {
			updated.AccountType = strings.TrimSpace(v)
		}
		if v, ok := fields[FieldAccountNumber]; ok {
			updated.AccountNumber = strings.TrimSpace(v)
		}
		return &domain.UnitOfWork{
			Writes: []domain.AccountWrite{{Account: updated, ExpectedVersion: acc.Version}},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	updated := unit.Writes[0].Account
	s.logger.Info("Account updated", "account_id", accountID, "fields", keys)
	return &updated, nil
}

func (s *LedgerService) lookup(ctx context.Context, accountID, role string) (*domain.Account, error) {
	acc, err := s.store.GetAccount(ctx, accountID)
	if stderrors.Is(err, errors.ErrAccountNotFound) {
		return nil, errors.ErrAccountNotFound.WithDetails(role + " account not found: " + accountID)
	}
	return acc, err
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.ErrInvalidAmount
	}
	return nil
}

func newTransaction(accountID string, kind domain.TransactionType, amount decimal.Decimal, description string, dest *string) domain.Transaction {
	return domain.Transaction{
		ID:                   uuid.NewString(),
		AccountID:            accountID,
		Type:                 kind,
		Amount:               amount,
		Description:          description,
		DestinationAccountID: dest,
	}
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
