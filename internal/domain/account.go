package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID            string          `json:"account_id"`
	UserID        string          `json:"user_id"`
	AccountType   string          `json:"account_type"`
	AccountNumber string          `json:"account_number"`
	Balance       decimal.Decimal `json:"balance"`
	Active        bool            `json:"active"`
	Version       int64           `json:"-"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// AccountWrite replaces the stored state of one account, provided its
// version still equals ExpectedVersion and it is still active.
type AccountWrite struct {
	Account         Account
	ExpectedVersion int64
}

// UnitOfWork is the set of changes a single ledger operation commits.
// Stores apply it entirely or not at all.
type UnitOfWork struct {
	Creates      []Account
	Writes       []AccountWrite
	Transactions []Transaction
}

// Stamp sets the commit instant on every transaction in the unit.
func (u *UnitOfWork) Stamp(at time.Time) {
	for i := range u.Transactions {
		u.Transactions[i].CreatedAt = at
	}
}

// AccountStore owns account state. ApplyAtomic is the only path that
// mutates a balance.
type AccountStore interface {
	GetAccount(ctx context.Context, id string) (*Account, error)
	GetAccountByNumber(ctx context.Context, number string) (*Account, error)
	ListAccountsByUser(ctx context.Context, userID string) ([]Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	ApplyAtomic(ctx context.Context, unit *UnitOfWork) error
}

// LedgerStore is an account store whose commits also append to the
// transaction log.
type LedgerStore interface {
	AccountStore
	TransactionLog
}
