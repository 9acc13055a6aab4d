package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	Deposit    TransactionType = "deposit"
	Withdrawal TransactionType = "withdrawal"
	Transfer   TransactionType = "transfer"
)

type Transaction struct {
	ID                   string          `json:"transaction_id"`
	AccountID            string          `json:"account_id"`
	Type                 TransactionType `json:"transaction_type"`
	Amount               decimal.Decimal `json:"amount"`
	Description          string          `json:"description"`
	DestinationAccountID *string         `json:"destination_account_id,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

// Involves reports whether the account is the source or the destination.
func (t Transaction) Involves(accountID string) bool {
	return t.AccountID == accountID ||
		(t.DestinationAccountID != nil && *t.DestinationAccountID == accountID)
}

// TransactionLog is the read side of the append-only transaction records.
// Results are newest-first.
type TransactionLog interface {
	GetTransaction(ctx context.Context, id string) (*Transaction, error)
	TransactionsByAccount(ctx context.Context, accountID string) ([]Transaction, error)
	TransactionsByUser(ctx context.Context, userID string) ([]Transaction, error)
}
