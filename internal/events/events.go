package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"ledger-core/internal/domain"
)

// TransactionCommitted is emitted once per transaction record after the
// ledger commit that created it.
type TransactionCommitted struct {
	TransactionID        string                 `json:"transaction_id"`
	TransactionType      domain.TransactionType `json:"transaction_type"`
	AccountID            string                 `json:"account_id"`
	DestinationAccountID *string                `json:"destination_account_id,omitempty"`
	Amount               decimal.Decimal        `json:"amount"`
	Fingerprint          string                 `json:"fingerprint,omitempty"`
	OccurredAt           time.Time              `json:"occurred_at"`
}

func NewTransactionCommitted(tx domain.Transaction, fingerprint string) TransactionCommitted {
	return TransactionCommitted{
		TransactionID:        tx.ID,
		TransactionType:      tx.Type,
		AccountID:            tx.AccountID,
		DestinationAccountID: tx.DestinationAccountID,
		Amount:               tx.Amount,
		Fingerprint:          fingerprint,
		OccurredAt:           tx.CreatedAt,
	}
}

type Publisher interface {
	Publish(ctx context.Context, event TransactionCommitted) error
	Close() error
}

// Noop drops every event. It is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, TransactionCommitted) error { return nil }
func (Noop) Close() error                                          { return nil }
