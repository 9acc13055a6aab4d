package domain

import (
	"context"
	"time"
)

// RoutingMetadata is copied onto a fingerprint at write time.
type RoutingMetadata struct {
	FromUserID        *string `json:"from_user_id"`
	ToUserID          *string `json:"to_user_id"`
	FromAccountID     *string `json:"from_account_id"`
	ToAccountID       *string `json:"to_account_id"`
	FromAccountNumber *string `json:"from_account_number"`
	ToAccountNumber   *string `json:"to_account_number"`
}

type AuditFingerprint struct {
	TransactionID string    `json:"transaction_id"`
	Fingerprint   string    `json:"hash"`
	CreatedAt     time.Time `json:"created_at"`
	RoutingMetadata
}

// AuditStore persists fingerprints in insertion order. List with limit <= 0
// returns every entry; otherwise the most recent limit entries, oldest first.
type AuditStore interface {
	Append(ctx context.Context, entry AuditFingerprint) error
	Find(ctx context.Context, transactionID string) (*AuditFingerprint, error)
	List(ctx context.Context, limit int) ([]AuditFingerprint, error)
}
