package audit

import (
	"context"
	"log/slog"
	"time"

	"ledger-core/internal/domain"
	"ledger-core/internal/errors"
)

// Trail records and serves transaction fingerprints on top of an AuditStore.
type Trail struct {
	store  domain.AuditStore
	logger *slog.Logger
}

func NewTrail(store domain.AuditStore, logger *slog.Logger) *Trail {
	return &Trail{
		store:  store,
		logger: logger,
	}
}

// Record appends the fingerprint of transactionID. A transaction id can be
// recorded only once.
func (t *Trail) Record(ctx context.Context, transactionID string, createdAt time.Time, meta domain.RoutingMetadata) (*domain.AuditFingerprint, error) {
	if transactionID == "" {
		return nil, errors.ErrInvalidInput.WithDetails("transaction id is required")
	}

	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	entry := domain.AuditFingerprint{
		TransactionID:   transactionID,
		Fingerprint:     Fingerprint(transactionID),
		CreatedAt:       createdAt.UTC(),
		RoutingMetadata: meta,
	}

	if err := t.store.Append(ctx, entry); err != nil {
		t.logger.Error("Failed to record transaction fingerprint", "transaction_id", transactionID, "error", err)
		return nil, err
	}

	return &entry, nil
}

func (t *Trail) Find(ctx context.Context, transactionID string) (*domain.AuditFingerprint, error) {
	return t.store.Find(ctx, transactionID)
}

func (t *Trail) List(ctx context.Context, limit int) ([]domain.AuditFingerprint, error) {
	return t.store.List(ctx, limit)
}
