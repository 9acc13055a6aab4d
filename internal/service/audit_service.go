package service

import (
	"context"
	stderrors "errors"
	"log/slog"

	"ledger-core/internal/audit"
	"ledger-core/internal/domain"
	"ledger-core/internal/errors"
)

// Verification compares a transaction with its audit fingerprint.
type Verification struct {
	TransactionID      string `json:"transaction_id"`
	TransactionExists  bool   `json:"transaction_exists"`
	FingerprintPresent bool   `json:"fingerprint_present"`
	Matches            bool   `json:"matches"`
	Expected           string `json:"expected_hash,omitempty"`
	Recorded           string `json:"recorded_hash,omitempty"`
}

type AuditService struct {
	trail  *audit.Trail
	log    domain.TransactionLog
	logger *slog.Logger
}

func NewAuditService(trail *audit.Trail, log domain.TransactionLog, logger *slog.Logger) *AuditService {
	return &AuditService{
		trail:  trail,
		log:    log,
		logger: logger,
	}
}

func (s *AuditService) Find(ctx context.Context, transactionID string) (*domain.AuditFingerprint, error) {
	entry, err := s.trail.Find(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, errors.ErrFingerprintNotFound
	}
	return entry, nil
}

func (s *AuditService) List(ctx context.Context, limit int) ([]domain.AuditFingerprint, error) {
	return s.trail.List(ctx, limit)
}

// Verify reports whether a committed transaction has its fingerprint and
// whether the recorded value still matches. Fingerprints are written after
// commit, so a committed transaction without one is a known gap.
func (s *AuditService) Verify(ctx context.Context, transactionID string) (*Verification, error) {
	if transactionID == "" {
		return nil, errors.ErrInvalidInput.WithDetails("transaction id is required")
	}

	v := &Verification{
		TransactionID: transactionID,
		Expected:      audit.Fingerprint(transactionID),
	}

	_, err := s.log.GetTransaction(ctx, transactionID)
	switch {
	case err == nil:
		v.TransactionExists = true
	case stderrors.Is(err, errors.ErrTransactionNotFound):
	default:
		return nil, err
	}

	entry, err := s.trail.Find(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		v.FingerprintPresent = true
		v.Recorded = entry.Fingerprint
		v.Matches = entry.Fingerprint == v.Expected
	}

	if v.TransactionExists && !v.Matches {
		s.logger.Warn("Audit gap detected", "transaction_id", transactionID, "fingerprint_present", v.FingerprintPresent)
	}
	return v, nil
}
