package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ledger-core/internal/audit"
	"ledger-core/internal/domain"
	"ledger-core/internal/errors"
	"ledger-core/internal/repository/memory"
)

func TestAuditServiceVerify(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	auditLog := audit.NewMemoryStore()
	logger := discardLogger()
	trail := audit.NewTrail(auditLog, logger)

	ledger := NewLedgerService(store, trail, nil, logger, testRetry)
	auditSvc := NewAuditService(trail, store, logger)
	seedAccount(t, store, "a", "0")

	receipt, err := ledger.Deposit(ctx, "a", dec("5"), "")
	require.NoError(t, err)

	v, err := auditSvc.Verify(ctx, receipt.TransactionID)
	require.NoError(t, err)
	assert.True(t, v.TransactionExists)
	assert.True(t, v.FingerprintPresent)
	assert.True(t, v.Matches)

	v, err = auditSvc.Verify(ctx, "never-committed")
	require.NoError(t, err)
	assert.False(t, v.TransactionExists)
	assert.False(t, v.FingerprintPresent)

	_, err = auditSvc.Verify(ctx, "")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestAuditServiceDetectsGap(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	logger := discardLogger()
	seedAccount(t, store, "a", "0")

	// commit without any audit trail, then inspect with an empty one
	ledger := NewLedgerService(store, nil, nil, logger, testRetry)
	receipt, err := ledger.Deposit(ctx, "a", dec("5"), "")
	require.NoError(t, err)

	auditSvc := NewAuditService(audit.NewTrail(audit.NewMemoryStore(), logger), store, logger)
	v, err := auditSvc.Verify(ctx, receipt.TransactionID)
	require.NoError(t, err)
	assert.True(t, v.TransactionExists)
	assert.False(t, v.FingerprintPresent)
	assert.False(t, v.Matches)
}

func TestAuditServiceFind(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()

	auditStore := new(mockAuditStore)
	entry := &domain.AuditFingerprint{
		TransactionID: "tx-1",
		Fingerprint:   audit.Fingerprint("tx-1"),
		CreatedAt:     time.Now().UTC(),
	}
	auditStore.On("Find", mock.Anything, "tx-1").Return(entry, nil)
	auditStore.On("Find", mock.Anything, "tx-2").Return(nil, nil)
	auditStore.On("List", mock.Anything, 1).Return([]domain.AuditFingerprint{*entry}, nil)

	svc := NewAuditService(audit.NewTrail(auditStore, logger), memory.NewStore(), logger)

	got, err := svc.Find(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, entry.Fingerprint, got.Fingerprint)

	_, err = svc.Find(ctx, "tx-2")
	assert.ErrorIs(t, err, errors.ErrFingerprintNotFound)

	list, err := svc.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	auditStore.AssertExpectations(t)
}
