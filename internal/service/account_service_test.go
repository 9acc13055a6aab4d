package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger-core/internal/audit"
	"ledger-core/internal/domain"
	"ledger-core/internal/errors"
	"ledger-core/internal/repository/memory"
)

func newAccountService(t *testing.T) (*AccountService, *memory.Store, *audit.MemoryStore) {
	t.Helper()
	store := memory.NewStore()
	auditLog := audit.NewMemoryStore()
	logger := discardLogger()
	ledger := NewLedgerService(store, audit.NewTrail(auditLog, logger), nil, logger, testRetry)
	return NewAccountService(store, ledger, logger), store, auditLog
}

func TestCreateAccount(t *testing.T) {
	ctx := context.Background()
	svc, store, auditLog := newAccountService(t)

	acc, err := svc.CreateAccount(ctx, CreateAccountRequest{
		UserID:         "u1",
		AccountType:    "checking",
		InitialBalance: dec("250.75"),
	})
	require.NoError(t, err)

	assert.True(t, acc.Active)
	assert.Len(t, acc.AccountNumber, 12)
	assert.True(t, dec("250.75").Equal(acc.Balance))
	assert.Equal(t, int64(1), acc.Version)

	txs, err := store.TransactionsByAccount(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.Deposit, txs[0].Type)
	assert.Equal(t, "initial deposit", txs[0].Description)

	entry, err := auditLog.Find(ctx, txs[0].ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "u1", *entry.FromUserID)
}

func TestCreateAccountWithoutOpeningBalance(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newAccountService(t)

	acc, err := svc.CreateAccount(ctx, CreateAccountRequest{
		UserID:        "u1",
		AccountType:   "savings",
		AccountNumber: "123456789012",
	})
	require.NoError(t, err)
	assert.Equal(t, "123456789012", acc.AccountNumber)
	assert.True(t, acc.Balance.IsZero())

	txs, err := store.TransactionsByAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)

	_, err = svc.CreateAccount(ctx, CreateAccountRequest{
		UserID:        "u2",
		AccountType:   "savings",
		AccountNumber: "123456789012",
	})
	assert.ErrorIs(t, err, errors.ErrDuplicateAccount)
}

func TestCreateAccountValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newAccountService(t)

	tests := []struct {
		name string
		req  CreateAccountRequest
		want error
	}{
		{"missing user", CreateAccountRequest{AccountType: "checking"}, errors.ErrInvalidInput},
		{"missing type", CreateAccountRequest{UserID: "u1"}, errors.ErrInvalidInput},
		{"negative balance", CreateAccountRequest{UserID: "u1", AccountType: "checking", InitialBalance: dec("-1")}, errors.ErrInvalidAmount},
		{"over limit", CreateAccountRequest{UserID: "u1", AccountType: "checking", InitialBalance: dec("10000000000.01")}, errors.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateAccount(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAccountQueries(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newAccountService(t)

	a, err := svc.CreateAccount(ctx, CreateAccountRequest{UserID: "u1", AccountType: "checking"})
	require.NoError(t, err)
	_, err = svc.CreateAccount(ctx, CreateAccountRequest{UserID: "u1", AccountType: "savings"})
	require.NoError(t, err)
	_, err = svc.CreateAccount(ctx, CreateAccountRequest{UserID: "u2", AccountType: "checking"})
	require.NoError(t, err)

	got, err := svc.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	got, err = svc.GetAccountByNumber(ctx, a.AccountNumber)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	owned, err := svc.ListAccounts(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, owned, 2)

	all, err := svc.ListAccounts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = svc.GetAccount(ctx, "missing")
	assert.ErrorIs(t, err, errors.ErrAccountNotFound)

	_, err = svc.GetAccount(ctx, "")
	assert.ErrorIs(t, err, errors.ErrInvalidAccountID)
}
