package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ledger-core/internal/domain"
	"ledger-core/internal/errors"
)

// Store is an in-memory domain.LedgerStore. A single mutex serializes
// commits; readers always receive copies.
type Store struct {
	mu        sync.RWMutex
	accounts  map[string]*domain.Account
	byNumber  map[string]string
	txs       []domain.Transaction
	txIndex   map[string]int
	lastStamp time.Time
	now       func() time.Time
}

func NewStore() *Store {
	return &Store{
		accounts: make(map[string]*domain.Account),
		byNumber: make(map[string]string),
		txIndex:  make(map[string]int),
		now:      time.Now,
	}
}

var _ domain.LedgerStore = (*Store)(nil)

func (s *Store) GetAccount(_ context.Context, id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, errors.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) GetAccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	s.mu.RLock()
	id, ok := s.byNumber[number]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.ErrAccountNotFound
	}
	return s.GetAccount(ctx, id)
}

func (s *Store) ListAccountsByUser(_ context.Context, userID string) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Account, 0)
	for _, a := range s.accounts {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	sortAccounts(out)
	return out, nil
}

func (s *Store) ListAccounts(_ context.Context) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, *a)
	}
	sortAccounts(out)
	return out, nil
}

// ApplyAtomic validates the whole unit against current state before touching
// anything, so a rejected unit leaves no trace.
func (s *Store) ApplyAtomic(_ context.Context, unit *domain.UnitOfWork) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(unit); err != nil {
		return err
	}

	now := s.stamp()
	unit.Stamp(now)

	for _, a := range unit.Creates {
		created := a
		created.Version = 1
		created.CreatedAt = now
		created.UpdatedAt = now
		s.accounts[created.ID] = &created
		s.byNumber[created.AccountNumber] = created.ID
	}

	for _, w := range unit.Writes {
		current := s.accounts[w.Account.ID]
		if current.AccountNumber != w.Account.AccountNumber {
			delete(s.byNumber, current.AccountNumber)
			s.byNumber[w.Account.AccountNumber] = current.ID
		}
		updated := w.Account
		updated.Version = current.Version + 1
		updated.CreatedAt = current.CreatedAt
		updated.UpdatedAt = now
		s.accounts[updated.ID] = &updated
	}

	for _, tx := range unit.Transactions {
		s.txIndex[tx.ID] = len(s.txs)
		s.txs = append(s.txs, tx)
	}

	return nil
}

func (s *Store) check(unit *domain.UnitOfWork) error {
	numbers := make(map[string]string)
	for _, a := range unit.Creates {
		if _, exists := s.accounts[a.ID]; exists {
			return errors.ErrDuplicateAccount.WithDetails("account id " + a.ID)
		}
		if _, exists := s.byNumber[a.AccountNumber]; exists {
			return errors.ErrDuplicateAccount.WithDetails("account number " + a.AccountNumber)
		}
		if _, exists := numbers[a.AccountNumber]; exists {
			return errors.ErrDuplicateAccount.WithDetails("account number " + a.AccountNumber)
		}
		if a.Balance.IsNegative() {
			return errors.ErrInsufficientFunds
		}
		numbers[a.AccountNumber] = a.ID
	}

	for _, w := range unit.Writes {
		current, ok := s.accounts[w.Account.ID]
		if !ok {
			return errors.ErrAccountNotFound.WithDetails(w.Account.ID)
		}
		if current.Version != w.ExpectedVersion {
			return errors.ErrConflict.WithDetails(w.Account.ID)
		}
		if !current.Active {
			return errors.ErrAccountInactive.WithDetails(w.Account.ID)
		}
		if w.Account.Balance.IsNegative() {
			return errors.ErrInsufficientFunds.WithDetails(w.Account.ID)
		}
		if w.Account.AccountNumber != current.AccountNumber {
			if owner, taken := s.byNumber[w.Account.AccountNumber]; taken && owner != current.ID {
				return errors.ErrDuplicateAccount.WithDetails("account number " + w.Account.AccountNumber)
			}
		}
	}

	for _, tx := range unit.Transactions {
		if _, exists := s.txIndex[tx.ID]; exists {
			return errors.Internal("duplicate transaction id", nil).WithDetails(tx.ID)
		}
	}
	return nil
}

// stamp returns a commit time that never goes backwards.
func (s *Store) stamp() time.Time {
	now := s.now().UTC()
	if now.Before(s.lastStamp) {
		now = s.lastStamp
	}
	s.lastStamp = now
	return now
}

func (s *Store) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.txIndex[id]
	if !ok {
		return nil, errors.ErrTransactionNotFound
	}
	tx := s.txs[i]
	return &tx, nil
}

func (s *Store) TransactionsByAccount(_ context.Context, accountID string) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.newestFirst(func(tx domain.Transaction) bool {
		return tx.Involves(accountID)
	}), nil
}

func (s *Store) TransactionsByUser(_ context.Context, userID string) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owned := make(map[string]bool)
	for id, a := range s.accounts {
		if a.UserID == userID {
			owned[id] = true
		}
	}

	return s.newestFirst(func(tx domain.Transaction) bool {
		if owned[tx.AccountID] {
			return true
		}
		return tx.DestinationAccountID != nil && owned[*tx.DestinationAccountID]
	}), nil
}

// newestFirst walks the log backwards; insertion order already follows
// commit order.
func (s *Store) newestFirst(match func(domain.Transaction) bool) []domain.Transaction {
	out := make([]domain.Transaction, 0)
	for i := len(s.txs) - 1; i >= 0; i-- {
		if match(s.txs[i]) {
			out = append(out, s.txs[i])
		}
	}
	return out
}

func sortAccounts(accounts []domain.Account) {
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].ID < accounts[j].ID
		}
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
}
