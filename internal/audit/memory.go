package audit

import (
	"context"
	"sync"

	"ledger-core/internal/domain"
	"ledger-core/internal/errors"
)

// MemoryStore keeps fingerprints in insertion order with an id index for
// constant-time lookup.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []domain.AuditFingerprint
	index   map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: make(map[string]int)}
}

var _ domain.AuditStore = (*MemoryStore)(nil)

func (m *MemoryStore) Append(_ context.Context, entry domain.AuditFingerprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.appendLocked(entry)
}

func (m *MemoryStore) appendLocked(entry domain.AuditFingerprint) error {
	if _, exists := m.index[entry.TransactionID]; exists {
		return errors.ErrDuplicateFingerprint.WithDetails(entry.TransactionID)
	}
	m.index[entry.TransactionID] = len(m.entries)
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MemoryStore) Find(_ context.Context, transactionID string) (*domain.AuditFingerprint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.index[transactionID]
	if !ok {
		return nil, nil
	}
	entry := m.entries[i]
	return &entry, nil
}

func (m *MemoryStore) List(_ context.Context, limit int) ([]domain.AuditFingerprint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return tail(m.entries, limit), nil
}

// tail copies the last limit entries, or all of them when limit <= 0.
func tail(entries []domain.AuditFingerprint, limit int) []domain.AuditFingerprint {
	start := 0
	if limit > 0 && limit < len(entries) {
		start = len(entries) - limit
	}
	out := make([]domain.AuditFingerprint, len(entries)-start)
	copy(out, entries[start:])
	return out
}
