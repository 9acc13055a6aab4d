package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ledger-core/internal/domain"
	"ledger-core/internal/errors"
)

const fileFormatVersion = 1

type fileMeta struct {
	Storage   string    `json:"storage"`
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

type fileSnapshot struct {
	Meta    fileMeta                  `json:"_meta"`
	Entries []domain.AuditFingerprint `json:"entries"`
}

// FileStore persists fingerprints as a JSON document. Every append rewrites
// the document through a temp file and rename, so a crash mid-write leaves
// the previous version intact.
type FileStore struct {
	path string
	mem  *MemoryStore
}

// OpenFileStore loads path if it exists, or starts an empty trail.
func OpenFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path, mem: NewMemoryStore()}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return fs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	defer f.Close()

	var snap fileSnapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode audit file: %w", err)
	}
	for _, entry := range snap.Entries {
		if err := fs.mem.appendLocked(entry); err != nil {
			return nil, fmt.Errorf("audit file %s: %w", path, err)
		}
	}
	return fs, nil
}

var _ domain.AuditStore = (*FileStore)(nil)

func (s *FileStore) Append(_ context.Context, entry domain.AuditFingerprint) error {
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()

	if err := s.mem.appendLocked(entry); err != nil {
		return err
	}

	if err := s.save(s.mem.entries); err != nil {
		// undo the in-memory append so memory and disk agree
		delete(s.mem.index, entry.TransactionID)
		s.mem.entries = s.mem.entries[:len(s.mem.entries)-1]
		return errors.Internal("failed to write audit file", err)
	}
	return nil
}

func (s *FileStore) Find(ctx context.Context, transactionID string) (*domain.AuditFingerprint, error) {
	return s.mem.Find(ctx, transactionID)
}

func (s *FileStore) List(ctx context.Context, limit int) ([]domain.AuditFingerprint, error) {
	return s.mem.List(ctx, limit)
}

func (s *FileStore) save(entries []domain.AuditFingerprint) error {
	snap := fileSnapshot{
		Meta: fileMeta{
			Storage:   "json_fingerprints",
			Version:   fileFormatVersion,
			Timestamp: time.Now().UTC(),
		},
		Entries: entries,
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, s.path)
}
