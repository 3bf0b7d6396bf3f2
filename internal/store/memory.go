package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultLimit is the number of records the memory store keeps.
const DefaultLimit = 100

// MemoryStore keeps the most recent records in memory, optionally
// persisted to a JSON snapshot that is replaced atomically on every save.
type MemoryStore struct {
	mu       sync.RWMutex
	records  []*Record // oldest first
	limit    int
	snapshot string
}

// NewMemoryStore creates a memory store and loads the snapshot if present.
func NewMemoryStore(snapshotPath string, limit int) (*MemoryStore, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	ms := &MemoryStore{limit: limit, snapshot: snapshotPath}
	if snapshotPath != "" {
		if err := ms.loadSnapshot(); err != nil {
			return nil, err
		}
	}
	return ms, nil
}

func (m *MemoryStore) Save(ctx context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.records[:0]
	for _, old := range m.records {
		if old.ID != r.ID {
			kept = append(kept, old)
		}
	}
	kept = append(kept, r)
	if len(kept) > m.limit {
		kept = kept[len(kept)-m.limit:]
	}
	m.records = kept

	if m.snapshot != "" {
		return m.saveSnapshot()
	}
	return nil
}

func (m *MemoryStore) Latest(ctx context.Context) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.records) == 0 {
		return nil, ErrNotFound
	}
	return m.records[len(m.records)-1], nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].ID == id {
			return m.records[i], nil
		}
	}
	return nil, ErrNotFound
}

// Len returns the number of kept records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) loadSnapshot() error {
	data, err := os.ReadFile(m.snapshot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var records []*Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	if len(records) > m.limit {
		records = records[len(records)-m.limit:]
	}
	m.records = records
	return nil
}

// saveSnapshot must be called with the lock held.
func (m *MemoryStore) saveSnapshot() error {
	data, err := json.MarshalIndent(m.records, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(m.snapshot)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".predictions-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), m.snapshot)
}
