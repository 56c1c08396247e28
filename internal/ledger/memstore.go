package ledger

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store for tests and dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	ids     map[string]bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: make(map[string]bool)}
}

func (m *MemoryStore) Tip(_ context.Context) (string, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.entries) == 0 {
		return "", 0, nil
	}
	last := m.entries[len(m.entries)-1]
	return last.Hash, last.Seq, nil
}

func (m *MemoryStore) Insert(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insert(e)
}

// Append holds the write lock from the tip read through the insert.
func (m *MemoryStore) Append(_ context.Context, build BuildFunc) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tip, seq := Genesis, int64(0)
	if n := len(m.entries); n > 0 {
		tip, seq = m.entries[n-1].Hash, m.entries[n-1].Seq
	}
	e, err := build(tip, seq)
	if err != nil {
		return Entry{}, err
	}
	if err := m.insert(e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (m *MemoryStore) insert(e Entry) error {
	tip := Genesis
	if n := len(m.entries); n > 0 {
		tip = m.entries[n-1].Hash
	}
	if e.PrevHash != tip {
		return ErrChainConflict
	}
	if m.ids[e.ID] {
		return fmt.Errorf("duplicate entry id %q", e.ID)
	}
	e.Payload = e.Payload.Clone()
	m.entries = append(m.entries, e)
	m.ids[e.ID] = true
	return nil
}

func (m *MemoryStore) Read(_ context.Context, f Filter) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, 0)
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if !f.Matches(e) {
			continue
		}
		e.Payload = e.Payload.Clone()
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) All(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, len(m.entries))
	for i, e := range m.entries {
		e.Payload = e.Payload.Clone()
		out[i] = e
	}
	return out, nil
}
