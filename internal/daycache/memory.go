package daycache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/wonny/scanengine/internal/contracts"
)

// MemoryStore keeps encoded days in process memory.
// Rows are stored encoded so a hit returns exactly what was written, never a shared slice.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

func memKey(signature string, date time.Time) string {
	return signature + "|" + DateKey(date)
}

// Get implements contracts.DayCache
func (m *MemoryStore) Get(_ context.Context, signature string, date time.Time) ([]contracts.LedgerRow, bool, error) {
	m.mu.RLock()
	data, ok := m.entries[memKey(signature, date)]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	rows, err := decode(data)
	if err != nil {
		return nil, false, err
	}
	return rows, true, nil
}

// Put implements contracts.DayCache
func (m *MemoryStore) Put(_ context.Context, signature string, date time.Time, rows []contracts.LedgerRow) error {
	data, err := encode(rows)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.entries[memKey(signature, date)] = data
	m.mu.Unlock()
	return nil
}

// PutRaw stores an already-encoded payload; used to seed or repair entries by hand
func (m *MemoryStore) PutRaw(signature string, date time.Time, data []byte) {
	m.mu.Lock()
	m.entries[memKey(signature, date)] = append([]byte(nil), data...)
	m.mu.Unlock()
}

// Clear drops every day of a signature; an empty signature drops everything
func (m *MemoryStore) Clear(_ context.Context, signature string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for k := range m.entries {
		if signature == "" || strings.HasPrefix(k, signature+"|") {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

// Len is the number of cached days
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
