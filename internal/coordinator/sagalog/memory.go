package sagalog

import (
	"context"
	"sync"
)

// MemoryRepository keeps entries in process. Used by tests and when no saga
// log database is configured.
type MemoryRepository struct {
	mu      sync.Mutex
	entries map[string][]SagaLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[string][]SagaLog)}
}

func (m *MemoryRepository) Save(_ context.Context, entry *SagaLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.SagaID] = append(m.entries[entry.SagaID], *entry)
	return nil
}

func (m *MemoryRepository) History(_ context.Context, sagaID string) ([]SagaLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SagaLog, len(m.entries[sagaID]))
	copy(out, m.entries[sagaID])
	return out, nil
}

func (m *MemoryRepository) Latest(_ context.Context, sagaID string) (*SagaLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.entries[sagaID]
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	last := entries[len(entries)-1]
	return &last, nil
}
