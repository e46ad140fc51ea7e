package storage

import (
	"context"
	"sync"

	"github.com/amureki/deadlock-changelog-bot/pkg/models"
)

// MemoryLedger remembers deliveries for the lifetime of the process.
type MemoryLedger struct {
	mu sync.Mutex
	v  map[string]bool
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{v: make(map[string]bool)}
}

func (m *MemoryLedger) Seen(_ context.Context, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.v[url], nil
}

func (m *MemoryLedger) Record(_ context.Context, entry models.ChangelogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.v[entry.URL] = true
	return nil
}
