package credentials

import (
	"context"
	"sync"

	"github.com/agentoven/agentoven/control-plane/pkg/models"
)

// MemoryDurableStore is an in-memory DurableStore, used in tests and as
// the zero-config local-dev fallback — mirrors the teacher's
// internal/store.MemoryStore map+mutex shape.
type MemoryDurableStore struct {
	mu   sync.RWMutex
	rows map[cacheKey]*models.OAuthCredential
}

// NewMemoryDurableStore creates an empty in-memory durable store.
func NewMemoryDurableStore() *MemoryDurableStore {
	return &MemoryDurableStore{rows: make(map[cacheKey]*models.OAuthCredential)}
}

func (m *MemoryDurableStore) Load(_ context.Context, connectionID string, credType models.CredentialType) (*models.OAuthCredential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[cacheKey{connectionID, credType}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *MemoryDurableStore) Save(_ context.Context, cred *models.OAuthCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *cred
	m.rows[cacheKey{cred.ConnectionID, cred.CredentialType}] = &cp
	return nil
}

func (m *MemoryDurableStore) Delete(_ context.Context, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.rows {
		if k.connectionID == connectionID {
			delete(m.rows, k)
		}
	}
	return nil
}

func (m *MemoryDurableStore) Ping(context.Context) error { return nil }
func (m *MemoryDurableStore) Close() error               { return nil }
