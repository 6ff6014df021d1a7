package connections

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentoven/agentoven/control-plane/pkg/models"
)

// MemoryStore is an in-memory Store, used in tests and as the
// zero-config local-dev fallback.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]*models.PlatformConnection
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*models.PlatformConnection)}
}

func (m *MemoryStore) GetConnection(_ context.Context, connectionID string) (*models.PlatformConnection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[connectionID]
	if !ok {
		return nil, fmt.Errorf("connection %s not found", connectionID)
	}
	cp := *row
	return &cp, nil
}

func (m *MemoryStore) PlatformTypeFor(_ context.Context, connectionID string) (models.PlatformType, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[connectionID]
	if !ok {
		return "", false, nil
	}
	return row.PlatformType, true, nil
}

func (m *MemoryStore) Upsert(_ context.Context, conn *models.PlatformConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *conn
	m.rows[conn.ID] = &cp
	return nil
}

func (m *MemoryStore) ListByOrg(_ context.Context, orgID string) ([]models.PlatformConnection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.PlatformConnection, 0)
	for _, row := range m.rows {
		if row.OrganizationID == orgID {
			out = append(out, *row)
		}
	}
	return out, nil
}
