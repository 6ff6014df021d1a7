package automation

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentoven/agentoven/control-plane/pkg/models"
	"github.com/tidwall/gjson"
)

// ConnectionPlatformLookup resolves a connection's platform_type for
// the read-side LEFT JOIN (I-1, P6). A missing connection (ok=false)
// must not drop the automation row — the caller leaves PlatformType nil.
type ConnectionPlatformLookup interface {
	PlatformTypeFor(ctx context.Context, connectionID string) (pt models.PlatformType, ok bool, err error)
}

type automationKey struct{ connectionID, externalID string }

// MemoryStore is an in-memory Store, used in tests and as the default
// when no DATABASE_URL is configured.
type MemoryStore struct {
	mu         sync.RWMutex
	rows       map[automationKey]*models.DiscoveredAutomation
	idSeq      int
	connLookup ConnectionPlatformLookup
}

func NewMemoryStore(connLookup ConnectionPlatformLookup) *MemoryStore {
	return &MemoryStore{rows: make(map[automationKey]*models.DiscoveredAutomation), connLookup: connLookup}
}

func (m *MemoryStore) Upsert(ctx context.Context, a *models.DiscoveredAutomation, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := automationKey{a.ConnectionID, a.ExternalID}
	if existing, ok := m.rows[key]; ok {
		// I-2: identity and first_discovered_at are immutable; everything
		// else reflects the new observation.
		a.ID = existing.ID
		a.FirstDiscoveredAt = existing.FirstDiscoveredAt
		a.LastSeenAt = now
		a.IsActive = true
		a.MissedRuns = 0
		m.rows[key] = a
		return nil
	}

	m.idSeq++
	a.ID = genID(m.idSeq)
	a.FirstDiscoveredAt = now
	a.LastSeenAt = now
	a.IsActive = true
	m.rows[key] = a
	return nil
}

func (m *MemoryStore) MarkMissing(ctx context.Context, connectionID string, seenExternalIDs map[string]struct{}, staleAfterRuns int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, a := range m.rows {
		if key.connectionID != connectionID || !a.IsActive {
			continue
		}
		if _, seen := seenExternalIDs[key.externalID]; seen {
			continue
		}
		a.MissedRuns++
		if a.MissedRuns >= staleAfterRuns {
			a.IsActive = false
		}
	}
	return nil
}

func (m *MemoryStore) List(ctx context.Context, orgID string, filter Filter) ([]models.DiscoveredAutomation, error) {
	m.mu.RLock()
	matched := make([]models.DiscoveredAutomation, 0, len(m.rows))
	for _, a := range m.rows {
		if a.OrganizationID != orgID {
			continue
		}
		if !matchesFilter(a, filter) {
			continue
		}
		cp := *a
		matched = append(matched, cp)
	}
	m.mu.RUnlock()

	joined := make([]models.DiscoveredAutomation, 0, len(matched))
	for i := range matched {
		pt, ok, err := m.connLookup.PlatformTypeFor(ctx, matched[i].ConnectionID)
		if err != nil {
			return nil, err
		}
		if ok {
			ptCopy := pt
			matched[i].PlatformType = &ptCopy
		} else {
			matched[i].PlatformType = nil // P6: deleted connection, row survives
		}
		if filter.PlatformType != nil && (matched[i].PlatformType == nil || *matched[i].PlatformType != *filter.PlatformType) {
			continue
		}
		joined = append(joined, matched[i])
	}
	matched = joined

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].LastSeenAt.Equal(matched[j].LastSeenAt) {
			return matched[i].LastSeenAt.After(matched[j].LastSeenAt)
		}
		return matched[i].FirstDiscoveredAt.After(matched[j].FirstDiscoveredAt)
	})

	return paginate(matched, filter.Page, filter.Limit), nil
}

func (m *MemoryStore) Stats(ctx context.Context, orgID string) (models.InventoryStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := models.InventoryStats{
		ByPlatformType:   make(map[models.PlatformType]int),
		ByRiskLevel:      make(map[models.RiskLevel]int),
		ByAutomationType: make(map[models.AutomationType]int),
	}
	for _, a := range m.rows {
		if a.OrganizationID != orgID || !a.IsActive {
			continue
		}
		stats.Total++
		stats.ByRiskLevel[a.Risk.RiskLevel]++
		stats.ByAutomationType[a.AutomationType]++
		if pt, ok, _ := m.connLookup.PlatformTypeFor(ctx, a.ConnectionID); ok {
			stats.ByPlatformType[pt]++
		}
	}
	return stats, nil
}

func (m *MemoryStore) CountForRun(ctx context.Context, runID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, a := range m.rows {
		if a.DiscoveryRunID == runID {
			count++
		}
	}
	return count, nil
}

func matchesFilter(a *models.DiscoveredAutomation, f Filter) bool {
	if f.AutomationType != nil && a.AutomationType != *f.AutomationType {
		return false
	}
	if f.RiskLevel != nil && a.Risk.RiskLevel != *f.RiskLevel {
		return false
	}
	if f.IsActive != nil && a.IsActive != *f.IsActive {
		return false
	}
	if f.Search != "" {
		term := strings.ToLower(f.Search)
		inName := strings.Contains(strings.ToLower(a.Name), term)
		if !inName && !metadataMatchesSearch(a.PlatformMetadata, term) {
			return false
		}
	}
	return true
}

// metadataMatchesSearch reports whether term (already lowercased)
// appears in any leaf value of platform_metadata, without unmarshalling
// it into a known struct first — free-text search over an opaque,
// platform-defined JSON blob (§4.8 `search`).
func metadataMatchesSearch(metadata map[string]interface{}, term string) bool {
	if len(metadata) == 0 {
		return false
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return false
	}
	return gjsonValueContains(gjson.ParseBytes(raw), term)
}

func gjsonValueContains(v gjson.Result, term string) bool {
	switch {
	case v.IsObject(), v.IsArray():
		found := false
		v.ForEach(func(_, val gjson.Result) bool {
			if gjsonValueContains(val, term) {
				found = true
				return false
			}
			return true
		})
		return found
	default:
		return strings.Contains(strings.ToLower(v.String()), term)
	}
}

func paginate(rows []models.DiscoveredAutomation, page, limit int) []models.DiscoveredAutomation {
	if limit <= 0 {
		limit = 50
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(rows) {
		return []models.DiscoveredAutomation{}
	}
	end := start + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

func genID(seq int) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	if seq == 0 {
		return "0"
	}
	var b []byte
	for seq > 0 {
		b = append([]byte{alphabet[seq%len(alphabet)]}, b...)
		seq /= len(alphabet)
	}
	return "auto_" + string(b)
}
