// Package automation implements the Normalizer & Persister (C5): it
// turns a scored candidate into a DiscoveredAutomation and upserts it
// respecting I-2 (re-observation semantics), behind a striped keyed
// lock that serializes writes per (connection_id, external_id) (§4.5,
// §5).
package automation

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/agentoven/agentoven/control-plane/internal/aisignal"
	"github.com/agentoven/agentoven/control-plane/internal/collector"
	"github.com/agentoven/agentoven/control-plane/pkg/models"
)

// Store is the durable automation inventory the Persister writes to
// and the Inventory Query Service (C8) reads from.
type Store interface {
	// Upsert applies I-2: if (connection_id, external_id) exists, update
	// mutable fields and advance last_seen_at/is_active; else insert with
	// both timestamps set to now.
	Upsert(ctx context.Context, a *models.DiscoveredAutomation, now time.Time) error
	// MarkMissing increments missed_runs for every automation on
	// connectionID not present in seenExternalIDs for this run, and
	// soft-deletes (is_active=false) any that cross staleAfterRuns.
	MarkMissing(ctx context.Context, connectionID string, seenExternalIDs map[string]struct{}, staleAfterRuns int) error
	// List serves C8's list/group_by_vendor operations with connection
	// LEFT JOIN semantics (I-1, P6).
	List(ctx context.Context, orgID string, filter Filter) ([]models.DiscoveredAutomation, error)
	// Stats serves C8's stats operation.
	Stats(ctx context.Context, orgID string) (models.InventoryStats, error)
	CountForRun(ctx context.Context, runID string) (int, error)
}

// Filter narrows List's result set (§4.8). Zero values mean "no filter"
// except IsActive, which is a pointer so "unset" is distinguishable
// from "false".
type Filter struct {
	PlatformType   *models.PlatformType
	AutomationType *models.AutomationType
	RiskLevel      *models.RiskLevel
	IsActive       *bool
	Search         string
	Page           int
	Limit          int
}

// Persister wires a scored-candidate stream (from C3/C4) into a Store,
// normalizing RawCandidate + Signal + RiskAssessment into
// DiscoveredAutomation and serializing writes per (connection_id,
// external_id) with a striped lock.
type Persister struct {
	store   Store
	stripes []sync.Mutex
}

// NewPersister builds a persister with the given lock stripe count
// (persister.stripes, default 256).
func NewPersister(store Store, stripes int) *Persister {
	if stripes <= 0 {
		stripes = 256
	}
	return &Persister{store: store, stripes: make([]sync.Mutex, stripes)}
}

func (p *Persister) stripeFor(connectionID, externalID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(connectionID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(externalID))
	return &p.stripes[h.Sum32()%uint32(len(p.stripes))]
}

// Normalize builds a DiscoveredAutomation from a raw candidate and its
// C3/C4 outputs. It does not set first_discovered_at/last_seen_at —
// those are the Store's responsibility under I-2.
func Normalize(orgID, connectionID, runID string, cand *collector.RawCandidate, sig aisignal.Signal, risk models.RiskAssessment) *models.DiscoveredAutomation {
	status := "active"
	actions := cand.Actions
	if actions == nil {
		actions = []string{}
	}
	permissions := cand.Scopes
	if permissions == nil {
		permissions = []string{}
	}
	return &models.DiscoveredAutomation{
		OrganizationID:      orgID,
		ConnectionID:        connectionID,
		DiscoveryRunID:      runID,
		ExternalID:          cand.ExternalID,
		Name:                cand.Name,
		AutomationType:      cand.TypeHint,
		Status:              status,
		TriggerType:         cand.TriggerHint,
		Actions:             actions,
		PermissionsRequired: permissions,
		OwnerInfo:           cand.OwnerInfo,
		PlatformMetadata:    cand.PlatformMetadata,
		Risk:                risk,
		IsActive:            true,
	}
}

// Persist normalizes and upserts one scored candidate, serialized per
// (connection_id, external_id).
func (p *Persister) Persist(ctx context.Context, orgID, connectionID, runID string, cand *collector.RawCandidate, sig aisignal.Signal, risk models.RiskAssessment, now time.Time) error {
	a := Normalize(orgID, connectionID, runID, cand, sig, risk)
	mu := p.stripeFor(connectionID, cand.ExternalID)
	mu.Lock()
	defer mu.Unlock()
	return p.store.Upsert(ctx, a, now)
}

// MarkMissing delegates to the store; see Store.MarkMissing.
func (p *Persister) MarkMissing(ctx context.Context, connectionID string, seenExternalIDs map[string]struct{}, staleAfterRuns int) error {
	return p.store.MarkMissing(ctx, connectionID, seenExternalIDs, staleAfterRuns)
}

// CountForRun implements I-3: automations_found equals the number of
// distinct rows with discovery_run_id = run.id at completion.
func (p *Persister) CountForRun(ctx context.Context, runID string) (int, error) {
	return p.store.CountForRun(ctx, runID)
}
