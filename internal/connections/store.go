// Package connections implements the platform_connections read model
// (§6.1). Organizations and connections themselves are created and
// managed by an external onboarding collaborator (§6.2); the core only
// ever reads them — to resolve platform_type for a collector or
// credential refresh, and to serve the LEFT JOIN projection C5/C8 need
// (I-1, §4.5 P6).
package connections

import (
	"context"

	"github.com/agentoven/agentoven/control-plane/pkg/models"
)

// Store is the read (and upsert, for seeding by the external
// collaborator) surface over platform_connections. It satisfies
// credentials.ConnectionLookup, discovery.ConnectionLookup, and
// automation.ConnectionPlatformLookup without importing any of those
// packages, keeping connections a leaf dependency.
type Store interface {
	GetConnection(ctx context.Context, connectionID string) (*models.PlatformConnection, error)
	PlatformTypeFor(ctx context.Context, connectionID string) (models.PlatformType, bool, error)
	Upsert(ctx context.Context, conn *models.PlatformConnection) error
	ListByOrg(ctx context.Context, orgID string) ([]models.PlatformConnection, error)
}
