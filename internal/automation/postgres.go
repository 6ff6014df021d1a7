package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentoven/agentoven/control-plane/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PostgresStore implements Store over discovered_automations, joined
// against platform_connections for the read-side I-1/P6 contract.
// Follows the same pgxpool.New + inline migrate() shape as
// credentials.PostgresDurableStore.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("automation store connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("automation store ping: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("automation store migrate: %w", err)
	}
	log.Info().Msg("automation store (postgres) initialized")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS discovered_automations (
			id                   TEXT PRIMARY KEY,
			organization_id      TEXT NOT NULL,
			platform_connection_id TEXT NOT NULL,
			discovery_run_id     TEXT NOT NULL,
			external_id          TEXT NOT NULL,
			name                 TEXT NOT NULL,
			automation_type      TEXT NOT NULL,
			status               TEXT NOT NULL,
			trigger_type         TEXT,
			actions              TEXT NOT NULL DEFAULT '[]',
			permissions_required TEXT NOT NULL DEFAULT '[]',
			owner_info           TEXT NOT NULL DEFAULT '{}',
			platform_metadata    TEXT NOT NULL DEFAULT '{}',
			risk                 TEXT NOT NULL DEFAULT '{}',
			first_discovered_at  TIMESTAMPTZ NOT NULL,
			last_seen_at         TIMESTAMPTZ NOT NULL,
			is_active            BOOLEAN NOT NULL DEFAULT TRUE,
			missed_runs          INT NOT NULL DEFAULT 0,
			UNIQUE (platform_connection_id, external_id)
		);
	`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return err
	}
	const idx = `CREATE INDEX IF NOT EXISTS idx_discovered_automations_org ON discovered_automations (organization_id, last_seen_at DESC, first_discovered_at DESC);`
	_, err := s.pool.Exec(ctx, idx)
	return err
}

func (s *PostgresStore) Upsert(ctx context.Context, a *models.DiscoveredAutomation, now time.Time) error {
	actions, err := json.Marshal(a.Actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}
	perms, err := json.Marshal(a.PermissionsRequired)
	if err != nil {
		return fmt.Errorf("marshal permissions_required: %w", err)
	}
	owner, err := json.Marshal(a.OwnerInfo)
	if err != nil {
		return fmt.Errorf("marshal owner_info: %w", err)
	}
	meta, err := json.Marshal(a.PlatformMetadata)
	if err != nil {
		return fmt.Errorf("marshal platform_metadata: %w", err)
	}
	risk, err := json.Marshal(a.Risk)
	if err != nil {
		return fmt.Errorf("marshal risk: %w", err)
	}

	if a.ID == "" {
		a.ID = newAutomationID()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO discovered_automations (
			id, organization_id, platform_connection_id, discovery_run_id, external_id, name,
			automation_type, status, trigger_type, actions, permissions_required, owner_info,
			platform_metadata, risk, first_discovered_at, last_seen_at, is_active, missed_runs
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,TRUE,0)
		ON CONFLICT (platform_connection_id, external_id) DO UPDATE SET
			discovery_run_id = $4,
			name = $6,
			automation_type = $7,
			status = $8,
			trigger_type = $9,
			actions = $10,
			permissions_required = $11,
			owner_info = $12,
			platform_metadata = $13,
			risk = $14,
			last_seen_at = $16,
			is_active = TRUE,
			missed_runs = 0
	`, a.ID, a.OrganizationID, a.ConnectionID, a.DiscoveryRunID, a.ExternalID, a.Name,
		a.AutomationType, a.Status, a.TriggerType, string(actions), string(perms), string(owner),
		string(meta), string(risk), now, now)
	if err != nil {
		return fmt.Errorf("upsert automation: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkMissing(ctx context.Context, connectionID string, seenExternalIDs map[string]struct{}, staleAfterRuns int) error {
	rows, err := s.pool.Query(ctx, `
		SELECT external_id FROM discovered_automations
		WHERE platform_connection_id = $1 AND is_active = TRUE
	`, connectionID)
	if err != nil {
		return fmt.Errorf("mark missing select: %w", err)
	}
	var missing []string
	for rows.Next() {
		var extID string
		if err := rows.Scan(&extID); err != nil {
			rows.Close()
			return err
		}
		if _, seen := seenExternalIDs[extID]; !seen {
			missing = append(missing, extID)
		}
	}
	rows.Close()
	if len(missing) == 0 {
		return nil
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE discovered_automations
		SET missed_runs = missed_runs + 1,
		    is_active = (missed_runs + 1 < $3)
		WHERE platform_connection_id = $1 AND external_id = ANY($2)
	`, connectionID, missing, staleAfterRuns)
	if err != nil {
		return fmt.Errorf("mark missing update: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, orgID string, filter Filter) ([]models.DiscoveredAutomation, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	var sb strings.Builder
	sb.WriteString(`
		SELECT a.id, a.organization_id, a.platform_connection_id, a.discovery_run_id, a.external_id, a.name,
		       a.automation_type, a.status, a.trigger_type, a.actions, a.permissions_required, a.owner_info,
		       a.platform_metadata, a.risk, a.first_discovered_at, a.last_seen_at, a.is_active, a.missed_runs,
		       c.platform_type
		FROM discovered_automations a
		LEFT JOIN platform_connections c ON c.id = a.platform_connection_id
		WHERE a.organization_id = $1
	`)
	args := []interface{}{orgID}
	argN := 2

	if filter.PlatformType != nil {
		sb.WriteString(fmt.Sprintf(" AND c.platform_type = $%d", argN))
		args = append(args, *filter.PlatformType)
		argN++
	}
	if filter.AutomationType != nil {
		sb.WriteString(fmt.Sprintf(" AND a.automation_type = $%d", argN))
		args = append(args, *filter.AutomationType)
		argN++
	}
	if filter.IsActive != nil {
		sb.WriteString(fmt.Sprintf(" AND a.is_active = $%d", argN))
		args = append(args, *filter.IsActive)
		argN++
	}
	if filter.Search != "" {
		sb.WriteString(fmt.Sprintf(" AND (a.name ILIKE $%d OR a.platform_metadata ILIKE $%d)", argN, argN))
		args = append(args, "%"+filter.Search+"%")
		argN++
	}
	sb.WriteString(" ORDER BY a.last_seen_at DESC, a.first_discovered_at DESC")
	sb.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argN, argN+1))
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list automations: %w", err)
	}
	defer rows.Close()

	var out []models.DiscoveredAutomation
	for rows.Next() {
		a, pt, err := scanAutomation(rows)
		if err != nil {
			return nil, err
		}
		a.PlatformType = pt
		if filter.RiskLevel != nil && a.Risk.RiskLevel != *filter.RiskLevel {
			continue
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAutomation(row scanner) (models.DiscoveredAutomation, *models.PlatformType, error) {
	var a models.DiscoveredAutomation
	var actions, perms, owner, meta, risk string
	var pt *models.PlatformType

	err := row.Scan(&a.ID, &a.OrganizationID, &a.ConnectionID, &a.DiscoveryRunID, &a.ExternalID, &a.Name,
		&a.AutomationType, &a.Status, &a.TriggerType, &actions, &perms, &owner,
		&meta, &risk, &a.FirstDiscoveredAt, &a.LastSeenAt, &a.IsActive, &a.MissedRuns, &pt)
	if err != nil {
		return a, nil, fmt.Errorf("scan automation: %w", err)
	}

	if err := json.Unmarshal([]byte(actions), &a.Actions); err != nil {
		return a, nil, fmt.Errorf("unmarshal actions: %w", err)
	}
	if err := json.Unmarshal([]byte(perms), &a.PermissionsRequired); err != nil {
		return a, nil, fmt.Errorf("unmarshal permissions_required: %w", err)
	}
	if err := json.Unmarshal([]byte(owner), &a.OwnerInfo); err != nil {
		return a, nil, fmt.Errorf("unmarshal owner_info: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &a.PlatformMetadata); err != nil {
		return a, nil, fmt.Errorf("unmarshal platform_metadata: %w", err)
	}
	if err := json.Unmarshal([]byte(risk), &a.Risk); err != nil {
		return a, nil, fmt.Errorf("unmarshal risk: %w", err)
	}
	return a, pt, nil
}

func (s *PostgresStore) Stats(ctx context.Context, orgID string) (models.InventoryStats, error) {
	stats := models.InventoryStats{
		ByPlatformType:   make(map[models.PlatformType]int),
		ByRiskLevel:      make(map[models.RiskLevel]int),
		ByAutomationType: make(map[models.AutomationType]int),
	}

	rows, err := s.pool.Query(ctx, `
		SELECT a.automation_type, a.risk, c.platform_type
		FROM discovered_automations a
		LEFT JOIN platform_connections c ON c.id = a.platform_connection_id
		WHERE a.organization_id = $1 AND a.is_active = TRUE
	`, orgID)
	if err != nil {
		return stats, fmt.Errorf("stats query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var automationType models.AutomationType
		var riskJSON string
		var pt *models.PlatformType
		if err := rows.Scan(&automationType, &riskJSON, &pt); err != nil {
			return stats, fmt.Errorf("scan stats row: %w", err)
		}
		var risk models.RiskAssessment
		if err := json.Unmarshal([]byte(riskJSON), &risk); err != nil {
			return stats, fmt.Errorf("unmarshal risk: %w", err)
		}
		stats.Total++
		stats.ByAutomationType[automationType]++
		stats.ByRiskLevel[risk.RiskLevel]++
		if pt != nil {
			stats.ByPlatformType[*pt]++
		}
	}
	return stats, rows.Err()
}

func (s *PostgresStore) CountForRun(ctx context.Context, runID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM discovered_automations WHERE discovery_run_id = $1`, runID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count for run: %w", err)
	}
	return count, nil
}

func newAutomationID() string {
	return fmt.Sprintf("auto_%s", uuid.New().String())
}
