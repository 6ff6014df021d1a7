package connections

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentoven/agentoven/control-plane/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PostgresStore implements Store over platform_connections (§6.1),
// following the teacher's pgxpool.New + inline migrate() pattern.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("connections store connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connections store ping: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connections store migrate: %w", err)
	}
	log.Info().Msg("connections store (postgres) initialized")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS platform_connections (
			id                     TEXT PRIMARY KEY,
			organization_id        TEXT NOT NULL,
			platform_type          TEXT NOT NULL,
			platform_user_id       TEXT NOT NULL,
			platform_workspace_id  TEXT NOT NULL DEFAULT '',
			status                 TEXT NOT NULL,
			permissions_granted    TEXT NOT NULL DEFAULT '[]',
			expires_at             TIMESTAMPTZ,
			metadata               TEXT NOT NULL DEFAULT '{}',
			created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (organization_id, platform_type, platform_user_id, platform_workspace_id)
		);
	`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *PostgresStore) GetConnection(ctx context.Context, connectionID string) (*models.PlatformConnection, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, organization_id, platform_type, platform_user_id, platform_workspace_id,
		       status, permissions_granted, expires_at, metadata, created_at, updated_at
		FROM platform_connections WHERE id = $1
	`, connectionID)
	return scanConnection(row)
}

func (s *PostgresStore) PlatformTypeFor(ctx context.Context, connectionID string) (models.PlatformType, bool, error) {
	var pt string
	err := s.pool.QueryRow(ctx, `SELECT platform_type FROM platform_connections WHERE id = $1`, connectionID).Scan(&pt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("platform type for connection: %w", err)
	}
	return models.PlatformType(pt), true, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, conn *models.PlatformConnection) error {
	perms, err := json.Marshal(conn.PermissionsGranted)
	if err != nil {
		return fmt.Errorf("marshal permissions_granted: %w", err)
	}
	meta, err := json.Marshal(conn.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO platform_connections
			(id, organization_id, platform_type, platform_user_id, platform_workspace_id,
			 status, permissions_granted, expires_at, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (id) DO UPDATE SET
			status = $6, permissions_granted = $7, expires_at = $8, metadata = $9, updated_at = NOW()
	`, conn.ID, conn.OrganizationID, conn.PlatformType, conn.PlatformUserID, conn.PlatformWorkspaceID,
		conn.Status, string(perms), conn.ExpiresAt, string(meta), conn.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert connection: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByOrg(ctx context.Context, orgID string) ([]models.PlatformConnection, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, organization_id, platform_type, platform_user_id, platform_workspace_id,
		       status, permissions_granted, expires_at, metadata, created_at, updated_at
		FROM platform_connections WHERE organization_id = $1
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	out := make([]models.PlatformConnection, 0)
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *conn)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConnection(row rowScanner) (*models.PlatformConnection, error) {
	var conn models.PlatformConnection
	var permsJSON, metaJSON string
	if err := row.Scan(&conn.ID, &conn.OrganizationID, &conn.PlatformType, &conn.PlatformUserID, &conn.PlatformWorkspaceID,
		&conn.Status, &permsJSON, &conn.ExpiresAt, &metaJSON, &conn.CreatedAt, &conn.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("connection not found")
		}
		return nil, fmt.Errorf("scan connection: %w", err)
	}
	if err := json.Unmarshal([]byte(permsJSON), &conn.PermissionsGranted); err != nil {
		return nil, fmt.Errorf("unmarshal permissions_granted: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &conn.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &conn, nil
}
