package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agentoven/agentoven/control-plane/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PostgresDurableStore implements DurableStore over the
// encrypted_credentials table (§6.1). Follows the teacher's
// internal/vectorstore/pgvector.go pattern: pgxpool.New + inline migrate().
type PostgresDurableStore struct {
	pool *pgxpool.Pool
}

// NewPostgresDurableStore connects to connURL and ensures the schema exists.
func NewPostgresDurableStore(ctx context.Context, connURL string) (*PostgresDurableStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("credentials store connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("credentials store ping: %w", err)
	}

	s := &PostgresDurableStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("credentials store migrate: %w", err)
	}

	log.Info().Msg("credential store (postgres) initialized")
	return s, nil
}

func (s *PostgresDurableStore) migrate(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS encrypted_credentials (
			platform_connection_id TEXT NOT NULL,
			credential_type        TEXT NOT NULL,
			ciphertext              TEXT NOT NULL,
			encryption_key_id       TEXT NOT NULL,
			expires_at              TIMESTAMPTZ,
			updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (platform_connection_id, credential_type)
		);
	`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *PostgresDurableStore) Load(ctx context.Context, connectionID string, credType models.CredentialType) (*models.OAuthCredential, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT platform_connection_id, credential_type, ciphertext, encryption_key_id, expires_at
		FROM encrypted_credentials
		WHERE platform_connection_id = $1 AND credential_type = $2
	`, connectionID, credType)

	var cred models.OAuthCredential
	var expiresAt *time.Time
	if err := row.Scan(&cred.ConnectionID, &cred.CredentialType, &cred.Ciphertext, &cred.EncryptionKeyID, &expiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}
	cred.ExpiresAt = expiresAt
	return &cred, nil
}

func (s *PostgresDurableStore) Save(ctx context.Context, cred *models.OAuthCredential) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO encrypted_credentials (platform_connection_id, credential_type, ciphertext, encryption_key_id, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (platform_connection_id, credential_type)
		DO UPDATE SET ciphertext = $3, encryption_key_id = $4, expires_at = $5, updated_at = NOW()
	`, cred.ConnectionID, cred.CredentialType, cred.Ciphertext, cred.EncryptionKeyID, cred.ExpiresAt)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (s *PostgresDurableStore) Delete(ctx context.Context, connectionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM encrypted_credentials WHERE platform_connection_id = $1`, connectionID)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

func (s *PostgresDurableStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }
func (s *PostgresDurableStore) Close() error                  { s.pool.Close(); return nil }
