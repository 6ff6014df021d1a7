package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentoven/agentoven/control-plane/pkg/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RunStore owns DiscoveryRun rows (§3 ownership: "the Orchestrator
// exclusively owns a DiscoveryRun row during its lifetime").
type RunStore interface {
	Create(ctx context.Context, run *models.DiscoveryRun) error
	UpdateStatus(ctx context.Context, runID string, status models.RunStatus) error
	Finalize(ctx context.Context, runID string, status models.RunStatus, automationsFound, errorsCount int, category models.ErrorCategory, details string, completedAt time.Time) error
	Get(ctx context.Context, runID string) (*models.DiscoveryRun, error)
}

// MemoryRunStore is an in-memory RunStore for tests and single-node
// deployments without DATABASE_URL configured.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]*models.DiscoveryRun
}

func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string]*models.DiscoveryRun)}
}

func (m *MemoryRunStore) Create(ctx context.Context, run *models.DiscoveryRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *MemoryRunStore) UpdateStatus(ctx context.Context, runID string, status models.RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}
	run.Status = status
	return nil
}

func (m *MemoryRunStore) Finalize(ctx context.Context, runID string, status models.RunStatus, automationsFound, errorsCount int, category models.ErrorCategory, details string, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}
	run.Status = status
	run.AutomationsFound = automationsFound
	run.ErrorsCount = errorsCount
	run.ErrorCategory = category
	run.ErrorDetails = details
	run.CompletedAt = &completedAt
	return nil
}

func (m *MemoryRunStore) Get(ctx context.Context, runID string) (*models.DiscoveryRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	cp := *run
	return &cp, nil
}

// PostgresRunStore implements RunStore over discovery_runs, the same
// pgxpool.New + inline migrate() pattern used throughout the core.
type PostgresRunStore struct {
	pool *pgxpool.Pool
}

func NewPostgresRunStore(ctx context.Context, connURL string) (*PostgresRunStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("run store connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run store ping: %w", err)
	}
	s := &PostgresRunStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run store migrate: %w", err)
	}
	return s, nil
}

func (s *PostgresRunStore) migrate(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS discovery_runs (
			id                TEXT PRIMARY KEY,
			organization_id   TEXT NOT NULL,
			platform_connection_id TEXT NOT NULL,
			status            TEXT NOT NULL,
			started_at        TIMESTAMPTZ NOT NULL,
			completed_at      TIMESTAMPTZ,
			automations_found INT NOT NULL DEFAULT 0,
			errors_count      INT NOT NULL DEFAULT 0,
			error_category    TEXT,
			error_details     TEXT
		);
	`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

func (s *PostgresRunStore) Create(ctx context.Context, run *models.DiscoveryRun) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO discovery_runs (id, organization_id, platform_connection_id, status, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`, run.ID, run.OrganizationID, run.ConnectionID, run.Status, run.StartedAt)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *PostgresRunStore) UpdateStatus(ctx context.Context, runID string, status models.RunStatus) error {
	_, err := s.pool.Exec(ctx, `UPDATE discovery_runs SET status = $2 WHERE id = $1`, runID, status)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	return nil
}

func (s *PostgresRunStore) Finalize(ctx context.Context, runID string, status models.RunStatus, automationsFound, errorsCount int, category models.ErrorCategory, details string, completedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE discovery_runs
		SET status = $2, automations_found = $3, errors_count = $4, error_category = $5, error_details = $6, completed_at = $7
		WHERE id = $1
	`, runID, status, automationsFound, errorsCount, string(category), details, completedAt)
	if err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	return nil
}

func (s *PostgresRunStore) Get(ctx context.Context, runID string) (*models.DiscoveryRun, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, organization_id, platform_connection_id, status, started_at, completed_at, automations_found, errors_count, error_category, error_details
		FROM discovery_runs WHERE id = $1
	`, runID)
	var run models.DiscoveryRun
	var category, details *string
	if err := row.Scan(&run.ID, &run.OrganizationID, &run.ConnectionID, &run.Status, &run.StartedAt, &run.CompletedAt, &run.AutomationsFound, &run.ErrorsCount, &category, &details); err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if category != nil {
		run.ErrorCategory = models.ErrorCategory(*category)
	}
	if details != nil {
		run.ErrorDetails = *details
	}
	return &run, nil
}
