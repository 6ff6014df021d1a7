// Package server provides the public entry point for initializing the
// shadow automation discovery core.
//
// This package exists in pkg/ (not internal/) so that a deployment
// wrapper can import it and compose the full server with its own
// overrides (a production KMS-backed Cipher, a Postgres durable store,
// additional Platform Collector adapters).
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(fmt.Sprintf(":%d", srv.Port), srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/agentoven/agentoven/control-plane/internal/aisignal"
	"github.com/agentoven/agentoven/control-plane/internal/api"
	"github.com/agentoven/agentoven/control-plane/internal/api/handlers"
	"github.com/agentoven/agentoven/control-plane/internal/api/middleware"
	"github.com/agentoven/agentoven/control-plane/internal/automation"
	"github.com/agentoven/agentoven/control-plane/internal/cipher"
	"github.com/agentoven/agentoven/control-plane/internal/collector"
	"github.com/agentoven/agentoven/control-plane/internal/collector/chat"
	"github.com/agentoven/agentoven/control-plane/internal/collector/collabsuite"
	"github.com/agentoven/agentoven/control-plane/internal/collector/workspacesuite"
	"github.com/agentoven/agentoven/control-plane/internal/config"
	"github.com/agentoven/agentoven/control-plane/internal/connections"
	"github.com/agentoven/agentoven/control-plane/internal/credentials"
	"github.com/agentoven/agentoven/control-plane/internal/discovery"
	"github.com/agentoven/agentoven/control-plane/internal/inventory"
	"github.com/agentoven/agentoven/control-plane/internal/metrics"
	"github.com/agentoven/agentoven/control-plane/internal/progress"
	"github.com/agentoven/agentoven/control-plane/internal/risk"
	"github.com/agentoven/agentoven/control-plane/internal/telemetry"
	"github.com/agentoven/agentoven/control-plane/pkg/models"

	"github.com/rs/zerolog/log"
)

// Config is the public configuration for the discovery core.
type Config struct {
	Port         int
	Version      string
	OTELEnabled  bool
	OTELEndpoint string
	ServiceName  string
}

// Server holds the initialized discovery core.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Connections resolves platform_connections (externally managed,
	// §6.2) for the collector and credential refresh paths.
	Connections connections.Store

	// Credentials is the C1 Credential Store.
	Credentials *credentials.Store

	// Registry holds the registered C2 Platform Collector adapters.
	Registry *collector.Registry

	// Orchestrator is the C6 Discovery Orchestrator.
	Orchestrator *discovery.Orchestrator

	// Automations is the C5 normalized-automation durable store.
	Automations automation.Store

	// Bus is the C7 Progress Bus.
	Bus *progress.Bus

	// Inventory is the C8 Inventory Query Service.
	Inventory *inventory.Service

	// Metrics exposes Prometheus collectors for the discovery core.
	Metrics *metrics.Metrics

	// Config is the server configuration.
	Config *Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	cfg := config.Load()
	return &Config{
		Port:         cfg.Port,
		Version:      cfg.Version,
		OTELEnabled:  cfg.Telemetry.Enabled,
		OTELEndpoint: cfg.Telemetry.OTLPEndpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
	}
}

// New initializes all core components and returns a ready Server, using
// in-memory stores when DATABASE_URL is unset (zero-config local dev).
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, LoadConfig())
}

// NewWithConfig initializes the core with an explicit public configuration.
func NewWithConfig(ctx context.Context, pubCfg *Config) (*Server, error) {
	cfg := config.Load()
	if pubCfg.Port > 0 {
		cfg.Port = pubCfg.Port
	}

	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	return buildServer(ctx, cfg, pubCfg, shutdown)
}

func buildServer(ctx context.Context, cfg *config.Config, pubCfg *Config, shutdown func(context.Context) error) (*Server, error) {
	usePostgres := os.Getenv("DATABASE_URL") != "" && os.Getenv("DISCOVERY_STORE") != "memory"

	connStore, err := buildConnectionsStore(ctx, cfg, usePostgres)
	if err != nil {
		return nil, err
	}
	log.Info().Bool("postgres", usePostgres).Msg("connections store initialized")

	durable, err := buildDurableCredentialStore(ctx, cfg, usePostgres)
	if err != nil {
		return nil, err
	}

	aesCipher := cipher.NewAESGCMCipher()
	credStore := credentials.New(durable, aesCipher, connStore, cfg.Credentials.RefreshWindow)

	httpClient := collector.NewClient(cfg.Collector.PerHostRPS)
	registry := collector.NewRegistry()

	chatAdapter := chat.NewAdapter(httpClient)
	wsAdapter := workspacesuite.NewAdapter(httpClient)
	csAdapter := collabsuite.NewAdapter(httpClient)
	registry.Register(chatAdapter)
	registry.Register(wsAdapter)
	registry.Register(csAdapter)
	log.Info().Msg("platform collector adapters registered: chat, workspace_suite, collab_suite")

	var catalog *aisignal.Catalog
	if cfg.AIDetector.VendorCatalogPath != "" {
		catalog, err = aisignal.LoadCatalog(cfg.AIDetector.VendorCatalogPath)
		if err != nil {
			return nil, fmt.Errorf("load ai-signal vendor catalog: %w", err)
		}
	} else {
		catalog = aisignal.DefaultCatalog()
	}
	detector := aisignal.New(catalog, cfg.AIDetector.ConfidenceThreshold)
	scorer := risk.New(cfg.RiskScorer.AIPlatformScore)

	automationStore, err := buildAutomationStore(ctx, cfg, usePostgres, connStore)
	if err != nil {
		return nil, err
	}
	persister := automation.NewPersister(automationStore, cfg.Persister.Stripes)

	runStore, err := buildRunStore(ctx, cfg, usePostgres)
	if err != nil {
		return nil, err
	}

	bus := progress.NewBus()

	orch := discovery.New(connStore, credStore, registry, detector, scorer, persister, bus, runStore, discovery.Config{
		SessionTimeout:      cfg.Discovery.SessionTimeout,
		SubmethodTimeout:    cfg.Discovery.SubmethodTimeout,
		MaxCandidateBacklog: cfg.Discovery.MaxCandidateBacklog,
		StaleAfterRuns:      cfg.Discovery.StaleAfterRuns,
	})

	inv := inventory.New(automationStore)
	mtr := metrics.New()

	h := handlers.New(orch, inv, bus)
	apiKeyAuth := middleware.NewAPIKeyAuth()
	router := api.NewRouter(cfg, h, apiKeyAuth, mtr)

	return &Server{
		Handler:      router,
		Connections:  connStore,
		Credentials:  credStore,
		Registry:     registry,
		Orchestrator: orch,
		Automations:  automationStore,
		Bus:          bus,
		Inventory:    inv,
		Metrics:      mtr,
		Config:       pubCfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}

func buildConnectionsStore(ctx context.Context, cfg *config.Config, usePostgres bool) (connections.Store, error) {
	if !usePostgres {
		return connections.NewMemoryStore(), nil
	}
	store, err := connections.NewPostgresStore(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("connections store: %w", err)
	}
	return store, nil
}

func buildDurableCredentialStore(ctx context.Context, cfg *config.Config, usePostgres bool) (credentials.DurableStore, error) {
	if !usePostgres {
		return credentials.NewMemoryDurableStore(), nil
	}
	store, err := credentials.NewPostgresDurableStore(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("credentials durable store: %w", err)
	}
	return store, nil
}

// connectionPlatformAdapter narrows connections.Store down to the
// PlatformTypeFor method automation.MemoryStore needs, so that package
// never imports connections directly.
type connectionPlatformAdapter struct {
	store connections.Store
}

func (a connectionPlatformAdapter) PlatformTypeFor(ctx context.Context, connectionID string) (pt models.PlatformType, ok bool, err error) {
	return a.store.PlatformTypeFor(ctx, connectionID)
}

func buildAutomationStore(ctx context.Context, cfg *config.Config, usePostgres bool, connStore connections.Store) (automation.Store, error) {
	if !usePostgres {
		return automation.NewMemoryStore(connectionPlatformAdapter{store: connStore}), nil
	}
	store, err := automation.NewPostgresStore(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("automation store: %w", err)
	}
	return store, nil
}

func buildRunStore(ctx context.Context, cfg *config.Config, usePostgres bool) (discovery.RunStore, error) {
	if !usePostgres {
		return discovery.NewMemoryRunStore(), nil
	}
	store, err := discovery.NewPostgresRunStore(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("discovery run store: %w", err)
	}
	return store, nil
}

// Shutdown flushes telemetry on graceful shutdown.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.ShutdownFunc != nil {
		return s.ShutdownFunc(ctx)
	}
	return nil
}
