package discovery_test

import (
	"context"
	"testing"
	"time"

	"github.com/agentoven/agentoven/control-plane/internal/aisignal"
	"github.com/agentoven/agentoven/control-plane/internal/automation"
	"github.com/agentoven/agentoven/control-plane/internal/collector"
	"github.com/agentoven/agentoven/control-plane/internal/discovery"
	"github.com/agentoven/agentoven/control-plane/internal/progress"
	"github.com/agentoven/agentoven/control-plane/internal/risk"
	"github.com/agentoven/agentoven/control-plane/pkg/models"
)

type fakeConnectionLookup struct {
	conn *models.PlatformConnection
	err  error
}

func (f *fakeConnectionLookup) GetConnection(_ context.Context, _ string) (*models.PlatformConnection, error) {
	return f.conn, f.err
}

type fakeCredentialProvider struct {
	cred *models.OAuthCredential
	err  error
}

func (f *fakeCredentialProvider) GetValidCredentials(_ context.Context, _ string) (*models.OAuthCredential, error) {
	return f.cred, f.err
}

type fakeAdapter struct {
	platformType models.PlatformType
	results      []collector.Result
}

func (f *fakeAdapter) PlatformType() models.PlatformType { return f.platformType }

func (f *fakeAdapter) Discover(ctx context.Context, _ *models.PlatformConnection, _ *models.OAuthCredential, _ collector.DiscoverOptions) <-chan collector.Result {
	out := make(chan collector.Result, len(f.results))
	for _, r := range f.results {
		out <- r
	}
	close(out)
	return out
}

func (f *fakeAdapter) Refresh(_ context.Context, _ *models.PlatformConnection, _ *models.OAuthCredential) (*models.OAuthCredential, error) {
	return nil, nil
}

type fakeRunPlatformLookup struct{}

func (fakeRunPlatformLookup) PlatformTypeFor(_ context.Context, _ string) (models.PlatformType, bool, error) {
	return "chat", true, nil
}

func newTestOrchestrator(t *testing.T, adapter collector.Adapter, conn *models.PlatformConnection, cred *models.OAuthCredential, connErr, credErr error) (*discovery.Orchestrator, automation.Store, *discovery.MemoryRunStore) {
	t.Helper()
	registry := collector.NewRegistry()
	if adapter != nil {
		registry.Register(adapter)
	}
	automationStore := automation.NewMemoryStore(fakeRunPlatformLookup{})
	persister := automation.NewPersister(automationStore, 4)
	bus := progress.NewBus()
	runs := discovery.NewMemoryRunStore()

	orch := discovery.New(
		&fakeConnectionLookup{conn: conn, err: connErr},
		&fakeCredentialProvider{cred: cred, err: credErr},
		registry,
		aisignal.New(aisignal.DefaultCatalog(), 60),
		risk.New(85),
		persister,
		bus,
		runs,
		discovery.Config{SessionTimeout: 5 * time.Second, SubmethodTimeout: time.Second},
	)
	return orch, automationStore, runs
}

func waitForTerminal(t *testing.T, runs *discovery.MemoryRunStore, runID string) *models.DiscoveryRun {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		run, err := runs.Get(context.Background(), runID)
		if err != nil {
			t.Fatalf("Get run: %v", err)
		}
		if run.Status == models.RunCompleted || run.Status == models.RunFailed || run.Status == models.RunCancelled {
			return run
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for discovery run to finish")
	return nil
}

func TestOrchestrator_StartRun_HappyPathPersistsAndCompletes(t *testing.T) {
	conn := &models.PlatformConnection{ID: "conn-1", OrganizationID: "org-1", PlatformType: "chat"}
	cred := &models.OAuthCredential{}
	adapter := &fakeAdapter{
		platformType: "chat",
		results: []collector.Result{
			{Candidate: &collector.RawCandidate{
				ExternalID:   "bot-1",
				Name:         "Deploy Bot",
				TypeHint:     models.AutomationBot,
				SourceMethod: collector.SourceBotListing,
			}},
		},
	}
	orch, automationStore, runs := newTestOrchestrator(t, adapter, conn, cred, nil, nil)

	runID, err := orch.StartRun(context.Background(), "org-1", "conn-1")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	run := waitForTerminal(t, runs, runID)
	if run.Status != models.RunCompleted {
		t.Fatalf("Status = %s, want completed (errors=%d)", run.Status, run.ErrorsCount)
	}
	if run.AutomationsFound != 1 {
		t.Errorf("AutomationsFound = %d, want 1", run.AutomationsFound)
	}

	rows, err := automationStore.List(context.Background(), "org-1", automation.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 1 || rows[0].ExternalID != "bot-1" {
		t.Errorf("unexpected persisted rows: %+v", rows)
	}
}

func TestOrchestrator_StartRun_ConnectionLookupFailureFailsRun(t *testing.T) {
	orch, _, runs := newTestOrchestrator(t, nil, nil, nil, context.DeadlineExceeded, nil)

	runID, err := orch.StartRun(context.Background(), "org-1", "conn-1")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	run := waitForTerminal(t, runs, runID)
	if run.Status != models.RunFailed {
		t.Fatalf("Status = %s, want failed", run.Status)
	}
}

func TestOrchestrator_StartRun_CredentialFailureFailsRunWithAuthCategory(t *testing.T) {
	conn := &models.PlatformConnection{ID: "conn-1", OrganizationID: "org-1", PlatformType: "chat"}
	orch, _, runs := newTestOrchestrator(t, nil, conn, nil, nil, context.DeadlineExceeded)

	runID, err := orch.StartRun(context.Background(), "org-1", "conn-1")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	run := waitForTerminal(t, runs, runID)
	if run.Status != models.RunFailed {
		t.Fatalf("Status = %s, want failed", run.Status)
	}
	if run.ErrorCategory != models.ErrorAuthentication {
		t.Errorf("ErrorCategory = %s, want authentication", run.ErrorCategory)
	}
}

func TestOrchestrator_StartRun_NoRegisteredAdapterFailsRun(t *testing.T) {
	conn := &models.PlatformConnection{ID: "conn-1", OrganizationID: "org-1", PlatformType: "unknown_platform"}
	cred := &models.OAuthCredential{}
	orch, _, runs := newTestOrchestrator(t, nil, conn, cred, nil, nil)

	runID, err := orch.StartRun(context.Background(), "org-1", "conn-1")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	run := waitForTerminal(t, runs, runID)
	if run.Status != models.RunFailed {
		t.Fatalf("Status = %s, want failed", run.Status)
	}
}

func TestOrchestrator_LatestRun_ReturnsMostRecentRunForConnection(t *testing.T) {
	conn := &models.PlatformConnection{ID: "conn-1", OrganizationID: "org-1", PlatformType: "chat"}
	cred := &models.OAuthCredential{}
	adapter := &fakeAdapter{platformType: "chat"}
	orch, _, runs := newTestOrchestrator(t, adapter, conn, cred, nil, nil)

	runID, err := orch.StartRun(context.Background(), "org-1", "conn-1")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	waitForTerminal(t, runs, runID)

	latest, err := orch.LatestRun(context.Background(), "conn-1")
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if latest.ID != runID {
		t.Errorf("LatestRun.ID = %s, want %s", latest.ID, runID)
	}
}

func TestOrchestrator_LatestRun_UnknownConnectionIsAnError(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, nil, nil, nil, nil, nil)
	if _, err := orch.LatestRun(context.Background(), "never-started"); err == nil {
		t.Error("expected an error for a connection with no started run")
	}
}

func TestOrchestrator_Cancel_UnknownRunIDReturnsFalse(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, nil, nil, nil, nil, nil)
	if orch.Cancel("never-started") {
		t.Error("expected Cancel to return false for an unknown run id")
	}
}
