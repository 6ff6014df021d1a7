// Package discovery implements the Discovery Orchestrator (C6): it
// runs one discovery session per connection through the staged
// authenticate → enumerate → analyze → persist → finalize protocol
// (§4.6), fanning candidates through a bounded pipeline and reporting
// progress via the Progress Bus.
package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentoven/agentoven/control-plane/internal/aisignal"
	"github.com/agentoven/agentoven/control-plane/internal/automation"
	"github.com/agentoven/agentoven/control-plane/internal/collector"
	"github.com/agentoven/agentoven/control-plane/internal/progress"
	"github.com/agentoven/agentoven/control-plane/internal/risk"
	"github.com/agentoven/agentoven/control-plane/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ConnectionLookup resolves the full connection record the adapter
// needs (platform_type, metadata, workspace id).
type ConnectionLookup interface {
	GetConnection(ctx context.Context, connectionID string) (*models.PlatformConnection, error)
}

// CredentialProvider is the C1 capability the orchestrator depends on
// — a narrow view of credentials.Store so this package never imports
// it directly.
type CredentialProvider interface {
	GetValidCredentials(ctx context.Context, connectionID string) (*models.OAuthCredential, error)
}

// analyzeWorkers bounds the concurrency of the analyze+persist stage.
const analyzeWorkers = 8

// Orchestrator runs discovery sessions.
type Orchestrator struct {
	connections ConnectionLookup
	credentials CredentialProvider
	registry    *collector.Registry
	detector    *aisignal.Detector
	scorer      *risk.Scorer
	persister   *automation.Persister
	bus         *progress.Bus
	runs        RunStore

	sessionTimeout   time.Duration
	submethodTimeout time.Duration
	maxBacklog       int
	staleAfterRuns   int

	mu        sync.Mutex
	cancels   map[string]context.CancelFunc
	latestRun map[string]string
}

// Config bundles the orchestrator's timing knobs (§6.4).
type Config struct {
	SessionTimeout   time.Duration
	SubmethodTimeout time.Duration
	MaxCandidateBacklog int
	StaleAfterRuns   int
}

func New(
	connections ConnectionLookup,
	credentials CredentialProvider,
	registry *collector.Registry,
	detector *aisignal.Detector,
	scorer *risk.Scorer,
	persister *automation.Persister,
	bus *progress.Bus,
	runs RunStore,
	cfg Config,
) *Orchestrator {
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 5 * time.Minute
	}
	if cfg.SubmethodTimeout <= 0 {
		cfg.SubmethodTimeout = 30 * time.Second
	}
	if cfg.MaxCandidateBacklog <= 0 {
		cfg.MaxCandidateBacklog = 256
	}
	if cfg.StaleAfterRuns <= 0 {
		cfg.StaleAfterRuns = 3
	}
	return &Orchestrator{
		connections:      connections,
		credentials:      credentials,
		registry:         registry,
		detector:         detector,
		scorer:           scorer,
		persister:        persister,
		bus:              bus,
		runs:             runs,
		sessionTimeout:   cfg.SessionTimeout,
		submethodTimeout: cfg.SubmethodTimeout,
		maxBacklog:       cfg.MaxCandidateBacklog,
		staleAfterRuns:   cfg.StaleAfterRuns,
		cancels:          make(map[string]context.CancelFunc),
		latestRun:        make(map[string]string),
	}
}

// StartRun implements the Scheduler/Request trigger contract (§6.2):
// it creates a pending DiscoveryRun, returns its id synchronously, and
// runs the session in the background — the terminal event arrives
// later via the Progress Bus.
func (o *Orchestrator) StartRun(ctx context.Context, orgID, connectionID string) (string, error) {
	runID := newRunID()
	run := &models.DiscoveryRun{
		ID:             runID,
		OrganizationID: orgID,
		ConnectionID:   connectionID,
		Status:         models.RunPending,
		StartedAt:      time.Now(),
	}
	if err := o.runs.Create(ctx, run); err != nil {
		return "", fmt.Errorf("create discovery run: %w", err)
	}

	sessionCtx, cancel := context.WithTimeout(context.Background(), o.sessionTimeout)
	o.mu.Lock()
	o.cancels[runID] = cancel
	o.latestRun[connectionID] = runID
	o.mu.Unlock()

	o.bus.Heartbeat(sessionCtx, connectionID, 30*time.Second)
	go o.runSession(sessionCtx, cancel, run)

	return runID, nil
}

// LatestRun returns the most recently started DiscoveryRun for
// connectionID, live from the RunStore (§6.3 "latest run status").
func (o *Orchestrator) LatestRun(ctx context.Context, connectionID string) (*models.DiscoveryRun, error) {
	o.mu.Lock()
	runID, ok := o.latestRun[connectionID]
	o.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no discovery run has been started for connection %s", connectionID)
	}
	return o.runs.Get(ctx, runID)
}

// Cancel requests cancellation of an in-flight session. It is a no-op
// if the run has already finished.
func (o *Orchestrator) Cancel(runID string) bool {
	o.mu.Lock()
	cancel, ok := o.cancels[runID]
	o.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

func (o *Orchestrator) forgetRun(runID string) {
	o.mu.Lock()
	delete(o.cancels, runID)
	o.mu.Unlock()
}

func (o *Orchestrator) runSession(ctx context.Context, cancel context.CancelFunc, run *models.DiscoveryRun) {
	defer cancel()
	defer o.forgetRun(run.ID)

	_ = o.runs.UpdateStatus(ctx, run.ID, models.RunInProgress)
	o.bus.Progress(run.ConnectionID, "authenticate", 5, "resolving credentials")

	conn, err := o.connections.GetConnection(ctx, run.ConnectionID)
	if err != nil {
		o.finalize(ctx, run, models.RunFailed, 0, 1, models.ErrorInternal, "connection not found", err.Error())
		return
	}

	cred, err := o.credentials.GetValidCredentials(ctx, run.ConnectionID)
	if err != nil {
		o.finalize(ctx, run, models.RunFailed, 0, 1, models.ErrorAuthentication, "unable to obtain valid credentials", err.Error())
		return
	}

	adapter, err := o.registry.Get(conn.PlatformType)
	if err != nil {
		o.finalize(ctx, run, models.RunFailed, 0, 1, models.ErrorInternal, "no collector for platform_type", err.Error())
		return
	}

	o.bus.Progress(run.ConnectionID, "enumerate", 20, "discovering automations")
	results := adapter.Discover(ctx, conn, cred, collector.DiscoverOptions{SubmethodTimeout: o.submethodTimeout})

	outcome := o.consume(ctx, run, conn, results)

	if ctx.Err() != nil {
		o.finalize(ctx, run, models.RunCancelled, outcome.candidatesProduced, outcome.errorsCount, models.ErrorInternal, "session cancelled", "cancelled")
		return
	}

	o.bus.Progress(run.ConnectionID, "persist", 80, "finalizing marking missing automations")
	if err := o.persister.MarkMissing(ctx, run.ConnectionID, outcome.seen, o.staleAfterRuns); err != nil {
		log.Warn().Err(err).Str("connection_id", run.ConnectionID).Msg("mark missing failed")
	}

	automationsFound, err := o.persister.CountForRun(ctx, run.ID)
	if err != nil {
		log.Warn().Err(err).Str("run_id", run.ID).Msg("count for run failed")
		automationsFound = outcome.candidatesProduced
	}

	if automationsFound == 0 && outcome.errorsCount > 0 && outcome.mostSevere != "" {
		// §4.6: all sub-methods of the adapter failed.
		o.finalize(ctx, run, models.RunFailed, automationsFound, outcome.errorsCount, outcome.mostSevere, "all discovery sub-methods failed", "")
		return
	}

	o.finalize(ctx, run, models.RunCompleted, automationsFound, outcome.errorsCount, "", "", "")
}

type consumeOutcome struct {
	candidatesProduced int
	errorsCount        int
	mostSevere         models.ErrorCategory
	seen               map[string]struct{}
}

// consume relays adapter results through a bounded channel (§5
// back-pressure) into a small worker pool that runs analyze (C3/C4)
// and persist (C5) for each candidate, joined with errgroup.
func (o *Orchestrator) consume(ctx context.Context, run *models.DiscoveryRun, conn *models.PlatformConnection, results <-chan collector.Result) consumeOutcome {
	bounded := make(chan collector.Result, o.maxBacklog)
	go func() {
		defer close(bounded)
		for res := range results {
			select {
			case bounded <- res:
			case <-ctx.Done():
				return
			}
		}
	}()

	var mu sync.Mutex
	outcome := consumeOutcome{seen: make(map[string]struct{})}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < analyzeWorkers; i++ {
		g.Go(func() error {
			for res := range bounded {
				if gctx.Err() != nil {
					continue
				}
				if res.Err != nil {
					mu.Lock()
					outcome.errorsCount++
					outcome.mostSevere = models.MostSevere(outcome.mostSevere, res.Err.Category())
					mu.Unlock()
					log.Info().Str("connection_id", run.ConnectionID).Str("source_method", string(res.Err.SourceMethod)).Str("kind", string(res.Err.Kind)).Msg("sub-method error")
					continue
				}
				o.analyzeAndPersist(ctx, run, conn, res.Candidate, &mu, &outcome)
			}
			return nil
		})
	}
	_ = g.Wait()

	return outcome
}

func (o *Orchestrator) analyzeAndPersist(ctx context.Context, run *models.DiscoveryRun, conn *models.PlatformConnection, cand *collector.RawCandidate, mu *sync.Mutex, outcome *consumeOutcome) {
	sig := o.detector.Detect(cand)
	assessment := o.scorer.Score(cand, sig, time.Now())

	err := o.persister.Persist(ctx, run.OrganizationID, run.ConnectionID, run.ID, cand, sig, assessment, time.Now())
	if err != nil {
		// §7 StorageError: retry once, then count as an internal error.
		err = o.persister.Persist(ctx, run.OrganizationID, run.ConnectionID, run.ID, cand, sig, assessment, time.Now())
	}

	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		outcome.errorsCount++
		outcome.mostSevere = models.MostSevere(outcome.mostSevere, models.ErrorInternal)
		log.Warn().Err(err).Str("connection_id", run.ConnectionID).Str("external_id", cand.ExternalID).Msg("persist failed after retry")
		return
	}
	outcome.candidatesProduced++
	outcome.seen[cand.ExternalID] = struct{}{}
	o.bus.AutomationAdded(run.ConnectionID, automation.Normalize(run.OrganizationID, run.ConnectionID, run.ID, cand, sig, assessment))
}

func (o *Orchestrator) finalize(ctx context.Context, run *models.DiscoveryRun, status models.RunStatus, found, errorsCount int, category models.ErrorCategory, message, technicalError string) {
	now := time.Now()
	if err := o.runs.Finalize(ctx, run.ID, status, found, errorsCount, category, message, now); err != nil {
		log.Error().Err(err).Str("run_id", run.ID).Msg("finalize run failed")
	}

	if status == models.RunCompleted {
		o.bus.Complete(run.ConnectionID, models.DiscoveryRun{
			ID: run.ID, Status: status, AutomationsFound: found, ErrorsCount: errorsCount, CompletedAt: &now,
		})
		return
	}

	o.bus.Failed(run.ConnectionID, message, string(category), technicalError)
}

func newRunID() string {
	return fmt.Sprintf("run_%s", uuid.New().String())
}
