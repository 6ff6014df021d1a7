// Package collabsuite implements the Platform Collector adapter for
// collaboration-suite tenants with embedded scripting (Notion/Confluence
// with bound automations-style): script content scanning and scheduled
// task listing (§4.2.3).
package collabsuite

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agentoven/agentoven/control-plane/internal/collector"
	"github.com/agentoven/agentoven/control-plane/pkg/models"
)

// Adapter discovers bound scripts and scheduled tasks in a
// collaboration-suite tenant. script_content_scan tolerates per-script
// permission errors (scenario 4): a script the caller can't read its
// body for still surfaces as a candidate with empty Actions, while the
// permission error is reported alongside it.
type Adapter struct {
	client *collector.Client
}

func NewAdapter(client *collector.Client) *Adapter {
	return &Adapter{client: client}
}

func (a *Adapter) PlatformType() models.PlatformType { return models.PlatformCollabSuite }

func (a *Adapter) Discover(ctx context.Context, conn *models.PlatformConnection, cred *models.OAuthCredential, opts collector.DiscoverOptions) <-chan collector.Result {
	out := make(chan collector.Result)

	var wg sync.WaitGroup
	wg.Add(2)
	go a.runScriptContentScan(ctx, conn, cred, opts, out, &wg)
	go a.runScheduledTasks(ctx, conn, cred, opts, out, &wg)

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

type scriptDTO struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	OwnerID    string     `json:"owner_id"`
	OwnerEmail string     `json:"owner_email"`
	ModifiedAt *time.Time `json:"modified_at"`
	// Readable is false when the acting credential lacks script-body read
	// permission; Body and Actions are then absent but the script itself
	// still counts as discovered.
	Readable bool     `json:"readable"`
	Body     string   `json:"body"`
	Actions  []string `json:"actions"`
}

type scriptsResponse struct {
	Scripts []scriptDTO `json:"scripts"`
}

func (a *Adapter) runScriptContentScan(ctx context.Context, conn *models.PlatformConnection, cred *models.OAuthCredential, opts collector.DiscoverOptions, out chan<- collector.Result, wg *sync.WaitGroup) {
	defer wg.Done()
	sctx, cancel := context.WithTimeout(ctx, submethodTimeout(opts))
	defer cancel()

	body, cerr := a.client.Get(sctx, apiBaseURL(conn)+"/scripts", collector.SourceScriptContentScan)
	if cerr != nil {
		sendErr(ctx, out, cerr)
		return
	}
	var resp scriptsResponse
	if err := collector.DecodeJSON(body, &resp); err != nil {
		sendErr(ctx, out, &collector.Error{Kind: collector.KindFatal, SourceMethod: collector.SourceScriptContentScan, Err: err})
		return
	}

	sort.SliceStable(resp.Scripts, func(i, j int) bool {
		return lessByRecencyThenID(resp.Scripts[i].ModifiedAt, resp.Scripts[i].ID, resp.Scripts[j].ModifiedAt, resp.Scripts[j].ID)
	})

	for _, s := range resp.Scripts {
		if !s.Readable {
			// The script exists in the listing but its body is off-limits
			// to this credential's scopes; surface it as a degraded
			// candidate plus a permission error the orchestrator can
			// categorize, rather than dropping it (§4.2.3).
			sendErr(ctx, out, &collector.Error{
				Kind:         collector.KindPermission,
				SourceMethod: collector.SourceScriptContentScan,
				Scope:        "script_content_read",
				Err:          errPermissionDenied(s.ID),
			})
		}
		cand := &collector.RawCandidate{
			ExternalID:       s.ID,
			Name:             s.Name,
			TypeHint:         models.AutomationScript,
			OwnerInfo:        models.OwnerInfo{UserID: s.OwnerID, Email: s.OwnerEmail},
			RawEvidenceBlob:  s.Body,
			SourceMethod:     collector.SourceScriptContentScan,
			ModifiedAt:       s.ModifiedAt,
			Actions:          s.Actions,
			PlatformMetadata: map[string]interface{}{"readable": s.Readable},
		}
		if !sendCandidate(ctx, out, cand) {
			return
		}
	}
}

type scheduledTaskDTO struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Schedule   string     `json:"schedule"`
	OwnerID    string     `json:"owner_id"`
	OwnerEmail string     `json:"owner_email"`
	ModifiedAt *time.Time `json:"modified_at"`
	Actions    []string   `json:"actions"`
}

type scheduledTasksResponse struct {
	Tasks []scheduledTaskDTO `json:"tasks"`
}

func (a *Adapter) runScheduledTasks(ctx context.Context, conn *models.PlatformConnection, cred *models.OAuthCredential, opts collector.DiscoverOptions, out chan<- collector.Result, wg *sync.WaitGroup) {
	defer wg.Done()
	sctx, cancel := context.WithTimeout(ctx, submethodTimeout(opts))
	defer cancel()

	body, cerr := a.client.Get(sctx, apiBaseURL(conn)+"/scheduled-tasks", collector.SourceScheduledTaskListing)
	if cerr != nil {
		sendErr(ctx, out, cerr)
		return
	}
	var resp scheduledTasksResponse
	if err := collector.DecodeJSON(body, &resp); err != nil {
		sendErr(ctx, out, &collector.Error{Kind: collector.KindFatal, SourceMethod: collector.SourceScheduledTaskListing, Err: err})
		return
	}

	sort.SliceStable(resp.Tasks, func(i, j int) bool {
		return lessByRecencyThenID(resp.Tasks[i].ModifiedAt, resp.Tasks[i].ID, resp.Tasks[j].ModifiedAt, resp.Tasks[j].ID)
	})

	for _, t := range resp.Tasks {
		cand := &collector.RawCandidate{
			ExternalID:       t.ID,
			Name:             t.Name,
			TypeHint:         models.AutomationScheduledTask,
			TriggerHint:      t.Schedule,
			OwnerInfo:        models.OwnerInfo{UserID: t.OwnerID, Email: t.OwnerEmail},
			SourceMethod:     collector.SourceScheduledTaskListing,
			ModifiedAt:       t.ModifiedAt,
			Actions:          t.Actions,
			PlatformMetadata: map[string]interface{}{"schedule": t.Schedule},
		}
		if !sendCandidate(ctx, out, cand) {
			return
		}
	}
}

// Refresh implements credentials.Refresher for collab-suite connections.
func (a *Adapter) Refresh(ctx context.Context, conn *models.PlatformConnection, refreshToken *models.OAuthCredential) (*models.OAuthCredential, error) {
	tok, err := collector.RefreshOAuthToken(ctx, conn, refreshToken.Plaintext)
	if err != nil {
		return nil, err
	}
	return &models.OAuthCredential{
		ConnectionID:   conn.ID,
		CredentialType: models.CredentialAccessToken,
		Plaintext:      tok.AccessToken,
		ExpiresAt:      &tok.Expiry,
	}, nil
}

func apiBaseURL(conn *models.PlatformConnection) string {
	if url, ok := conn.Metadata["api_base_url"]; ok {
		return url
	}
	return "https://collab.example.invalid/api"
}

func submethodTimeout(opts collector.DiscoverOptions) time.Duration {
	if opts.SubmethodTimeout > 0 {
		return opts.SubmethodTimeout
	}
	return 30 * time.Second
}

// lessByRecencyThenID orders by modified_at descending when both sides
// have one, else by external_id ascending — the §4.2 per-method
// ordering contract. A missing modified_at always sorts after a
// present one.
func lessByRecencyThenID(aModifiedAt *time.Time, aID string, bModifiedAt *time.Time, bID string) bool {
	switch {
	case aModifiedAt != nil && bModifiedAt != nil:
		if !aModifiedAt.Equal(*bModifiedAt) {
			return aModifiedAt.After(*bModifiedAt)
		}
		return aID < bID
	case aModifiedAt != nil:
		return true
	case bModifiedAt != nil:
		return false
	default:
		return aID < bID
	}
}

func sendCandidate(ctx context.Context, out chan<- collector.Result, cand *collector.RawCandidate) bool {
	select {
	case out <- collector.Result{Candidate: cand}:
		return true
	case <-ctx.Done():
		return false
	}
}

func sendErr(ctx context.Context, out chan<- collector.Result, err *collector.Error) {
	select {
	case out <- collector.Result{Err: err}:
	case <-ctx.Done():
	}
}

func errPermissionDenied(scriptID string) error {
	return permissionDeniedErr{scriptID: scriptID}
}

type permissionDeniedErr struct{ scriptID string }

func (e permissionDeniedErr) Error() string {
	return "script content read denied for " + e.scriptID
}
