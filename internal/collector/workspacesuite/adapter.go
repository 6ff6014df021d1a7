// Package workspacesuite implements the Platform Collector adapter for
// hosted office-suite tenants (Google Workspace/Microsoft 365-style):
// OAuth authorization events, the org-wide OAuth app inventory, and, for
// hosted (non-consumer) workspaces only, service accounts (§4.2.2,
// §4.2.4).
package workspacesuite

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agentoven/agentoven/control-plane/internal/collector"
	"github.com/agentoven/agentoven/control-plane/pkg/models"
)

// Adapter discovers OAuth apps and, where applicable, service accounts
// in a hosted office-suite tenant.
type Adapter struct {
	client *collector.Client
}

func NewAdapter(client *collector.Client) *Adapter {
	return &Adapter{client: client}
}

func (a *Adapter) PlatformType() models.PlatformType { return models.PlatformWorkspaceSuite }

// Discover fetches oauth_app_inventory and then audit_log_oauth_authorize
// in one goroutine, merging their scopes per external_id (P4), and —
// only when conn.IsHostedWorkspace() — runs service_account_audit
// concurrently alongside it (§4.2.4).
func (a *Adapter) Discover(ctx context.Context, conn *models.PlatformConnection, cred *models.OAuthCredential, opts collector.DiscoverOptions) <-chan collector.Result {
	out := make(chan collector.Result)

	var wg sync.WaitGroup
	wg.Add(1)
	go a.runOAuthApps(ctx, conn, cred, opts, out, &wg)

	if conn.IsHostedWorkspace() {
		wg.Add(1)
		go a.runServiceAccounts(ctx, conn, cred, opts, out, &wg)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

// oauthAppDTO is the inventory_app shape; auditEventDTO is one
// authorize event. Both sources describe the same external OAuth app
// and must merge into a single candidate per external_id.
type oauthAppDTO struct {
	AppID      string     `json:"app_id"`
	Name       string     `json:"name"`
	Scopes     []string   `json:"scopes"`
	OwnerID    string     `json:"owner_id"`
	OwnerEmail string     `json:"owner_email"`
	ModifiedAt *time.Time `json:"modified_at"`
}

type oauthAppsResponse struct {
	Apps []oauthAppDTO `json:"apps"`
}

type auditEventDTO struct {
	AppID      string     `json:"app_id"`
	AppName    string     `json:"app_name"`
	Scope      string     `json:"scope"`
	ActorID    string     `json:"actor_id"`
	ActorEmail string     `json:"actor_email"`
	OccurredAt *time.Time `json:"occurred_at"`
}

type auditEventsResponse struct {
	Events []auditEventDTO `json:"events"`
}

func (a *Adapter) runOAuthApps(ctx context.Context, conn *models.PlatformConnection, cred *models.OAuthCredential, opts collector.DiscoverOptions, out chan<- collector.Result, wg *sync.WaitGroup) {
	defer wg.Done()
	sctx, cancel := context.WithTimeout(ctx, submethodTimeout(opts))
	defer cancel()

	invBody, cerr := a.client.Get(sctx, apiBaseURL(conn)+"/apps/oauth", collector.SourceOAuthAppInventory)
	if cerr != nil {
		sendErr(ctx, out, cerr)
		return
	}
	var inv oauthAppsResponse
	if err := collector.DecodeJSON(invBody, &inv); err != nil {
		sendErr(ctx, out, &collector.Error{Kind: collector.KindFatal, SourceMethod: collector.SourceOAuthAppInventory, Err: err})
		return
	}

	auditBody, cerr := a.client.Get(sctx, apiBaseURL(conn)+"/audit/oauth-authorize", collector.SourceAuditLogOAuthAuthorize)
	if cerr != nil {
		// The inventory succeeded; a failed audit log degrades scope
		// aggregation to the inventory's own scopes rather than failing
		// the whole sub-method, matching §4.2.3's partial-degrade model.
		sendErr(ctx, out, cerr)
		auditBody = nil
	}
	var audit auditEventsResponse
	if auditBody != nil {
		if err := collector.DecodeJSON(auditBody, &audit); err != nil {
			sendErr(ctx, out, &collector.Error{Kind: collector.KindFatal, SourceMethod: collector.SourceAuditLogOAuthAuthorize, Err: err})
		}
	}

	scopesByApp := make(map[string][]string)
	ownerByApp := make(map[string]models.OwnerInfo)
	for _, ev := range audit.Events {
		scopesByApp[ev.AppID] = append(scopesByApp[ev.AppID], ev.Scope)
		if _, ok := ownerByApp[ev.AppID]; !ok {
			ownerByApp[ev.AppID] = models.OwnerInfo{UserID: ev.ActorID, Email: ev.ActorEmail}
		}
	}

	sort.SliceStable(inv.Apps, func(i, j int) bool {
		return lessByRecencyThenID(inv.Apps[i].ModifiedAt, inv.Apps[i].AppID, inv.Apps[j].ModifiedAt, inv.Apps[j].AppID)
	})

	for _, app := range inv.Apps {
		owner := models.OwnerInfo{UserID: app.OwnerID, Email: app.OwnerEmail}
		if o, ok := ownerByApp[app.AppID]; ok && owner.UserID == "" {
			owner = o
		}
		cand := &collector.RawCandidate{
			ExternalID:       app.AppID,
			Name:             app.Name,
			TypeHint:         models.AutomationIntegration,
			Scopes:           collector.AggregateScopes(app.Scopes, scopesByApp[app.AppID]),
			OwnerInfo:        owner,
			SourceMethod:     collector.SourceOAuthAppInventory,
			ModifiedAt:       app.ModifiedAt,
			PlatformMetadata: map[string]interface{}{"source": "oauth_app_inventory+audit_log_oauth_authorize"},
		}
		if !sendCandidate(ctx, out, cand) {
			return
		}
	}
}

type serviceAccountDTO struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Scopes     []string   `json:"scopes"`
	OwnerEmail string     `json:"owner_email"`
	ModifiedAt *time.Time `json:"modified_at"`
}

type serviceAccountsResponse struct {
	ServiceAccounts []serviceAccountDTO `json:"service_accounts"`
}

func (a *Adapter) runServiceAccounts(ctx context.Context, conn *models.PlatformConnection, cred *models.OAuthCredential, opts collector.DiscoverOptions, out chan<- collector.Result, wg *sync.WaitGroup) {
	defer wg.Done()
	sctx, cancel := context.WithTimeout(ctx, submethodTimeout(opts))
	defer cancel()

	body, cerr := a.client.Get(sctx, apiBaseURL(conn)+"/admin/service-accounts", collector.SourceServiceAccountAudit)
	if cerr != nil {
		sendErr(ctx, out, cerr)
		return
	}
	var resp serviceAccountsResponse
	if err := collector.DecodeJSON(body, &resp); err != nil {
		sendErr(ctx, out, &collector.Error{Kind: collector.KindFatal, SourceMethod: collector.SourceServiceAccountAudit, Err: err})
		return
	}

	sort.SliceStable(resp.ServiceAccounts, func(i, j int) bool {
		return lessByRecencyThenID(resp.ServiceAccounts[i].ModifiedAt, resp.ServiceAccounts[i].ID, resp.ServiceAccounts[j].ModifiedAt, resp.ServiceAccounts[j].ID)
	})

	for _, sa := range resp.ServiceAccounts {
		cand := &collector.RawCandidate{
			ExternalID:       sa.ID,
			Name:             sa.Name,
			TypeHint:         models.AutomationServiceAccount,
			Scopes:           sa.Scopes,
			OwnerInfo:        models.OwnerInfo{Email: sa.OwnerEmail},
			SourceMethod:     collector.SourceServiceAccountAudit,
			ModifiedAt:       sa.ModifiedAt,
			PlatformMetadata: map[string]interface{}{"source": "service_account_audit"},
		}
		if !sendCandidate(ctx, out, cand) {
			return
		}
	}
}

// Refresh implements credentials.Refresher for workspace-suite connections.
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
	return "https://workspace.example.invalid/api"
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
