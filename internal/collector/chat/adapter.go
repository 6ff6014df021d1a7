// Package chat implements the Platform Collector adapter for chat
// platforms (Slack/Teams-style tenants): bots and incoming webhooks are
// the two orthogonal discovery sub-methods (§4.2.1).
package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agentoven/agentoven/control-plane/internal/collector"
	"github.com/agentoven/agentoven/control-plane/pkg/models"
	"github.com/rs/zerolog/log"
)

// Adapter discovers bots and webhooks in a chat-platform tenant.
type Adapter struct {
	client *collector.Client
}

// NewAdapter creates a chat-platform collector using the shared
// rate-limited, circuit-broken HTTP client.
func NewAdapter(client *collector.Client) *Adapter {
	return &Adapter{client: client}
}

func (a *Adapter) PlatformType() models.PlatformType { return models.PlatformChat }

// Discover fans out the bot_listing and webhook_listing sub-methods
// concurrently (§4.2, §5), each with its own submethod timeout.
func (a *Adapter) Discover(ctx context.Context, conn *models.PlatformConnection, cred *models.OAuthCredential, opts collector.DiscoverOptions) <-chan collector.Result {
	out := make(chan collector.Result)

	var wg sync.WaitGroup
	wg.Add(2)
	go a.runBotListing(ctx, conn, cred, opts, out, &wg)
	go a.runWebhookListing(ctx, conn, cred, opts, out, &wg)

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

type botDTO struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Scopes     []string   `json:"scopes"`
	OwnerID    string     `json:"owner_id"`
	OwnerEmail string     `json:"owner_email"`
	ModifiedAt *time.Time `json:"modified_at"`
	Actions    []string   `json:"actions"`
	Evidence   string     `json:"evidence"`
}

type botsResponse struct {
	Bots []botDTO `json:"bots"`
}

func (a *Adapter) runBotListing(ctx context.Context, conn *models.PlatformConnection, cred *models.OAuthCredential, opts collector.DiscoverOptions, out chan<- collector.Result, wg *sync.WaitGroup) {
	defer wg.Done()
	sctx, cancel := context.WithTimeout(ctx, submethodTimeout(opts))
	defer cancel()

	body, cerr := a.client.Get(sctx, apiBaseURL(conn)+"/bots", collector.SourceBotListing)
	if cerr != nil {
		sendErr(ctx, out, cerr)
		return
	}

	var resp botsResponse
	if err := collector.DecodeJSON(body, &resp); err != nil {
		sendErr(ctx, out, &collector.Error{Kind: collector.KindFatal, SourceMethod: collector.SourceBotListing, Err: err})
		return
	}

	sort.SliceStable(resp.Bots, func(i, j int) bool {
		return lessByRecencyThenID(resp.Bots[i].ModifiedAt, resp.Bots[i].ID, resp.Bots[j].ModifiedAt, resp.Bots[j].ID)
	})

	for _, b := range resp.Bots {
		cand := &collector.RawCandidate{
			ExternalID:       b.ID,
			Name:             b.Name,
			TypeHint:         models.AutomationBot,
			Scopes:           b.Scopes,
			OwnerInfo:        models.OwnerInfo{UserID: b.OwnerID, Email: b.OwnerEmail},
			RawEvidenceBlob:  b.Evidence,
			SourceMethod:     collector.SourceBotListing,
			ModifiedAt:       b.ModifiedAt,
			Actions:          b.Actions,
			PlatformMetadata: map[string]interface{}{"source": "bot_listing"},
		}
		if !sendCandidate(ctx, out, cand) {
			return
		}
	}
}

type webhookDTO struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	TargetURL  string     `json:"target_url"`
	OwnerID    string     `json:"owner_id"`
	OwnerEmail string     `json:"owner_email"`
	ModifiedAt *time.Time `json:"modified_at"`
}

type webhooksResponse struct {
	Webhooks []webhookDTO `json:"webhooks"`
}

func (a *Adapter) runWebhookListing(ctx context.Context, conn *models.PlatformConnection, cred *models.OAuthCredential, opts collector.DiscoverOptions, out chan<- collector.Result, wg *sync.WaitGroup) {
	defer wg.Done()
	sctx, cancel := context.WithTimeout(ctx, submethodTimeout(opts))
	defer cancel()

	body, cerr := a.client.Get(sctx, apiBaseURL(conn)+"/webhooks", collector.SourceWebhookListing)
	if cerr != nil {
		sendErr(ctx, out, cerr)
		return
	}

	var resp webhooksResponse
	if err := collector.DecodeJSON(body, &resp); err != nil {
		sendErr(ctx, out, &collector.Error{Kind: collector.KindFatal, SourceMethod: collector.SourceWebhookListing, Err: err})
		return
	}

	sort.SliceStable(resp.Webhooks, func(i, j int) bool {
		return lessByRecencyThenID(resp.Webhooks[i].ModifiedAt, resp.Webhooks[i].ID, resp.Webhooks[j].ModifiedAt, resp.Webhooks[j].ID)
	})

	for _, w := range resp.Webhooks {
		cand := &collector.RawCandidate{
			ExternalID:       w.ID,
			Name:             w.Name,
			TypeHint:         models.AutomationWebhook,
			OwnerInfo:        models.OwnerInfo{UserID: w.OwnerID, Email: w.OwnerEmail},
			RawEvidenceBlob:  w.TargetURL,
			SourceMethod:     collector.SourceWebhookListing,
			ModifiedAt:       w.ModifiedAt,
			PlatformMetadata: map[string]interface{}{"target_url": w.TargetURL},
		}
		if !sendCandidate(ctx, out, cand) {
			return
		}
	}
}

// Refresh implements credentials.Refresher for chat-platform connections.
func (a *Adapter) Refresh(ctx context.Context, conn *models.PlatformConnection, refreshToken *models.OAuthCredential) (*models.OAuthCredential, error) {
	tok, err := collector.RefreshOAuthToken(ctx, conn, refreshToken.Plaintext)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("connection_id", conn.ID).Msg("chat adapter refreshed access token")
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
	return "https://chat.example.invalid/api"
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
