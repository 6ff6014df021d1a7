// Package collector defines the Platform Collector capability set (C2):
// the Adapter interface selected by platform_type, the error taxonomy
// collectors raise, and the registry new platforms plug into without
// touching call sites (§4.2, §9) — modeled directly on the teacher's
// internal/router.ModelRouter / ProviderDriver registry pattern.
package collector

import (
	"context"
	"time"

	"github.com/agentoven/agentoven/control-plane/pkg/models"
)

// SourceMethod identifies one discovery technique within an adapter
// (§4.2). Ordering across methods is unspecified; ordering within one
// method is the adapter's documented order.
type SourceMethod string

const (
	SourceOAuthAppInventory      SourceMethod = "oauth_app_inventory"
	SourceAuditLogOAuthAuthorize SourceMethod = "audit_log_oauth_authorize"
	SourceScriptContentScan      SourceMethod = "script_content_scan"
	SourceServiceAccountAudit    SourceMethod = "service_account_audit"
	SourceBotListing             SourceMethod = "bot_listing"
	SourceWebhookListing         SourceMethod = "webhook_listing"
	SourceScheduledTaskListing   SourceMethod = "scheduled_task_listing"
)

// RawCandidate is one platform-native artifact an adapter produced,
// before AI-signal detection or risk scoring (§4.2).
type RawCandidate struct {
	ExternalID       string                 `validate:"required"`
	Name             string                 `validate:"required"`
	TypeHint         models.AutomationType  `validate:"required"`
	TriggerHint      string
	Scopes           []string
	OwnerInfo        models.OwnerInfo
	PlatformMetadata map[string]interface{}
	RawEvidenceBlob  string
	SourceMethod     SourceMethod `validate:"required"`
	// ModifiedAt drives the documented per-method ordering: results sort
	// by ModifiedAt descending when present, else by ExternalID ascending.
	ModifiedAt *time.Time
	// Actions lists what the automation does, as reported by the
	// platform listing. It is empty for a candidate whose contribution
	// degraded under a permission error (§4.2.3) — nil/empty is a valid
	// result, not an error on its own.
	Actions []string
}

// DiscoverOptions configures one discovery invocation.
type DiscoverOptions struct {
	SubmethodTimeout time.Duration
}

// Result is one item on an Adapter's output stream: either a candidate
// or a sub-method error tagged with the §7 taxonomy.
type Result struct {
	Candidate *RawCandidate
	Err       *Error
}

// Adapter is the per-platform capability set (§4.2): authenticate,
// discover_automations, refresh_token, list_audit_events. Authentication
// and refresh are folded into Discover/Refresh; list_audit_events is an
// implementation detail of individual sub-methods.
type Adapter interface {
	PlatformType() models.PlatformType

	// Discover returns a finite, non-restartable stream of results. The
	// channel is closed when every sub-method has finished (succeeded,
	// degraded, or failed). Ctx cancellation stops in-flight sub-methods
	// promptly; no new items are sent afterward.
	Discover(ctx context.Context, conn *models.PlatformConnection, cred *models.OAuthCredential, opts DiscoverOptions) <-chan Result

	// Refresh implements credentials.Refresher — the platform-specific
	// OAuth refresh flow invoked by the Credential Store.
	Refresh(ctx context.Context, conn *models.PlatformConnection, refreshToken *models.OAuthCredential) (*models.OAuthCredential, error)
}
