// Package models defines the shared entity types for the shadow-automation
// discovery pipeline: organizations, platform connections, credentials,
// discovery runs, discovered automations, and their derived views.
package models

import "time"

// ── Organization ─────────────────────────────────────────────

// Organization is read-only to the core; it is created and managed by
// an external collaborator (generic CRUD on organizations/users).
type Organization struct {
	ID       string `json:"id" db:"id"`
	Slug     string `json:"slug" db:"slug"`
	PlanTier string `json:"plan_tier" db:"plan_tier"`
}

// ── Platform Connection ──────────────────────────────────────

type PlatformType string

const (
	PlatformChat           PlatformType = "chat"
	PlatformWorkspaceSuite PlatformType = "workspace_suite"
	PlatformCollabSuite    PlatformType = "collab_suite"
)

type ConnectionStatus string

const (
	ConnectionPending ConnectionStatus = "pending"
	ConnectionActive  ConnectionStatus = "active"
	ConnectionExpired ConnectionStatus = "expired"
	ConnectionError   ConnectionStatus = "error"
	ConnectionRevoked ConnectionStatus = "revoked"
)

// PlatformConnection is an authorized link between the system and one
// SaaS tenant on behalf of one organization. Unique per
// (organization_id, platform_type, platform_user_id, platform_workspace_id).
type PlatformConnection struct {
	ID                  string            `json:"id" db:"id"`
	OrganizationID      string            `json:"organization_id" db:"organization_id"`
	PlatformType        PlatformType      `json:"platform_type" db:"platform_type"`
	PlatformUserID      string            `json:"platform_user_id" db:"platform_user_id"`
	PlatformWorkspaceID string            `json:"platform_workspace_id,omitempty" db:"platform_workspace_id"`
	Status              ConnectionStatus  `json:"status" db:"status"`
	PermissionsGranted  []string          `json:"permissions_granted,omitempty"`
	ExpiresAt           *time.Time        `json:"expires_at,omitempty" db:"expires_at"`
	Metadata            map[string]string `json:"metadata,omitempty"`
	CreatedAt           time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at" db:"updated_at"`
}

// IsHostedWorkspace reports whether this connection belongs to a managed
// (non-consumer) workspace — gates service-account enumeration (§4.2.4).
func (c *PlatformConnection) IsHostedWorkspace() bool {
	if c.PlatformWorkspaceID == "" {
		return false
	}
	_, ok := c.Metadata["hosted_domain"]
	return ok
}

// ── OAuth Credential ─────────────────────────────────────────

type CredentialType string

const (
	CredentialAccessToken   CredentialType = "access_token"
	CredentialRefreshToken  CredentialType = "refresh_token"
	CredentialAPIKey        CredentialType = "api_key"
	CredentialWebhookSecret CredentialType = "webhook_secret"
)

// OAuthCredential is owned by a connection. Stored encrypted at rest and
// cached in memory; the two MUST agree (I-C1).
type OAuthCredential struct {
	ConnectionID   string         `json:"connection_id" db:"connection_id"`
	CredentialType CredentialType `json:"credential_type" db:"credential_type"`
	// Plaintext is populated only in-memory (cache / in-flight use); it is
	// never what gets written to durable storage — see internal/cipher.
	Plaintext       string     `json:"-"`
	Ciphertext      string     `json:"-" db:"ciphertext"`
	EncryptionKeyID string     `json:"-" db:"encryption_key_id"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty" db:"expires_at"`
}

// ExpiresWithin reports whether the credential expires within d of now.
// A credential with no expiry never expires.
func (c *OAuthCredential) ExpiresWithin(d time.Duration, now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return c.ExpiresAt.Sub(now) < d
}

// ── Discovery Run ────────────────────────────────────────────

type RunStatus string

const (
	RunPending    RunStatus = "pending"
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunCancelled  RunStatus = "cancelled"
)

// ErrorCategory is the client-facing taxonomy for why a session failed
// (§4.6, §7). Ordered by severity, most severe first.
type ErrorCategory string

const (
	ErrorAuthentication ErrorCategory = "authentication"
	ErrorPermission     ErrorCategory = "permission"
	ErrorRateLimit      ErrorCategory = "rate_limit"
	ErrorNetwork        ErrorCategory = "network"
	ErrorInternal       ErrorCategory = "internal"
)

// categorySeverity ranks categories for "most severe wins" aggregation
// (authentication > permission > rate_limit > network > internal).
var categorySeverity = map[ErrorCategory]int{
	ErrorAuthentication: 0,
	ErrorPermission:     1,
	ErrorRateLimit:      2,
	ErrorNetwork:        3,
	ErrorInternal:       4,
}

// MostSevere returns whichever of a, b ranks higher in the taxonomy.
func MostSevere(a, b ErrorCategory) ErrorCategory {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	if categorySeverity[a] <= categorySeverity[b] {
		return a
	}
	return b
}

// DiscoveryRun is one invocation of the pipeline for one connection.
type DiscoveryRun struct {
	ID               string        `json:"id" db:"id"`
	OrganizationID   string        `json:"organization_id" db:"organization_id"`
	ConnectionID     string        `json:"connection_id" db:"connection_id"`
	Status           RunStatus     `json:"status" db:"status"`
	StartedAt        time.Time     `json:"started_at" db:"started_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
	AutomationsFound int           `json:"automations_found" db:"automations_found"`
	ErrorsCount      int           `json:"errors_count" db:"errors_count"`
	ErrorCategory    ErrorCategory `json:"error_category,omitempty" db:"error_category"`
	ErrorDetails     string        `json:"error_details,omitempty" db:"error_details"`
}

// ── Discovered Automation ────────────────────────────────────

type AutomationType string

const (
	AutomationWorkflow       AutomationType = "workflow"
	AutomationBot            AutomationType = "bot"
	AutomationIntegration    AutomationType = "integration"
	AutomationWebhook        AutomationType = "webhook"
	AutomationScheduledTask  AutomationType = "scheduled_task"
	AutomationScript         AutomationType = "script"
	AutomationServiceAccount AutomationType = "service_account"
)

// OwnerInfo is a narrow, typed projection of the semi-structured
// owner_info blob; the full blob is preserved in PlatformMetadata for
// round-trip fidelity (§4.5, §9).
type OwnerInfo struct {
	UserID      string `json:"user_id,omitempty"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// AIPlatformType classifies which family of AI vendor a detected signal
// belongs to (§4.3).
type AIPlatformType string

const (
	AIPlatformOpenAI       AIPlatformType = "openai"
	AIPlatformAnthropic    AIPlatformType = "anthropic"
	AIPlatformGoogleAI     AIPlatformType = "google_ai"
	AIPlatformMicrosoftAI  AIPlatformType = "microsoft_ai"
	AIPlatformPerplexity   AIPlatformType = "perplexity"
	AIPlatformOther        AIPlatformType = "other"
)

// RiskAssessment is the output of the Risk Scorer (C4), embedded on
// every DiscoveredAutomation (§3, §4.4).
type RiskAssessment struct {
	RiskLevel      RiskLevel      `json:"risk_level"`
	RiskScore      int            `json:"risk_score"`
	RiskFactors    []string       `json:"risk_factors"`
	IsAIPlatform   bool           `json:"is_ai_platform"`
	AIPlatformName string         `json:"ai_platform_name,omitempty"`
	AIPlatformType AIPlatformType `json:"ai_platform_type,omitempty"`
	AssessedAt     time.Time      `json:"assessed_at"`
}

// DiscoveredAutomation is a normalized, uniform record for any bot,
// OAuth app, webhook integration, scheduled script, or service account
// found by a Platform Collector. Unique per (connection_id, external_id).
type DiscoveredAutomation struct {
	ID                  string                 `json:"id" db:"id"`
	OrganizationID      string                 `json:"organization_id" db:"organization_id"`
	ConnectionID        string                 `json:"connection_id" db:"connection_id"`
	DiscoveryRunID      string                 `json:"discovery_run_id" db:"discovery_run_id"`
	ExternalID          string                 `json:"external_id" db:"external_id"`
	Name                string                 `json:"name" db:"name"`
	AutomationType      AutomationType         `json:"automation_type" db:"automation_type"`
	Status              string                 `json:"status" db:"status"`
	TriggerType         string                 `json:"trigger_type,omitempty" db:"trigger_type"`
	Actions             []string               `json:"actions"`
	PermissionsRequired []string               `json:"permissions_required"`
	OwnerInfo           OwnerInfo              `json:"owner_info"`
	PlatformMetadata    map[string]interface{} `json:"platform_metadata,omitempty"`
	Risk                RiskAssessment         `json:"risk"`
	FirstDiscoveredAt   time.Time              `json:"first_discovered_at" db:"first_discovered_at"`
	LastSeenAt          time.Time              `json:"last_seen_at" db:"last_seen_at"`
	IsActive            bool                   `json:"is_active" db:"is_active"`
	MissedRuns          int                    `json:"-" db:"missed_runs"`

	// PlatformType is populated by the read model's LEFT JOIN against the
	// connection table (I-1). Nil when the connection has been deleted.
	PlatformType *PlatformType `json:"platform_type"`
}

// ── Vendor Group (derived view) ──────────────────────────────

// VendorGroup aggregates automations by (vendor_name, platform_type)
// for the C8 group_by=vendor view.
type VendorGroup struct {
	VendorName       string                 `json:"vendor_name"`
	PlatformType     PlatformType           `json:"platform_type"`
	IsAIVendor       bool                   `json:"is_ai_vendor"`
	Count            int                    `json:"count"`
	HighestRiskLevel RiskLevel              `json:"highest_risk_level"`
	Automations      []DiscoveredAutomation `json:"automations"`
}

// ── Stats (derived view) ──────────────────────────────────────

// InventoryStats is the response shape for C8's stats(org_id) operation.
type InventoryStats struct {
	Total            int                    `json:"total"`
	ByPlatformType   map[PlatformType]int   `json:"by_platform_type"`
	ByRiskLevel      map[RiskLevel]int      `json:"by_risk_level"`
	ByAutomationType map[AutomationType]int `json:"by_automation_type"`
}
