package aisignal_test

import (
	"testing"

	"github.com/agentoven/agentoven/control-plane/internal/aisignal"
	"github.com/agentoven/agentoven/control-plane/internal/collector"
	"github.com/agentoven/agentoven/control-plane/pkg/models"
)

func TestDetector_NameMatchCrossesThreshold(t *testing.T) {
	d := aisignal.New(aisignal.DefaultCatalog(), 70)
	cand := &collector.RawCandidate{
		ExternalID:   "bot-1",
		Name:         "ChatGPT Connector",
		TypeHint:     models.AutomationIntegration,
		SourceMethod: collector.SourceOAuthAppInventory,
	}

	sig := d.Detect(cand)

	if !sig.IsAIPlatform {
		t.Fatalf("expected is_ai_platform=true, confidence=%d", sig.Confidence)
	}
	if sig.AIPlatformName != "OpenAI" {
		t.Errorf("AIPlatformName = %q, want OpenAI", sig.AIPlatformName)
	}
	if sig.AIPlatformType != models.AIPlatformOpenAI {
		t.Errorf("AIPlatformType = %q, want %q", sig.AIPlatformType, models.AIPlatformOpenAI)
	}
}

func TestDetector_NoMatchIsNotAIPlatform(t *testing.T) {
	d := aisignal.New(aisignal.DefaultCatalog(), 70)
	cand := &collector.RawCandidate{
		ExternalID:   "bot-2",
		Name:         "Payroll Sync Bot",
		TypeHint:     models.AutomationBot,
		SourceMethod: collector.SourceBotListing,
	}

	sig := d.Detect(cand)

	if sig.IsAIPlatform {
		t.Errorf("expected is_ai_platform=false, got confidence=%d", sig.Confidence)
	}
	if sig.AIPlatformName != "" {
		t.Errorf("AIPlatformName = %q, want empty", sig.AIPlatformName)
	}
}

func TestDetector_HostnameAndScopeStackConfidence(t *testing.T) {
	d := aisignal.New(aisignal.DefaultCatalog(), 70)
	cand := &collector.RawCandidate{
		ExternalID:      "bot-3",
		Name:            "Research Assistant",
		TypeHint:        models.AutomationIntegration,
		Scopes:          []string{"drive.readonly"},
		RawEvidenceBlob: "calls https://api.anthropic.com/v1/messages",
		SourceMethod:    collector.SourceAuditLogOAuthAuthorize,
	}

	sig := d.Detect(cand)

	if !sig.IsAIPlatform {
		t.Fatalf("expected is_ai_platform=true, confidence=%d, signals=%v", sig.Confidence, sig.DetectedSignals)
	}
	if sig.AIPlatformName != "Anthropic" {
		t.Errorf("AIPlatformName = %q, want Anthropic", sig.AIPlatformName)
	}
	foundSensitiveScope := false
	for _, s := range sig.DetectedSignals {
		if s == "sensitive_scope:drive.readonly:audit_log" {
			foundSensitiveScope = true
		}
	}
	if !foundSensitiveScope {
		t.Errorf("expected a sensitive_scope signal tagged audit_log, got %v", sig.DetectedSignals)
	}
}

func TestDetector_ScriptScanProvenanceTag(t *testing.T) {
	d := aisignal.New(aisignal.DefaultCatalog(), 70)
	cand := &collector.RawCandidate{
		ExternalID:      "script-1",
		Name:            "Gemini helper script",
		TypeHint:        models.AutomationScript,
		RawEvidenceBlob: "import openai # sk-proj-abc123",
		SourceMethod:    collector.SourceScriptContentScan,
	}

	sig := d.Detect(cand)

	for _, s := range sig.DetectedSignals {
		if s == "" {
			t.Error("unexpected empty detected signal")
		}
	}
	found := false
	for _, s := range sig.DetectedSignals {
		if s == "name_match:Google AI:script_scan" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected name_match signal tagged script_scan, got %v", sig.DetectedSignals)
	}
}

func TestDetector_ConfidenceCapsAt100(t *testing.T) {
	d := aisignal.New(aisignal.DefaultCatalog(), 70)
	cand := &collector.RawCandidate{
		ExternalID:      "bot-4",
		Name:            "ChatGPT Drive Admin Mail Calendar Sync",
		TypeHint:        models.AutomationIntegration,
		Scopes:          []string{"drive", "mail", "calendar", "admin"},
		RawEvidenceBlob: "https://api.openai.com sk-proj-xyz",
		SourceMethod:    collector.SourceOAuthAppInventory,
	}

	sig := d.Detect(cand)

	if sig.Confidence > 100 {
		t.Errorf("Confidence = %d, must be capped at 100", sig.Confidence)
	}
}
