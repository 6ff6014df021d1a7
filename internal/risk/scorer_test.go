package risk_test

import (
	"testing"
	"time"

	"github.com/agentoven/agentoven/control-plane/internal/aisignal"
	"github.com/agentoven/agentoven/control-plane/internal/collector"
	"github.com/agentoven/agentoven/control-plane/internal/risk"
	"github.com/agentoven/agentoven/control-plane/pkg/models"
)

func TestScorer_AIPlatformOverrideIsDeterministic(t *testing.T) {
	s := risk.New(85)
	cand := &collector.RawCandidate{
		ExternalID: "bot-1",
		Name:       "Unrelated name",
		TypeHint:   models.AutomationIntegration,
	}
	sig := aisignal.Signal{IsAIPlatform: true, AIPlatformName: "OpenAI", AIPlatformType: models.AIPlatformOpenAI}

	a1 := s.Score(cand, sig, time.Unix(0, 0))
	a2 := s.Score(cand, sig, time.Unix(0, 0))

	if a1.RiskScore != 85 || a1.RiskLevel != models.RiskHigh {
		t.Fatalf("got score=%d level=%s, want 85/high", a1.RiskScore, a1.RiskLevel)
	}
	if a1.RiskScore != a2.RiskScore || a1.RiskLevel != a2.RiskLevel {
		t.Error("Score must be a pure function of its inputs")
	}
}

func TestScorer_NonAIPlatformScalesWithFactorCount(t *testing.T) {
	s := risk.New(85)
	cand := &collector.RawCandidate{
		ExternalID: "bot-2",
		Name:       "Payroll Sync",
		TypeHint:   models.AutomationIntegration,
		Scopes:     []string{"drive.readonly", "mail.send"},
		PlatformMetadata: map[string]interface{}{
			"target_url": "https://hooks.example.com/ingest",
		},
	}
	sig := aisignal.Signal{}

	a := s.Score(cand, sig, time.Unix(0, 0))

	if a.IsAIPlatform {
		t.Error("expected IsAIPlatform=false")
	}
	if len(a.RiskFactors) == 0 {
		t.Fatal("expected at least one risk factor")
	}
	wantScore := min(100, 30+15*len(a.RiskFactors))
	if a.RiskScore != wantScore {
		t.Errorf("RiskScore = %d, want %d", a.RiskScore, wantScore)
	}
}

// TestScorer_ScopeAggregationNoAI reproduces spec.md §8 scenario 3:
// ordinary identity scopes plus a bare "drive" scope, no AI signal,
// must not trip any sensitivity factor.
func TestScorer_ScopeAggregationNoAI(t *testing.T) {
	s := risk.New(85)
	cand := &collector.RawCandidate{
		ExternalID: "123.apps.googleusercontent.com",
		Name:       "Test App",
		TypeHint:   models.AutomationIntegration,
		Scopes:     []string{"email", "profile", "drive"},
	}
	a := s.Score(cand, aisignal.Signal{}, time.Unix(0, 0))

	if len(a.RiskFactors) != 0 {
		t.Errorf("RiskFactors = %v, want none", a.RiskFactors)
	}
	if a.RiskLevel != models.RiskLow {
		t.Errorf("RiskLevel = %s, want low", a.RiskLevel)
	}
	if a.RiskScore != 30 {
		t.Errorf("RiskScore = %d, want 30", a.RiskScore)
	}
}

func TestScorer_NoFactorsIsLowRisk(t *testing.T) {
	s := risk.New(85)
	cand := &collector.RawCandidate{
		ExternalID: "bot-3",
		Name:       "Internal Tool",
		TypeHint:   models.AutomationBot,
	}
	a := s.Score(cand, aisignal.Signal{}, time.Unix(0, 0))

	if a.RiskLevel != models.RiskLow {
		t.Errorf("RiskLevel = %s, want low", a.RiskLevel)
	}
	if len(a.RiskFactors) != 0 {
		t.Errorf("expected no risk factors, got %v", a.RiskFactors)
	}
}

func TestScorer_ServiceAccountExternalProjectIsAFactor(t *testing.T) {
	s := risk.New(85)
	cand := &collector.RawCandidate{
		ExternalID: "sa-1",
		Name:       "ci-deploy",
		TypeHint:   models.AutomationServiceAccount,
		OwnerInfo:  models.OwnerInfo{Email: "owner@internal.example"},
		PlatformMetadata: map[string]interface{}{
			"project_domain": "external.example",
		},
	}
	a := s.Score(cand, aisignal.Signal{}, time.Unix(0, 0))

	found := false
	for _, f := range a.RiskFactors {
		if f == "Service account belongs to external project" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected external-project factor, got %v", a.RiskFactors)
	}
}

func TestNew_DefaultsInvalidScoreTo85(t *testing.T) {
	s := risk.New(0)
	if s.AIPlatformScore != 85 {
		t.Errorf("AIPlatformScore = %d, want 85", s.AIPlatformScore)
	}
}
