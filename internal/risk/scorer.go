// Package risk implements the Risk Scorer (C4): a total, deterministic
// function from a normalized candidate and its AI-signal output to a
// RiskAssessment (§4.4). It has no external dependencies and no
// internal state — same inputs always produce the same output, which
// is the property the orchestrator's property tests rely on (§8).
package risk

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/agentoven/agentoven/control-plane/internal/aisignal"
	"github.com/agentoven/agentoven/control-plane/internal/collector"
	"github.com/agentoven/agentoven/control-plane/pkg/models"
)

// sensitiveScopePatterns are the qualified OAuth scope suffixes that
// count as over-privileged access for the "k OAuth scopes granted" and
// "Drive access" factors (§4.4). Bare identity-style scopes like
// "email", "profile", or an unqualified "drive" do not match — per
// spec.md §8 scenario 3, `{email, profile, drive}` must score
// risk_factors=[], risk_level=low, risk_score=30.
var sensitiveScopePatterns = []string{
	"drive.readonly", "drive.file", "drive.appdata",
	"mail.send", "mail.readonly",
	"calendar",
	"admin",
}

// Scorer applies the §4.4 scoring function. AIPlatformScore is the
// fixed risk_score used under the AI-platform override (default 85).
type Scorer struct {
	AIPlatformScore int
}

// New builds a scorer with the configured AI-platform override score.
func New(aiPlatformScore int) *Scorer {
	if aiPlatformScore <= 0 {
		aiPlatformScore = 85
	}
	return &Scorer{AIPlatformScore: aiPlatformScore}
}

// Score computes the RiskAssessment for one candidate given its
// AI-signal detection result. now is injected so the assessed_at
// timestamp doesn't hide a hidden clock dependency inside the scorer.
func (s *Scorer) Score(cand *collector.RawCandidate, sig aisignal.Signal, now time.Time) models.RiskAssessment {
	factors := make([]string, 0, 6)

	if sig.IsAIPlatform {
		factors = append(factors, fmt.Sprintf("AI platform integration: %s", sig.AIPlatformName))
	}

	if n := countSensitiveScopes(cand.Scopes); n > 0 {
		factors = append(factors, fmt.Sprintf("%d OAuth scopes granted", n))
	}

	if n := countScopesContaining(cand.Scopes, "drive."); n > 0 {
		factors = append(factors, fmt.Sprintf("Drive access: %d scope(s)", n))
	}

	// A plain OAuth-authorized integration (§8 scenario 3) isn't on its
	// own evidence of a third-party automation platform; a registered
	// webhook endpoint, which always posts to an external host, is.
	if cand.TypeHint == models.AutomationWebhook {
		factors = append(factors, "Third-party automation platform detected")
	}

	if host := externalFetchHost(cand); host != "" {
		factors = append(factors, fmt.Sprintf("External URL fetch: %s", host))
	}

	if cand.TypeHint == models.AutomationServiceAccount && belongsToExternalProject(cand) {
		factors = append(factors, "Service account belongs to external project")
	}

	assessment := models.RiskAssessment{
		RiskFactors:    factors,
		IsAIPlatform:   sig.IsAIPlatform,
		AIPlatformName: sig.AIPlatformName,
		AIPlatformType: sig.AIPlatformType,
		AssessedAt:     now,
	}

	if sig.IsAIPlatform {
		// I-4 deterministic override: AI integration always scores high,
		// independent of how many other factors also matched.
		assessment.RiskScore = s.AIPlatformScore
		assessment.RiskLevel = models.RiskHigh
		return assessment
	}

	assessment.RiskScore = min(100, 30+15*len(factors))
	assessment.RiskLevel = levelFor(len(factors))
	return assessment
}

func levelFor(factorCount int) models.RiskLevel {
	switch {
	case factorCount >= 5:
		return models.RiskCritical
	case factorCount >= 3:
		return models.RiskHigh
	case factorCount >= 1:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// countSensitiveScopes counts scopes matching a qualified, known-sensitive
// pattern (sensitiveScopePatterns). Bare identity scopes like "email",
// "profile", or an unqualified "drive" never count.
func countSensitiveScopes(scopes []string) int {
	count := 0
	for _, sc := range scopes {
		lower := strings.ToLower(sc)
		for _, p := range sensitiveScopePatterns {
			if strings.Contains(lower, p) {
				count++
				break
			}
		}
	}
	return count
}

func countScopesContaining(scopes []string, substr string) int {
	count := 0
	for _, sc := range scopes {
		if strings.Contains(strings.ToLower(sc), substr) {
			count++
		}
	}
	return count
}

// externalFetchHost extracts the host from a webhook target_url or any
// http(s) URL embedded in the raw evidence blob, in that order.
func externalFetchHost(cand *collector.RawCandidate) string {
	if target, ok := cand.PlatformMetadata["target_url"].(string); ok && target != "" {
		if host := hostOf(target); host != "" {
			return host
		}
	}
	for _, field := range strings.Fields(cand.RawEvidenceBlob) {
		if host := hostOf(field); host != "" {
			return host
		}
	}
	return ""
}

func hostOf(raw string) string {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host
}

func belongsToExternalProject(cand *collector.RawCandidate) bool {
	project, ok := cand.PlatformMetadata["project_domain"].(string)
	if !ok || project == "" {
		return false
	}
	owner := cand.OwnerInfo.Email
	if owner == "" {
		return true
	}
	at := strings.LastIndex(owner, "@")
	if at < 0 {
		return true
	}
	return !strings.EqualFold(owner[at+1:], project)
}
