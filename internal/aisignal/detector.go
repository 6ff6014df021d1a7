// Package aisignal implements the AI-Signal Detector (C3): a
// deterministic classifier over a candidate's name, external_id,
// scopes, and raw evidence, re-runnable over historical evidence
// without re-collection since the vendor catalog is pure configuration
// (§4.3).
package aisignal

import (
	"fmt"

	"github.com/agentoven/agentoven/control-plane/internal/collector"
	"github.com/agentoven/agentoven/control-plane/pkg/models"
)

// weight is the fixed confidence contribution of each matched rule.
const (
	weightNameMatch     = 60
	weightEvidenceMatch = 50
	weightSensitiveScope = 20
)

// Signal is C3's output for one candidate.
type Signal struct {
	IsAIPlatform   bool
	AIPlatformName string
	AIPlatformType models.AIPlatformType
	Confidence     int
	DetectedSignals []string
}

// Detector evaluates candidates against a Catalog. It holds no
// per-candidate state; every call to Detect is a pure function of its
// arguments and the catalog, satisfying I-C3-style re-runnability.
type Detector struct {
	catalog             *Catalog
	confidenceThreshold int
}

// New builds a detector. threshold is the minimum confidence (§4.3
// default 70) for is_ai_platform to be true.
func New(catalog *Catalog, threshold int) *Detector {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if threshold <= 0 {
		threshold = 70
	}
	return &Detector{catalog: catalog, confidenceThreshold: threshold}
}

// sourceTag records which evidence surface a signal came from, per the
// audit_log vs script_scan provenance split (SPEC_FULL.md supplement 3).
func sourceTag(method collector.SourceMethod) string {
	switch method {
	case collector.SourceScriptContentScan:
		return "script_scan"
	default:
		return "audit_log"
	}
}

// Detect classifies one candidate. Rules are evaluated in the order
// given in §4.3; the first vendor/hostname match sets ai_platform_name,
// all matched rules accumulate into confidence and detected_signals.
func (d *Detector) Detect(cand *collector.RawCandidate) Signal {
	var sig Signal
	tag := sourceTag(cand.SourceMethod)

	// Rule 1: name/external_id token match.
	if v := d.catalog.matchVendor(cand.Name); v != nil {
		sig.AIPlatformName = v.Name
		sig.AIPlatformType = v.Type
		sig.Confidence += weightNameMatch
		sig.DetectedSignals = append(sig.DetectedSignals, fmt.Sprintf("name_match:%s:%s", v.Name, tag))
	} else if v := d.catalog.matchVendor(cand.ExternalID); v != nil {
		sig.AIPlatformName = v.Name
		sig.AIPlatformType = v.Type
		sig.Confidence += weightNameMatch
		sig.DetectedSignals = append(sig.DetectedSignals, fmt.Sprintf("external_id_match:%s:%s", v.Name, tag))
	}

	// Rule 2: raw_evidence_blob hostname or API-key prefix.
	if cand.RawEvidenceBlob != "" {
		if host, vendor := d.catalog.matchHostname(cand.RawEvidenceBlob); host != "" {
			sig.Confidence += weightEvidenceMatch
			sig.DetectedSignals = append(sig.DetectedSignals, fmt.Sprintf("hostname_match:%s:%s", host, tag))
			if sig.AIPlatformName == "" {
				sig.AIPlatformName = vendor
				if vs := d.catalog.vendorByName(vendor); vs != nil {
					sig.AIPlatformType = vs.Type
				}
			}
		}
		if prefix := d.catalog.matchKeyPrefix(cand.RawEvidenceBlob); prefix != "" {
			sig.Confidence += weightEvidenceMatch
			sig.DetectedSignals = append(sig.DetectedSignals, fmt.Sprintf("key_prefix_match:%s:%s", prefix, tag))
		}
	}

	// Rule 3: sensitive scope in combination with rule 1 or 2.
	if len(sig.DetectedSignals) > 0 {
		for _, scope := range cand.Scopes {
			if d.catalog.isSensitiveScope(scope) {
				sig.Confidence += weightSensitiveScope
				sig.DetectedSignals = append(sig.DetectedSignals, fmt.Sprintf("sensitive_scope:%s:%s", scope, tag))
			}
		}
	}

	if sig.Confidence > 100 {
		sig.Confidence = 100
	}
	if sig.AIPlatformType == "" && sig.AIPlatformName != "" {
		sig.AIPlatformType = models.AIPlatformOther
	}
	sig.IsAIPlatform = sig.Confidence >= d.confidenceThreshold
	return sig
}
