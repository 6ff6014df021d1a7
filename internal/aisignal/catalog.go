package aisignal

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/agentoven/agentoven/control-plane/pkg/models"
)

// VendorSignature is one curated AI-vendor entry: a display name, its
// platform family, and the case-insensitive substring tokens that match
// it in a candidate's name or external_id.
type VendorSignature struct {
	Name   string               `json:"name"`
	Type   models.AIPlatformType `json:"type"`
	Tokens []string             `json:"tokens"`
}

// Catalog is the configuration-not-code input the detector needs (§4.3:
// "the curated vendor list and hostnames are configuration"). It is
// re-loadable so the detector can be re-run over historical
// raw_evidence_blob without re-collection.
type Catalog struct {
	Vendors []VendorSignature `json:"vendors"`
	// Hostnames maps a known AI-API hostname to the vendor name it belongs
	// to, so a raw_evidence_blob hit can be attributed to ai_platform_name
	// without a second vendor-token scan.
	Hostnames       map[string]string `json:"hostnames"`
	KeyPrefixes     []string          `json:"key_prefixes"`
	SensitiveScopes []string          `json:"sensitive_scopes"`
}

// DefaultCatalog is the built-in seed catalog used when no
// AI_DETECTOR_VENDOR_CATALOG file is configured. It covers the vendor
// families named in §4.3's ai_platform_type enum.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Vendors: []VendorSignature{
			{Name: "OpenAI", Type: models.AIPlatformOpenAI, Tokens: []string{"openai", "gpt-", "chatgpt"}},
			{Name: "Anthropic", Type: models.AIPlatformAnthropic, Tokens: []string{"anthropic", "claude"}},
			{Name: "Google AI", Type: models.AIPlatformGoogleAI, Tokens: []string{"gemini", "vertex ai", "google ai", "palm"}},
			{Name: "Microsoft AI", Type: models.AIPlatformMicrosoftAI, Tokens: []string{"copilot", "azure openai", "microsoft ai"}},
			{Name: "Perplexity", Type: models.AIPlatformPerplexity, Tokens: []string{"perplexity"}},
		},
		Hostnames: map[string]string{
			"api.openai.com":                     "OpenAI",
			"api.anthropic.com":                   "Anthropic",
			"generativelanguage.googleapis.com":   "Google AI",
			"api.cognitive.microsoft.com":         "Microsoft AI",
			"api.perplexity.ai":                   "Perplexity",
		},
		KeyPrefixes: []string{"sk-ant-", "sk-proj-", "sk-"},
		SensitiveScopes: []string{
			"drive", "mail", "calendar", "admin",
		},
	}
}

// LoadCatalog reads a catalog from path, falling back to DefaultCatalog
// when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vendor catalog %s: %w", path, err)
	}
	var c Catalog
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse vendor catalog %s: %w", path, err)
	}
	return &c, nil
}

func (c *Catalog) matchVendor(haystack string) *VendorSignature {
	lower := strings.ToLower(haystack)
	for i := range c.Vendors {
		for _, tok := range c.Vendors[i].Tokens {
			if strings.Contains(lower, strings.ToLower(tok)) {
				return &c.Vendors[i]
			}
		}
	}
	return nil
}

// matchHostname returns the matched hostname and its vendor name, or
// ("", "") if no known AI-API hostname appears in blob. Hostnames are
// tried in sorted order so the same blob always yields the same match.
func (c *Catalog) matchHostname(blob string) (string, string) {
	lower := strings.ToLower(blob)
	hosts := make([]string, 0, len(c.Hostnames))
	for host := range c.Hostnames {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	for _, host := range hosts {
		if strings.Contains(lower, strings.ToLower(host)) {
			return host, c.Hostnames[host]
		}
	}
	return "", ""
}

func (c *Catalog) vendorByName(name string) *VendorSignature {
	for i := range c.Vendors {
		if c.Vendors[i].Name == name {
			return &c.Vendors[i]
		}
	}
	return nil
}

func (c *Catalog) matchKeyPrefix(blob string) string {
	for _, prefix := range c.KeyPrefixes {
		if strings.Contains(blob, prefix) {
			return prefix
		}
	}
	return ""
}

func (c *Catalog) isSensitiveScope(scope string) bool {
	lower := strings.ToLower(scope)
	for _, s := range c.SensitiveScopes {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
