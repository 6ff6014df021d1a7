package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/agentoven/agentoven/control-plane/internal/automation"
	"github.com/agentoven/agentoven/control-plane/internal/inventory"
	"github.com/agentoven/agentoven/control-plane/pkg/models"
)

type fakePlatformLookup struct{}

func (fakePlatformLookup) PlatformTypeFor(_ context.Context, _ string) (models.PlatformType, bool, error) {
	return "chat", true, nil
}

func seedStore(t *testing.T) automation.Store {
	t.Helper()
	store := automation.NewMemoryStore(fakePlatformLookup{})
	now := time.Now()

	rows := []struct {
		name     string
		extID    string
		aiName   string
		aiVendor bool
		risk     models.RiskLevel
	}{
		{"ChatGPT Connector", "ext-1", "OpenAI", true, models.RiskHigh},
		{"Claude Helper", "ext-2", "Anthropic", true, models.RiskHigh},
		{"Payroll Sync", "ext-3", "", false, models.RiskLow},
	}
	for _, r := range rows {
		store.Upsert(context.Background(), &models.DiscoveredAutomation{
			OrganizationID: "org-1",
			ConnectionID:   "conn-1",
			ExternalID:     r.extID,
			Name:           r.name,
			AutomationType: models.AutomationIntegration,
			Risk: models.RiskAssessment{
				IsAIPlatform:   r.aiVendor,
				AIPlatformName: r.aiName,
				RiskLevel:      r.risk,
			},
		}, now)
	}
	return store
}

func TestService_List_RejectsInvalidFilterBeforeAuthorization(t *testing.T) {
	svc := inventory.New(seedStore(t))

	_, err := svc.List(context.Background(), inventory.ListFilters{
		OrgID: "", // required, missing
	})
	if err == nil {
		t.Fatal("expected validation error for missing org_id")
	}
	if _, ok := err.(*inventory.ErrInvalidFilter); !ok {
		t.Errorf("err type = %T, want *ErrInvalidFilter", err)
	}
}

func TestService_List_RejectsOutOfRangeLimit(t *testing.T) {
	svc := inventory.New(seedStore(t))

	_, err := svc.List(context.Background(), inventory.ListFilters{
		OrgID: "org-1",
		Limit: 9999,
	})
	if err == nil {
		t.Fatal("expected validation error for limit > 500")
	}
}

func TestService_List_ReturnsAllRowsForOrg(t *testing.T) {
	svc := inventory.New(seedStore(t))

	rows, err := svc.List(context.Background(), inventory.ListFilters{OrgID: "org-1", Limit: 50})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("len(rows) = %d, want 3", len(rows))
	}
}

func TestService_Stats_RequiresOrgID(t *testing.T) {
	svc := inventory.New(seedStore(t))
	if _, err := svc.Stats(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty org_id")
	}
}

func TestService_GroupByVendor_AIVendorsSortFirst(t *testing.T) {
	svc := inventory.New(seedStore(t))

	groups, err := svc.GroupByVendor(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("GroupByVendor: %v", err)
	}
	if len(groups) != 3 {
		t.Fatalf("len(groups) = %d, want 3", len(groups))
	}
	for i, g := range groups {
		if g.IsAIVendor && i > 1 {
			t.Errorf("AI vendor group %q sorted after non-AI groups", g.VendorName)
		}
	}
	if groups[len(groups)-1].VendorName != "Payroll Sync" {
		t.Errorf("expected the non-AI vendor last, got %q", groups[len(groups)-1].VendorName)
	}
}

func TestService_List_SearchMatchesNestedPlatformMetadata(t *testing.T) {
	store := automation.NewMemoryStore(fakePlatformLookup{})
	now := time.Now()
	store.Upsert(context.Background(), &models.DiscoveredAutomation{
		OrganizationID: "org-1",
		ConnectionID:   "conn-1",
		ExternalID:     "ext-webhook-1",
		Name:           "Unrelated name",
		AutomationType: models.AutomationWebhook,
		PlatformMetadata: map[string]interface{}{
			"target_url": "https://hooks.example.com/ingest",
		},
	}, now)
	svc := inventory.New(store)

	rows, err := svc.List(context.Background(), inventory.ListFilters{
		OrgID: "org-1", Search: "EXAMPLE", Limit: 50,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 1 || rows[0].ExternalID != "ext-webhook-1" {
		t.Fatalf("expected the webhook matched via platform_metadata, got %+v", rows)
	}

	rows, err = svc.List(context.Background(), inventory.ListFilters{
		OrgID: "org-1", Search: "no-such-term", Limit: 50,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows for unrelated search term, got %d", len(rows))
	}
}
