// Package inventory implements the Inventory Query Service (C8): the
// read-only list/stats/group_by_vendor operations served to the API
// layer, with filter validation happening before authorization (§4.8).
package inventory

import (
	"context"
	"fmt"
	"sort"

	"github.com/agentoven/agentoven/control-plane/internal/automation"
	"github.com/agentoven/agentoven/control-plane/pkg/models"
	"github.com/go-playground/validator/v10"
)

// GroupBy selects C8's listing grouping mode.
type GroupBy string

const (
	GroupByNone   GroupBy = "none"
	GroupByVendor GroupBy = "vendor"
)

// ListFilters is the validated input to List; struct tags drive
// validator/v10 so malformed filters are rejected before any
// authorization check runs (§4.8: "invalid filter values MUST be
// rejected before authorization").
type ListFilters struct {
	OrgID          string                `validate:"required"`
	PlatformType   *models.PlatformType  `validate:"omitempty,oneof=chat workspace_suite collab_suite"`
	AutomationType *models.AutomationType `validate:"omitempty,oneof=workflow bot integration webhook scheduled_task script service_account"`
	RiskLevel      *models.RiskLevel     `validate:"omitempty,oneof=low medium high critical"`
	IsActive       *bool
	Search         string
	GroupBy        GroupBy `validate:"omitempty,oneof=none vendor"`
	Page           int     `validate:"gte=0"`
	Limit          int     `validate:"gte=0,lte=500"`
}

var validate = validator.New()

// ErrInvalidFilter wraps a validator error for callers that want to
// distinguish "bad request" from other failures.
type ErrInvalidFilter struct{ err error }

func (e *ErrInvalidFilter) Error() string { return fmt.Sprintf("invalid filter: %v", e.err) }
func (e *ErrInvalidFilter) Unwrap() error { return e.err }

// Service serves C8's read-only operations over an automation.Store.
type Service struct {
	store automation.Store
}

func New(store automation.Store) *Service {
	return &Service{store: store}
}

// List validates filters, then serves list(org_id, filters) (§4.8).
// GroupBy is validated but not applied here: List always returns a flat
// list, and the vendor grouping is served by GroupByVendor.
func (s *Service) List(ctx context.Context, f ListFilters) ([]models.DiscoveredAutomation, error) {
	if err := validate.Struct(f); err != nil {
		return nil, &ErrInvalidFilter{err: err}
	}

	rows, err := s.store.List(ctx, f.OrgID, automation.Filter{
		PlatformType:   f.PlatformType,
		AutomationType: f.AutomationType,
		RiskLevel:      f.RiskLevel,
		IsActive:       f.IsActive,
		Search:         f.Search,
		Page:           f.Page,
		Limit:          f.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list automations: %w", err)
	}
	return rows, nil
}

// Stats serves stats(org_id) (§4.8).
func (s *Service) Stats(ctx context.Context, orgID string) (models.InventoryStats, error) {
	if orgID == "" {
		return models.InventoryStats{}, &ErrInvalidFilter{err: fmt.Errorf("org_id is required")}
	}
	return s.store.Stats(ctx, orgID)
}

// GroupByVendor serves group_by_vendor(org_id) (§4.8): vendor_name
// derives from the AI-signal output when present, else from the
// normalized automation name.
func (s *Service) GroupByVendor(ctx context.Context, orgID string) ([]models.VendorGroup, error) {
	if orgID == "" {
		return nil, &ErrInvalidFilter{err: fmt.Errorf("org_id is required")}
	}

	rows, err := s.store.List(ctx, orgID, automation.Filter{Limit: 10000})
	if err != nil {
		return nil, fmt.Errorf("list automations for grouping: %w", err)
	}

	type groupKey struct {
		vendor       string
		platformType models.PlatformType
	}
	groups := make(map[groupKey]*models.VendorGroup)
	order := make([]groupKey, 0)

	for _, a := range rows {
		vendor := vendorName(a)
		pt := models.PlatformType("")
		if a.PlatformType != nil {
			pt = *a.PlatformType
		}
		key := groupKey{vendor: vendor, platformType: pt}
		g, ok := groups[key]
		if !ok {
			g = &models.VendorGroup{
				VendorName:       vendor,
				PlatformType:     pt,
				IsAIVendor:       a.Risk.IsAIPlatform,
				HighestRiskLevel: models.RiskLow,
			}
			groups[key] = g
			order = append(order, key)
		}
		g.Count++
		g.Automations = append(g.Automations, a)
		if riskRank(a.Risk.RiskLevel) > riskRank(g.HighestRiskLevel) {
			g.HighestRiskLevel = a.Risk.RiskLevel
		}
		if a.Risk.IsAIPlatform {
			g.IsAIVendor = true
		}
	}

	out := make([]models.VendorGroup, 0, len(order))
	for _, key := range order {
		out = append(out, *groups[key])
	}
	// AI vendor groups sort first, matching the original dashboard's
	// behavior (SPEC_FULL.md supplement 2); ties broken by vendor name.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsAIVendor != out[j].IsAIVendor {
			return out[i].IsAIVendor
		}
		return out[i].VendorName < out[j].VendorName
	})
	return out, nil
}

func vendorName(a models.DiscoveredAutomation) string {
	if a.Risk.AIPlatformName != "" {
		return a.Risk.AIPlatformName
	}
	return a.Name
}

func riskRank(l models.RiskLevel) int {
	switch l {
	case models.RiskCritical:
		return 3
	case models.RiskHigh:
		return 2
	case models.RiskMedium:
		return 1
	default:
		return 0
	}
}
