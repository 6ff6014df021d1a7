// Package handlers implements the HTTP handlers for the shadow
// automation discovery API: triggering discovery runs, polling their
// status, streaming progress, and serving the inventory query surface
// (§6.3).
package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/agentoven/agentoven/control-plane/internal/api/middleware"
	"github.com/agentoven/agentoven/control-plane/internal/discovery"
	"github.com/agentoven/agentoven/control-plane/internal/inventory"
	"github.com/agentoven/agentoven/control-plane/internal/progress"
	"github.com/agentoven/agentoven/control-plane/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Orchestrator *discovery.Orchestrator
	Inventory    *inventory.Service
	Bus          *progress.Bus
}

func New(orch *discovery.Orchestrator, inv *inventory.Service, bus *progress.Bus) *Handlers {
	return &Handlers{Orchestrator: orch, Inventory: inv, Bus: bus}
}

// StartDiscovery handles POST /{connection_id}/discover (§6.3): it
// starts a run and returns {run_id, status} synchronously. The terminal
// outcome arrives later via the Progress Bus.
func (h *Handlers) StartDiscovery(w http.ResponseWriter, r *http.Request) {
	connectionID := chi.URLParam(r, "connectionID")
	orgID := middleware.GetOrgID(r.Context())

	runID, err := h.Orchestrator.StartRun(r.Context(), orgID, connectionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("connection_id", connectionID).Str("run_id", runID).Msg("discovery run started")
	respondJSON(w, http.StatusAccepted, map[string]string{
		"run_id": runID,
		"status": string(models.RunPending),
	})
}

// GetDiscoveryStatus handles GET /{connection_id}/discovery (§6.3): the
// latest run's status for the connection.
func (h *Handlers) GetDiscoveryStatus(w http.ResponseWriter, r *http.Request) {
	connectionID := chi.URLParam(r, "connectionID")

	run, err := h.Orchestrator.LatestRun(r.Context(), connectionID)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// StreamDiscoveryEvents handles the C7 subscription channel, keyed by
// connection_id (§6.3, §4.7): a server-sent-events stream of progress,
// automation.added, and terminal events.
func (h *Handlers) StreamDiscoveryEvents(w http.ResponseWriter, r *http.Request) {
	connectionID := chi.URLParam(r, "connectionID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	events := h.Bus.Subscribe(ctx, connectionID)
	bw := bufio.NewWriter(w)

	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Warn().Err(err).Str("connection_id", connectionID).Msg("marshal progress event failed")
			continue
		}
		fmt.Fprintf(bw, "event: %s\ndata: %s\n\n", ev.Kind, payload)
		bw.Flush()
		flusher.Flush()
	}
}

// ListAutomations handles GET /automations (§6.3, §4.8 C8 list/group_by).
func (h *Handlers) ListAutomations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	groupBy := inventory.GroupBy(q.Get("group_by"))
	if groupBy == "" {
		groupBy = inventory.GroupByNone
	}

	if groupBy == inventory.GroupByVendor {
		groups, err := h.Inventory.GroupByVendor(r.Context(), q.Get("org"))
		if err != nil {
			respondInventoryError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"groups": groups})
		return
	}

	filters := inventory.ListFilters{
		OrgID:   q.Get("org"),
		Search:  q.Get("search"),
		GroupBy: groupBy,
		Page:    parseIntDefault(q.Get("page"), 0),
		Limit:   parseIntDefault(q.Get("limit"), 50),
	}
	if v := q.Get("platform_type"); v != "" {
		pt := models.PlatformType(v)
		filters.PlatformType = &pt
	}
	if v := q.Get("automation_type"); v != "" {
		at := models.AutomationType(v)
		filters.AutomationType = &at
	}
	if v := q.Get("risk_level"); v != "" {
		rl := models.RiskLevel(v)
		filters.RiskLevel = &rl
	}
	if v := q.Get("is_active"); v != "" {
		b := v == "true"
		filters.IsActive = &b
	}

	rows, err := h.Inventory.List(r.Context(), filters)
	if err != nil {
		respondInventoryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"automations": rows})
}

// AutomationStats handles GET /automations/stats (§6.3, §4.8 C8 stats).
func (h *Handlers) AutomationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Inventory.Stats(r.Context(), r.URL.Query().Get("org"))
	if err != nil {
		respondInventoryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func respondInventoryError(w http.ResponseWriter, err error) {
	if _, ok := err.(*inventory.ErrInvalidFilter); ok {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// ── Helpers ──────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
