package admin

import (
	"net/http"
	"strconv"

	"github.com/Sentinel-Gate/approvalgate/internal/domain/audit"
	"github.com/Sentinel-Gate/approvalgate/internal/service"
)

// StatsResponse is the JSON response for GET /admin/api/v1/stats.
type StatsResponse struct {
	service.Stats
	QueueDepth int  `json:"queue_depth"`
	Reviewing  bool `json:"reviewing"`
}

// handleGetStats returns outcome counters and queue state.
func (h *AdminAPIHandler) handleGetStats(w http.ResponseWriter, r *http.Request) {
	var resp StatsResponse
	if h.statsService != nil {
		resp.Stats = h.statsService.GetStats()
	}
	if h.queue != nil {
		resp.QueueDepth = len(h.queue.Snapshot())
	}
	if h.tracker != nil {
		resp.Reviewing = h.tracker.InReview() != nil
	}
	h.respondJSON(w, http.StatusOK, resp)
}

const (
	defaultOutcomeLimit = 50
	maxOutcomeLimit     = 1000
)

// handleListOutcomes returns recent journal records, newest first.
// GET /admin/api/v1/outcomes?limit=N
func (h *AdminAPIHandler) handleListOutcomes(w http.ResponseWriter, r *http.Request) {
	if h.outcomeReader == nil {
		h.respondJSON(w, http.StatusOK, []audit.Record{})
		return
	}

	limit := defaultOutcomeLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxOutcomeLimit)
	}

	records, err := h.outcomeReader.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to read outcomes", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to read outcomes")
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	h.respondJSON(w, http.StatusOK, records)
}
