package admin

import (
	"errors"
	"net/http"

	"github.com/Sentinel-Gate/approvalgate/internal/domain/approval"
)

// approvalsResponse is the JSON response for GET /admin/api/v1/approvals.
type approvalsResponse struct {
	// InReview is the task currently awaiting a decision, if any.
	InReview *approval.Snapshot `json:"in_review"`
	// Queued lists waiting tasks in FIFO order.
	Queued []approval.Snapshot `json:"queued"`
	// TimeoutSeconds is the per-task review timeout.
	TimeoutSeconds float64 `json:"timeout_seconds"`
}

// handleListApprovals returns the in-review task and the queued tasks.
// GET /admin/api/v1/approvals
func (h *AdminAPIHandler) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	resp := approvalsResponse{Queued: []approval.Snapshot{}}

	if h.tracker != nil {
		if task := h.tracker.InReview(); task != nil {
			snap := task.Snapshot()
			resp.InReview = &snap
		}
		resp.TimeoutSeconds = h.tracker.Timeout().Seconds()
	}
	if h.queue != nil {
		if queued := h.queue.Snapshot(); queued != nil {
			resp.Queued = queued
		}
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// decisionRequest is the optional JSON body of approve and deny calls.
type decisionRequest struct {
	Reason string `json:"reason"`
}

// handleApproveRequest approves the task under review.
// POST /admin/api/v1/approvals/{id}/approve
func (h *AdminAPIHandler) handleApproveRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, true)
}

// handleDenyRequest denies the task under review.
// POST /admin/api/v1/approvals/{id}/deny
func (h *AdminAPIHandler) handleDenyRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, false)
}

func (h *AdminAPIHandler) decide(w http.ResponseWriter, r *http.Request, approved bool) {
	if h.reviewer == nil {
		h.respondError(w, http.StatusNotFound, "admin approvals not enabled")
		return
	}

	id := h.pathParam(r, "id")
	if id == "" {
		h.respondError(w, http.StatusBadRequest, "approval ID is required")
		return
	}

	// The reason is optional; an empty or missing body is fine.
	var req decisionRequest
	_ = h.readJSON(r, &req)

	status := "denied"
	if approved {
		status = "approved"
	}
	reason := req.Reason
	if reason == "" {
		reason = status + " by admin"
	}

	if err := h.reviewer.Decide(id, approved, reason); err != nil {
		switch {
		case errors.Is(err, approval.ErrNotInReview):
			h.respondError(w, http.StatusConflict, "task is not awaiting a decision")
		case errors.Is(err, approval.ErrAlreadyDecided):
			h.respondError(w, http.StatusConflict, "task already decided")
		default:
			h.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	h.logger.Info("admin decision submitted", "task_id", id, "approved", approved)
	h.respondJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"id":      id,
		"message": reason,
	})
}
