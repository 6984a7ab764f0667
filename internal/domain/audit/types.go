// Package audit contains domain types for the outcome journal: one record per
// classification and one per resolved approval task.
package audit

import "time"

// Stage identifies which path produced a record.
const (
	// StageSync marks records written by the request-serving path.
	StageSync = "sync"
	// StageApproval marks records written by the approval worker.
	StageApproval = "approval"
)

// Outcome constants for journal records.
const (
	OutcomeDenied          = "denied"
	OutcomeForwarded       = "forwarded"
	OutcomeForwardFailed   = "forward_failed"
	OutcomePendingApproval = "pending_approval"
	OutcomeRejected        = "rejected"
	OutcomeTimedOut        = "timed_out"
	OutcomeDropped         = "dropped"
)

// Record is one journal entry.
type Record struct {
	// Timestamp is when the outcome was reached (UTC).
	Timestamp time.Time `json:"timestamp"`
	// Stage is StageSync or StageApproval.
	Stage string `json:"stage"`
	// RequestID correlates the record with the inbound webhook call.
	RequestID string `json:"request_id,omitempty"`
	// TaskID is set for held requests.
	TaskID string `json:"task_id,omitempty"`
	// Fingerprint is a stable hash of method, URL and body.
	Fingerprint string `json:"fingerprint,omitempty"`

	Method string `json:"method"`
	URL    string `json:"url"`

	// Verdict is the policy verdict kind (deny, allow, hold).
	Verdict string `json:"verdict"`
	// Outcome is what finally happened to the request.
	Outcome string `json:"outcome"`
	// Reason is the verdict reason or the failure/decision detail.
	Reason string `json:"reason,omitempty"`
	// DecidedBy names the decision source for approval records.
	DecidedBy string `json:"decided_by,omitempty"`
	// UpstreamStatus is the upstream status code when a forward completed.
	UpstreamStatus int `json:"upstream_status,omitempty"`
	// LatencyMicros is the processing time; for approval records it spans
	// enqueue to resolution.
	LatencyMicros int64 `json:"latency_us"`
}
