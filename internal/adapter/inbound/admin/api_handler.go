// Package admin provides the localhost-only JSON admin API for approval-gate.
// Every route also requires the admin bearer token, and state-changing
// routes require a double-submit CSRF token.
package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Sentinel-Gate/approvalgate/internal/domain/approval"
	"github.com/Sentinel-Gate/approvalgate/internal/domain/audit"
	"github.com/Sentinel-Gate/approvalgate/internal/service"
)

// QueueLister lists tasks still waiting in the approval queue.
type QueueLister interface {
	Snapshot() []approval.Snapshot
}

// ReviewTracker reports the task currently under review.
type ReviewTracker interface {
	InReview() *approval.Task
	Timeout() time.Duration
}

// Reviewer accepts a decision for the task under review.
type Reviewer interface {
	Decide(id string, approved bool, reason string) error
}

// Authenticator checks the admin bearer credential. A disabled
// authenticator rejects every request.
type Authenticator interface {
	Enabled() bool
	Verify(authHeader string) bool
}

// AdminAPIHandler provides JSON API endpoints for operators.
type AdminAPIHandler struct {
	authn         Authenticator
	queue         QueueLister
	tracker       ReviewTracker
	reviewer      Reviewer
	outcomeReader audit.QueryStore
	statsService  *service.StatsService
	buildInfo     *BuildInfo
	conditions    []string
	logger        *slog.Logger
	startTime     time.Time
}

// AdminAPIOption configures an AdminAPIHandler dependency.
type AdminAPIOption func(*AdminAPIHandler)

// WithAdminAuthenticator sets the admin token check.
func WithAdminAuthenticator(a Authenticator) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.authn = a }
}

// WithApprovalQueue sets the queue listed by the approvals endpoint.
func WithApprovalQueue(q QueueLister) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.queue = q }
}

// WithReviewTracker sets the source of the in-review task.
func WithReviewTracker(t ReviewTracker) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.tracker = t }
}

// WithReviewer enables the approve and deny endpoints.
func WithReviewer(r Reviewer) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.reviewer = r }
}

// WithOutcomeReader sets the journal read by the outcomes endpoint.
func WithOutcomeReader(r audit.QueryStore) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.outcomeReader = r }
}

// WithStatsService sets the stats service.
func WithStatsService(s *service.StatsService) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.statsService = s }
}

// WithBuildInfo sets the build version information.
func WithBuildInfo(info *BuildInfo) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.buildInfo = info }
}

// WithConditionNames lists the active CEL condition rules in system info.
func WithConditionNames(names []string) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.conditions = names }
}

// WithAPILogger sets the logger.
func WithAPILogger(l *slog.Logger) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.logger = l }
}

// WithStartTime sets the server start time for uptime calculation.
func WithStartTime(t time.Time) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.startTime = t }
}

// NewAdminAPIHandler creates a new AdminAPIHandler with the given options.
func NewAdminAPIHandler(opts ...AdminAPIOption) *AdminAPIHandler {
	h := &AdminAPIHandler{
		logger:    slog.Default(),
		startTime: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns an http.Handler with all admin API routes registered.
// Every route enforces localhost-only, token-authenticated access.
func (h *AdminAPIHandler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /admin/api/v1/approvals", h.handleListApprovals)
	mux.HandleFunc("POST /admin/api/v1/approvals/{id}/approve", h.handleApproveRequest)
	mux.HandleFunc("POST /admin/api/v1/approvals/{id}/deny", h.handleDenyRequest)

	mux.HandleFunc("GET /admin/api/v1/stats", h.handleGetStats)
	mux.HandleFunc("GET /admin/api/v1/outcomes", h.handleListOutcomes)
	mux.HandleFunc("GET /admin/api/v1/system", h.handleSystemInfo)

	mux.HandleFunc("/admin/api/", func(w http.ResponseWriter, r *http.Request) {
		h.respondError(w, http.StatusNotFound, "not found")
	})

	return securityHeaders(h.adminAuthMiddleware(csrfMiddleware(mux)))
}

// --- JSON helper methods ---

// respondJSON writes a JSON response with the given status code and data.
func (h *AdminAPIHandler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes a JSON error response with the given status code and message.
func (h *AdminAPIHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// readJSON decodes the request body into the given value.
func (h *AdminAPIHandler) readJSON(r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(v)
}

// pathParam extracts a named path parameter from the request URL.
func (h *AdminAPIHandler) pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
