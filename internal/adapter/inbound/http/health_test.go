package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHealthHandler_PlainOK(t *testing.T) {
	rec := httptest.NewRecorder()
	healthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "ok\n" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestHealthChecker_Healthy(t *testing.T) {
	hc := NewHealthChecker(fixedQueue(2), fixedJournal{depth: 10, capacity: 100}, "1.0.0")
	health := hc.Check()

	if health.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", health.Status)
	}
	if health.Checks["approval_queue"] != "ok: 2 pending" {
		t.Errorf("approval_queue = %q", health.Checks["approval_queue"])
	}
	if !strings.HasPrefix(health.Checks["journal"], "ok:") {
		t.Errorf("journal = %q", health.Checks["journal"])
	}
	if health.Version != "1.0.0" {
		t.Errorf("Version = %q", health.Version)
	}
}

func TestHealthChecker_NilComponents(t *testing.T) {
	health := NewHealthChecker(nil, nil, "").Check()
	if health.Status != "healthy" {
		t.Errorf("Status = %q", health.Status)
	}
	if health.Checks["journal"] != "not configured" || health.Checks["approval_queue"] != "not configured" {
		t.Errorf("checks = %v", health.Checks)
	}
}

func TestHealthChecker_Handler_Unhealthy_503(t *testing.T) {
	hc := NewHealthChecker(nil, fixedJournal{depth: 95, capacity: 100, drops: 4}, "")

	rec := httptest.NewRecorder()
	hc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var health HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "unhealthy" || health.Checks["journal_drops"] != "4 dropped" {
		t.Errorf("health = %+v", health)
	}
}
