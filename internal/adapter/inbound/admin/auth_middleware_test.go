package admin

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestIsLocalhost(t *testing.T) {
	tests := []struct {
		remote string
		want   bool
	}{
		{"127.0.0.1:12345", true},
		{"[::1]:12345", true},
		{"localhost:12345", true},
		{"192.168.1.1:12345", false},
		{"[2001:db8::1]:12345", false},
		{"not-an-address", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remote
		if got := isLocalhost(req); got != tt.want {
			t.Errorf("isLocalhost(%q) = %v, want %v", tt.remote, got, tt.want)
		}
	}
}

func TestIsLoopbackHost(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"localhost:8080", true},
		{"LOCALHOST", true},
		{"127.0.0.1:8080", true},
		{"[::1]:8080", true},
		{"::1", true},
		{"attacker.example:8080", false},
		{"example.com", false},
		{"", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Host = tt.host
		if got := isLoopbackHost(req); got != tt.want {
			t.Errorf("isLoopbackHost(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

func TestAdminAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		host       string
		authHeader string
		noAuthn    bool
		wantCalled bool
		wantStatus int
		wantBody   string
	}{
		{"loopback with token passes", "127.0.0.1:1234", "localhost:8080", "Bearer " + testAdminToken, false, true, http.StatusOK, ""},
		{"remote rejected", "192.168.1.100:5555", "localhost:8080", "Bearer " + testAdminToken, false, false, http.StatusForbidden, "localhost access"},
		{"rebound host rejected", "127.0.0.1:1234", "attacker.example:8080", "Bearer " + testAdminToken, false, false, http.StatusForbidden, "Host header"},
		{"missing token", "127.0.0.1:1234", "localhost:8080", "", false, false, http.StatusUnauthorized, "admin token"},
		{"wrong token", "127.0.0.1:1234", "localhost:8080", "Bearer nope", false, false, http.StatusUnauthorized, "admin token"},
		{"no authenticator configured", "127.0.0.1:1234", "localhost:8080", "Bearer " + testAdminToken, true, false, http.StatusUnauthorized, "disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, WithAPILogger(discardLogger()))
			if tt.noAuthn {
				h = NewAdminAPIHandler(WithAPILogger(discardLogger()))
			}
			called := false
			handler := h.adminAuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/admin/api/v1/approvals/abc/approve", nil)
			req.RemoteAddr = tt.remote
			req.Host = tt.host
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if called != tt.wantCalled {
				t.Errorf("inner called = %v, want %v", called, tt.wantCalled)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want it to contain %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

// A local process without the admin token must not be able to approve the
// task under review.
func TestRoutes_UnauthenticatedApproveRejected(t *testing.T) {
	reviewer := &fakeReviewer{}
	h := newTestHandler(t, WithReviewer(reviewer), WithAPILogger(discardLogger()))

	req := httptest.NewRequest(http.MethodPost, "/admin/api/v1/approvals/t1/approve", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	req.Host = "127.0.0.1:8080"
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if reviewer.id != "" {
		t.Errorf("decision reached reviewer: %+v", reviewer)
	}
}

func TestCSRFMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		cookie     string
		header     string
		wantCalled bool
		wantStatus int
	}{
		{"get passes", http.MethodGet, "", "", true, http.StatusOK},
		{"post with matching pair", http.MethodPost, "tok", "tok", true, http.StatusOK},
		{"post without cookie", http.MethodPost, "", "tok", false, http.StatusForbidden},
		{"post without header", http.MethodPost, "tok", "", false, http.StatusForbidden},
		{"post with mismatch", http.MethodPost, "tok", "other", false, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := csrfMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/admin/api/v1/approvals/abc/deny", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(csrfHeaderName, tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if called != tt.wantCalled {
				t.Errorf("inner called = %v, want %v", called, tt.wantCalled)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestCSRFMiddleware_GetIssuesCookie(t *testing.T) {
	h := newTestHandler(t, WithAPILogger(discardLogger()))
	rec := serve(t, h, http.MethodGet, "/admin/api/v1/approvals", "")

	var token string
	for _, c := range rec.Result().Cookies() {
		if c.Name == csrfCookieName {
			token = c.Value
			if c.Path != "/admin" || c.SameSite != http.SameSiteStrictMode {
				t.Errorf("cookie attributes = %+v", c)
			}
		}
	}
	if len(token) != 64 {
		t.Fatalf("csrf cookie = %q, want 64 hex chars", token)
	}
}

func TestRoutes_ApproveWithoutCSRFRejected(t *testing.T) {
	reviewer := &fakeReviewer{}
	h := newTestHandler(t, WithReviewer(reviewer), WithAPILogger(discardLogger()))

	req := httptest.NewRequest(http.MethodPost, "/admin/api/v1/approvals/t1/approve", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	req.Host = "localhost:8080"
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if reviewer.id != "" {
		t.Errorf("decision reached reviewer: %+v", reviewer)
	}
}
