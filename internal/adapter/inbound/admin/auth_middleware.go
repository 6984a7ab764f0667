package admin

import (
	"net"
	"net/http"
	"strings"
)

// isLocalhost checks if the request originates from a loopback address.
// X-Forwarded-For is not consulted; it is caller-controlled.
func isLocalhost(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return isLoopbackName(host)
}

// isLoopbackHost checks that the Host header names this machine. A browser
// tricked into resolving an attacker's name to 127.0.0.1 still sends that
// name here.
func isLoopbackHost(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.Host)
	if err != nil {
		host = r.Host
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	return isLoopbackName(host)
}

func isLoopbackName(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// adminAuthMiddleware enforces localhost-only access and the admin bearer
// token. Remote requests get 403; use an SSH tunnel for remote operation.
// Without a configured token every request gets 401.
func (h *AdminAPIHandler) adminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isLocalhost(r) {
			h.logger.Warn("admin API request from non-loopback address rejected", "remote_addr", r.RemoteAddr)
			h.respondError(w, http.StatusForbidden, "admin API requires localhost access")
			return
		}
		if !isLoopbackHost(r) {
			h.logger.Warn("admin API request with non-loopback Host rejected", "host", r.Host)
			h.respondError(w, http.StatusForbidden, "admin API requires a localhost Host header")
			return
		}
		if h.authn == nil || !h.authn.Enabled() {
			h.respondError(w, http.StatusUnauthorized, "admin API is disabled: no admin token configured")
			return
		}
		if !h.authn.Verify(r.Header.Get("Authorization")) {
			h.logger.Warn("admin API request with invalid token rejected", "path", r.URL.Path)
			w.Header().Set("WWW-Authenticate", `Bearer realm="approval-gate-admin"`)
			h.respondError(w, http.StatusUnauthorized, "invalid or missing admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
