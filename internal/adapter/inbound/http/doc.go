// Package http provides the inbound HTTP transport for approval-gate.
//
// # Endpoints
//
//	POST /webhook      - submit a request envelope for classification
//	GET  /health       - liveness, always "ok"
//	GET  /ready        - readiness with component checks (JSON)
//	GET  /metrics      - Prometheus metrics
//	     /admin/api/   - admin API, when configured
//
// Every other path answers 404 "not found".
//
// # Webhook contract
//
// The body is a JSON object {method, url, headers, body} where body is
// base64. When a gateway secret is configured the caller must send
// "Authorization: Bearer <secret>"; the check runs before the body is parsed.
//
// A well-formed reply is always HTTP 200 carrying a JSON envelope
// {status_code, headers, body}: the upstream response for allowed requests,
// 403 "denied" for denylist matches, 202 "pending_approval" for held ones.
// Transport errors are plain text: 400 "Bad JSON: ...", 401 "Unauthorized",
// 502 "Bad Gateway: ...", 503 when the approval queue is closed.
//
// # Middleware Chain
//
//  1. MetricsMiddleware - request count and duration
//  2. RequestIDMiddleware - X-Request-ID and the request-scoped logger
//  3. Handler
package http
