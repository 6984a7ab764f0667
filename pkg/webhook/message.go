// Package webhook defines the JSON envelopes exchanged between an API client
// and the approval gateway, plus a client-side transport that routes outbound
// HTTP calls through the gateway.
package webhook

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// Request is the JSON payload a client sends to the gateway for one
// intercepted upstream call.
type Request struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	// Body is base64-encoded. An empty string means no body.
	Body string `json:"body"`
}

// Response is the JSON payload the gateway returns. StatusCode is the inner
// (upstream or policy) status, independent of the transport-level status.
type Response struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// EncodeBody base64-encodes a body. Empty bodies encode to "".
func EncodeBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(body)
}

// DecodeBody decodes a base64 body. A value that is not valid base64 is
// returned as raw bytes rather than rejected.
func DecodeBody(encoded string) []byte {
	if encoded == "" {
		return nil
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return []byte(encoded)
	}
	return decoded
}

// FlattenHeader converts an http.Header to a single-valued map. Repeated
// values are joined with ", ".
func FlattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vals := range h {
		if len(vals) == 0 {
			continue
		}
		out[k] = strings.Join(vals, ", ")
	}
	return out
}
