// Package envelope defines the decoded form of an intercepted upstream call
// (Descriptor) and of the reply returned to the caller (Response), along with
// conversion to and from the JSON wire envelopes.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Sentinel-Gate/approvalgate/pkg/webhook"
)

// ErrMalformedPayload is returned when a webhook payload is not a JSON
// object carrying a method and a url.
var ErrMalformedPayload = errors.New("malformed webhook payload")

// Descriptor is one intercepted upstream call. It is treated as read-only
// once built: NewDescriptor copies its inputs and callers never mutate it.
type Descriptor struct {
	// Method is the upper-cased HTTP method.
	Method string
	// URL is the full target URL as sent by the caller.
	URL string
	// Headers holds caller-supplied request headers, one value per name.
	Headers map[string]string
	// Body is the decoded request body. Nil means no body.
	Body []byte
}

// NewDescriptor builds a Descriptor, upper-casing the method and copying
// headers and body.
func NewDescriptor(method, url string, headers map[string]string, body []byte) Descriptor {
	h := make(map[string]string, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	var b []byte
	if len(body) > 0 {
		b = append([]byte(nil), body...)
	}
	return Descriptor{
		Method:  strings.ToUpper(method),
		URL:     url,
		Headers: h,
		Body:    b,
	}
}

// DecodeRequest parses a webhook JSON payload into a Descriptor. The payload
// must be an object with non-blank method and url; headers and body are
// optional. The body is base64-decoded, falling back to the raw string when
// it is not valid base64.
func DecodeRequest(data []byte) (Descriptor, error) {
	var req *webhook.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if req == nil {
		return Descriptor{}, fmt.Errorf("%w: payload is null", ErrMalformedPayload)
	}
	if strings.TrimSpace(req.Method) == "" {
		return Descriptor{}, fmt.Errorf("%w: missing method", ErrMalformedPayload)
	}
	if strings.TrimSpace(req.URL) == "" {
		return Descriptor{}, fmt.Errorf("%w: missing url", ErrMalformedPayload)
	}
	return NewDescriptor(req.Method, req.URL, req.Headers, webhook.DecodeBody(req.Body)), nil
}

// Wire converts the Descriptor back to its JSON envelope form.
func (d Descriptor) Wire() webhook.Request {
	return webhook.Request{
		Method:  d.Method,
		URL:     d.URL,
		Headers: d.Headers,
		Body:    webhook.EncodeBody(d.Body),
	}
}

// HTTPHeader returns the headers as a fresh http.Header.
func (d Descriptor) HTTPHeader() http.Header {
	h := make(http.Header, len(d.Headers))
	for k, v := range d.Headers {
		h.Set(k, v)
	}
	return h
}

// Response is the envelope returned to the caller. StatusCode is the inner
// status; the transport status of a well-formed reply is always 200.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Wire converts the Response to its JSON envelope form.
func (r *Response) Wire() webhook.Response {
	headers := r.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	return webhook.Response{
		StatusCode: r.StatusCode,
		Headers:    headers,
		Body:       webhook.EncodeBody(r.Body),
	}
}

// Marshal renders the Response as a JSON envelope.
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r.Wire())
}

type statusMessage struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// JSON builds a Response whose body is v encoded as JSON and whose headers
// default to Content-Type: application/json.
func JSON(status int, v any) *Response {
	body, err := json.Marshal(v)
	if err != nil {
		// Only reachable with unsupported values; fall back to an empty object.
		body = []byte("{}")
	}
	return &Response{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

// Denied is the envelope for a request rejected by the denylist.
func Denied(reason string) *Response {
	return JSON(http.StatusForbidden, statusMessage{
		Status:  "denied",
		Message: "Forbidden: " + reason,
	})
}

// PendingApproval is the envelope for a request held for human review.
func PendingApproval() *Response {
	return JSON(http.StatusAccepted, statusMessage{
		Status:  "pending_approval",
		Message: "Request received and sent for human approval.",
	})
}
