package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultClientTimeout bounds one gateway round trip. Held requests may wait
// for a human, so callers that expect to be held should not rely on it.
const DefaultClientTimeout = 60 * time.Second

// GatewayError is returned when the gateway itself answers with a
// non-200 status (401, 400, 502 and so on).
type GatewayError struct {
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Body)
}

// IsGatewayError reports whether err wraps a *GatewayError.
func IsGatewayError(err error) bool {
	var e *GatewayError
	return errors.As(err, &e)
}

// Transport is an http.RoundTripper that serializes each outbound request
// into a Request envelope, posts it to the gateway and rebuilds an
// http.Response from the returned Response envelope.
type Transport struct {
	gatewayURL string
	secret     string
	client     *http.Client
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithGatewaySecret sets the bearer secret presented to the gateway.
func WithGatewaySecret(secret string) TransportOption {
	return func(t *Transport) {
		t.secret = secret
	}
}

// WithHTTPClient overrides the client used to reach the gateway.
func WithHTTPClient(c *http.Client) TransportOption {
	return func(t *Transport) {
		t.client = c
	}
}

// NewTransport creates a Transport posting to gatewayURL (the full /webhook URL).
func NewTransport(gatewayURL string, opts ...TransportOption) *Transport {
	t := &Transport{
		gatewayURL: gatewayURL,
		client:     &http.Client{Timeout: DefaultClientTimeout},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		body = b
	}

	// The gateway contract carries one value per header.
	headers := make(map[string]string, len(req.Header))
	for k, vals := range req.Header {
		if len(vals) > 0 {
			headers[k] = vals[0]
		}
	}

	payload, err := json.Marshal(Request{
		Method:  req.Method,
		URL:     req.URL.String(),
		Headers: headers,
		Body:    EncodeBody(body),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal gateway request: %w", err)
	}

	gwReq, err := http.NewRequestWithContext(req.Context(), http.MethodPost, t.gatewayURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create gateway request: %w", err)
	}
	gwReq.Header.Set("Content-Type", "application/json")
	if t.secret != "" {
		gwReq.Header.Set("Authorization", "Bearer "+t.secret)
	}

	gwResp, err := t.client.Do(gwReq)
	if err != nil {
		return nil, fmt.Errorf("gateway request: %w", err)
	}
	defer gwResp.Body.Close()

	raw, err := io.ReadAll(gwResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}
	if gwResp.StatusCode != http.StatusOK {
		return nil, &GatewayError{StatusCode: gwResp.StatusCode, Body: string(raw)}
	}

	var env Response
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal gateway response: %w", err)
	}

	header := make(http.Header, len(env.Headers))
	for k, v := range env.Headers {
		header.Set(k, v)
	}
	decoded := DecodeBody(env.Body)

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", env.StatusCode, http.StatusText(env.StatusCode)),
		StatusCode:    env.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(decoded)),
		ContentLength: int64(len(decoded)),
		Request:       req,
	}, nil
}
