// Package upstream executes approved requests against the upstream HTTP API.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Sentinel-Gate/approvalgate/internal/domain/envelope"
	"github.com/Sentinel-Gate/approvalgate/internal/tracing"
	"github.com/Sentinel-Gate/approvalgate/pkg/webhook"
)

const (
	// DefaultTimeout bounds one upstream call, redirects included.
	DefaultTimeout = 60 * time.Second
	// DefaultMaxRedirects is the redirect hop limit.
	DefaultMaxRedirects = 10
	// DefaultMaxResponseBytes caps the upstream body read into memory.
	DefaultMaxResponseBytes = 32 << 20
)

// ErrMissingCredential is returned before any I/O when no upstream token is
// configured.
var ErrMissingCredential = errors.New("upstream access token is not set; cannot forward request")

// UpstreamError wraps a failure to complete the upstream call.
type UpstreamError struct {
	Method string
	URL    string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsUpstreamError reports whether err wraps an *UpstreamError.
func IsUpstreamError(err error) bool {
	var e *UpstreamError
	return errors.As(err, &e)
}

// Forwarder issues descriptors against the upstream API with the configured
// bearer token. It is safe for concurrent use.
type Forwarder struct {
	token        string
	client       *http.Client
	timeout      time.Duration
	maxRedirects int
	maxBody      int64
	logger       *slog.Logger
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Forwarder) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithMaxRedirects sets the redirect limit. Zero disables following.
func WithMaxRedirects(n int) Option {
	return func(f *Forwarder) {
		if n >= 0 {
			f.maxRedirects = n
		}
	}
}

// WithMaxResponseBytes caps the response body size.
func WithMaxResponseBytes(n int64) Option {
	return func(f *Forwarder) {
		if n > 0 {
			f.maxBody = n
		}
	}
}

// WithHTTPClient overrides the base client. Its Timeout and CheckRedirect
// are replaced by the forwarder's settings.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Forwarder) {
		f.client = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Forwarder) {
		f.logger = l
	}
}

// NewForwarder creates a Forwarder authenticating with token.
func NewForwarder(token string, opts ...Option) *Forwarder {
	f := &Forwarder{
		token:        token,
		timeout:      DefaultTimeout,
		maxRedirects: DefaultMaxRedirects,
		maxBody:      DefaultMaxResponseBytes,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}

	base := f.client
	if base == nil {
		base = &http.Client{}
	}
	client := *base
	client.Timeout = f.timeout
	maxRedirects := f.maxRedirects
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if maxRedirects == 0 {
			return http.ErrUseLastResponse
		}
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}
	f.client = &client
	return f
}

// HasCredential reports whether a token is configured.
func (f *Forwarder) HasCredential() bool {
	return f.token != ""
}

// Forward sends d upstream. Caller headers are copied, then Authorization is
// replaced by the configured bearer token. The response status, headers and
// body are returned unmodified apart from header flattening.
func (f *Forwarder) Forward(ctx context.Context, d envelope.Descriptor) (*envelope.Response, error) {
	if f.token == "" {
		return nil, ErrMissingCredential
	}

	ctx, span := tracing.StartSpan(ctx, "upstream.forward", tracing.KindClient)
	span.WithAttributes(map[string]string{
		"http.method": d.Method,
		"http.url":    d.URL,
	})
	defer span.End()

	status := 0
	defer func() { tracing.RecordForward(ctx, d.Method, status) }()

	var body io.Reader
	if len(d.Body) > 0 {
		body = bytes.NewReader(d.Body)
	}
	req, err := http.NewRequestWithContext(ctx, d.Method, d.URL, body)
	if err != nil {
		err = &UpstreamError{Method: d.Method, URL: d.URL, Err: err}
		span.SetStatus(err)
		return nil, err
	}
	req.Header = d.HTTPHeader()
	req.Header.Set("Authorization", "Bearer "+f.token)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		err = &UpstreamError{Method: d.Method, URL: d.URL, Err: err}
		span.SetStatus(err)
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		err = &UpstreamError{Method: d.Method, URL: d.URL, Err: fmt.Errorf("read response: %w", err)}
		span.SetStatus(err)
		return nil, err
	}
	if int64(len(respBody)) > f.maxBody {
		err = &UpstreamError{Method: d.Method, URL: d.URL, Err: fmt.Errorf("response body exceeds %d bytes", f.maxBody)}
		span.SetStatus(err)
		return nil, err
	}

	status = resp.StatusCode
	span.SetStatusFromHTTPCode(resp.StatusCode)
	f.logger.Debug("upstream call completed",
		"method", d.Method,
		"url", d.URL,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	return &envelope.Response{
		StatusCode: resp.StatusCode,
		Headers:    webhook.FlattenHeader(resp.Header),
		Body:       respBody,
	}, nil
}
