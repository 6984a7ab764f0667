package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultShutdownTimeout bounds graceful shutdown.
const DefaultShutdownTimeout = 10 * time.Second

// HTTPTransport serves the webhook endpoint, health checks, metrics and the
// optional admin API.
type HTTPTransport struct {
	gateway         Gateway
	authn           Authenticator
	server          *http.Server
	addr            string
	logger          *slog.Logger
	adminHandler    http.Handler
	registry        *prometheus.Registry
	metrics         *Metrics
	healthChecker   *HealthChecker
	maxBodyBytes    int64
	shutdownTimeout time.Duration
	listener        net.Listener
}

// Option is a functional option for configuring HTTPTransport.
type Option func(*HTTPTransport)

// WithAddr sets the listen address for the HTTP server.
// Default is "0.0.0.0:8080".
func WithAddr(addr string) Option {
	return func(t *HTTPTransport) {
		t.addr = addr
	}
}

// WithListener serves on an existing listener instead of addr.
func WithListener(l net.Listener) Option {
	return func(t *HTTPTransport) {
		t.listener = l
	}
}

// WithLogger sets the logger for the HTTP transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *HTTPTransport) {
		t.logger = logger
	}
}

// WithAuthenticator requires webhook callers to pass the gateway secret.
func WithAuthenticator(a Authenticator) Option {
	return func(t *HTTPTransport) {
		t.authn = a
	}
}

// WithAdminHandler mounts h under /admin/api/.
func WithAdminHandler(h http.Handler) Option {
	return func(t *HTTPTransport) {
		t.adminHandler = h
	}
}

// WithMetrics uses metrics registered on reg. Without it the transport
// creates its own registry.
func WithMetrics(m *Metrics, reg *prometheus.Registry) Option {
	return func(t *HTTPTransport) {
		t.metrics = m
		t.registry = reg
	}
}

// WithHealthChecker sets the checker behind /ready.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(t *HTTPTransport) {
		t.healthChecker = hc
	}
}

// WithMaxBodyBytes caps the inbound envelope size.
func WithMaxBodyBytes(n int64) Option {
	return func(t *HTTPTransport) {
		if n > 0 {
			t.maxBodyBytes = n
		}
	}
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(t *HTTPTransport) {
		if d > 0 {
			t.shutdownTimeout = d
		}
	}
}

// NewHTTPTransport creates an HTTP transport in front of gateway.
func NewHTTPTransport(gateway Gateway, opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		gateway:         gateway,
		addr:            "0.0.0.0:8080",
		logger:          slog.Default(),
		maxBodyBytes:    DefaultMaxBodyBytes,
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.registry == nil {
		t.registry = prometheus.NewRegistry()
		t.metrics = NewMetrics(t.registry)
	}
	return t
}

// NewRegistry returns a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler builds the routed handler with its middleware chain:
// Metrics -> RequestID -> mux.
func (t *HTTPTransport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/webhook", webhookHandler(t.gateway, t.authn, t.maxBodyBytes))
	mux.Handle("/health", healthHandler())
	if t.healthChecker != nil {
		mux.Handle("/ready", t.healthChecker.Handler())
	}
	mux.Handle("/metrics", promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{
		Registry: t.registry,
	}))
	if t.adminHandler != nil {
		mux.Handle("/admin/api/", t.adminHandler)
	}
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		notFound(w)
	}))

	var handler http.Handler = mux
	handler = RequestIDMiddleware(t.logger)(handler)
	handler = MetricsMiddleware(t.metrics)(handler)
	return handler
}

// Start begins accepting HTTP connections. It blocks until the context is
// cancelled or the server fails.
func (t *HTTPTransport) Start(ctx context.Context) error {
	t.server = &http.Server{
		Addr:              t.addr,
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if t.listener != nil {
			t.logger.Info("starting HTTP server", "addr", t.listener.Addr().String())
			err = t.server.Serve(t.listener)
		} else {
			t.logger.Info("starting HTTP server", "addr", t.addr)
			err = t.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

// shutdown performs graceful shutdown of the HTTP server.
func (t *HTTPTransport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), t.shutdownTimeout)
	defer cancel()

	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}
	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *HTTPTransport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}
