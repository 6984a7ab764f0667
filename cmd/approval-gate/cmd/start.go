package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/approvalgate/internal/adapter/inbound/admin"
	"github.com/Sentinel-Gate/approvalgate/internal/adapter/inbound/console"
	"github.com/Sentinel-Gate/approvalgate/internal/adapter/inbound/http"
	"github.com/Sentinel-Gate/approvalgate/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/approvalgate/internal/adapter/outbound/sqlite"
	"github.com/Sentinel-Gate/approvalgate/internal/adapter/outbound/upstream"
	"github.com/Sentinel-Gate/approvalgate/internal/config"
	"github.com/Sentinel-Gate/approvalgate/internal/domain/approval"
	"github.com/Sentinel-Gate/approvalgate/internal/domain/audit"
	"github.com/Sentinel-Gate/approvalgate/internal/domain/auth"
	"github.com/Sentinel-Gate/approvalgate/internal/domain/policy"
	"github.com/Sentinel-Gate/approvalgate/internal/service"
	"github.com/Sentinel-Gate/approvalgate/internal/tracing"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway",
	Long: `Start the approval-gate server.

Calls are accepted as JSON envelopes on POST /webhook. Held calls are
reviewed one at a time on the console and through the admin API
(localhost only, bearer admin token) at /admin/api/v1/approvals.

Examples:
  # Start with config file settings
  approval-gate start

  # Start on another port with debug logging
  approval-gate start --port 9090 --dev

  # Start with a specific config file
  approval-gate --config /path/to/approval-gate.yaml start`,
	RunE: runStart,
}

var (
	devMode   bool
	startPort int
)

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, console review)")
	startCmd.Flags().IntVar(&startPort, "port", 0, "listen port on all interfaces (overrides server.http_addr)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	// Load without validation so CLI flags can override first.
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	if startPort != 0 {
		cfg.Server.Port = startPort
		cfg.Server.HTTPAddr = net.JoinHostPort("0.0.0.0", strconv.Itoa(startPort))
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logger := newLogger(cfg)
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}
	logger.Info("approval-gate stopped")
	return nil
}

func newLogger(cfg *config.GatewayConfig) *slog.Logger {
	level := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	// stdout carries review prompts and the default journal.
	if cfg.Server.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// outcomeStore is what the journal writes to and the admin API reads from.
type outcomeStore interface {
	audit.Store
	audit.QueryStore
}

// openOutcomeStore picks the journal backend from audit.output.
func openOutcomeStore(ctx context.Context, cfg *config.GatewayConfig) (outcomeStore, error) {
	output := cfg.Audit.Output
	switch {
	case output == "stdout":
		return memory.NewOutcomeStore(cfg.Audit.BufferSize), nil
	case output == "stderr":
		return memory.NewOutcomeStoreWithWriter(os.Stderr, cfg.Audit.BufferSize), nil
	case output == "none":
		return memory.NewOutcomeStoreWithWriter(nil, cfg.Audit.BufferSize), nil
	case strings.HasPrefix(output, "file://"):
		store, err := memory.NewFileOutcomeStore(strings.TrimPrefix(output, "file://"), cfg.Audit.BufferSize)
		if err != nil {
			return nil, err
		}
		return store, nil
	case strings.HasPrefix(output, "sqlite://"):
		store, err := sqlite.Open(ctx, strings.TrimPrefix(output, "sqlite://"))
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("invalid audit output: %s", output)
	}
}

// run wires all components together and blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.GatewayConfig, logger *slog.Logger) error {
	startTime := time.Now().UTC()

	if cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.Init("approval-gate", Version, cfg.Tracing.Output)
		if err != nil {
			return fmt.Errorf("failed to init tracing: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(sctx)
		}()
	}

	// Policy.
	rules, err := buildRules(cfg, logger)
	if err != nil {
		return err
	}
	engine := policy.NewEngine(rules)
	denyConds, allowConds := rules.ConditionNames()

	// Upstream.
	fwdOpts := []upstream.Option{
		upstream.WithTimeout(cfg.UpstreamTimeout()),
		upstream.WithLogger(logger),
	}
	if cfg.Upstream.MaxRedirects != nil {
		fwdOpts = append(fwdOpts, upstream.WithMaxRedirects(*cfg.Upstream.MaxRedirects))
	}
	forwarder := upstream.NewForwarder(cfg.Upstream.Token, fwdOpts...)
	if !forwarder.HasCredential() {
		logger.Warn("no upstream token configured, forwarding will fail until one is set")
	}

	// Journal.
	if cfg.Approval.Console && cfg.Audit.Output == "stdout" {
		logger.Warn("journal shares stdout with the console reviewer, prompts and records will interleave; set audit.output to stderr or a file")
	}
	store, err := openOutcomeStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open outcome journal: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close outcome journal", "error", err)
		}
	}()
	journal := service.NewJournalService(store, logger,
		service.WithChannelSize(cfg.Audit.ChannelSize),
		service.WithBatchSize(cfg.Audit.BatchSize),
		service.WithFlushInterval(cfg.FlushInterval()),
	)
	journal.Start(ctx)
	defer journal.Stop()

	stats := service.NewStatsService()

	// Metrics.
	registry := http.NewRegistry()
	metrics := http.NewMetrics(registry)

	recorder := audit.Recorders{journal, stats, metrics}

	// Approval workflow.
	queue := approval.NewQueue()
	metrics.RegisterQueueDepth(queue)
	metrics.RegisterJournalDrops(journal)

	var approvers []approval.Approver
	var consoleApprover *console.Approver
	if cfg.Approval.Console {
		consoleApprover = console.New(os.Stdin, os.Stdout,
			console.WithRenderOptions(approval.RenderOptions{
				HeaderPreviewLen: cfg.Approval.HeaderPreviewLen,
				BodyPreviewBytes: cfg.Approval.BodyPreviewBytes,
				Timeout:          cfg.ApprovalTimeout(),
			}),
			console.WithLogger(logger),
		)
		defer consoleApprover.Close()
		approvers = append(approvers, consoleApprover)
	}
	var manual *approval.ManualApprover
	if cfg.Approval.Admin {
		manual = approval.NewManualApprover()
		approvers = append(approvers, manual)
	}
	if len(approvers) == 0 {
		logger.Warn("no reviewer enabled, every held request will time out")
	}

	worker := approval.NewWorker(queue, approval.FirstOf(approvers...), forwarder,
		approval.WithTimeout(cfg.ApprovalTimeout()),
		approval.WithRecorder(recorder),
		approval.WithWorkerLogger(logger),
	)
	worker.Start(ctx)

	gateway := service.NewGatewayService(engine, forwarder, queue, logger,
		service.WithOutcomeRecorder(recorder),
	)

	// Admin API. Without an admin token every admin request gets 401.
	adminVerifier, err := auth.NewSecretVerifier(cfg.Approval.AdminToken, cfg.Approval.AdminTokenHash)
	if err != nil {
		return fmt.Errorf("failed to configure admin token: %w", err)
	}
	adminOpts := []admin.AdminAPIOption{
		admin.WithAdminAuthenticator(adminVerifier),
		admin.WithApprovalQueue(queue),
		admin.WithReviewTracker(worker),
		admin.WithOutcomeReader(store),
		admin.WithStatsService(stats),
		admin.WithBuildInfo(&admin.BuildInfo{Version: Version, Commit: Commit, BuildDate: BuildDate}),
		admin.WithConditionNames(append(denyConds, allowConds...)),
		admin.WithAPILogger(logger),
		admin.WithStartTime(startTime),
	}
	if manual != nil {
		adminOpts = append(adminOpts, admin.WithReviewer(manual))
	}
	adminHandler := admin.NewAdminAPIHandler(adminOpts...)

	// Inbound transport.
	verifier, err := auth.NewSecretVerifier(cfg.Auth.GatewaySecret, cfg.Auth.GatewaySecretHash)
	if err != nil {
		return fmt.Errorf("failed to configure gateway secret: %w", err)
	}
	transport := http.NewHTTPTransport(gateway,
		http.WithAddr(cfg.Server.HTTPAddr),
		http.WithLogger(logger),
		http.WithAuthenticator(verifier),
		http.WithAdminHandler(adminHandler.Routes()),
		http.WithMetrics(metrics, registry),
		http.WithHealthChecker(http.NewHealthChecker(queue, journal, Version)),
		http.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		http.WithShutdownTimeout(cfg.ShutdownTimeout()),
	)

	logger.Info("approval-gate starting",
		"version", Version,
		"dev_mode", cfg.DevMode,
		"config", cfg.String(),
		"deny_conditions", len(denyConds),
		"allow_conditions", len(allowConds),
		"console_review", cfg.Approval.Console,
		"admin_review", cfg.Approval.Admin,
		"gateway_secret", verifier.Enabled(),
		"admin_token", adminVerifier.Enabled(),
	)
	printBanner(cfg, verifier.Enabled())

	serveErr := transport.Start(ctx)

	// No new work can arrive now. Drop what is still waiting and let the
	// worker abandon the task under review.
	for _, task := range queue.Close() {
		recorder.Record(audit.Record{
			Timestamp:   time.Now().UTC(),
			Stage:       audit.StageApproval,
			RequestID:   task.RequestID,
			TaskID:      task.ID,
			Fingerprint: task.Fingerprint,
			Method:      task.Descriptor.Method,
			URL:         task.Descriptor.URL,
			Verdict:     "hold",
			Outcome:     audit.OutcomeDropped,
			Reason:      "gateway shutting down",
		})
	}
	worker.Stop()

	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return fmt.Errorf("http transport: %w", serveErr)
	}
	return nil
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// printBanner prints a startup summary to stderr.
func printBanner(cfg *config.GatewayConfig, secured bool) {
	bold := color.New(color.Bold, color.FgCyan).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	addr := cfg.Server.HTTPAddr
	if host, port, err := net.SplitHostPort(addr); err == nil && (host == "" || host == "0.0.0.0") {
		addr = net.JoinHostPort("localhost", port)
	}

	mode := green("production")
	if cfg.DevMode {
		mode = yellow("development")
	}
	authMode := green("shared secret")
	if !secured {
		authMode = yellow("open") + dim(" (no gateway secret)")
	}

	w := os.Stderr
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  %s\n", bold("approval-gate "+Version))
	fmt.Fprintf(w, "  %s\n", dim("─────────────────────────────────────"))
	fmt.Fprintf(w, "  %-14s http://%s/webhook\n", "Webhook:", addr)
	fmt.Fprintf(w, "  %-14s http://%s/admin/api/v1/approvals\n", "Approvals:", addr)
	fmt.Fprintf(w, "  %-14s %s\n", "Mode:", mode)
	fmt.Fprintf(w, "  %-14s %s\n", "Auth:", authMode)
	fmt.Fprintf(w, "  %-14s %s\n", "Timeout:", cfg.ApprovalTimeout())
	fmt.Fprintf(w, "  %-14s %s\n", "Journal:", cfg.Audit.Output)
	fmt.Fprintf(w, "  %s\n", dim("─────────────────────────────────────"))
	fmt.Fprintf(w, "\n")
}
