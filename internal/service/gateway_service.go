package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Sentinel-Gate/approvalgate/internal/ctxkey"
	"github.com/Sentinel-Gate/approvalgate/internal/domain/approval"
	"github.com/Sentinel-Gate/approvalgate/internal/domain/audit"
	"github.com/Sentinel-Gate/approvalgate/internal/domain/envelope"
	"github.com/Sentinel-Gate/approvalgate/internal/domain/policy"
)

// GatewayService is the synchronous core of the webhook endpoint: it
// classifies a request and either denies it, forwards it, or queues it for
// approval.
type GatewayService struct {
	engine    *policy.Engine
	forwarder approval.Forwarder
	queue     *approval.Queue
	recorder  audit.Recorder
	logger    *slog.Logger
}

// GatewayOption configures GatewayService.
type GatewayOption func(*GatewayService)

// WithOutcomeRecorder sets where outcomes are recorded.
func WithOutcomeRecorder(r audit.Recorder) GatewayOption {
	return func(s *GatewayService) {
		s.recorder = r
	}
}

// NewGatewayService creates a GatewayService.
func NewGatewayService(engine *policy.Engine, forwarder approval.Forwarder, queue *approval.Queue, logger *slog.Logger, opts ...GatewayOption) *GatewayService {
	s := &GatewayService{
		engine:    engine,
		forwarder: forwarder,
		queue:     queue,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle classifies d and acts on the verdict. Denied and held requests get
// a JSON envelope; allowed requests get the upstream response. A forward
// failure or a closed queue is returned as an error.
func (s *GatewayService) Handle(ctx context.Context, d envelope.Descriptor, requestID string) (*envelope.Response, error) {
	start := time.Now()
	verdict := s.engine.Classify(d)

	logger := loggerFromContext(ctx)
	if logger == nil {
		logger = s.logger
	}
	logger.Info("request classified",
		"verdict", verdict.Kind,
		"reason", verdict.Reason,
		"method", d.Method,
		"url", d.URL,
	)

	rec := audit.Record{
		Stage:     audit.StageSync,
		RequestID: requestID,
		Method:    d.Method,
		URL:       d.URL,
		Verdict:   verdict.Kind.String(),
		Reason:    verdict.Reason,
	}

	switch verdict.Kind {
	case policy.KindDeny:
		rec.Outcome = audit.OutcomeDenied
		s.record(rec, start)
		return envelope.Denied(verdict.Reason), nil

	case policy.KindAllow:
		resp, err := s.forwarder.Forward(ctx, d)
		if err != nil {
			rec.Outcome = audit.OutcomeForwardFailed
			rec.Reason = err.Error()
			s.record(rec, start)
			logger.Error("forward failed", "url", d.URL, "error", err)
			return nil, err
		}
		rec.Outcome = audit.OutcomeForwarded
		rec.UpstreamStatus = resp.StatusCode
		s.record(rec, start)
		return resp, nil

	default:
		task := approval.NewTask(d, requestID)
		if err := s.queue.Enqueue(task); err != nil {
			return nil, fmt.Errorf("queue request for approval: %w", err)
		}
		rec.TaskID = task.ID
		rec.Fingerprint = task.Fingerprint
		rec.Outcome = audit.OutcomePendingApproval
		s.record(rec, start)
		logger.Info("request held for approval",
			"task_id", task.ID,
			"fingerprint", task.Fingerprint,
			"queue_depth", s.queue.Len(),
		)
		return envelope.PendingApproval(), nil
	}
}

// loggerFromContext retrieves the enriched logger from context, or nil.
func loggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxkey.LoggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return nil
}

func (s *GatewayService) record(rec audit.Record, start time.Time) {
	if s.recorder == nil {
		return
	}
	now := time.Now()
	rec.Timestamp = now.UTC()
	rec.LatencyMicros = now.Sub(start).Microseconds()
	s.recorder.Record(rec)
}
