package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sentinel-Gate/approvalgate/internal/domain/audit"
	"github.com/Sentinel-Gate/approvalgate/internal/domain/envelope"
	"github.com/Sentinel-Gate/approvalgate/internal/tracing"
)

// Forwarder executes an approved request against the upstream API.
type Forwarder interface {
	Forward(ctx context.Context, d envelope.Descriptor) (*envelope.Response, error)
}

// Worker reviews queued tasks one at a time, strictly in FIFO order.
type Worker struct {
	queue     *Queue
	approver  Approver
	forwarder Forwarder
	timeout   time.Duration
	logger    *slog.Logger
	recorder  audit.Recorder

	inReview atomic.Pointer[Task]
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithTimeout sets how long a review may wait for a decision.
func WithTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithRecorder sets where task outcomes are journaled.
func WithRecorder(r audit.Recorder) WorkerOption {
	return func(w *Worker) {
		w.recorder = r
	}
}

// WithWorkerLogger sets the logger.
func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = l
	}
}

// NewWorker creates a Worker. A nil approver never answers, so every task
// times out.
func NewWorker(queue *Queue, approver Approver, forwarder Forwarder, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:     queue,
		approver:  approver,
		forwarder: forwarder,
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Timeout returns the review timeout.
func (w *Worker) Timeout() time.Duration {
	return w.timeout
}

// InReview returns the task currently being reviewed, or nil.
func (w *Worker) InReview() *Task {
	return w.inReview.Load()
}

// Start runs the worker loop in a background goroutine.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		_ = w.Run(ctx)
	}()
}

// Stop cancels the loop and waits for it to return. A forward already in
// flight is aborted through its context.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// Run processes tasks until ctx ends or the queue is closed. It returns nil
// on queue closure and the context error otherwise.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Debug("approval worker started", "timeout", w.timeout)
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) {
				return nil
			}
			return err
		}
		w.process(ctx, task)
	}
}

// process drives one task to a terminal state. Panics from the approver or
// forwarder are contained here so the loop moves on to the next task.
func (w *Worker) process(ctx context.Context, task *Task) {
	rec := audit.Record{
		Stage:       audit.StageApproval,
		RequestID:   task.RequestID,
		TaskID:      task.ID,
		Fingerprint: task.Fingerprint,
		Method:      task.Descriptor.Method,
		URL:         task.Descriptor.URL,
		Verdict:     "hold",
	}

	defer func() {
		if r := recover(); r != nil {
			reason := fmt.Sprintf("internal error: %v", r)
			w.logger.Error("approval task panicked", "task_id", task.ID, "panic", r)
			if task.State() == StateApproved {
				_ = task.transition(StateForwardFailed, reason, "")
				rec.Outcome = audit.OutcomeForwardFailed
			} else {
				_ = task.transition(StateDenied, reason, "")
				rec.Outcome = audit.OutcomeRejected
			}
			rec.Reason = reason
			w.finish(task, rec)
		}
	}()

	if err := task.transition(StateInReview, "", ""); err != nil {
		w.logger.Warn("skipping task", "task_id", task.ID, "error", err)
		return
	}
	w.inReview.Store(task)
	defer w.inReview.Store(nil)

	reviewStart := time.Now()
	ctx, span := tracing.StartSpan(ctx, "approval.review", tracing.KindInternal)
	span.WithAttributes(map[string]string{
		"approval.task_id":     task.ID,
		"approval.fingerprint": task.Fingerprint,
		"http.request.method":  task.Descriptor.Method,
	})
	defer func() {
		state := string(task.State())
		tracing.RecordReview(ctx, state, time.Since(reviewStart))
		span.WithAttributes(map[string]string{"approval.state": state})
		span.End()
	}()

	w.logger.Info("reviewing held request",
		"task_id", task.ID,
		"method", task.Descriptor.Method,
		"url", task.Descriptor.URL,
		"fingerprint", task.Fingerprint,
		"queued_for", time.Since(task.EnqueuedAt).Round(time.Millisecond),
	)

	reviewCtx, cancelReview := context.WithCancel(ctx)
	defer cancelReview()

	var decisions <-chan Decision
	if w.approver != nil {
		decisions = w.approver.RequestDecision(reviewCtx, task)
	}

	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	var decision Decision
	select {
	case d, ok := <-decisions:
		if !ok {
			d = Decision{Source: "approver", Reason: "decision source closed"}
		}
		decision = d
	case <-timer.C:
		_ = task.transition(StateTimedOut, "no decision within "+w.timeout.String(), "")
		cancelReview()
		w.logger.Info("approval timed out, request dropped", "task_id", task.ID, "timeout", w.timeout)
		rec.Outcome = audit.OutcomeTimedOut
		rec.Reason = "no decision within " + w.timeout.String()
		w.finish(task, rec)
		return
	case <-ctx.Done():
		_ = task.transition(StateDropped, "gateway shutting down", "")
		cancelReview()
		rec.Outcome = audit.OutcomeDropped
		rec.Reason = "gateway shutting down"
		w.finish(task, rec)
		return
	}

	rec.DecidedBy = decision.Source
	if !decision.Approved {
		reason := decision.Reason
		if reason == "" {
			reason = "denied by reviewer"
		}
		_ = task.transition(StateDenied, reason, decision.Source)
		cancelReview()
		w.logger.Info("request denied by reviewer", "task_id", task.ID, "source", decision.Source)
		rec.Outcome = audit.OutcomeRejected
		rec.Reason = reason
		w.finish(task, rec)
		return
	}

	_ = task.transition(StateApproved, decision.Reason, decision.Source)
	cancelReview()
	w.logger.Info("request approved, forwarding", "task_id", task.ID, "source", decision.Source)

	resp, err := w.forwarder.Forward(ctx, task.Descriptor)
	if err != nil {
		_ = task.transition(StateForwardFailed, err.Error(), "")
		w.logger.Error("forward after approval failed", "task_id", task.ID, "error", err)
		rec.Outcome = audit.OutcomeForwardFailed
		rec.Reason = err.Error()
		w.finish(task, rec)
		return
	}

	_ = task.transition(StateForwarded, "", "")
	w.logger.Info("approved request forwarded",
		"task_id", task.ID,
		"status", resp.StatusCode,
	)
	rec.Outcome = audit.OutcomeForwarded
	rec.UpstreamStatus = resp.StatusCode
	w.finish(task, rec)
}

func (w *Worker) finish(task *Task, rec audit.Record) {
	now := time.Now().UTC()
	rec.Timestamp = now
	rec.LatencyMicros = now.Sub(task.EnqueuedAt).Microseconds()
	if w.recorder != nil {
		w.recorder.Record(rec)
	}
}
