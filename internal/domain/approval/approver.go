package approval

import (
	"context"
	"sync"
)

// Approver is a source of human decisions. RequestDecision presents task for
// review and returns a channel that yields at most one Decision. The context
// is cancelled once the worker has resolved the task by any means; the
// approver must then stop waiting and must not expect its answer to be read.
type Approver interface {
	RequestDecision(ctx context.Context, task *Task) <-chan Decision
}

// ApproverFunc adapts a function to Approver.
type ApproverFunc func(ctx context.Context, task *Task) <-chan Decision

// RequestDecision calls f.
func (f ApproverFunc) RequestDecision(ctx context.Context, task *Task) <-chan Decision {
	return f(ctx, task)
}

// FirstOf combines approvers; the first decision any of them produces wins.
// Nil approvers are skipped.
func FirstOf(approvers ...Approver) Approver {
	var active []Approver
	for _, a := range approvers {
		if a != nil {
			active = append(active, a)
		}
	}
	if len(active) == 1 {
		return active[0]
	}
	return ApproverFunc(func(ctx context.Context, task *Task) <-chan Decision {
		out := make(chan Decision, 1)
		for _, a := range active {
			ch := a.RequestDecision(ctx, task)
			go func() {
				select {
				case d, ok := <-ch:
					if !ok {
						return
					}
					select {
					case out <- d:
					default:
					}
				case <-ctx.Done():
				}
			}()
		}
		return out
	})
}

// ManualApprover is a decision source driven by explicit Decide calls, used
// by the admin API. It tracks the single task currently under review.
type ManualApprover struct {
	mu      sync.Mutex
	current *reviewSlot
}

type reviewSlot struct {
	ctx  context.Context
	task *Task
	ch   chan Decision
	sent bool
}

// NewManualApprover creates a ManualApprover.
func NewManualApprover() *ManualApprover {
	return &ManualApprover{}
}

// RequestDecision registers task as the one awaiting a manual decision.
func (m *ManualApprover) RequestDecision(ctx context.Context, task *Task) <-chan Decision {
	slot := &reviewSlot{ctx: ctx, task: task, ch: make(chan Decision, 1)}

	m.mu.Lock()
	m.current = slot
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		if m.current == slot {
			m.current = nil
		}
		m.mu.Unlock()
	}()
	return slot.ch
}

// Current returns the task awaiting a manual decision, or nil.
func (m *ManualApprover) Current() *Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.ctx.Err() != nil {
		return nil
	}
	return m.current.task
}

// Decide submits a decision for the task with the given ID. It fails with
// ErrNotInReview when that task is not currently under review (including
// when its review already timed out) and ErrAlreadyDecided on a second call.
func (m *ManualApprover) Decide(id string, approved bool, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot := m.current
	if slot == nil || slot.task.ID != id || slot.ctx.Err() != nil || slot.task.State() != StateInReview {
		return ErrNotInReview
	}
	if slot.sent {
		return ErrAlreadyDecided
	}
	slot.sent = true
	slot.ch <- Decision{Approved: approved, Source: "admin", Reason: reason}
	return nil
}
