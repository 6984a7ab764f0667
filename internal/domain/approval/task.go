// Package approval implements the asynchronous human-approval workflow for
// held requests: a FIFO task queue, a single review worker, decision sources
// and the review rendering shown to operators.
package approval

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/Sentinel-Gate/approvalgate/internal/domain/envelope"
)

// DefaultTimeout is the review timeout used when none is configured.
const DefaultTimeout = 30 * time.Second

var (
	// ErrQueueClosed is returned by Enqueue and Dequeue after Close.
	ErrQueueClosed = errors.New("approval queue closed")
	// ErrNotInReview is returned when a decision targets a task that is not
	// the one currently under review.
	ErrNotInReview = errors.New("task is not under review")
	// ErrAlreadyDecided is returned when a decision was already submitted
	// for the task under review.
	ErrAlreadyDecided = errors.New("task already has a decision")
)

// State is the lifecycle position of a Task.
type State string

const (
	StateQueued        State = "queued"
	StateInReview      State = "in_review"
	StateApproved      State = "approved"
	StateDenied        State = "denied"
	StateTimedOut      State = "timed_out"
	StateForwarded     State = "forwarded"
	StateForwardFailed State = "forward_failed"
	// StateDropped marks tasks abandoned at shutdown.
	StateDropped State = "dropped"
)

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	switch s {
	case StateDenied, StateTimedOut, StateForwarded, StateForwardFailed, StateDropped:
		return true
	}
	return false
}

var transitions = map[State][]State{
	StateQueued:   {StateInReview, StateDropped},
	StateInReview: {StateApproved, StateDenied, StateTimedOut, StateDropped},
	StateApproved: {StateForwarded, StateForwardFailed},
}

// Task is one held request waiting for, or going through, human review.
type Task struct {
	ID          string
	Descriptor  envelope.Descriptor
	EnqueuedAt  time.Time
	Fingerprint string
	// RequestID correlates the task with the webhook call that created it.
	RequestID string

	mu         sync.Mutex
	state      State
	reason     string
	decidedBy  string
	resolvedAt time.Time
}

// NewTask creates a queued task for d.
func NewTask(d envelope.Descriptor, requestID string) *Task {
	return &Task{
		ID:          uuid.New().String(),
		Descriptor:  d,
		EnqueuedAt:  time.Now().UTC(),
		Fingerprint: Fingerprint(d),
		RequestID:   requestID,
		state:       StateQueued,
	}
}

// State returns the current state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// transition moves the task to next if the move is legal.
func (t *Task) transition(next State, reason, decidedBy string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, allowed := range transitions[t.state] {
		if allowed == next {
			t.state = next
			if reason != "" {
				t.reason = reason
			}
			if decidedBy != "" {
				t.decidedBy = decidedBy
			}
			if next.Terminal() {
				t.resolvedAt = time.Now().UTC()
			}
			return nil
		}
	}
	return fmt.Errorf("task %s: illegal transition %s -> %s", t.ID, t.state, next)
}

// Snapshot is a point-in-time copy of a task for display.
type Snapshot struct {
	ID          string    `json:"id"`
	Method      string    `json:"method"`
	URL         string    `json:"url"`
	State       State     `json:"state"`
	Reason      string    `json:"reason,omitempty"`
	DecidedBy   string    `json:"decided_by,omitempty"`
	Fingerprint string    `json:"fingerprint"`
	RequestID   string    `json:"request_id,omitempty"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	ResolvedAt  time.Time `json:"resolved_at,omitempty"`
}

// Snapshot returns a copy of the task's current fields.
func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		ID:          t.ID,
		Method:      t.Descriptor.Method,
		URL:         t.Descriptor.URL,
		State:       t.state,
		Reason:      t.reason,
		DecidedBy:   t.decidedBy,
		Fingerprint: t.Fingerprint,
		RequestID:   t.RequestID,
		EnqueuedAt:  t.EnqueuedAt,
		ResolvedAt:  t.resolvedAt,
	}
}

// Fingerprint hashes method, URL and body so repeated submissions of the
// same call can be correlated in logs.
func Fingerprint(d envelope.Descriptor) string {
	h := xxhash.New()
	_, _ = h.WriteString(d.Method)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(d.URL)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(d.Body)
	return strconv.FormatUint(h.Sum64(), 16)
}

// Decision is a reviewer's answer for one task.
type Decision struct {
	Approved bool
	// Source names the decision channel, e.g. "console" or "admin".
	Source string
	Reason string
}
