// Package service contains application services.
package service

import (
	"sync/atomic"

	"github.com/Sentinel-Gate/approvalgate/internal/domain/audit"
)

// StatsService tracks runtime statistics using lock-free atomic counters.
// It consumes outcome records, so it plugs in anywhere an audit.Recorder does.
type StatsService struct {
	denied          atomic.Int64
	forwarded       atomic.Int64
	forwardFailed   atomic.Int64
	pendingApproval atomic.Int64
	approved        atomic.Int64
	rejected        atomic.Int64
	timedOut        atomic.Int64
	dropped         atomic.Int64
}

// NewStatsService creates a new StatsService with all counters at zero.
func NewStatsService() *StatsService {
	return &StatsService{}
}

// Record counts one outcome record.
func (s *StatsService) Record(r audit.Record) {
	switch r.Outcome {
	case audit.OutcomeDenied:
		s.denied.Add(1)
	case audit.OutcomeForwarded:
		s.forwarded.Add(1)
		if r.Stage == audit.StageApproval {
			s.approved.Add(1)
		}
	case audit.OutcomeForwardFailed:
		s.forwardFailed.Add(1)
		if r.Stage == audit.StageApproval {
			s.approved.Add(1)
		}
	case audit.OutcomePendingApproval:
		s.pendingApproval.Add(1)
	case audit.OutcomeRejected:
		s.rejected.Add(1)
	case audit.OutcomeTimedOut:
		s.timedOut.Add(1)
	case audit.OutcomeDropped:
		s.dropped.Add(1)
	}
}

// Stats holds a snapshot of all counters at a point in time.
type Stats struct {
	Denied          int64 `json:"denied"`
	Forwarded       int64 `json:"forwarded"`
	ForwardFailed   int64 `json:"forward_failed"`
	PendingApproval int64 `json:"pending_approval"`
	Approved        int64 `json:"approved"`
	Rejected        int64 `json:"rejected"`
	TimedOut        int64 `json:"timed_out"`
	Dropped         int64 `json:"dropped"`
}

// GetStats returns a snapshot of all counters.
// The snapshot is consistent per-counter but not atomically across all counters.
func (s *StatsService) GetStats() Stats {
	return Stats{
		Denied:          s.denied.Load(),
		Forwarded:       s.forwarded.Load(),
		ForwardFailed:   s.forwardFailed.Load(),
		PendingApproval: s.pendingApproval.Load(),
		Approved:        s.approved.Load(),
		Rejected:        s.rejected.Load(),
		TimedOut:        s.timedOut.Load(),
		Dropped:         s.dropped.Load(),
	}
}

// Reset sets all counters to zero.
func (s *StatsService) Reset() {
	for _, c := range []*atomic.Int64{
		&s.denied, &s.forwarded, &s.forwardFailed, &s.pendingApproval,
		&s.approved, &s.rejected, &s.timedOut, &s.dropped,
	} {
		c.Store(0)
	}
}

var _ audit.Recorder = (*StatsService)(nil)
