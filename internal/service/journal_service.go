package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sentinel-Gate/approvalgate/internal/domain/audit"
)

// JournalService writes outcome records asynchronously through a buffered
// channel and a background worker, so the request path never waits on the
// store.
type JournalService struct {
	store         audit.Store
	records       chan audit.Record
	wg            sync.WaitGroup
	logger        *slog.Logger
	batchSize     int
	flushInterval time.Duration

	channelSize int
	sendTimeout time.Duration // 0 = drop immediately, >0 = block up to this duration
	dropCount   atomic.Int64

	warningThreshold int          // percent of capacity
	lastWarning      atomic.Int64 // unix nanos

	// closeMu guards records against sends after Stop closed it.
	closeMu sync.RWMutex
	closed  bool
}

// JournalOption configures JournalService.
type JournalOption func(*JournalService)

// WithBatchSize sets the number of records to batch before writing.
func WithBatchSize(size int) JournalOption {
	return func(s *JournalService) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithFlushInterval sets the interval to flush pending records.
func WithFlushInterval(interval time.Duration) JournalOption {
	return func(s *JournalService) {
		if interval > 0 {
			s.flushInterval = interval
		}
	}
}

// WithChannelSize sets the size of the record channel buffer.
func WithChannelSize(size int) JournalOption {
	return func(s *JournalService) {
		if size > 0 {
			s.records = make(chan audit.Record, size)
			s.channelSize = size
		}
	}
}

// WithSendTimeout sets the backpressure timeout.
// 0 = drop immediately, >0 = block up to this duration before dropping.
func WithSendTimeout(timeout time.Duration) JournalOption {
	return func(s *JournalService) {
		s.sendTimeout = timeout
	}
}

// WithWarningThreshold sets the channel depth warning percentage (0-100).
func WithWarningThreshold(percent int) JournalOption {
	return func(s *JournalService) {
		s.warningThreshold = min(max(percent, 0), 100)
	}
}

// NewJournalService creates a JournalService writing to store.
func NewJournalService(store audit.Store, logger *slog.Logger, opts ...JournalOption) *JournalService {
	const defaultChannelSize = 1000
	s := &JournalService{
		store:            store,
		records:          make(chan audit.Record, defaultChannelSize),
		logger:           logger,
		batchSize:        100,
		flushInterval:    time.Second,
		channelSize:      defaultChannelSize,
		sendTimeout:      100 * time.Millisecond,
		warningThreshold: 80,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the background worker that batches and writes records.
func (s *JournalService) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.worker(ctx)
}

// Record queues r for writing. It tries a non-blocking send first, then
// blocks up to the send timeout; on expiry the record is dropped and counted.
// Records arriving after Stop are dropped.
func (s *JournalService) Record(r audit.Record) {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		s.recordDrop(r)
		return
	}

	if s.warningThreshold > 0 {
		depth := len(s.records)
		if depth >= s.channelSize*s.warningThreshold/100 {
			s.warnChannelDepth(depth)
		}
	}

	select {
	case s.records <- r:
		return
	default:
	}

	if s.sendTimeout <= 0 {
		s.recordDrop(r)
		return
	}

	timer := time.NewTimer(s.sendTimeout)
	defer timer.Stop()
	select {
	case s.records <- r:
	case <-timer.C:
		s.recordDrop(r)
	}
}

func (s *JournalService) recordDrop(r audit.Record) {
	drops := s.dropCount.Add(1)
	s.logger.Warn("outcome record dropped",
		"request_id", r.RequestID,
		"task_id", r.TaskID,
		"outcome", r.Outcome,
		"total_drops", drops,
	)
}

// warnChannelDepth logs at most once per second.
func (s *JournalService) warnChannelDepth(depth int) {
	now := time.Now().UnixNano()
	last := s.lastWarning.Load()
	if now-last < int64(time.Second) {
		return
	}
	if s.lastWarning.CompareAndSwap(last, now) {
		s.logger.Warn("outcome journal approaching capacity",
			"depth", depth,
			"capacity", s.channelSize,
			"percent", depth*100/s.channelSize,
		)
	}
}

// DroppedRecords returns total dropped records.
func (s *JournalService) DroppedRecords() int64 {
	return s.dropCount.Load()
}

// ChannelDepth returns current channel usage.
func (s *JournalService) ChannelDepth() int {
	return len(s.records)
}

// ChannelCapacity returns the channel buffer size.
func (s *JournalService) ChannelCapacity() int {
	return s.channelSize
}

// Stop closes the channel and waits for the worker to flush what is pending.
// It is safe to call more than once.
func (s *JournalService) Stop() {
	s.closeMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.records)
	}
	s.closeMu.Unlock()
	s.wg.Wait()
}

func (s *JournalService) worker(ctx context.Context) {
	defer s.wg.Done()

	batch := make([]audit.Record, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	finalFlush := func() {
		if len(batch) == 0 {
			return
		}
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.flush(flushCtx, batch)
		if err := s.store.Flush(flushCtx); err != nil {
			s.logger.Error("failed to flush outcome store", "error", err)
		}
	}

	for {
		select {
		case r, ok := <-s.records:
			if !ok {
				finalFlush()
				return
			}
			batch = append(batch, r)
			if len(batch) >= s.batchSize {
				s.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			// Drain until Stop closes the channel.
			for r := range s.records {
				batch = append(batch, r)
			}
			finalFlush()
			return
		}
	}
}

// flush writes a batch. Errors are logged, never propagated to the request path.
func (s *JournalService) flush(ctx context.Context, batch []audit.Record) {
	if err := s.store.Append(ctx, batch...); err != nil {
		s.logger.Error("failed to write outcome batch",
			"error", err,
			"count", len(batch),
		)
	}
}

var _ audit.Recorder = (*JournalService)(nil)
