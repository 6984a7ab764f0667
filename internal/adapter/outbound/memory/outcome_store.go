// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/Sentinel-Gate/approvalgate/internal/domain/audit"
)

const defaultRecentCap = 1000

// OutcomeStore implements audit.Store writing JSON lines to stdout or a file.
// It also keeps a bounded ring buffer of recent records for the admin API.
type OutcomeStore struct {
	encoder *json.Encoder
	writer  io.Writer
	mu      sync.Mutex
	// recent is a bounded ring buffer of the most recent records.
	recent []audit.Record
	cap    int
}

// resolveCapacity returns the first positive capacity value, or defaultRecentCap.
func resolveCapacity(capacity ...int) int {
	if len(capacity) > 0 && capacity[0] > 0 {
		return capacity[0]
	}
	return defaultRecentCap
}

// NewOutcomeStore creates a store writing to stdout.
// An optional capacity parameter sets the ring buffer size (default 1000).
func NewOutcomeStore(capacity ...int) *OutcomeStore {
	return NewOutcomeStoreWithWriter(os.Stdout, capacity...)
}

// NewOutcomeStoreWithWriter creates a store writing to w. A nil writer keeps
// records in memory only.
func NewOutcomeStoreWithWriter(w io.Writer, capacity ...int) *OutcomeStore {
	c := resolveCapacity(capacity...)
	s := &OutcomeStore{
		writer: w,
		recent: make([]audit.Record, 0, c),
		cap:    c,
	}
	if w != nil {
		s.encoder = json.NewEncoder(w)
	}
	return s
}

// NewFileOutcomeStore opens path for appending and writes records there.
func NewFileOutcomeStore(path string, capacity ...int) (*OutcomeStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open outcome file: %w", err)
	}
	return NewOutcomeStoreWithWriter(f, capacity...), nil
}

// Append writes records as JSON lines and keeps them in the ring buffer.
// Records stay queryable even when the write fails.
func (s *OutcomeStore) Append(_ context.Context, records ...audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for _, r := range records {
		if len(s.recent) >= s.cap {
			copy(s.recent, s.recent[1:])
			s.recent[len(s.recent)-1] = r
		} else {
			s.recent = append(s.recent, r)
		}
		if s.encoder == nil {
			continue
		}
		if err := s.encoder.Encode(r); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Flush syncs file-backed output.
func (s *OutcomeStore) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.writer.(*os.File); ok && f != os.Stdout && f != os.Stderr {
		return f.Sync()
	}
	return nil
}

// Close releases resources.
func (s *OutcomeStore) Close() error {
	if f, ok := s.writer.(*os.File); ok && f != os.Stdout && f != os.Stderr {
		return f.Close()
	}
	return nil
}

// Recent returns up to limit records, newest first. A non-positive limit
// returns everything buffered.
func (s *OutcomeStore) Recent(_ context.Context, limit int) ([]audit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.recent)
	if limit <= 0 || limit > total {
		limit = total
	}
	if limit == 0 {
		return nil, nil
	}
	result := make([]audit.Record, limit)
	for i := 0; i < limit; i++ {
		result[i] = s.recent[total-1-i]
	}
	return result, nil
}

// Compile-time interface verification.
var (
	_ audit.Store      = (*OutcomeStore)(nil)
	_ audit.QueryStore = (*OutcomeStore)(nil)
)
