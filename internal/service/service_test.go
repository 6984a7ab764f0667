package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/Sentinel-Gate/approvalgate/internal/domain/audit"
	"github.com/Sentinel-Gate/approvalgate/internal/domain/envelope"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeForwarder records calls and returns a canned response or error.
type fakeForwarder struct {
	mu    sync.Mutex
	calls []envelope.Descriptor
	err   error
}

func (f *fakeForwarder) Forward(_ context.Context, d envelope.Descriptor) (*envelope.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, d)
	if f.err != nil {
		return nil, f.err
	}
	return &envelope.Response{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       []byte(`{"items":[]}`),
	}, nil
}

func (f *fakeForwarder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// memoryStore is an audit.Store keeping appended records.
type memoryStore struct {
	mu      sync.Mutex
	records []audit.Record
	flushes int
	err     error
}

func (m *memoryStore) Append(_ context.Context, records ...audit.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, records...)
	return nil
}

func (m *memoryStore) Flush(context.Context) error {
	m.mu.Lock()
	m.flushes++
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Close() error { return nil }

func (m *memoryStore) snapshot() []audit.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.Record(nil), m.records...)
}

var errUpstreamDown = errors.New("dial tcp: connection refused")
