package audit

import "context"

// Recorder accepts journal records. Implementations must not block the
// caller for long; the request path and the approval worker both record.
type Recorder interface {
	Record(r Record)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(Record)

// Record calls f(r).
func (f RecorderFunc) Record(r Record) { f(r) }

// Recorders fans a record out to several recorders in order.
type Recorders []Recorder

// Record forwards r to every recorder.
func (rs Recorders) Record(r Record) {
	for _, rec := range rs {
		if rec != nil {
			rec.Record(r)
		}
	}
}

// Store persists journal records.
type Store interface {
	// Append stores records.
	Append(ctx context.Context, records ...Record) error

	// Flush forces pending records to storage. Called during shutdown.
	Flush(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// QueryStore provides read access to recent records for the admin API.
type QueryStore interface {
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)
}
