// Package sqlite persists outcome journal records in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Registers the pure-Go "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/Sentinel-Gate/approvalgate/internal/domain/audit"
)

const schema = `
CREATE TABLE IF NOT EXISTS outcomes (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	ts              TEXT    NOT NULL,
	stage           TEXT    NOT NULL,
	request_id      TEXT    NOT NULL DEFAULT '',
	task_id         TEXT    NOT NULL DEFAULT '',
	fingerprint     TEXT    NOT NULL DEFAULT '',
	method          TEXT    NOT NULL,
	url             TEXT    NOT NULL,
	verdict         TEXT    NOT NULL,
	outcome         TEXT    NOT NULL,
	reason          TEXT    NOT NULL DEFAULT '',
	decided_by      TEXT    NOT NULL DEFAULT '',
	upstream_status INTEGER NOT NULL DEFAULT 0,
	latency_us      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS outcomes_task_id ON outcomes(task_id);
`

const insertOutcome = `INSERT INTO outcomes
	(ts, stage, request_id, task_id, fingerprint, method, url, verdict, outcome, reason, decided_by, upstream_status, latency_us)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectRecent = `SELECT
	ts, stage, request_id, task_id, fingerprint, method, url, verdict, outcome, reason, decided_by, upstream_status, latency_us
	FROM outcomes ORDER BY id DESC LIMIT ?`

// maxRecent caps Recent when no positive limit is given.
const maxRecent = 1000

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("outcome store closed")

// OutcomeStore implements audit.Store and audit.QueryStore on SQLite.
type OutcomeStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*OutcomeStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &OutcomeStore{db: db}, nil
}

// Append inserts records in one transaction.
func (s *OutcomeStore) Append(ctx context.Context, records ...audit.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertOutcome)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.Timestamp.UTC().Format(time.RFC3339Nano),
			r.Stage, r.RequestID, r.TaskID, r.Fingerprint,
			r.Method, r.URL, r.Verdict, r.Outcome, r.Reason, r.DecidedBy,
			r.UpstreamStatus, r.LatencyMicros,
		); err != nil {
			return fmt.Errorf("insert outcome: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *OutcomeStore) Recent(ctx context.Context, limit int) ([]audit.Record, error) {
	if limit <= 0 || limit > maxRecent {
		limit = maxRecent
	}
	rows, err := s.db.QueryContext(ctx, selectRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []audit.Record
	for rows.Next() {
		var (
			r  audit.Record
			ts string
		)
		if err := rows.Scan(&ts, &r.Stage, &r.RequestID, &r.TaskID, &r.Fingerprint,
			&r.Method, &r.URL, &r.Verdict, &r.Outcome, &r.Reason, &r.DecidedBy,
			&r.UpstreamStatus, &r.LatencyMicros); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		if r.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Flush checkpoints the write-ahead log.
func (s *OutcomeStore) Flush(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)"); err != nil {
		if errors.Is(err, sql.ErrConnDone) {
			return ErrClosed
		}
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *OutcomeStore) Close() error {
	return s.db.Close()
}

var (
	_ audit.Store      = (*OutcomeStore)(nil)
	_ audit.QueryStore = (*OutcomeStore)(nil)
)
