package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Event kinds recorded by the journal.
const (
	KindSessionConnect    = "session_connect"
	KindSessionDisconnect = "session_disconnect"
	KindCircuitCreate     = "circuit_create"
	KindCircuitDestroy    = "circuit_destroy"
	KindStreamOpen        = "stream_open"
	KindStreamClose       = "stream_close"
	KindHTTPRequest       = "http_request"
	KindFailure           = "failure"
)

// Journal provides SQLite-based storage for lifecycle events.
//
// A nil *Journal is valid and records nothing, so callers write
// unconditional j.Record calls and configuration decides whether they
// land anywhere.
type Journal struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Event is one recorded lifecycle event.
type Event struct {
	// Time is when the event happened.
	Time time.Time

	// Kind is one of the Kind* constants.
	Kind string

	// Handle is the circuit or stream handle involved, if any.
	Handle string

	// Detail is free-form context: target address, failure text.
	Detail string
}

// Open opens or creates a journal database under the given directory.
// The directory is created if needed.
func Open(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	dbPath := filepath.Join(dir, "torgate.db")

	db, err := sql.Open("sqlite", dbPath+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	// SQLite only supports one writer; the journal is write-mostly so a
	// single connection keeps things simple.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	j := &Journal{db: db, dbPath: dbPath}

	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := j.createTables(); err != nil {
		_ = db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return j, nil
}

// createTables creates the journal schema if it doesn't exist.
func (j *Journal) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		kind TEXT NOT NULL,
		handle TEXT,
		detail TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
	CREATE INDEX IF NOT EXISTS idx_events_handle ON events(handle);
	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
	`
	_, err := j.db.ExecContext(context.Background(), schema)
	return err
}

// Record writes one event. It is a no-op on a nil journal, and errors
// are returned rather than logged: the caller owns the logger.
func (j *Journal) Record(ctx context.Context, kind, handle, detail string) error {
	if j == nil {
		return nil
	}

	_, err := j.db.ExecContext(ctx,
		"INSERT INTO events (timestamp, kind, handle, detail) VALUES (?, ?, ?, ?)",
		time.Now().UTC(), kind, handle, detail,
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// Events returns all recorded events for a handle in insertion order.
// An empty handle returns every event.
func (j *Journal) Events(ctx context.Context, handle string) ([]Event, error) {
	if j == nil {
		return nil, nil
	}

	query := "SELECT timestamp, kind, handle, detail FROM events"
	args := []any{}
	if handle != "" {
		query += " WHERE handle = ?"
		args = append(args, handle)
	}
	query += " ORDER BY id"

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Time, &e.Kind, &e.Handle, &e.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// Close closes the journal database. No-op on a nil journal.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.db.Close()
}

// Path returns the path of the journal database file.
func (j *Journal) Path() string {
	if j == nil {
		return ""
	}
	return j.dbPath
}
