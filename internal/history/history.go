// Package history persists a tool-call audit trail backed by SQLite.
// Every dispatched tool call is recorded with its outcome and duration
// so operators can answer "what ran, when, and did it work" after the
// fact. Recording is best-effort from the caller's perspective: a
// failed write never fails the tool call itself.
package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Call is one recorded tool invocation. Server is empty for built-in
// tools.
type Call struct {
	ID         string    `json:"id"`
	Server     string    `json:"server,omitempty"`
	Tool       string    `json:"tool"`
	OK         bool      `json:"ok"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CalledAt   time.Time `json:"called_at"`
}

// Store is a tool-call audit log backed by SQLite. All public methods
// are safe for concurrent use (SQLite serializes writes).
type Store struct {
	db *sql.DB
}

// NewStore creates an audit store at the given database path. The
// schema is created automatically on first use.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tool_calls (
		id          TEXT PRIMARY KEY,
		server      TEXT NOT NULL DEFAULT '',
		tool        TEXT NOT NULL,
		ok          INTEGER NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL,
		called_at   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_called_at ON tool_calls(called_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordCall inserts one audit row. Satisfies the mcp.CallRecorder
// interface.
func (s *Store) RecordCall(server, tool string, callErr error, elapsed time.Duration) error {
	ok := 1
	errText := ""
	if callErr != nil {
		ok = 0
		errText = callErr.Error()
	}

	_, err := s.db.Exec(
		`INSERT INTO tool_calls (id, server, tool, ok, error, duration_ms, called_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), server, tool, ok, errText,
		elapsed.Milliseconds(), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record call %s: %w", tool, err)
	}
	return nil
}

// Recent returns up to limit calls, newest first.
func (s *Store) Recent(limit int) ([]Call, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT id, server, tool, ok, error, duration_ms, called_at
		 FROM tool_calls ORDER BY called_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent calls: %w", err)
	}
	defer rows.Close()

	var calls []Call
	for rows.Next() {
		var (
			c        Call
			ok       int
			calledAt string
		)
		if err := rows.Scan(&c.ID, &c.Server, &c.Tool, &ok, &c.Error, &c.DurationMS, &calledAt); err != nil {
			return nil, fmt.Errorf("scan call row: %w", err)
		}
		c.OK = ok != 0
		c.CalledAt, _ = time.Parse(time.RFC3339Nano, calledAt)
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call rows: %w", err)
	}
	return calls, nil
}

// Prune deletes rows older than the cutoff and returns the count
// removed.
func (s *Store) Prune(olderThan time.Time) (int64, error) {
	res, err := s.db.Exec(
		`DELETE FROM tool_calls WHERE called_at < ?`,
		olderThan.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("prune calls: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
