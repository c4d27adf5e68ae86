// Package audit keeps an append-only SQLite trail of every pipeline
// decision so a rejected or executed signal can be explained after the
// fact. The trail is write-only for the trading process: nothing here
// feeds back into decisions.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Decision is one recorded allow/reject outcome.
type Decision struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Action    string    `json:"action"`
	Stage     string    `json:"stage"` // verifier, freq_gate, cooldown, risk gate name, submit
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason"`
}

// Trail is the audit store. A nil *Trail is a valid no-op sink.
type Trail struct {
	db *sql.DB
}

// Open creates (if needed) and opens the audit database at path.
func Open(path string) (*Trail, error) {
	if path == "" {
		return nil, errors.New("audit path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite prefers single writer.

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS decisions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			symbol TEXT NOT NULL,
			action TEXT NOT NULL,
			stage TEXT NOT NULL,
			allowed INTEGER NOT NULL,
			reason TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions(ts);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}

	return &Trail{db: db}, nil
}

// Close releases the underlying handle.
func (t *Trail) Close() error {
	if t == nil || t.db == nil {
		return nil
	}
	return t.db.Close()
}

// Record appends one decision. Errors are returned for logging but the
// pipeline never treats an audit failure as a trading failure.
func (t *Trail) Record(ctx context.Context, d Decision) error {
	if t == nil || t.db == nil {
		return nil
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now()
	}
	allowed := 0
	if d.Allowed {
		allowed = 1
	}
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO decisions (ts, symbol, action, stage, allowed, reason)
		VALUES (?, ?, ?, ?, ?, ?)
	`, d.Timestamp.UTC().Format(time.RFC3339Nano), d.Symbol, d.Action, d.Stage, allowed, d.Reason)
	return err
}

// Recent returns the latest n decisions, newest first.
func (t *Trail) Recent(ctx context.Context, n int) ([]Decision, error) {
	if t == nil || t.db == nil {
		return nil, nil
	}
	if n <= 0 {
		n = 50
	}
	rows, err := t.db.QueryContext(ctx, `
		SELECT id, ts, symbol, action, stage, allowed, reason
		FROM decisions ORDER BY id DESC LIMIT ?
	`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var d Decision
		var ts string
		var allowed int
		if err := rows.Scan(&d.ID, &ts, &d.Symbol, &d.Action, &d.Stage, &allowed, &d.Reason); err != nil {
			return nil, err
		}
		d.Allowed = allowed == 1
		d.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, d)
	}
	return out, rows.Err()
}
