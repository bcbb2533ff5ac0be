// Package archive delivers finished sessions to long-term storage. Finished
// sessions are first written to a local SQLite spool so a slow or
// unavailable sink never holds up a live session, then drained by a
// Dispatcher with retry.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/claude/grouplift/internal/rotation"
)

// Entry is one spooled session awaiting delivery.
type Entry struct {
	Key      uuid.UUID
	View     rotation.View
	Attempts int
}

// Spool is the durable queue of finished sessions.
type Spool struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSpool opens (or creates) the spool database at dir/spool.db.
func OpenSpool(dir string) (*Spool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating spool dir %s: %w", dir, err)
	}
	return openSpool(filepath.Join(dir, "spool.db"))
}

func openSpool(dsn string) (*Spool, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening spool db: %w", err)
	}
	// One writer at a time; SQLite returns SQLITE_BUSY otherwise.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS pending_sessions (
		session_key     TEXT PRIMARY KEY,
		session_id      TEXT NOT NULL,
		payload         BLOB NOT NULL,
		attempts        INTEGER NOT NULL DEFAULT 0,
		next_attempt_at INTEGER NOT NULL,
		last_error      TEXT,
		enqueued_at     INTEGER NOT NULL,
		archived_at     INTEGER,
		parked_at       INTEGER
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating spool table: %w", err)
	}

	return &Spool{db: db, now: time.Now}, nil
}

// Enqueue stores a finished session. Enqueueing the same archive key twice
// is a no-op.
func (s *Spool) Enqueue(ctx context.Context, view rotation.View) error {
	payload, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", view.ID, err)
	}
	now := s.now().UnixMilli()
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO pending_sessions (session_key, session_id, payload, next_attempt_at, enqueued_at)
		 VALUES (?, ?, ?, ?, ?)`,
		view.Key.String(), view.ID, payload, now, now,
	)
	if err != nil {
		return fmt.Errorf("spooling session %s: %w", view.ID, err)
	}
	return nil
}

// Due returns up to limit undelivered entries whose next attempt is due,
// oldest first.
func (s *Spool) Due(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_key, payload, attempts FROM pending_sessions
		 WHERE archived_at IS NULL AND parked_at IS NULL AND next_attempt_at <= ?
		 ORDER BY next_attempt_at, enqueued_at
		 LIMIT ?`,
		s.now().UnixMilli(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying due sessions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			key     string
			payload []byte
			e       Entry
		)
		if err := rows.Scan(&key, &payload, &e.Attempts); err != nil {
			return nil, fmt.Errorf("scanning spool row: %w", err)
		}
		if e.Key, err = uuid.Parse(key); err != nil {
			return nil, fmt.Errorf("spool key %q: %w", key, err)
		}
		if err := json.Unmarshal(payload, &e.View); err != nil {
			return nil, fmt.Errorf("decoding spooled session %s: %w", key, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkArchived records successful delivery.
func (s *Spool) MarkArchived(ctx context.Context, key uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE pending_sessions SET archived_at = ?, last_error = NULL WHERE session_key = ?`,
		s.now().UnixMilli(), key.String(),
	)
	return err
}

// Reschedule records a failed attempt and the time of the next one.
func (s *Spool) Reschedule(ctx context.Context, key uuid.UUID, attempts int, next time.Time, lastErr string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE pending_sessions SET attempts = ?, next_attempt_at = ?, last_error = ? WHERE session_key = ?`,
		attempts, next.UnixMilli(), lastErr, key.String(),
	)
	return err
}

// Park takes an entry out of rotation after too many failures. Parked rows
// stay in the spool for manual inspection.
func (s *Spool) Park(ctx context.Context, key uuid.UUID, attempts int, lastErr string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE pending_sessions SET attempts = ?, parked_at = ?, last_error = ? WHERE session_key = ?`,
		attempts, s.now().UnixMilli(), lastErr, key.String(),
	)
	return err
}

// Pending counts entries not yet archived or parked.
func (s *Spool) Pending(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_sessions WHERE archived_at IS NULL AND parked_at IS NULL`,
	).Scan(&n)
	return n, err
}

// Parked counts entries that exhausted their attempts.
func (s *Spool) Parked(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_sessions WHERE parked_at IS NOT NULL`,
	).Scan(&n)
	return n, err
}

// Close closes the spool database.
func (s *Spool) Close() error {
	return s.db.Close()
}
