// Package ledger records which webhook deliveries have already been
// processed, so a redelivered event cannot start a second relay.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteLedger is a SQLite-backed delivery ledger. Entries expire after the
// TTL; expired rows are pruned opportunistically on writes.
type SQLiteLedger struct {
	db  *sql.DB
	ttl time.Duration
}

// NewSQLiteLedger opens (or creates) the database at dbPath and runs the
// schema migration.
func NewSQLiteLedger(dbPath string, ttl time.Duration) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}
	return &SQLiteLedger{db: db, ttl: ttl}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS deliveries (
			event_id TEXT PRIMARY KEY,
			seen_at  TEXT NOT NULL
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// MarkSeen records eventID and reports whether this was its first sighting.
func (l *SQLiteLedger) MarkSeen(ctx context.Context, eventID string) (bool, error) {
	now := time.Now().UTC()

	// Prune expired rows first so a long-expired redelivery counts as new.
	cutoff := now.Add(-l.ttl).Format(time.RFC3339Nano)
	if _, err := l.db.ExecContext(ctx,
		"DELETE FROM deliveries WHERE seen_at < ?", cutoff); err != nil {
		return false, fmt.Errorf("prune ledger: %w", err)
	}

	res, err := l.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO deliveries (event_id, seen_at) VALUES (?, ?)",
		eventID, now.Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("record delivery: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record delivery: %w", err)
	}
	return inserted == 1, nil
}
