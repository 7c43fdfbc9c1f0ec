// Package journal persists claim line items whose inventory adjustment did
// not go through, so they can be retried after the order is already claimed.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS reconciliation (
    id               INTEGER PRIMARY KEY,
    order_id         TEXT NOT NULL,
    order_number     TEXT NOT NULL,
    education_level  TEXT NOT NULL DEFAULT '',
    item_name        TEXT NOT NULL,
    item_size        TEXT NOT NULL DEFAULT '',
    quantity         INTEGER NOT NULL CHECK (quantity > 0),
    source_record_id TEXT,
    variant_size     TEXT NOT NULL DEFAULT '',
    adjustment_key   TEXT NOT NULL DEFAULT '',
    last_error       TEXT NOT NULL DEFAULT '',
    attempts         INTEGER NOT NULL DEFAULT 1,
    created_at       TEXT NOT NULL,
    resolved_at      TEXT
);

CREATE INDEX IF NOT EXISTS idx_reconciliation_pending
    ON reconciliation(created_at) WHERE resolved_at IS NULL;
`

// timeLayout keeps stored timestamps fixed-width so they sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// migrations are applied in order after schema creation. Each must be
// idempotent. Append new migrations at the end.
var migrations = []string{}

// Entry is one line item awaiting an inventory adjustment.
type Entry struct {
	ID             int64
	OrderID        uuid.UUID
	OrderNumber    string
	EducationLevel string
	ItemName       string
	ItemSize       string
	Quantity       int
	// SourceRecordID and VariantSize are set when the line resolved to a
	// variant before the adjustment failed.
	SourceRecordID *uuid.UUID
	VariantSize    string
	// AdjustmentKey is sent with every retry so the backend deducts the line
	// at most once.
	AdjustmentKey string
	LastError     string
	Attempts       int
	CreatedAt      time.Time
	ResolvedAt     *time.Time
}

// Journal is a SQLite-backed reconciliation journal.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the journal at path and applies the schema.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating journal schema: %w", err)
	}
	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running journal migration %d: %w", i+1, err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores a new pending entry and returns its ID.
func (j *Journal) Record(ctx context.Context, e Entry) (int64, error) {
	if e.Quantity <= 0 {
		return 0, fmt.Errorf("recording reconciliation: quantity must be positive")
	}

	var source sql.NullString
	if e.SourceRecordID != nil {
		source = sql.NullString{String: e.SourceRecordID.String(), Valid: true}
	}

	res, err := j.db.ExecContext(ctx,
		`INSERT INTO reconciliation
		    (order_id, order_number, education_level, item_name, item_size, quantity,
		     source_record_id, variant_size, adjustment_key, last_error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.OrderID.String(), e.OrderNumber, e.EducationLevel, e.ItemName, e.ItemSize, e.Quantity,
		source, e.VariantSize, e.AdjustmentKey, e.LastError, j.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("recording reconciliation: %w", err)
	}
	return res.LastInsertId()
}

// ListPending returns unresolved entries, oldest first.
func (j *Journal) ListPending(ctx context.Context) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, order_id, order_number, education_level, item_name, item_size, quantity,
		        source_record_id, variant_size, adjustment_key, last_error, attempts, created_at
		 FROM reconciliation
		 WHERE resolved_at IS NULL
		 ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing reconciliation: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			orderID   string
			source    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &orderID, &e.OrderNumber, &e.EducationLevel, &e.ItemName, &e.ItemSize,
			&e.Quantity, &source, &e.VariantSize, &e.AdjustmentKey, &e.LastError, &e.Attempts, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning reconciliation: %w", err)
		}
		if e.OrderID, err = uuid.Parse(orderID); err != nil {
			return nil, fmt.Errorf("entry %d: order id: %w", e.ID, err)
		}
		if source.Valid {
			id, err := uuid.Parse(source.String)
			if err != nil {
				return nil, fmt.Errorf("entry %d: source record id: %w", e.ID, err)
			}
			e.SourceRecordID = &id
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("entry %d: created at: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkResolved closes an entry after its adjustment succeeded.
func (j *Journal) MarkResolved(ctx context.Context, id int64) error {
	res, err := j.db.ExecContext(ctx,
		`UPDATE reconciliation SET resolved_at = ? WHERE id = ? AND resolved_at IS NULL`,
		j.now().UTC().Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("resolving reconciliation %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("reconciliation %d not found or already resolved", id)
	}
	return nil
}

// MarkAttempt records another failed retry of an entry.
func (j *Journal) MarkAttempt(ctx context.Context, id int64, lastErr string) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE reconciliation SET attempts = attempts + 1, last_error = ? WHERE id = ?`,
		lastErr, id,
	)
	if err != nil {
		return fmt.Errorf("updating reconciliation %d: %w", id, err)
	}
	return nil
}
