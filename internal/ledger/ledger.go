// Package ledger records every reconciliation run for auditing.
// It is write-only from the reconciler's point of view.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dokzlo13/vultrsync/internal/reconcile"
)

// Entry represents a single reconciliation run in the ledger
type Entry struct {
	ID         int64          `json:"id"`
	RunID      string         `json:"run_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Kind       string         `json:"kind"`
	NaturalKey string         `json:"natural_key"`
	Action     string         `json:"action"`
	Changed    bool           `json:"changed"`
	DryRun     bool           `json:"dry_run"`
	Diff       reconcile.Diff `json:"diff"`
	Error      string         `json:"error,omitempty"`
}

// Ledger provides append-only run logging
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// FromOutcome builds an entry for one orchestrated item. Failed items have
// no result; they are recorded with action "failed".
func FromOutcome(runID, naturalKey string, o reconcile.Outcome) Entry {
	e := Entry{
		RunID:      runID,
		Kind:       o.Item.Kind,
		NaturalKey: naturalKey,
		Action:     "failed",
	}
	if o.Result != nil {
		e.RunID = o.Result.RunID
		e.Action = o.Result.Action.String()
		e.Changed = o.Result.Changed
		e.DryRun = o.Result.DryRun
		e.Diff = o.Result.Diff
	}
	if o.Err != nil {
		e.Error = o.Err.Error()
	}
	return e
}

// Append adds a new entry to the ledger. Timestamp defaults to now.
func (l *Ledger) Append(e Entry) error {
	diffJSON, err := json.Marshal(e.Diff)
	if err != nil {
		return fmt.Errorf("failed to marshal diff: %w", err)
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = l.now()
	}

	_, err = l.db.Exec(`
		INSERT INTO reconcile_runs (run_id, timestamp, kind, natural_key, action, changed, dry_run, diff, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.RunID, ts.UTC().Unix(), e.Kind, e.NaturalKey, e.Action, e.Changed, e.DryRun, string(diffJSON), nullable(e.Error))

	return err
}

// Recent returns the newest entries first
func (l *Ledger) Recent(limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, run_id, timestamp, kind, natural_key, action, changed, dry_run, diff, error
		FROM reconcile_runs
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// ByKey returns the history of one resource, newest first
func (l *Ledger) ByKey(kind, naturalKey string, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, run_id, timestamp, kind, natural_key, action, changed, dry_run, diff, error
		FROM reconcile_runs
		WHERE kind = ? AND natural_key = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, kind, naturalKey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).Unix()
	result, err := l.db.Exec(`
		DELETE FROM reconcile_runs WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (l *Ledger) scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var diffStr, errStr sql.NullString
		var timestamp int64

		err := rows.Scan(
			&entry.ID, &entry.RunID, &timestamp, &entry.Kind, &entry.NaturalKey,
			&entry.Action, &entry.Changed, &entry.DryRun, &diffStr, &errStr,
		)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.Unix(timestamp, 0).UTC()
		if errStr.Valid {
			entry.Error = errStr.String
		}

		if diffStr.Valid && diffStr.String != "" {
			if err := json.Unmarshal([]byte(diffStr.String), &entry.Diff); err != nil {
				return nil, fmt.Errorf("failed to unmarshal diff: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
