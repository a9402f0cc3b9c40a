package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"cmdbsync/internal/domain"
	"cmdbsync/internal/tracker"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullToBool converts sql.NullInt64 to bool (0 = false, non-zero = true)
func nullToBool(ni sql.NullInt64) bool {
	return ni.Valid && ni.Int64 != 0
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// boolToInt stores booleans as 0/1
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ============================================================================
// Row Scanners
// ============================================================================
//
// Column lists and scanArgs must stay in the same order.

const stateColumns = `unique_id, attribute, class, current_value, previous_value, monitored, class_field`

type stateRow struct {
	UniqueID   string
	Attribute  string
	Class      string
	Current    sql.NullString
	Previous   sql.NullString
	Monitored  sql.NullInt64
	ClassField sql.NullInt64
}

func (r *stateRow) scanArgs() []any {
	return []any{
		&r.UniqueID,
		&r.Attribute,
		&r.Class,
		&r.Current,
		&r.Previous,
		&r.Monitored,
		&r.ClassField,
	}
}

func (r *stateRow) toRecord() tracker.Record {
	return tracker.Record{
		UniqueID:  r.UniqueID,
		Class:     r.Class,
		Attribute: r.Attribute,
		AttributeState: domain.AttributeState{
			Current:    nullToString(r.Current),
			Previous:   nullToString(r.Previous),
			Monitored:  nullToBool(r.Monitored),
			ClassField: nullToBool(r.ClassField),
		},
	}
}

func stateInsertArgs(source string, rec tracker.Record, now time.Time) []any {
	return []any{
		source,
		rec.UniqueID,
		rec.Attribute,
		rec.Class,
		stringToNull(rec.Current),
		stringToNull(rec.Previous),
		boolToInt(rec.Monitored),
		boolToInt(rec.ClassField),
		now,
	}
}

const journalColumns = `id, source, run_id, fingerprint, delta_count, edge_count, batch, created_at`

type journalRow struct {
	ID          int64
	Source      string
	RunID       string
	Fingerprint sql.NullString
	Deltas      int
	Edges       int
	BatchJSON   string
	CreatedAt   time.Time
}

func (r *journalRow) scanArgs() []any {
	return []any{
		&r.ID,
		&r.Source,
		&r.RunID,
		&r.Fingerprint,
		&r.Deltas,
		&r.Edges,
		&r.BatchJSON,
		&r.CreatedAt,
	}
}

func (r *journalRow) toEntry() (JournalEntry, error) {
	entry := JournalEntry{
		ID:          r.ID,
		Source:      r.Source,
		RunID:       r.RunID,
		Fingerprint: nullToString(r.Fingerprint),
		Deltas:      r.Deltas,
		Edges:       r.Edges,
		CreatedAt:   r.CreatedAt,
	}
	if err := json.Unmarshal([]byte(r.BatchJSON), &entry.Batch); err != nil {
		return JournalEntry{}, fmt.Errorf("failed to unmarshal batch %d: %w", r.ID, err)
	}
	return entry, nil
}
