package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"cmdbsync/internal/domain"
	"cmdbsync/internal/repository"
	"cmdbsync/internal/tracker"
)

// Repository implements repository.Repository using SQLite
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

var _ repository.Repository = (*Repository)(nil)

// New opens (or creates) the database at dbPath and migrates the schema
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db, now: time.Now}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return repo, nil
}

func dsn(path string) string {
	if path == ":memory:" || strings.HasPrefix(path, "file::memory:") {
		return path
	}
	return "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_time_format=sqlite"
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS attribute_state (
		source TEXT NOT NULL,
		unique_id TEXT NOT NULL,
		attribute TEXT NOT NULL,
		class TEXT NOT NULL,
		current_value TEXT,
		previous_value TEXT,
		monitored INTEGER NOT NULL DEFAULT 0,
		class_field INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (source, unique_id, attribute)
	);

	CREATE TABLE IF NOT EXISTS delta_journal (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		run_id TEXT NOT NULL,
		fingerprint TEXT,
		delta_count INTEGER NOT NULL DEFAULT 0,
		edge_count INTEGER NOT NULL DEFAULT 0,
		batch JSON NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_attribute_state_source ON attribute_state(source);
	CREATE INDEX IF NOT EXISTS idx_delta_journal_source ON delta_journal(source, id);
	CREATE INDEX IF NOT EXISTS idx_delta_journal_created ON delta_journal(created_at);
	`

	_, err := r.db.Exec(schema)
	return err
}

// LoadState returns the persisted attribute state of a source
func (r *Repository) LoadState(ctx context.Context, source string) ([]tracker.Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+stateColumns+`
		FROM attribute_state
		WHERE source = ?
		ORDER BY unique_id, attribute
	`, source)
	if err != nil {
		return nil, fmt.Errorf("failed to query state: %w", err)
	}
	defer rows.Close()

	var records []tracker.Record
	for rows.Next() {
		var row stateRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan state: %w", err)
		}
		records = append(records, row.toRecord())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating state: %w", err)
	}
	return records, nil
}

// SaveState replaces the persisted state of a source with records
func (r *Repository) SaveState(ctx context.Context, source string, records []tracker.Record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM attribute_state WHERE source = ?`, source); err != nil {
		return fmt.Errorf("failed to clear state: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO attribute_state (
			source, unique_id, attribute, class, current_value, previous_value,
			monitored, class_field, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := r.now().UTC()
	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, stateInsertArgs(source, rec, now)...); err != nil {
			return fmt.Errorf("failed to insert state for %s/%s: %w", rec.UniqueID, rec.Attribute, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteState removes the persisted state of a source
func (r *Repository) DeleteState(ctx context.Context, source string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM attribute_state WHERE source = ?`, source); err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	return nil
}

// StateSources lists the sources with persisted state
func (r *Repository) StateSources(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT source FROM attribute_state ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// AppendJournal records a pushed batch
func (r *Repository) AppendJournal(ctx context.Context, batch domain.Batch) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO delta_journal (source, run_id, fingerprint, delta_count, edge_count, batch, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, batch.Source, batch.RunID, stringToNull(batch.Fingerprint),
		len(batch.Deltas), len(batch.Edges), string(data), r.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to append journal: %w", err)
	}
	return nil
}

// Journal returns the most recent entries of a source, newest first.
// An empty source returns entries of all sources.
func (r *Repository) Journal(ctx context.Context, source string, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + journalColumns + ` FROM delta_journal`
	args := []any{}
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var row journalRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entry, err := row.toEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal: %w", err)
	}
	return entries, nil
}

// PruneJournal deletes entries older than before
func (r *Repository) PruneJournal(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM delta_journal WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database
func (r *Repository) Close() error {
	return r.db.Close()
}

// JournalEntry aliases the repository type for callers holding a *Repository
type JournalEntry = repository.JournalEntry
