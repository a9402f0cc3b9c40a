package repository

import (
	"context"
	"time"

	"cmdbsync/internal/domain"
	"cmdbsync/internal/tracker"
)

// JournalEntry is one batch recorded in the delta journal
type JournalEntry struct {
	ID          int64        `json:"id"`
	Source      string       `json:"source"`
	RunID       string       `json:"run_id"`
	Fingerprint string       `json:"fingerprint"`
	Deltas      int          `json:"deltas"`
	Edges       int          `json:"edges"`
	Batch       domain.Batch `json:"batch"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Repository persists attribute state and the delta journal
type Repository interface {
	LoadState(ctx context.Context, source string) ([]tracker.Record, error)
	SaveState(ctx context.Context, source string, records []tracker.Record) error
	DeleteState(ctx context.Context, source string) error
	StateSources(ctx context.Context) ([]string, error)

	AppendJournal(ctx context.Context, batch domain.Batch) error
	Journal(ctx context.Context, source string, limit int) ([]JournalEntry, error)
	PruneJournal(ctx context.Context, before time.Time) (int64, error)

	Close() error
}
