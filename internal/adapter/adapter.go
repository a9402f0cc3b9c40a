package adapter

import (
	"context"
	"time"

	"cmdbsync/internal/domain"
	"cmdbsync/internal/tracker"
)

// RowSource reads the rows of one source table from a monitored element.
// An unreachable or stopped element yields no rows; implementations log
// their own diagnostic instead of returning an error.
type RowSource interface {
	Rows(ctx context.Context, source string, tableID int) []domain.RawRow
}

// PushSink delivers the deltas and edges of one cycle to the external catalog.
// Batching and retry are the sink's concern.
type PushSink interface {
	Push(ctx context.Context, batch domain.Batch) error
}

// Probe checks whether a monitored element answers before its cycle runs
type Probe interface {
	Reachable(ctx context.Context, host string) bool
}

// StateStore persists attribute state across restarts
type StateStore interface {
	LoadState(ctx context.Context, source string) ([]tracker.Record, error)
	SaveState(ctx context.Context, source string, records []tracker.Record) error
	AppendJournal(ctx context.Context, batch domain.Batch) error
}

// SourceConfig describes one monitored element
type SourceConfig struct {
	// Name is the scope token of the element
	Name      string `json:"name"`
	ElementID string `json:"element_id"`
	// Protocol selects the connector in the catalog
	Protocol string `json:"protocol"`
	// Host is probed before each cycle when a probe is configured
	Host         string        `json:"host,omitempty"`
	Enabled      bool          `json:"enabled"`
	PollInterval time.Duration `json:"poll_interval"`
}

// SourceInfo provides read-only information about a registered source
type SourceInfo struct {
	SourceConfig
	LastRun     *time.Time `json:"last_run,omitempty"`
	LastRunID   string     `json:"last_run_id,omitempty"`
	LastDeltas  int        `json:"last_deltas"`
	LastEdges   int        `json:"last_edges"`
	Instances   int        `json:"instances"`
	TrackedCIs  int        `json:"tracked"`
	Unreachable bool       `json:"unreachable,omitempty"`
}
