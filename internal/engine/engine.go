// Package engine runs one polling cycle for one monitored source:
// parse rows, resolve identities, diff against the previous cycle and build
// relationships. It performs no I/O. Rows are fetched and deltas delivered
// by the caller.
package engine

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"cmdbsync/internal/catalog"
	"cmdbsync/internal/domain"
	"cmdbsync/internal/identity"
	"cmdbsync/internal/logging"
	"cmdbsync/internal/metrics"
	"cmdbsync/internal/parser"
	"cmdbsync/internal/relation"
	"cmdbsync/internal/tracker"
)

// Source identifies one monitored element
type Source struct {
	// Name is the scope token prefixed to every unique ID
	Name      string `json:"name"`
	ElementID string `json:"element_id"`
	Protocol  string `json:"protocol"`
}

// CycleResult summarizes one completed cycle
type CycleResult struct {
	RunID       string        `json:"run_id"`
	Source      string        `json:"source"`
	Protocol    string        `json:"protocol"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Instances   int           `json:"instances"`
	Discarded   int           `json:"discarded"`
	Duplicates  int           `json:"duplicates"`
	SkippedRows int           `json:"skipped_rows"`
	Tracked     int           `json:"tracked"`
	// Relationships counts every edge that holds after the cycle
	Relationships int          `json:"relationships"`
	Batch         domain.Batch `json:"batch"`
}

type sourceState struct {
	mu      sync.Mutex
	tracker *tracker.Tracker
	// edges is nil until the first cycle, so a restarted engine reports
	// every edge once
	edges relation.EdgeSet
	last  *CycleResult
}

// Engine owns the change state of every source it has seen
type Engine struct {
	catalog *catalog.Holder
	logger  *zap.Logger
	diag    logging.Diagnostics
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.Mutex
	sources map[string]*sourceState
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithDiagnostics sets the diagnostic sink
func WithDiagnostics(d logging.Diagnostics) Option {
	return func(e *Engine) { e.diag = d }
}

// WithMetrics sets the metrics collector
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an engine reading its configuration from holder
func New(holder *catalog.Holder, opts ...Option) *Engine {
	e := &Engine{
		catalog: holder,
		logger:  zap.NewNop(),
		diag:    logging.NopDiagnostics{},
		now:     time.Now,
		sources: make(map[string]*sourceState),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) source(name string) *sourceState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.sources[name]
	if !ok {
		st = &sourceState{tracker: tracker.New()}
		e.sources[name] = st
	}
	return st
}

// RunCycle processes the rows read from src in one polling cycle. Cycles of
// the same source are serialized. The only errors are a cancelled context
// and an unknown protocol; data problems are reported as diagnostics.
func (e *Engine) RunCycle(ctx context.Context, src Source, tables domain.TableRows) (*CycleResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cat := e.catalog.Load()
	conn, err := cat.Connector(src.Protocol)
	if err != nil {
		e.metrics.CycleFailed(src.Name)
		return nil, fmt.Errorf("source %q: %w", src.Name, err)
	}

	st := e.source(src.Name)
	st.mu.Lock()
	defer st.mu.Unlock()

	start := e.now()
	log := e.logger.With(zap.String("source", src.Name), zap.String("protocol", src.Protocol))
	result := &CycleResult{
		RunID:     uuid.NewString(),
		Source:    src.Name,
		Protocol:  src.Protocol,
		StartedAt: start,
	}

	resolver := identity.NewResolver(cat)
	schemas := make(map[string]*domain.ClassSchema, len(conn.Classes))
	tracked := make(tracker.TrackedSet, len(conn.Classes))
	ids := make(map[string]string)
	var instances []domain.Instance

	for i := range conn.Classes {
		schema := &conn.Classes[i]
		schemas[schema.Name] = schema
		tracked[schema.Name] = schema.TrackedAttributes()

		var records []parser.Record
		if schema.Synthetic() {
			records = []parser.Record{parser.SyntheticRecord(src.ElementID, src.Name)}
		} else {
			parsed := parser.Parse(schema, tables, src.Name)
			records = parsed.Records
			if parsed.SkippedRows > 0 {
				result.SkippedRows += parsed.SkippedRows
				e.diag.Diagnostic(logging.KindMissingPrimaryKey, "rows skipped without a primary key",
					zap.String("source", src.Name),
					zap.String("class", schema.Name),
					zap.Int("rows", parsed.SkippedRows))
			}
		}

		process, hasProcessor := cat.Processor(schema.Name)
		for _, rec := range records {
			props := rec.Properties
			if hasProcessor {
				props = process(props)
			}

			res := resolver.Resolve(schema, rec.PrimaryKey, props, src.Name)
			if !res.Resolved() {
				result.Discarded++
				kind := logging.KindUnresolvedIdentity
				if res.Reason == identity.ReasonMissingResolver {
					kind = logging.KindMissingResolver
				}
				e.diag.Diagnostic(kind, "instance skipped without identity",
					zap.String("source", src.Name),
					zap.String("class", schema.Name),
					zap.String("primary_key", rec.PrimaryKey),
					zap.String("reason", res.Reason))
				continue
			}
			if res.Corrected {
				props = props.With(domain.AttrLabel, res.Label)
			}

			if firstClass, dup := ids[res.ID]; dup {
				result.Duplicates++
				e.diag.Diagnostic(logging.KindDuplicateIdentity, "duplicate identity dropped",
					zap.String("source", src.Name),
					zap.String("unique_id", res.ID),
					zap.String("class", schema.Name),
					zap.String("first_class", firstClass))
				continue
			}
			ids[res.ID] = schema.Name

			instances = append(instances, domain.Instance{
				Class:      schema.Name,
				PrimaryKey: rec.PrimaryKey,
				UniqueID:   res.ID,
				Properties: props,
			})
		}
	}

	obs := make([]tracker.Observation, len(instances))
	for i, inst := range instances {
		obs[i] = tracker.Observation{UniqueID: inst.UniqueID, Class: inst.Class, Properties: inst.Properties}
	}
	deltas := st.tracker.Apply(obs, tracked)
	for i := range deltas {
		if schema, ok := schemas[deltas[i].Class]; ok {
			deltas[i].TargetTable = schema.TargetTable
		}
	}

	edges := relation.Build(src.Name, conn.Relationships, instances)
	added, removed := st.edges.Diff(edges)
	st.edges = relation.NewEdgeSet(edges)

	result.Instances = len(instances)
	result.Tracked = st.tracker.Len()
	result.Relationships = len(edges)
	result.Batch = domain.Batch{
		Source:       src.Name,
		RunID:        result.RunID,
		Deltas:       deltas,
		Edges:        added,
		RemovedEdges: removed,
	}
	result.Batch.Fingerprint = Fingerprint(result.Batch)
	result.Duration = e.now().Sub(start)
	st.last = result

	e.metrics.ObserveCycle(src.Name, len(deltas), len(added)+len(removed), result.Tracked, result.Duration)
	log.Info("cycle complete",
		zap.String("run_id", result.RunID),
		zap.Int("instances", result.Instances),
		zap.Int("deltas", len(deltas)),
		zap.Int("edges_added", len(added)),
		zap.Int("edges_removed", len(removed)),
		zap.Int("discarded", result.Discarded),
		zap.Int("duplicates", result.Duplicates),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// Fingerprint returns a digest of the batch's source, run ID and content.
// The run ID makes it unique per cycle, so a cycle that repeats an earlier
// cycle's updates is not mistaken for a redelivery. An empty batch has no
// fingerprint.
func Fingerprint(b domain.Batch) string {
	if b.Empty() {
		return ""
	}
	b.Fingerprint = ""
	payload, err := json.Marshal(b)
	if err != nil {
		return ""
	}
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Sources returns the names of sources that have run at least once, sorted
func (e *Engine) Sources() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.sources))
	for name := range e.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns the attribute state of a source
func (e *Engine) Snapshot(source string) []tracker.Record {
	e.mu.Lock()
	st, ok := e.sources[source]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	return st.tracker.Snapshot()
}

// Restore loads persisted attribute state for a source. It waits for any
// running cycle of that source.
func (e *Engine) Restore(source string, records []tracker.Record) {
	st := e.source(source)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.tracker.Restore(records)
}

// LastResult returns the most recent cycle result of a source
func (e *Engine) LastResult(source string) (*CycleResult, bool) {
	e.mu.Lock()
	st, ok := e.sources[source]
	e.mu.Unlock()
	if !ok {
		return nil, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.last, st.last != nil
}

// Catalog returns the active catalog
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog.Load()
}
