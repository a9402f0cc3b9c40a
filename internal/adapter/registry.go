package adapter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cmdbsync/internal/domain"
	"cmdbsync/internal/engine"
	"cmdbsync/internal/logging"
	"cmdbsync/internal/metrics"
)

var (
	ErrSourceNotFound = errors.New("source not found")
	ErrSourceDisabled = errors.New("source disabled")
)

// DefaultPollInterval applies to sources registered without an interval
const DefaultPollInterval = 5 * time.Minute

type registered struct {
	config      SourceConfig
	rows        RowSource
	restoreMu   sync.Mutex
	restored    bool
	unreachable bool
}

// Registry polls every registered source on its own schedule and feeds the
// rows through the engine
type Registry struct {
	mu            sync.RWMutex
	sources       map[string]*registered
	engine        *engine.Engine
	sink          PushSink
	probe         Probe
	store         StateStore
	logger        *zap.Logger
	diag          logging.Diagnostics
	metrics       *metrics.Metrics
	maxConcurrent int
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithProbe checks reachability before each cycle
func WithProbe(p Probe) RegistryOption {
	return func(r *Registry) { r.probe = p }
}

// WithStateStore persists attribute state and journals batches
func WithStateStore(s StateStore) RegistryOption {
	return func(r *Registry) { r.store = s }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// WithDiagnostics sets the diagnostic sink
func WithDiagnostics(d logging.Diagnostics) RegistryOption {
	return func(r *Registry) { r.diag = d }
}

// WithMetrics sets the metrics collector
func WithMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// WithMaxConcurrent bounds the cycles run in parallel by TriggerSyncAll
func WithMaxConcurrent(n int) RegistryOption {
	return func(r *Registry) { r.maxConcurrent = n }
}

// NewRegistry creates a registry delivering batches to sink
func NewRegistry(eng *engine.Engine, sink PushSink, opts ...RegistryOption) *Registry {
	r := &Registry{
		sources:       make(map[string]*registered),
		engine:        eng,
		sink:          sink,
		logger:        zap.NewNop(),
		diag:          logging.NopDiagnostics{},
		maxConcurrent: 4,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a source and the row source it is read from
func (r *Registry) Register(cfg SourceConfig, rows RowSource) error {
	if cfg.Name == "" {
		return errors.New("source name is required")
	}
	if rows == nil {
		return fmt.Errorf("source %s: row source is required", cfg.Name)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[cfg.Name]; exists {
		return fmt.Errorf("source %s already registered", cfg.Name)
	}
	r.sources[cfg.Name] = &registered{config: cfg, rows: rows}
	r.logger.Info("registered source",
		zap.String("source", cfg.Name),
		zap.String("protocol", cfg.Protocol),
		zap.Duration("interval", cfg.PollInterval),
		zap.Bool("enabled", cfg.Enabled))
	return nil
}

// Start begins a polling loop for every enabled source
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ctx, r.cancel = context.WithCancel(ctx)

	for name, src := range r.sources {
		if !src.config.Enabled {
			r.logger.Info("source disabled, skipping", zap.String("source", name))
			continue
		}
		r.startPollingLoop(name, src.config.PollInterval)
	}
	return nil
}

// Stop cancels all polling loops and waits for running cycles
func (r *Registry) Stop() error {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	return nil
}

// TriggerSync runs one cycle for a source immediately
func (r *Registry) TriggerSync(ctx context.Context, name string) (*engine.CycleResult, error) {
	r.mu.RLock()
	src, exists := r.sources[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, name)
	}
	if !src.config.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrSourceDisabled, name)
	}
	return r.runSync(ctx, name)
}

// TriggerSyncAll runs one cycle for every enabled source, at most
// maxConcurrent at a time. A failing source does not stop the others.
func (r *Registry) TriggerSyncAll(ctx context.Context) error {
	r.mu.RLock()
	var names []string
	for name, src := range r.sources {
		if src.config.Enabled {
			names = append(names, name)
		}
	}
	r.mu.RUnlock()
	sort.Strings(names)

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	if r.maxConcurrent > 0 {
		g.SetLimit(r.maxConcurrent)
	}
	for _, name := range names {
		g.Go(func() error {
			if _, err := r.runSync(ctx, name); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Sources returns information about registered sources, sorted by name
func (r *Registry) Sources() []SourceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]SourceInfo, 0, len(r.sources))
	for name, src := range r.sources {
		info := SourceInfo{SourceConfig: src.config, Unreachable: src.unreachable}
		if res, ok := r.engine.LastResult(name); ok {
			started := res.StartedAt
			info.LastRun = &started
			info.LastRunID = res.RunID
			info.LastDeltas = len(res.Batch.Deltas)
			info.LastEdges = res.Relationships
			info.Instances = res.Instances
			info.TrackedCIs = res.Tracked
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Source returns the configuration of one source
func (r *Registry) Source(name string) (SourceConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[name]
	if !ok {
		return SourceConfig{}, false
	}
	return src.config, true
}

// startPollingLoop runs a cycle immediately and then on every tick
func (r *Registry) startPollingLoop(name string, interval time.Duration) {
	ctx := r.ctx
	log := r.logger.With(zap.String("source", name))

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		if _, err := r.runSync(ctx, name); err != nil {
			log.Error("initial sync failed", zap.Error(err))
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info("stopping polling loop")
				return
			case <-ticker.C:
				if _, err := r.runSync(ctx, name); err != nil {
					log.Error("sync failed", zap.Error(err))
				}
			}
		}
	}()

	log.Info("started polling loop", zap.Duration("interval", interval))
}

// runSync reads the connector's tables, runs the cycle and delivers the batch
func (r *Registry) runSync(ctx context.Context, name string) (*engine.CycleResult, error) {
	r.mu.RLock()
	src := r.sources[name]
	cfg := src.config
	rows := src.rows
	r.mu.RUnlock()

	log := r.logger.With(zap.String("source", name))

	conn, err := r.engine.Catalog().Connector(cfg.Protocol)
	if err != nil {
		r.diag.Diagnostic(logging.KindUnknownClass, "source protocol not in catalog",
			zap.String("source", name),
			zap.String("protocol", cfg.Protocol))
		return nil, fmt.Errorf("sync %s: %w", name, err)
	}

	if err := r.restore(ctx, src); err != nil {
		log.Warn("state restore failed", zap.Error(err))
	}

	tables := make(domain.TableRows)
	reachable := r.probe == nil || r.probe.Reachable(ctx, cfg.Host)
	r.mu.Lock()
	src.unreachable = !reachable
	r.mu.Unlock()
	if reachable {
		for _, id := range conn.Tables() {
			tables[id] = rows.Rows(ctx, name, id)
		}
	}

	res, err := r.engine.RunCycle(ctx, engine.Source{
		Name:      cfg.Name,
		ElementID: cfg.ElementID,
		Protocol:  cfg.Protocol,
	}, tables)
	if err != nil {
		return nil, fmt.Errorf("sync %s: %w", name, err)
	}

	if r.store != nil {
		if err := r.store.SaveState(ctx, name, r.engine.Snapshot(name)); err != nil {
			log.Warn("state save failed", zap.Error(err))
		}
	}

	if res.Batch.Empty() {
		log.Debug("no updates", zap.String("run_id", res.RunID))
		return res, nil
	}

	if r.store != nil {
		if err := r.store.AppendJournal(ctx, res.Batch); err != nil {
			log.Warn("journal append failed", zap.Error(err))
		}
	}

	if err := r.sink.Push(ctx, res.Batch); err != nil {
		r.metrics.PushFailed(name)
		return res, fmt.Errorf("push %s: %w", name, err)
	}
	return res, nil
}

// restore loads persisted state before the first cycle of a source. A
// failed load is retried on the next cycle. Concurrent first cycles wait
// for the load to finish.
func (r *Registry) restore(ctx context.Context, src *registered) error {
	if r.store == nil {
		return nil
	}
	src.restoreMu.Lock()
	defer src.restoreMu.Unlock()
	if src.restored {
		return nil
	}

	records, err := r.store.LoadState(ctx, src.config.Name)
	if err != nil {
		return err
	}
	src.restored = true
	if len(records) == 0 {
		return nil
	}
	r.engine.Restore(src.config.Name, records)
	r.logger.Info("restored attribute state",
		zap.String("source", src.config.Name),
		zap.Int("records", len(records)))
	return nil
}
