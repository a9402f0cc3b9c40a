package adapter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"cmdbsync/internal/catalog"
	"cmdbsync/internal/domain"
	"cmdbsync/internal/engine"
	"cmdbsync/internal/logging"
	"cmdbsync/internal/metrics"
	"cmdbsync/internal/tracker"
)

const testProtocol = "Lab Protocol"

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	c, err := catalog.New([]catalog.Integration{{
		Name: "Lab",
		Connectors: []catalog.Connector{{
			Protocol: testProtocol,
			Classes: []domain.ClassSchema{{
				Name:        "Device",
				TargetTable: "u_cmdb_ci_device",
				Naming:      domain.NamingByLabel,
				Attributes: []domain.AttributeDef{
					{Name: "pk", TableID: 100, Column: 0, Role: domain.RolePrimaryKey},
					{Name: "u_label", TableID: 100, Column: 1, IdentityInput: true},
					{Name: "status", TableID: 100, Column: 2, Monitored: true},
				},
			}},
		}},
	}})
	if err != nil {
		t.Fatalf("failed to build catalog: %v", err)
	}
	return engine.New(catalog.NewHolder(c))
}

type staticRows struct {
	mu     sync.Mutex
	tables domain.TableRows
	calls  int
}

func (s *staticRows) Rows(_ context.Context, _ string, tableID int) []domain.RawRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.tables[tableID]
}

func (s *staticRows) set(tables domain.TableRows) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = tables
}

type recordingSink struct {
	mu      sync.Mutex
	batches []domain.Batch
	err     error
}

func (s *recordingSink) Push(_ context.Context, batch domain.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, batch)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

type memStore struct {
	mu      sync.Mutex
	state   map[string][]tracker.Record
	journal []domain.Batch
	// failLoads makes the next n LoadState calls fail
	failLoads int
	loads     int
}

func newMemStore() *memStore {
	return &memStore{state: make(map[string][]tracker.Record)}
}

func (m *memStore) LoadState(ctx context.Context, source string) ([]tracker.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.failLoads > 0 {
		m.failLoads--
		return nil, errors.New("database locked")
	}
	return m.state[source], nil
}

func (m *memStore) SaveState(_ context.Context, source string, records []tracker.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[source] = records
	return nil
}

func (m *memStore) AppendJournal(_ context.Context, batch domain.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal = append(m.journal, batch)
	return nil
}

type fixedProbe bool

func (p fixedProbe) Reachable(context.Context, string) bool { return bool(p) }

type kindRecorder struct {
	mu    sync.Mutex
	kinds []string
}

func (k *kindRecorder) Diagnostic(kind, _ string, _ ...zap.Field) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.kinds = append(k.kinds, kind)
}

func deviceRows(status string) domain.TableRows {
	return domain.TableRows{100: {{"42", "DeviceA", status}}}
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry(testEngine(t), &recordingSink{})
	rows := &staticRows{}

	if err := r.Register(SourceConfig{Name: "NMS1", Protocol: testProtocol, Enabled: true}, rows); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(SourceConfig{Name: "NMS1", Protocol: testProtocol}, rows); err == nil {
		t.Error("expected duplicate registration to fail")
	}
	if err := r.Register(SourceConfig{Protocol: testProtocol}, rows); err == nil {
		t.Error("expected missing name to fail")
	}
	if err := r.Register(SourceConfig{Name: "NMS2"}, nil); err == nil {
		t.Error("expected missing row source to fail")
	}

	cfg, ok := r.Source("NMS1")
	if !ok {
		t.Fatal("expected NMS1 to be registered")
	}
	if cfg.PollInterval != DefaultPollInterval {
		t.Errorf("expected default interval, got %v", cfg.PollInterval)
	}
}

func TestRegistryTriggerSync(t *testing.T) {
	sink := &recordingSink{}
	store := newMemStore()
	r := NewRegistry(testEngine(t), sink, WithStateStore(store))
	rows := &staticRows{tables: deviceRows("1")}
	if err := r.Register(SourceConfig{Name: "NMS1", Protocol: testProtocol, Enabled: true}, rows); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	res, err := r.TriggerSync(ctx, "NMS1")
	if err != nil {
		t.Fatalf("TriggerSync: %v", err)
	}
	if len(res.Batch.Deltas) != 1 || sink.count() != 1 {
		t.Fatalf("expected one pushed delta, got %+v (pushes=%d)", res.Batch.Deltas, sink.count())
	}
	if len(store.journal) != 1 {
		t.Errorf("expected 1 journal entry, got %d", len(store.journal))
	}
	if len(store.state["NMS1"]) == 0 {
		t.Error("expected state to be saved")
	}

	// unchanged rows produce nothing to push
	if _, err := r.TriggerSync(ctx, "NMS1"); err != nil {
		t.Fatal(err)
	}
	if sink.count() != 1 {
		t.Errorf("expected no second push, got %d", sink.count())
	}

	rows.set(deviceRows("0"))
	res, err = r.TriggerSync(ctx, "NMS1")
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := res.Batch.Deltas[0].Change("status"); v != "Deactivated" {
		t.Errorf("expected Deactivated, got %q", v)
	}
}

func TestRegistryTriggerSyncErrors(t *testing.T) {
	diag := &kindRecorder{}
	r := NewRegistry(testEngine(t), &recordingSink{}, WithDiagnostics(diag))
	rows := &staticRows{}
	_ = r.Register(SourceConfig{Name: "off", Protocol: testProtocol}, rows)
	_ = r.Register(SourceConfig{Name: "bad", Protocol: "Unknown", Enabled: true}, rows)
	ctx := context.Background()

	if _, err := r.TriggerSync(ctx, "missing"); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("expected ErrSourceNotFound, got %v", err)
	}
	if _, err := r.TriggerSync(ctx, "off"); !errors.Is(err, ErrSourceDisabled) {
		t.Errorf("expected ErrSourceDisabled, got %v", err)
	}
	_, err := r.TriggerSync(ctx, "bad")
	if !errors.Is(err, catalog.ErrUnknownConnector) {
		t.Errorf("expected ErrUnknownConnector, got %v", err)
	}
	if len(diag.kinds) != 1 || diag.kinds[0] != logging.KindUnknownClass {
		t.Errorf("expected one unknown_class diagnostic, got %v", diag.kinds)
	}
}

func TestRegistryRestoresStateBeforeFirstCycle(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	first := NewRegistry(testEngine(t), &recordingSink{}, WithStateStore(store))
	_ = first.Register(SourceConfig{Name: "NMS1", Protocol: testProtocol, Enabled: true}, &staticRows{tables: deviceRows("1")})
	if _, err := first.TriggerSync(ctx, "NMS1"); err != nil {
		t.Fatal(err)
	}

	// a restarted process sees the same rows and has nothing new to report
	sink := &recordingSink{}
	second := NewRegistry(testEngine(t), sink, WithStateStore(store))
	_ = second.Register(SourceConfig{Name: "NMS1", Protocol: testProtocol, Enabled: true}, &staticRows{tables: deviceRows("1")})
	res, err := second.TriggerSync(ctx, "NMS1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Batch.Empty() || sink.count() != 0 {
		t.Errorf("expected no updates after restore, got %+v", res.Batch.Deltas)
	}
}

func TestRegistryRetriesFailedRestore(t *testing.T) {
	seeded := func(t *testing.T) *memStore {
		t.Helper()
		store := newMemStore()
		first := NewRegistry(testEngine(t), &recordingSink{}, WithStateStore(store))
		_ = first.Register(SourceConfig{Name: "NMS1", Protocol: testProtocol, Enabled: true}, &staticRows{tables: deviceRows("1")})
		if _, err := first.TriggerSync(context.Background(), "NMS1"); err != nil {
			t.Fatal(err)
		}
		store.loads = 0
		return store
	}

	t.Run("cancelled first cycle", func(t *testing.T) {
		store := seeded(t)
		sink := &recordingSink{}
		r := NewRegistry(testEngine(t), sink, WithStateStore(store))
		_ = r.Register(SourceConfig{Name: "NMS1", Protocol: testProtocol, Enabled: true}, &staticRows{tables: deviceRows("1")})

		cancelled, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := r.TriggerSync(cancelled, "NMS1"); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}

		res, err := r.TriggerSync(context.Background(), "NMS1")
		if err != nil {
			t.Fatal(err)
		}
		if !res.Batch.Empty() || sink.count() != 0 {
			t.Errorf("expected restored state to suppress updates, got %+v", res.Batch.Deltas)
		}
		if store.loads != 2 {
			t.Errorf("expected the load to be retried, got %d loads", store.loads)
		}
	})

	t.Run("store error", func(t *testing.T) {
		store := seeded(t)
		store.failLoads = 1
		r := NewRegistry(testEngine(t), &recordingSink{}, WithStateStore(store))
		_ = r.Register(SourceConfig{Name: "NMS1", Protocol: testProtocol, Enabled: true}, &staticRows{tables: deviceRows("1")})

		for i := 0; i < 3; i++ {
			if _, err := r.TriggerSync(context.Background(), "NMS1"); err != nil {
				t.Fatal(err)
			}
		}
		if store.loads != 2 {
			t.Errorf("expected one failed and one successful load, got %d", store.loads)
		}
	})
}

func TestRegistryUnreachableSourceYieldsEmptyRows(t *testing.T) {
	rows := &staticRows{tables: deviceRows("1")}
	r := NewRegistry(testEngine(t), &recordingSink{}, WithProbe(fixedProbe(false)))
	_ = r.Register(SourceConfig{Name: "NMS1", Protocol: testProtocol, Host: "10.0.0.9", Enabled: true}, rows)

	res, err := r.TriggerSync(context.Background(), "NMS1")
	if err != nil {
		t.Fatal(err)
	}
	if rows.calls != 0 {
		t.Errorf("expected rows not to be read, got %d calls", rows.calls)
	}
	if res.Instances != 0 {
		t.Errorf("expected no instances, got %d", res.Instances)
	}
	infos := r.Sources()
	if len(infos) != 1 || !infos[0].Unreachable {
		t.Errorf("expected source marked unreachable, got %+v", infos)
	}
}

func TestRegistryPushFailure(t *testing.T) {
	m := metrics.New()
	sink := &recordingSink{err: errors.New("catalog down")}
	r := NewRegistry(testEngine(t), sink, WithMetrics(m))
	_ = r.Register(SourceConfig{Name: "NMS1", Protocol: testProtocol, Enabled: true}, &staticRows{tables: deviceRows("1")})

	res, err := r.TriggerSync(context.Background(), "NMS1")
	if err == nil {
		t.Fatal("expected push error")
	}
	if res == nil || len(res.Batch.Deltas) != 1 {
		t.Errorf("expected the cycle result alongside the error, got %+v", res)
	}
}

func TestRegistryTriggerSyncAll(t *testing.T) {
	sink := &recordingSink{}
	r := NewRegistry(testEngine(t), sink, WithMaxConcurrent(2))
	for _, name := range []string{"NMS1", "NMS2", "NMS3"} {
		_ = r.Register(SourceConfig{Name: name, Protocol: testProtocol, Enabled: true}, &staticRows{tables: deviceRows("1")})
	}
	_ = r.Register(SourceConfig{Name: "bad", Protocol: "Unknown", Enabled: true}, &staticRows{})
	_ = r.Register(SourceConfig{Name: "off", Protocol: testProtocol}, &staticRows{tables: deviceRows("1")})

	err := r.TriggerSyncAll(context.Background())
	if !errors.Is(err, catalog.ErrUnknownConnector) {
		t.Errorf("expected joined unknown connector error, got %v", err)
	}
	if sink.count() != 3 {
		t.Errorf("expected 3 pushes, got %d", sink.count())
	}

	ids := map[string]bool{}
	for _, b := range sink.batches {
		ids[b.Deltas[0].UniqueID] = true
	}
	for _, want := range []string{"NMS1.DeviceA", "NMS2.DeviceA", "NMS3.DeviceA"} {
		if !ids[want] {
			t.Errorf("missing delta for %s", want)
		}
	}
}

func TestRegistrySources(t *testing.T) {
	r := NewRegistry(testEngine(t), &recordingSink{})
	_ = r.Register(SourceConfig{Name: "b", Protocol: testProtocol, Enabled: true}, &staticRows{tables: deviceRows("1")})
	_ = r.Register(SourceConfig{Name: "a", Protocol: testProtocol, Enabled: true}, &staticRows{})

	if _, err := r.TriggerSync(context.Background(), "b"); err != nil {
		t.Fatal(err)
	}
	infos := r.Sources()
	if len(infos) != 2 || infos[0].Name != "a" || infos[1].Name != "b" {
		t.Fatalf("expected sorted sources, got %+v", infos)
	}
	if infos[0].LastRun != nil {
		t.Error("expected no last run for a")
	}
	if infos[1].LastRun == nil || infos[1].LastDeltas != 1 || infos[1].Instances != 1 {
		t.Errorf("unexpected info for b: %+v", infos[1])
	}
}

func TestRegistryPollingLoop(t *testing.T) {
	sink := &recordingSink{}
	r := NewRegistry(testEngine(t), sink)
	rows := &staticRows{tables: deviceRows("1")}
	_ = r.Register(SourceConfig{
		Name:         "NMS1",
		Protocol:     testProtocol,
		Enabled:      true,
		PollInterval: 10 * time.Millisecond,
	}, rows)

	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := r.Stop(); err != nil {
		t.Fatal(err)
	}
	if sink.count() != 1 {
		t.Errorf("expected exactly one push from the initial sync, got %d", sink.count())
	}
}
