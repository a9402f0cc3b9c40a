package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"cmdbsync/internal/adapter"
	"cmdbsync/internal/catalog"
	"cmdbsync/internal/domain"
	"cmdbsync/internal/engine"
	"cmdbsync/internal/repository"
	"cmdbsync/internal/tracker"
)

type fakeRegistry struct {
	mu       sync.Mutex
	sources  map[string]adapter.SourceConfig
	result   *engine.CycleResult
	err      error
	syncAll  chan struct{}
	triggers []string
}

func (f *fakeRegistry) Sources() []adapter.SourceInfo {
	var out []adapter.SourceInfo
	for _, cfg := range f.sources {
		out = append(out, adapter.SourceInfo{SourceConfig: cfg})
	}
	return out
}

func (f *fakeRegistry) Source(name string) (adapter.SourceConfig, bool) {
	cfg, ok := f.sources[name]
	return cfg, ok
}

func (f *fakeRegistry) TriggerSync(_ context.Context, name string) (*engine.CycleResult, error) {
	f.mu.Lock()
	f.triggers = append(f.triggers, name)
	f.mu.Unlock()
	cfg, ok := f.sources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", adapter.ErrSourceNotFound, name)
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("%w: %s", adapter.ErrSourceDisabled, name)
	}
	return f.result, f.err
}

func (f *fakeRegistry) TriggerSyncAll(context.Context) error {
	if f.syncAll != nil {
		close(f.syncAll)
	}
	return nil
}

type fakeState struct {
	records map[string][]tracker.Record
	last    map[string]*engine.CycleResult
	cat     *catalog.Catalog
}

func (f *fakeState) Snapshot(source string) []tracker.Record { return f.records[source] }

func (f *fakeState) LastResult(source string) (*engine.CycleResult, bool) {
	r, ok := f.last[source]
	return r, ok
}

func (f *fakeState) Catalog() *catalog.Catalog { return f.cat }

type fakeJournal struct {
	mu      sync.Mutex
	entries []repository.JournalEntry
	err     error
	limit   int
}

func (f *fakeJournal) Journal(_ context.Context, source string, limit int) ([]repository.JournalEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	var out []repository.JournalEntry
	for _, e := range f.entries {
		if e.Source == source {
			out = append(out, e)
		}
	}
	return out, nil
}

func sampleResult() *engine.CycleResult {
	return &engine.CycleResult{
		RunID:     "run-1",
		Source:    "NMS1",
		Instances: 3,
		Tracked:   2,
		Batch: domain.Batch{
			Source:      "NMS1",
			RunID:       "run-1",
			Fingerprint: "abc",
			Deltas:      []domain.Delta{{UniqueID: "NMS1.A", Class: "Device"}},
			Edges:       []domain.RelationshipEdge{{ParentID: "NMS1.P", ChildID: "NMS1.A", Label: catalog.LabelManagedBy}},
		},
	}
}

func setupTestServer(t *testing.T, opts ...Option) (*httptest.Server, *fakeRegistry, *fakeState) {
	t.Helper()
	reg := &fakeRegistry{
		sources: map[string]adapter.SourceConfig{
			"NMS1": {Name: "NMS1", Protocol: "iDirect Platform", Enabled: true},
			"NMS2": {Name: "NMS2", Protocol: "iDirect Platform", Enabled: false},
		},
		result: sampleResult(),
	}
	state := &fakeState{
		records: map[string][]tracker.Record{
			"NMS1": {{UniqueID: "NMS1.A", Class: "Device", Attribute: "status",
				AttributeState: domain.AttributeState{Current: "up", Monitored: true}}},
		},
		last: map[string]*engine.CycleResult{"NMS1": sampleResult()},
		cat:  catalog.Builtin(),
	}

	mux := http.NewServeMux()
	New(reg, state, opts...).Register(mux)
	srv := httptest.NewServer(Middleware(zap.NewNop(), mux))
	t.Cleanup(srv.Close)
	return srv, reg, state
}

func doRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestStatusCodes(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/sources", http.StatusOK},
		{http.MethodGet, "/api/sources/NMS1", http.StatusOK},
		{http.MethodGet, "/api/sources/missing", http.StatusNotFound},
		{http.MethodGet, "/api/sources/NMS1/state", http.StatusOK},
		{http.MethodGet, "/api/sources/missing/state", http.StatusNotFound},
		{http.MethodGet, "/api/sources/NMS1/last", http.StatusOK},
		{http.MethodGet, "/api/sources/NMS2/last", http.StatusNotFound},
		{http.MethodGet, "/api/sources/NMS1/journal", http.StatusServiceUnavailable},
		{http.MethodPost, "/api/sources/NMS1/sync", http.StatusOK},
		{http.MethodPost, "/api/sources/NMS2/sync", http.StatusConflict},
		{http.MethodPost, "/api/sources/missing/sync", http.StatusNotFound},
		{http.MethodGet, "/api/sources/NMS1/sync", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/catalog", http.StatusOK},
		{http.MethodGet, "/api/catalog/protocols", http.StatusOK},
		{http.MethodGet, "/api/catalog/protocols/iDirect Platform", http.StatusOK},
		{http.MethodGet, "/api/catalog/protocols/Unknown", http.StatusNotFound},
		{http.MethodGet, "/metrics", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp := doRequest(t, tt.method, srv.URL+strings.ReplaceAll(tt.path, " ", "%20"))
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestGetState(t *testing.T) {
	srv, _, _ := setupTestServer(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/sources/NMS1/state")
	var records []tracker.Record
	decode(t, resp, &records)
	if len(records) != 1 || records[0].Attribute != "status" || records[0].Current != "up" {
		t.Errorf("unexpected records: %+v", records)
	}

	// A source with no state yields an empty list, not null
	resp = doRequest(t, http.MethodGet, srv.URL+"/api/sources/NMS2/state")
	var empty []tracker.Record
	decode(t, resp, &empty)
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty list, got %v", empty)
	}
}

func TestSyncSource(t *testing.T) {
	srv, reg, _ := setupTestServer(t)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/sources/NMS1/sync")
	var got SyncResponse
	decode(t, resp, &got)

	want := SyncResponse{RunID: "run-1", Fingerprint: "abc", Deltas: 1, Edges: 1, Instances: 3, Tracked: 2}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if len(reg.triggers) != 1 || reg.triggers[0] != "NMS1" {
		t.Errorf("triggers = %v", reg.triggers)
	}
}

func TestSyncSourcePushFailure(t *testing.T) {
	srv, reg, _ := setupTestServer(t)
	reg.err = errors.New("push NMS1: catalog returned 503")

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/sources/NMS1/sync")
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadGateway)
	}
	var got SyncResponse
	decode(t, resp, &got)
	if got.RunID != "run-1" || !strings.Contains(got.PushError, "503") {
		t.Errorf("unexpected response: %+v", got)
	}
}

func TestSyncSourceCycleError(t *testing.T) {
	srv, reg, _ := setupTestServer(t)
	reg.result = nil
	reg.err = errors.New("sync NMS1: unknown connector")

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/sources/NMS1/sync")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
	var got ErrorResponse
	decode(t, resp, &got)
	if got.Error != "Sync failed" {
		t.Errorf("unexpected error body: %+v", got)
	}
}

func TestSyncAll(t *testing.T) {
	srv, reg, _ := setupTestServer(t)
	reg.syncAll = make(chan struct{})

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/sync")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
	select {
	case <-reg.syncAll:
	case <-time.After(2 * time.Second):
		t.Fatal("TriggerSyncAll was not called")
	}
}

func TestGetJournal(t *testing.T) {
	journal := &fakeJournal{entries: []repository.JournalEntry{
		{ID: 2, Source: "NMS1", RunID: "run-2", Deltas: 1},
		{ID: 1, Source: "NMS1", RunID: "run-1", Deltas: 3},
		{ID: 3, Source: "NMS2", RunID: "run-9"},
	}}
	srv, _, _ := setupTestServer(t, WithJournal(journal))

	t.Run("lists source entries", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, srv.URL+"/api/sources/NMS1/journal?limit=5")
		var entries []repository.JournalEntry
		decode(t, resp, &entries)
		if len(entries) != 2 || entries[0].RunID != "run-2" {
			t.Errorf("unexpected entries: %+v", entries)
		}
		journal.mu.Lock()
		defer journal.mu.Unlock()
		if journal.limit != 5 {
			t.Errorf("limit = %d, want 5", journal.limit)
		}
	})

	t.Run("invalid limit", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, srv.URL+"/api/sources/NMS1/journal?limit=abc")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
	})

	t.Run("store error", func(t *testing.T) {
		journal.mu.Lock()
		journal.err = errors.New("disk gone")
		journal.mu.Unlock()
		resp := doRequest(t, http.MethodGet, srv.URL+"/api/sources/NMS1/journal")
		if resp.StatusCode != http.StatusInternalServerError {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
		}
	})
}

func TestListProtocols(t *testing.T) {
	srv, _, state := setupTestServer(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/catalog/protocols")
	var protocols []string
	decode(t, resp, &protocols)
	if len(protocols) != len(state.cat.Protocols()) {
		t.Errorf("got %d protocols, want %d", len(protocols), len(state.cat.Protocols()))
	}
}

func TestOptionalMounts(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics\n"))
	})
	events := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	srv, _, _ := setupTestServer(t, WithMetricsHandler(metrics), WithEvents(events))

	if resp := doRequest(t, http.MethodGet, srv.URL+"/metrics"); resp.StatusCode != http.StatusOK {
		t.Errorf("/metrics status = %d", resp.StatusCode)
	}
	if resp := doRequest(t, http.MethodGet, srv.URL+"/events"); resp.StatusCode != http.StatusTeapot {
		t.Errorf("/events status = %d", resp.StatusCode)
	}
}

func TestMiddlewareRecoversPanic(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	h := Middleware(zap.New(core), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sources", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if logs.FilterMessage("handler panic").Len() != 1 {
		t.Errorf("expected one panic log, got %v", logs.All())
	}
}

func TestMiddlewareLogsStatus(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	h := Middleware(zap.New(core), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/x", nil))

	entries := logs.FilterMessage("request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one request log, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["status"]; got != int64(http.StatusCreated) {
		t.Errorf("logged status = %v", got)
	}
}
