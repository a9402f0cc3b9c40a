package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"cmdbsync/internal/adapter"
	"cmdbsync/internal/catalog"
	"cmdbsync/internal/engine"
	"cmdbsync/internal/repository"
	"cmdbsync/internal/tracker"
)

// SyncRegistry runs and reports source cycles
type SyncRegistry interface {
	Sources() []adapter.SourceInfo
	Source(name string) (adapter.SourceConfig, bool)
	TriggerSync(ctx context.Context, name string) (*engine.CycleResult, error)
	TriggerSyncAll(ctx context.Context) error
}

// StateView exposes the change state held by the engine
type StateView interface {
	Snapshot(source string) []tracker.Record
	LastResult(source string) (*engine.CycleResult, bool)
	Catalog() *catalog.Catalog
}

// JournalReader lists recorded batches
type JournalReader interface {
	Journal(ctx context.Context, source string, limit int) ([]repository.JournalEntry, error)
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SyncResponse is returned after a manual sync of one source
type SyncResponse struct {
	RunID        string `json:"run_id"`
	Fingerprint  string `json:"fingerprint,omitempty"`
	Deltas       int    `json:"deltas"`
	Edges        int    `json:"edges"`
	RemovedEdges int    `json:"removed_edges"`
	Instances    int    `json:"instances"`
	Tracked      int    `json:"tracked"`
	PushError    string `json:"push_error,omitempty"`
}

// Handler serves the sync API
type Handler struct {
	registry SyncRegistry
	state    StateView
	journal  JournalReader
	metrics  http.Handler
	events   http.Handler
	logger   *zap.Logger
	// background bounds syncs started by SyncAll
	background context.Context
}

// Option configures a Handler
type Option func(*Handler)

// WithJournal enables the journal endpoint
func WithJournal(j JournalReader) Option {
	return func(h *Handler) { h.journal = j }
}

// WithMetricsHandler serves Prometheus metrics on /metrics
func WithMetricsHandler(m http.Handler) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithEvents serves the batch event stream on /events
func WithEvents(e http.Handler) Option {
	return func(h *Handler) { h.events = e }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithBackground sets the context of syncs that outlive their request
func WithBackground(ctx context.Context) Option {
	return func(h *Handler) { h.background = ctx }
}

// New creates a new Handler
func New(registry SyncRegistry, state StateView, opts ...Option) *Handler {
	h := &Handler{
		registry:   registry,
		state:      state,
		logger:     zap.NewNop(),
		background: context.Background(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds every route to mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}
	if h.events != nil {
		mux.Handle("GET /events", h.events)
	}

	mux.HandleFunc("GET /api/sources", h.ListSources)
	mux.HandleFunc("GET /api/sources/{name}", h.GetSource)
	mux.HandleFunc("GET /api/sources/{name}/state", h.GetState)
	mux.HandleFunc("GET /api/sources/{name}/last", h.GetLastResult)
	mux.HandleFunc("GET /api/sources/{name}/journal", h.GetJournal)
	mux.HandleFunc("POST /api/sources/{name}/sync", h.SyncSource)
	mux.HandleFunc("POST /api/sync", h.SyncAll)

	mux.HandleFunc("GET /api/catalog", h.GetCatalog)
	mux.HandleFunc("GET /api/catalog/protocols", h.ListProtocols)
	mux.HandleFunc("GET /api/catalog/protocols/{protocol}", h.GetConnector)
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]any{
		"status":  "ok",
		"sources": len(h.registry.Sources()),
	}, http.StatusOK)
}

// ListSources returns every registered source with its last cycle summary
func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.registry.Sources(), http.StatusOK)
}

// GetSource returns one source
func (h *Handler) GetSource(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	for _, info := range h.registry.Sources() {
		if info.Name == name {
			h.writeJSON(w, info, http.StatusOK)
			return
		}
	}
	h.writeError(w, "Source not found", name, http.StatusNotFound)
}

// GetState returns the tracked attribute state of a source
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, ok := h.registry.Source(name); !ok {
		h.writeError(w, "Source not found", name, http.StatusNotFound)
		return
	}
	records := h.state.Snapshot(name)
	if records == nil {
		records = []tracker.Record{}
	}
	h.writeJSON(w, records, http.StatusOK)
}

// GetLastResult returns the most recent cycle of a source
func (h *Handler) GetLastResult(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, ok := h.registry.Source(name); !ok {
		h.writeError(w, "Source not found", name, http.StatusNotFound)
		return
	}
	res, ok := h.state.LastResult(name)
	if !ok {
		h.writeError(w, "No cycle has run", name, http.StatusNotFound)
		return
	}
	h.writeJSON(w, res, http.StatusOK)
}

// GetJournal lists recorded batches of a source, newest first
func (h *Handler) GetJournal(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		h.writeError(w, "Journal not configured", "No database is configured", http.StatusServiceUnavailable)
		return
	}
	name := r.PathValue("name")
	if _, ok := h.registry.Source(name); !ok {
		h.writeError(w, "Source not found", name, http.StatusNotFound)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeError(w, "Invalid limit", v, http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.journal.Journal(r.Context(), name, limit)
	if err != nil {
		h.logger.Error("read journal", zap.String("source", name), zap.Error(err))
		h.writeError(w, "Failed to read journal", err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []repository.JournalEntry{}
	}
	h.writeJSON(w, entries, http.StatusOK)
}

// SyncSource runs one cycle of a source and waits for it
func (h *Handler) SyncSource(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	res, err := h.registry.TriggerSync(r.Context(), name)
	switch {
	case errors.Is(err, adapter.ErrSourceNotFound):
		h.writeError(w, "Source not found", name, http.StatusNotFound)
		return
	case errors.Is(err, adapter.ErrSourceDisabled):
		h.writeError(w, "Source disabled", name, http.StatusConflict)
		return
	case err != nil && res == nil:
		h.logger.Error("manual sync failed", zap.String("source", name), zap.Error(err))
		h.writeError(w, "Sync failed", err.Error(), http.StatusInternalServerError)
		return
	}

	resp := SyncResponse{
		RunID:        res.RunID,
		Fingerprint:  res.Batch.Fingerprint,
		Deltas:       len(res.Batch.Deltas),
		Edges:        len(res.Batch.Edges),
		RemovedEdges: len(res.Batch.RemovedEdges),
		Instances:    res.Instances,
		Tracked:      res.Tracked,
	}
	status := http.StatusOK
	if err != nil {
		// The cycle ran and state advanced, only delivery failed
		resp.PushError = err.Error()
		status = http.StatusBadGateway
	}
	h.writeJSON(w, resp, status)
}

// SyncAll starts a cycle of every enabled source and returns immediately
func (h *Handler) SyncAll(w http.ResponseWriter, r *http.Request) {
	go func() {
		ctx, cancel := context.WithTimeout(h.background, 10*time.Minute)
		defer cancel()
		if err := h.registry.TriggerSyncAll(ctx); err != nil {
			h.logger.Error("sync all failed", zap.Error(err))
		}
	}()
	h.writeJSON(w, map[string]string{"status": "sync_triggered"}, http.StatusAccepted)
}

// GetCatalog returns every integration of the active catalog
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.state.Catalog().Integrations(), http.StatusOK)
}

// ListProtocols returns the protocols the catalog can map
func (h *Handler) ListProtocols(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.state.Catalog().Protocols(), http.StatusOK)
}

// GetConnector returns the class and relationship mapping of a protocol
func (h *Handler) GetConnector(w http.ResponseWriter, r *http.Request) {
	protocol := r.PathValue("protocol")
	conn, err := h.state.Catalog().Connector(protocol)
	if err != nil {
		h.writeError(w, "Protocol not found", err.Error(), http.StatusNotFound)
		return
	}
	h.writeJSON(w, conn, http.StatusOK)
}

func (h *Handler) writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	h.writeJSON(w, ErrorResponse{Error: error, Details: details}, statusCode)
}
