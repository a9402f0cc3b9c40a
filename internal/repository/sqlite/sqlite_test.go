package sqlite

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"cmdbsync/internal/domain"
	"cmdbsync/internal/tracker"
)

// ============================================================================
// Test Helpers
// ============================================================================

// newTestRepo creates an in-memory SQLite repository for testing
func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

// assertNoError fails the test if err is not nil
func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// assertEqual fails the test if expected != actual
func assertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}

func sampleRecords() []tracker.Record {
	return []tracker.Record{
		{
			UniqueID:  "NMS1.DeviceA",
			Class:     "Device",
			Attribute: "status",
			AttributeState: domain.AttributeState{
				Previous:  "Active",
				Monitored: true,
			},
		},
		{
			UniqueID:  "NMS1.DeviceA",
			Class:     "Device",
			Attribute: "u_label",
			AttributeState: domain.AttributeState{
				Previous: "DeviceA",
			},
		},
		{
			UniqueID:  "NMS1.DeviceB",
			Class:     "Device",
			Attribute: "serial_number",
			AttributeState: domain.AttributeState{
				Current:    "SN-1",
				Previous:   "SN-0",
				Monitored:  true,
				ClassField: true,
			},
		},
	}
}

// ============================================================================
// Attribute State
// ============================================================================

func TestSaveAndLoadState(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assertNoError(t, repo.SaveState(ctx, "NMS1", sampleRecords()))

	got, err := repo.LoadState(ctx, "NMS1")
	assertNoError(t, err)
	assertEqual(t, sampleRecords(), got)
}

func TestLoadStateUnknownSource(t *testing.T) {
	repo := newTestRepo(t)

	got, err := repo.LoadState(context.Background(), "nobody")
	assertNoError(t, err)
	if len(got) != 0 {
		t.Errorf("expected no records, got %v", got)
	}
}

func TestSaveStateReplacesPreviousSnapshot(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assertNoError(t, repo.SaveState(ctx, "NMS1", sampleRecords()))
	assertNoError(t, repo.SaveState(ctx, "NMS1", sampleRecords()[:1]))

	got, err := repo.LoadState(ctx, "NMS1")
	assertNoError(t, err)
	assertEqual(t, 1, len(got))
	assertEqual(t, "status", got[0].Attribute)
}

func TestSaveStateIsolatesSources(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assertNoError(t, repo.SaveState(ctx, "NMS1", sampleRecords()))
	assertNoError(t, repo.SaveState(ctx, "HUB2", sampleRecords()[2:]))
	assertNoError(t, repo.SaveState(ctx, "NMS1", nil))

	nms, err := repo.LoadState(ctx, "NMS1")
	assertNoError(t, err)
	assertEqual(t, 0, len(nms))

	hub, err := repo.LoadState(ctx, "HUB2")
	assertNoError(t, err)
	assertEqual(t, 1, len(hub))

	sources, err := repo.StateSources(ctx)
	assertNoError(t, err)
	assertEqual(t, []string{"HUB2"}, sources)
}

func TestDeleteState(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assertNoError(t, repo.SaveState(ctx, "NMS1", sampleRecords()))
	assertNoError(t, repo.DeleteState(ctx, "NMS1"))

	got, err := repo.LoadState(ctx, "NMS1")
	assertNoError(t, err)
	assertEqual(t, 0, len(got))
}

func TestStateRestoresTracker(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tr := tracker.New()
	tracked := tracker.TrackedSet{"Device": {
		{Name: "status", Monitored: true},
	}}
	obs := []tracker.Observation{{
		UniqueID:   "NMS1.DeviceA",
		Class:      "Device",
		Properties: domain.Properties{{Name: "status", Value: "Active"}},
	}}
	if deltas := tr.Apply(obs, tracked); len(deltas) != 1 {
		t.Fatalf("expected initial delta, got %v", deltas)
	}
	assertNoError(t, repo.SaveState(ctx, "NMS1", tr.Snapshot()))

	records, err := repo.LoadState(ctx, "NMS1")
	assertNoError(t, err)
	restored := tracker.New()
	restored.Restore(records)

	if deltas := restored.Apply(obs, tracked); len(deltas) != 0 {
		t.Errorf("expected no delta after restore, got %v", deltas)
	}
}

// ============================================================================
// Delta Journal
// ============================================================================

func sampleBatch(source, runID string) domain.Batch {
	return domain.Batch{
		Source:      source,
		RunID:       runID,
		Fingerprint: "fp-" + runID,
		Deltas: []domain.Delta{{
			UniqueID:    source + ".DeviceA",
			Class:       "Device",
			TargetTable: "u_cmdb_ci_device",
			Changes:     []domain.AttributeUpdate{{Name: "status", Value: "Active", Monitored: true}},
		}},
		Edges: []domain.RelationshipEdge{{ParentID: source + ".P", ChildID: source + ".DeviceA", Label: "Depends on::Used by"}},
	}
}

func TestAppendAndReadJournal(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assertNoError(t, repo.AppendJournal(ctx, sampleBatch("NMS1", "r1")))
	assertNoError(t, repo.AppendJournal(ctx, sampleBatch("NMS1", "r2")))
	assertNoError(t, repo.AppendJournal(ctx, sampleBatch("HUB2", "r3")))

	entries, err := repo.Journal(ctx, "NMS1", 10)
	assertNoError(t, err)
	assertEqual(t, 2, len(entries))
	assertEqual(t, "r2", entries[0].RunID)
	assertEqual(t, "fp-r2", entries[0].Fingerprint)
	assertEqual(t, 1, entries[0].Deltas)
	assertEqual(t, 1, entries[0].Edges)
	assertEqual(t, sampleBatch("NMS1", "r2"), entries[0].Batch)

	all, err := repo.Journal(ctx, "", 0)
	assertNoError(t, err)
	assertEqual(t, 3, len(all))

	limited, err := repo.Journal(ctx, "", 1)
	assertNoError(t, err)
	assertEqual(t, "r3", limited[0].RunID)
}

func TestPruneJournal(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	repo.now = func() time.Time { return old }
	assertNoError(t, repo.AppendJournal(ctx, sampleBatch("NMS1", "old")))
	repo.now = func() time.Time { return recent }
	assertNoError(t, repo.AppendJournal(ctx, sampleBatch("NMS1", "new")))

	n, err := repo.PruneJournal(ctx, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	assertNoError(t, err)
	assertEqual(t, int64(1), n)

	entries, err := repo.Journal(ctx, "NMS1", 10)
	assertNoError(t, err)
	assertEqual(t, 1, len(entries))
	assertEqual(t, "new", entries[0].RunID)
}

func TestFileDatabasePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	repo, err := New(path)
	assertNoError(t, err)
	assertNoError(t, repo.SaveState(ctx, "NMS1", sampleRecords()))
	assertNoError(t, repo.Close())

	reopened, err := New(path)
	assertNoError(t, err)
	defer reopened.Close()

	got, err := reopened.LoadState(ctx, "NMS1")
	assertNoError(t, err)
	assertEqual(t, sampleRecords(), got)
}
