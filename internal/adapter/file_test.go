package adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cmdbsync/internal/domain"
)

func TestFileSourceRows(t *testing.T) {
	dir := t.TempDir()
	dump := `tables:
  100:
    - ["42", "DeviceA", 1]
    - ["43", "DeviceB", "NA"]
  200:
    - [7]
`
	if err := os.WriteFile(filepath.Join(dir, "NMS1.yaml"), []byte(dump), 0644); err != nil {
		t.Fatal(err)
	}

	src := NewFileSource(dir, nil)
	rows := src.Rows(context.Background(), "NMS1", 100)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Cell(0) != "42" || rows[0].Cell(1) != "DeviceA" || rows[0].Cell(2) != "1" {
		t.Errorf("unexpected first row: %v", rows[0])
	}
	if rows[1].Cell(2) != "NA" {
		t.Errorf("expected NA, got %q", rows[1].Cell(2))
	}

	if got := src.Rows(context.Background(), "NMS1", 999); len(got) != 0 {
		t.Errorf("expected no rows for a missing table, got %v", got)
	}
}

func TestFileSourceMissingFile(t *testing.T) {
	src := NewFileSource(t.TempDir(), nil)
	if rows := src.Rows(context.Background(), "absent", 1); rows != nil {
		t.Errorf("expected nil rows, got %v", rows)
	}
}

func TestFileSourceCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := NewFileSource(t.TempDir(), nil)
	if rows := src.Rows(ctx, "any", 1); rows != nil {
		t.Errorf("expected nil rows, got %v", rows)
	}
}

func TestWriteTableDumpRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dumps", "HUB1.yaml")
	tables := domain.TableRows{
		5: {{"1", "Remote-1"}, {"2", "Remote-2"}},
	}
	if err := WriteTableDump(path, tables); err != nil {
		t.Fatalf("WriteTableDump: %v", err)
	}

	src := NewFileSource(filepath.Dir(path), nil)
	rows := src.Rows(context.Background(), "HUB1", 5)
	if len(rows) != 2 || rows[1].Cell(1) != "Remote-2" {
		t.Errorf("unexpected rows: %v", rows)
	}
}
