package adapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"cmdbsync/internal/domain"
)

// TableDump is the on-disk form of the tables exported by one element:
//
//	tables:
//	  1:
//	    - ["42", "DeviceA", 1]
type TableDump struct {
	Tables map[int][][]any `yaml:"tables"`
}

// FileSource reads exported tables from <dir>/<source>.yaml. The file is
// re-read on every call so a fresh export is picked up by the next cycle.
type FileSource struct {
	dir    string
	logger *zap.Logger
}

// NewFileSource creates a row source over a directory of table dumps
func NewFileSource(dir string, logger *zap.Logger) *FileSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSource{dir: dir, logger: logger}
}

// Path returns the dump file of a source
func (f *FileSource) Path(source string) string {
	return filepath.Join(f.dir, source+".yaml")
}

// Rows implements RowSource
func (f *FileSource) Rows(ctx context.Context, source string, tableID int) []domain.RawRow {
	if ctx.Err() != nil {
		return nil
	}
	dump, err := ReadTableDump(f.Path(source))
	if err != nil {
		f.logger.Warn("table dump unavailable",
			zap.String("source", source),
			zap.Int("table", tableID),
			zap.Error(err))
		return nil
	}
	raw := dump.Tables[tableID]
	rows := make([]domain.RawRow, len(raw))
	for i, r := range raw {
		rows[i] = domain.RawRow(r)
	}
	return rows
}

// ReadTableDump parses a table dump file
func ReadTableDump(path string) (*TableDump, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read table dump: %w", err)
	}
	var dump TableDump
	if err := yaml.Unmarshal(data, &dump); err != nil {
		return nil, fmt.Errorf("parse table dump %s: %w", path, err)
	}
	return &dump, nil
}

// WriteTableDump writes a table dump file, creating its directory
func WriteTableDump(path string, tables domain.TableRows) error {
	dump := TableDump{Tables: make(map[int][][]any, len(tables))}
	for id, rows := range tables {
		out := make([][]any, len(rows))
		for i, r := range rows {
			out[i] = []any(r)
		}
		dump.Tables[id] = out
	}
	data, err := yaml.Marshal(&dump)
	if err != nil {
		return fmt.Errorf("marshal table dump: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create dump dir: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
