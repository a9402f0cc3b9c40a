// Package logging builds the service logger and the diagnostic sink used for
// soft data failures.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Diagnostic kinds
const (
	KindUnresolvedIdentity = "unresolved_identity"
	KindMissingResolver    = "missing_resolver"
	KindDuplicateIdentity  = "duplicate_identity"
	KindMissingPrimaryKey  = "missing_primary_key"
	KindUnknownClass       = "unknown_class"
)

// New builds a zap logger. development switches to the console encoder.
func New(level string, development bool) (*zap.Logger, error) {
	var lvl zapcore.Level
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// Diagnostics receives soft failures: rows and instances that were skipped
// without failing the cycle. Implementations must not block or panic.
type Diagnostics interface {
	Diagnostic(kind, msg string, fields ...zap.Field)
}

// DiagnosticObserver is notified of every diagnostic kind, e.g. for metrics
type DiagnosticObserver func(kind string)

// ZapDiagnostics logs diagnostics at warn level
type ZapDiagnostics struct {
	logger  *zap.Logger
	observe DiagnosticObserver
}

// NewZapDiagnostics wraps logger. observe may be nil.
func NewZapDiagnostics(logger *zap.Logger, observe DiagnosticObserver) *ZapDiagnostics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapDiagnostics{logger: logger, observe: observe}
}

func (d *ZapDiagnostics) Diagnostic(kind, msg string, fields ...zap.Field) {
	d.logger.Warn(msg, append(fields, zap.String("diagnostic", kind))...)
	if d.observe != nil {
		d.observe(kind)
	}
}

// NopDiagnostics discards diagnostics
type NopDiagnostics struct{}

func (NopDiagnostics) Diagnostic(string, string, ...zap.Field) {}
