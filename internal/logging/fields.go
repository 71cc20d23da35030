package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldSetID identifies the beatmap set a log line refers to.
	FieldSetID = "set_id"
	// FieldBeatmapID identifies a single beatmap difficulty.
	FieldBeatmapID = "beatmap_id"
	// FieldEventType classifies warnings and errors for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldRunID correlates all log lines of one update run.
	FieldRunID = "run_id"
)

type contextKey int

const (
	setIDKey contextKey = iota
	runIDKey
)

// WithSetID stores a beatmap set identifier on the context for log enrichment.
func WithSetID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, setIDKey, id)
}

// WithRunID stores an update run identifier on the context for log enrichment.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if id, ok := ctx.Value(setIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldSetID, id))
	}
	if id, ok := ctx.Value(runIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
