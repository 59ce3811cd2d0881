package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across lpharvest.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldRunID    = "run_id"
	FieldSearchID = "search_id"

	// Components
	FieldComponent = "component"

	// Search
	FieldRepo     = "repo"
	FieldQuery    = "query"
	FieldCursor   = "cursor"
	FieldPage     = "page"
	FieldAttempt  = "attempt"
	FieldPolicy   = "split_policy"
	FieldRepoCap  = "repo_cap"
	FieldFanout   = "fanout"
	FieldFinal    = "final"
	FieldVersion  = "version"
	FieldTimeFrom = "time_from"
	FieldTimeTo   = "time_to"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldDelayMS    = "delay_ms"

	// Errors
	FieldError     = "error"
	FieldErrorType = "error_type"

	// Counts and sizes
	FieldCount      = "count"
	FieldLimit      = "limit"
	FieldTotalCount = "total_count"

	// Status
	FieldStatus = "status"

	// Output
	FieldPath   = "path"
	FieldFormat = "format"

	// Network
	FieldURL        = "url"
	FieldStatusCode = "status_code"
)

// Context keys for propagating logging context
type contextKey string

const (
	runIDKey     contextKey = "logger_run_id"
	componentKey contextKey = "logger_component"
)

// WithRunID adds a harvest run ID to the context for logging
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if runID, ok := ctx.Value(runIDKey).(string); ok && runID != "" {
		fields = append(fields, FieldRunID, runID)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// FromContext returns base (or the global Logger when base is nil) with the
// fields carried by ctx attached.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = Logger
	}
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	client := logpoint.NewClient(creds, opts, logger.ComponentLogger("logpoint"))
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l == nil {
		return zap.NewNop().Sugar()
	}
	return l
}
