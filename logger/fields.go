package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across lookbridge.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Components
	FieldComponent = "component"
	FieldExtension = "extension"
	FieldCommand   = "command"

	// Connection
	FieldConnID     = "conn_id"
	FieldEndpoint   = "endpoint"
	FieldState      = "state"
	FieldPhase      = "phase"
	FieldDisconnect = "disconnect"
	FieldFailures   = "failures"
	FieldBudget     = "budget"

	// Protocol
	FieldCodec  = "codec"
	FieldOpcode = "opcode"
	FieldKind   = "kind"
	FieldReply  = "reply"
	FieldSize   = "size"

	// Handoff
	FieldTool    = "tool"
	FieldBinding = "binding"

	// Escalation
	FieldURL     = "url"
	FieldProcess = "process"

	// Timing
	FieldInterval   = "interval"
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"
	FieldHint  = "hint"
)

// Context keys for propagating logging context
type contextKey string

const (
	componentKey contextKey = "logger_component"
	connIDKey    contextKey = "logger_conn_id"
)

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// WithConnID adds a connection id to the context for logging
func WithConnID(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, connIDKey, connID)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}
	if connID, ok := ctx.Value(connIDKey).(string); ok && connID != "" {
		fields = append(fields, FieldConnID, connID)
	}

	return fields
}

// LoggerFromContext returns a logger with fields extracted from context.
func LoggerFromContext(ctx context.Context) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return Logger
	}
	return Logger.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	sup := supervisor.New(cfg, link, esc, sched, logger.ComponentLogger("deeplook.supervisor"))
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context.
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}
