package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across the broker.
const (
	FieldRequestID  = "request_id"
	FieldCallerID   = "caller_id"
	FieldToolID     = "tool_id"
	FieldGroupID    = "group_id"
	FieldControl    = "control_path"
	FieldComponent  = "component"
	FieldMethod     = "method"
	FieldDurationMS = "duration_ms"
	FieldErrorCode  = "error_code"
	FieldErrorKind  = "error_kind"
	FieldState      = "state"
)

type contextKey string

const (
	requestIDKey contextKey = "logger_request_id"
	callerIDKey  contextKey = "logger_caller_id"
)

// WithRequestID adds a request id to the context for logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithCallerID adds a caller id to the context for logging.
func WithCallerID(ctx context.Context, callerID string) context.Context {
	return context.WithValue(ctx, callerIDKey, callerID)
}

// FieldsFromContext extracts logging fields from context, suitable for
// Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}
	if requestID, ok := ctx.Value(requestIDKey).(string); ok && requestID != "" {
		fields = append(fields, FieldRequestID, requestID)
	}
	if callerID, ok := ctx.Value(callerIDKey).(string); ok && callerID != "" {
		fields = append(fields, FieldCallerID, callerID)
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

// ComponentLogger returns a named logger for a specific component. Preferred
// over the package-level functions for dependency injection.
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
