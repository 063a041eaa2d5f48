// Package logger provides structured logging for the lot tracking engine.
// It contains no business logic.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// TenantIDKey is the context key for the tenant being served
	TenantIDKey contextKey = "tenant_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	return NewWithWriter(env, os.Stdout)
}

// NewWithWriter creates a logger writing to w
func NewWithWriter(env string, w io.Writer) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithContext returns a logger with request and tenant ids from ctx
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("request_id", requestID))}
	}

	if tenantID, ok := ctx.Value(TenantIDKey).(int64); ok && tenantID != 0 {
		newLogger = &Logger{Logger: newLogger.With(slog.Int64("tenant_id", tenantID))}
	}

	return newLogger
}

// BatchTransition logs a stage batch status change
func (l *Logger) BatchTransition(stage string, batchID int64, from, to string) {
	l.Info("batch_transition",
		slog.String("stage", stage),
		slog.Int64("batch_id", batchID),
		slog.String("from", from),
		slog.String("to", to),
	)
}

// LedgerMovement logs a heat consumption or return
func (l *Logger) LedgerMovement(movement string, heatID int64, amount, available string) {
	l.Info("ledger_movement",
		slog.String("movement", movement),
		slog.Int64("heat_id", heatID),
		slog.String("amount", amount),
		slog.String("available", available),
	)
}

// ConflictRetry logs an optimistic-lock conflict that will be retried
func (l *Logger) ConflictRetry(operation string, attempt int) {
	l.Warn("conflict_retry",
		slog.String("operation", operation),
		slog.Int("attempt", attempt),
	)
}

// DomainEvent logs an event appended to the event store
func (l *Logger) DomainEvent(eventType, streamID string, tenantID int64, version int) {
	l.Info("domain_event",
		slog.String("event_type", eventType),
		slog.String("stream_id", streamID),
		slog.Int64("tenant_id", tenantID),
		slog.Int("version", version),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}
