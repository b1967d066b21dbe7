// Package logger provides structured logging using Go 1.21's log/slog.
// It sets up a JSON handler with service-level context and provides
// scan ID propagation through context.Context.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

type ctxKey string

const scanIDKey ctxKey = "scan_id"

// Init creates and returns a structured logger for the given service.
// The logger outputs JSON to stdout with the service name embedded.
func Init(service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	// Set as default so log/slog.Info() etc. also use structured output
	slog.SetDefault(logger)

	return logger
}

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
// Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithScanID stores a scan ID in the context for downstream propagation.
func WithScanID(ctx context.Context, scanID string) context.Context {
	return context.WithValue(ctx, scanIDKey, scanID)
}

// ScanID extracts the scan ID from context. Returns "" if not set.
func ScanID(ctx context.Context) string {
	if v, ok := ctx.Value(scanIDKey).(string); ok {
		return v
	}
	return ""
}

// NewScanID returns a random scan identifier.
func NewScanID() string {
	return uuid.NewString()
}

// LogWithScan returns slog attributes including the scan ID from context.
// Usage: slog.Info("msg", logger.LogWithScan(ctx)...)
func LogWithScan(ctx context.Context) []any {
	id := ScanID(ctx)
	if id == "" {
		return nil
	}
	return []any{slog.String("scan_id", id)}
}
