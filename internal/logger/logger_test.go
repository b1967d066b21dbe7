package logger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
)

func TestInit(t *testing.T) {
	logger := Init("test-service", slog.LevelInfo)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestScanID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	// No scan ID set
	if id := ScanID(ctx); id != "" {
		t.Errorf("expected empty scan id, got %q", id)
	}

	ctx = WithScanID(ctx, "scan-123")
	if id := ScanID(ctx); id != "scan-123" {
		t.Errorf("expected 'scan-123', got %q", id)
	}
}

func TestNewScanID(t *testing.T) {
	a, b := NewScanID(), NewScanID()
	if a == b {
		t.Fatalf("expected distinct ids, got %s twice", a)
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("scan id %q is not a uuid: %v", a, err)
	}
}

func TestLogWithScan(t *testing.T) {
	ctx := context.Background()

	if attrs := LogWithScan(ctx); attrs != nil {
		t.Errorf("expected nil attrs when no scan id, got %v", attrs)
	}

	ctx = WithScanID(ctx, "abc-123")
	if attrs := LogWithScan(ctx); len(attrs) != 1 {
		t.Fatalf("expected one attr with scan id set, got %v", attrs)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
