package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"invalid", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLevel(%q): expected %v, got %v", tt.input, tt.expected, got)
		}
	}
}

func TestNewFormats(t *testing.T) {
	var buf bytes.Buffer

	New(&Config{Level: "info", Format: "json"}, &buf).Info("json message")
	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Errorf("Expected JSON output, got %s", buf.String())
	}

	buf.Reset()
	New(&Config{Level: "info", Format: "text"}, &buf).Info("text message")
	if !strings.Contains(buf.String(), "msg=\"text message\"") {
		t.Errorf("Expected text output, got %s", buf.String())
	}

	buf.Reset()
	New(&Config{Level: "warn", Format: "text"}, &buf).Info("filtered")
	if buf.Len() != 0 {
		t.Errorf("Expected info to be filtered at warn level, got %s", buf.String())
	}
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	slog.SetDefault(New(&Config{Level: "debug", Format: "text"}, &buf))

	ctx := context.Background()
	ctx = context.WithValue(ctx, RequestIDKey, "req-123")
	ctx = context.WithValue(ctx, UserIDKey, "user-x")
	ctx = WithContractID(ctx, "contract-1")

	Info(ctx, "info message", "key", "value")

	out := buf.String()
	for _, want := range []string{"info message", "request_id=req-123", "user_id=user-x", "contract_id=contract-1", "key=value"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected '%s' in log, got %s", want, out)
		}
	}
}

func TestWithContextEmpty(t *testing.T) {
	var buf bytes.Buffer
	slog.SetDefault(New(&Config{Level: "info", Format: "text"}, &buf))

	WithContext(context.Background()).Info("plain")
	if strings.Contains(buf.String(), "request_id") {
		t.Errorf("Expected no request_id attribute, got %s", buf.String())
	}
}

func TestLogFunctions(t *testing.T) {
	var buf bytes.Buffer
	slog.SetDefault(New(&Config{Level: "debug", Format: "text"}, &buf))

	ctx := context.Background()

	tests := []struct {
		log   func(context.Context, string, ...any)
		msg   string
		level string
	}{
		{Debug, "debug message", "DEBUG"},
		{Info, "info message", "INFO"},
		{Warn, "warn message", "WARN"},
		{Error, "error message", "ERROR"},
	}

	for _, tt := range tests {
		buf.Reset()
		tt.log(ctx, tt.msg)
		if !strings.Contains(buf.String(), tt.msg) || !strings.Contains(buf.String(), tt.level) {
			t.Errorf("Expected '%s' at %s, got %s", tt.msg, tt.level, buf.String())
		}
	}
}
