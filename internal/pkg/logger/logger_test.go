package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ricesearch/support-context/internal/pkg/reqctx"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		format string
	}{
		{"debug text", "debug", "text"},
		{"info json", "info", "json"},
		{"warn text", "warn", "text"},
		{"error json", "error", "json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level, tt.format)
			if logger == nil {
				t.Fatal("New() returned nil")
			}
			if logger.Logger == nil {
				t.Fatal("New() returned logger with nil slog.Logger")
			}
		})
	}
}

func TestLogger_WithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", "text")

	logger.WithContext(context.Background()).Info("no id")
	if strings.Contains(buf.String(), "request_id") {
		t.Errorf("unexpected request_id in output: %s", buf.String())
	}

	buf.Reset()
	ctx := reqctx.WithRequestID(context.Background(), "req-123")
	logger.WithContext(ctx).Info("with id")
	if !strings.Contains(buf.String(), "request_id=req-123") {
		t.Errorf("expected request_id in output, got: %s", buf.String())
	}
}

func TestLogger_WithSession(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", "text")

	if l := logger.WithSession(""); l != logger {
		t.Error("WithSession(\"\") should return the same logger")
	}

	logger.WithSession("sess-1").Info("hello")
	if !strings.Contains(buf.String(), "session_id=sess-1") {
		t.Errorf("expected session_id in output, got: %s", buf.String())
	}
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", "json")

	if l := logger.WithError(nil); l != logger {
		t.Error("WithError(nil) should return the same logger")
	}

	logger.WithError(errors.New("boom")).Warn("failed")
	if !strings.Contains(buf.String(), `"error":"boom"`) {
		t.Errorf("expected error field, got: %s", buf.String())
	}
}

func TestLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "info", "text").WithComponent("ranker").Info("x")
	if !strings.Contains(buf.String(), "component=ranker") {
		t.Errorf("expected component field, got: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	if l == nil || l.Logger == nil {
		t.Fatal("Discard() returned nil logger")
	}
	l.Error("dropped")
}
