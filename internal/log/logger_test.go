package log

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Component: ComponentStore, Output: &buf})

	logger.Info("loaded", FieldStore, "accounts")
	logger.WithComponent(ComponentBus).Debug("reaction fired", FieldReaction, "sign-in")

	out := buf.String()
	if !strings.Contains(out, "component=store") || !strings.Contains(out, "store=accounts") {
		t.Fatalf("missing store fields: %s", out)
	}
	if !strings.Contains(out, "component=bus") || !strings.Contains(out, "reaction=sign-in") {
		t.Fatalf("missing bus fields: %s", out)
	}
}

func TestLoggerLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Component: ComponentApp, Output: &buf})
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"", slog.LevelInfo, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLogFields(t *testing.T) {
	fields := NewFields().
		WithStore("transactions").
		WithOperation(OpLoadAll).
		WithError(errors.New("boom")).
		WithError(nil)

	if fields[FieldStore] != "transactions" || fields[FieldOperation] != OpLoadAll || fields[FieldError] != "boom" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if len(fields.ToSlice()) != 6 {
		t.Fatalf("ToSlice() length = %d", len(fields.ToSlice()))
	}
}
