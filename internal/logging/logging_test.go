package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew_JSONWithContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Format: FormatJSON}, &buf)

	ctx := WithQueryID(WithWorkflowID(context.Background(), "wf-1"), "q-1")
	logger.InfoContext(ctx, "query finished", "tiles", 4)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON log line %q: %v", buf.String(), err)
	}
	for key, want := range map[string]any{
		"msg":         "query finished",
		"workflow_id": "wf-1",
		"query_id":    "q-1",
		"tiles":       float64(4),
	} {
		if entry[key] != want {
			t.Errorf("%s = %v, want %v", key, entry[key], want)
		}
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Format: FormatText}, &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message logged at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn message missing: %q", out)
	}
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "debug", Format: FormatConsole}, &buf)

	logger.With("component", "registry").DebugContext(WithWorkflowID(context.Background(), "wf-9"), "loaded", "count", 2)

	out := buf.String()
	for _, want := range []string{"loaded", "component=registry", "count=2", "workflow_id=wf-9"} {
		if !strings.Contains(out, want) {
			t.Errorf("console output %q does not contain %q", out, want)
		}
	}
}

func TestWithIDs_EmptyIsNoop(t *testing.T) {
	ctx := context.Background()
	if got := WithWorkflowID(ctx, ""); got != ctx {
		t.Error("WithWorkflowID with empty id should return ctx unchanged")
	}
	if got := WithQueryID(ctx, ""); got != ctx {
		t.Error("WithQueryID with empty id should return ctx unchanged")
	}
	if attrs := contextAttrs(ctx); len(attrs) != 0 {
		t.Errorf("contextAttrs = %v, want none", attrs)
	}
}
