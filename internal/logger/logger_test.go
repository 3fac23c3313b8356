package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/goccy/go-json"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON log output, got error: %v\nraw output: %s", err, buf.String())
	}
	return entry
}

func TestSetup_ReturnsJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, slog.LevelInfo)

	l.Info("sidebar updated", slog.String("category_id", "general"), slog.Int("version", 4))

	entry := decodeEntry(t, &buf)
	if entry["msg"] != "sidebar updated" {
		t.Errorf("msg = %q, want %q", entry["msg"], "sidebar updated")
	}
	if entry["category_id"] != "general" {
		t.Errorf("category_id = %q, want %q", entry["category_id"], "general")
	}
	if entry["version"] != float64(4) {
		t.Errorf("version = %v, want 4", entry["version"])
	}
	if entry["service"] != "groupdash" {
		t.Errorf("service = %q, want %q", entry["service"], "groupdash")
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected 'time' field in JSON log output")
	}
}

func TestSetup_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, slog.LevelWarn)

	l.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info log should be filtered at warn level: %s", buf.String())
	}

	l.Warn("kept")
	if entry := decodeEntry(t, &buf); entry["level"] != "WARN" {
		t.Errorf("level = %q, want %q", entry["level"], "WARN")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetupDefault_SetsGlobalLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupDefault(&buf, "debug")

	slog.Default().Debug("global test", slog.String("email", "runner@example.com"))

	entry := decodeEntry(t, &buf)
	if entry["msg"] != "global test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "global test")
	}
	if entry["email"] != "runner@example.com" {
		t.Errorf("email = %q", entry["email"])
	}
}
