package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestReadLogs(t *testing.T) {
	t.Run("parses entries and context fields", func(t *testing.T) {
		dir := t.TempDir()

		logger, err := NewLogger(dir, LevelDebug)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		logger.WithPlatform("ios").WithBuilder("worker").Info("message 1", "extra", "data")
		logger.WithPlatform("android").Debug("message 2")
		logger.WithComponent("cli").Error("message 3", "code", 500)
		_ = logger.Close()

		entries, err := ReadLogs(dir)
		if err != nil {
			t.Fatalf("ReadLogs failed: %v", err)
		}
		if len(entries) != 3 {
			t.Fatalf("expected 3 entries, got %d", len(entries))
		}

		first := entries[0]
		if first.Message != "message 1" || first.Level != "INFO" {
			t.Errorf("first entry = %+v", first)
		}
		if first.Platform != "ios" || first.Builder != "worker" {
			t.Errorf("context = platform %q builder %q", first.Platform, first.Builder)
		}
		if first.Attrs["extra"] != "data" {
			t.Errorf("extra = %v, want data", first.Attrs["extra"])
		}
		if first.Timestamp.IsZero() {
			t.Error("timestamp was not parsed")
		}
		if entries[2].Component != "cli" {
			t.Errorf("component = %q, want cli", entries[2].Component)
		}
	})

	t.Run("returns error for missing log file", func(t *testing.T) {
		if _, err := ReadLogs(t.TempDir()); err == nil {
			t.Error("expected error for missing log file")
		}
	})

	t.Run("skips malformed lines", func(t *testing.T) {
		dir := t.TempDir()
		content := `{"time":"2026-01-01T00:00:00Z","level":"INFO","msg":"ok"}
not json at all

{"time":"2026-01-01T00:00:01Z","level":"WARN","msg":"also ok"}
`
		if err := os.WriteFile(filepath.Join(dir, LogFileName), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		entries, err := ReadLogs(dir)
		if err != nil {
			t.Fatalf("ReadLogs failed: %v", err)
		}
		if len(entries) != 2 {
			t.Errorf("expected 2 entries, got %d", len(entries))
		}
	})

	t.Run("includes compressed backups in time order", func(t *testing.T) {
		dir := t.TempDir()
		live := filepath.Join(dir, LogFileName)

		older := `{"time":"2026-01-01T00:00:00Z","level":"INFO","msg":"from backup"}` + "\n"
		if err := os.WriteFile(live+".1", []byte(older), 0644); err != nil {
			t.Fatal(err)
		}
		if err := compressFile(live + ".1"); err != nil {
			t.Fatalf("compressFile: %v", err)
		}

		newer := `{"time":"2026-01-02T00:00:00Z","level":"INFO","msg":"from live"}` + "\n"
		if err := os.WriteFile(live, []byte(newer), 0644); err != nil {
			t.Fatal(err)
		}

		entries, err := ReadLogs(dir)
		if err != nil {
			t.Fatalf("ReadLogs failed: %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(entries))
		}
		if entries[0].Message != "from backup" || entries[1].Message != "from live" {
			t.Errorf("order = %q, %q", entries[0].Message, entries[1].Message)
		}
	})
}

func TestFilterLogs(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []LogEntry{
		{Timestamp: base, Level: LevelDebug, Message: "resolving modules", Platform: "ios"},
		{Timestamp: base.Add(time.Minute), Level: LevelInfo, Message: "build done", Platform: "ios", Builder: "worker"},
		{Timestamp: base.Add(2 * time.Minute), Level: LevelError, Message: "build failed", Platform: "android", Builder: "command"},
		{Timestamp: base.Add(3 * time.Minute), Level: LevelWarn, Message: "slow build", Component: "compiler"},
	}

	tests := []struct {
		name   string
		filter LogFilter
		want   int
	}{
		{"empty filter", LogFilter{}, 4},
		{"level", LogFilter{Level: "warn"}, 2},
		{"platform", LogFilter{Platform: "ios"}, 2},
		{"builder", LogFilter{Builder: "command"}, 1},
		{"component", LogFilter{Component: "compiler"}, 1},
		{"since", LogFilter{Since: base.Add(90 * time.Second)}, 2},
		{"message", LogFilter{MessageContains: "build"}, 3},
		{"combined", LogFilter{Platform: "ios", Level: LevelInfo}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FilterLogs(entries, tt.filter); len(got) != tt.want {
				t.Errorf("FilterLogs() returned %d entries, want %d", len(got), tt.want)
			}
		})
	}

	if len(entries) != 4 || entries[0].Message != "resolving modules" {
		t.Error("FilterLogs must not modify its input")
	}
}

func TestWriteLogs(t *testing.T) {
	entries := []LogEntry{{
		Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		Level:     LevelInfo,
		Message:   "build done",
		Platform:  "ios",
		Builder:   "worker",
		Attrs:     map[string]any{"assets": 3},
	}}

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteLogs(&buf, entries, "text"); err != nil {
			t.Fatalf("WriteLogs failed: %v", err)
		}
		want := `[2026-01-01 12:00:00.000] INFO - build done (platform=ios, builder=worker) {"assets":3}` + "\n"
		if buf.String() != want {
			t.Errorf("text = %q, want %q", buf.String(), want)
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteLogs(&buf, entries, "JSON"); err != nil {
			t.Fatalf("WriteLogs failed: %v", err)
		}
		var decoded []LogEntry
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("output is not JSON: %v", err)
		}
		if len(decoded) != 1 || decoded[0].Platform != "ios" {
			t.Errorf("decoded = %+v", decoded)
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		err := WriteLogs(&bytes.Buffer{}, entries, "csv")
		if err == nil || !strings.Contains(err.Error(), "unsupported") {
			t.Errorf("WriteLogs(csv) = %v, want unsupported format error", err)
		}
	})
}
