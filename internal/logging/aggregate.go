package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cast"
)

// LogEntry is one parsed line of bundlr.log.
type LogEntry struct {
	Timestamp time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"msg"`
	Platform  string         `json:"platform,omitempty"`
	Builder   string         `json:"builder,omitempty"`
	Component string         `json:"component,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// LogFilter selects entries. Empty fields match everything; set fields are
// combined with AND.
type LogFilter struct {
	// Level keeps entries at or above this level.
	Level           string
	Since           time.Time
	Platform        string
	Builder         string
	Component       string
	MessageContains string
}

var levelOrder = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ReadLogs parses bundlr.log in dir together with its rotated backups,
// decompressing .zst backups on the fly. Lines that are not valid JSON are
// skipped. Entries are returned sorted by timestamp.
func ReadLogs(dir string) ([]LogEntry, error) {
	live := filepath.Join(dir, LogFileName)
	if _, err := os.Stat(live); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no log file found in %s: %w", dir, err)
		}
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	backups, _ := filepath.Glob(live + ".*")
	paths := append(backups, live)

	var entries []LogEntry
	for _, path := range paths {
		got, err := readLogFile(path)
		if err != nil {
			return nil, err
		}
		entries = append(entries, got...)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

func readLogFile(path string) ([]LogEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var r io.Reader = file
	if strings.HasSuffix(path, CompressedSuffix) {
		dec, err := zstd.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("failed to open compressed log %s: %w", path, err)
		}
		defer dec.Close()
		r = dec
	}

	var entries []LogEntry
	scanner := bufio.NewScanner(r)
	const maxLine = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, err := parseLogEntry(line)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	return entries, nil
}

func parseLogEntry(line string) (LogEntry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return LogEntry{}, fmt.Errorf("invalid JSON: %w", err)
	}

	entry := LogEntry{
		Level:     cast.ToString(raw["level"]),
		Message:   cast.ToString(raw["msg"]),
		Platform:  cast.ToString(raw[KeyPlatform]),
		Builder:   cast.ToString(raw[KeyBuilder]),
		Component: cast.ToString(raw[KeyComponent]),
		Attrs:     make(map[string]any),
	}
	if ts, err := time.Parse(time.RFC3339Nano, cast.ToString(raw["time"])); err == nil {
		entry.Timestamp = ts
	}

	for k, v := range raw {
		switch k {
		case "time", "level", "msg", KeyPlatform, KeyBuilder, KeyComponent:
		default:
			entry.Attrs[k] = v
		}
	}
	return entry, nil
}

// FilterLogs returns the entries matching filter.
func FilterLogs(entries []LogEntry, filter LogFilter) []LogEntry {
	if filter == (LogFilter{}) {
		return entries
	}
	return slices.DeleteFunc(slices.Clone(entries), func(e LogEntry) bool {
		return !filter.matches(e)
	})
}

func (f LogFilter) matches(e LogEntry) bool {
	if f.Level != "" {
		want, wok := levelOrder[strings.ToUpper(f.Level)]
		got, gok := levelOrder[e.Level]
		if wok && gok && got < want {
			return false
		}
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if f.Platform != "" && e.Platform != f.Platform {
		return false
	}
	if f.Builder != "" && e.Builder != f.Builder {
		return false
	}
	if f.Component != "" && e.Component != f.Component {
		return false
	}
	if f.MessageContains != "" && !strings.Contains(e.Message, f.MessageContains) {
		return false
	}
	return true
}

// WriteLogs renders entries to w as "json" (an indented array) or "text"
// (one line per entry).
func WriteLogs(w io.Writer, entries []LogEntry, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "text", "":
		for _, e := range entries {
			if _, err := io.WriteString(w, formatText(e)); err != nil {
				return fmt.Errorf("failed to write log entry: %w", err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported log format: %s (supported: json, text)", format)
	}
}

// formatText renders "[ts] LEVEL - msg (platform=…, builder=…) {attrs}".
func formatText(e LogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s - %s", e.Timestamp.Format("2006-01-02 15:04:05.000"), e.Level, e.Message)

	var ctx []string
	if e.Platform != "" {
		ctx = append(ctx, "platform="+e.Platform)
	}
	if e.Builder != "" {
		ctx = append(ctx, "builder="+e.Builder)
	}
	if e.Component != "" {
		ctx = append(ctx, "component="+e.Component)
	}
	if len(ctx) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ctx, ", "))
	}
	if len(e.Attrs) > 0 {
		if attrs, err := json.Marshal(e.Attrs); err == nil {
			b.WriteByte(' ')
			b.Write(attrs)
		}
	}
	b.WriteByte('\n')
	return b.String()
}
