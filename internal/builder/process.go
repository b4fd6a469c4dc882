package builder

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Process is one running builder for one platform.
//
// Start launches the builder and returns the channel its messages arrive on.
// Messages for a cycle arrive in order: Started, any number of Progress,
// then exactly one Failed or Done. The channel is closed when the builder
// exits; if it exits in the middle of a cycle, a Failed carrying
// errors.ErrProcessTerminated is sent before the close. Start must be called
// at most once.
//
// Stop asks the builder to exit and waits for it. The message channel is
// closed once Stop returns.
type Process interface {
	Start(ctx context.Context) (<-chan Message, error)
	Stop() error
}

// Spawner creates builder processes. Spawn does not start the process.
type Spawner interface {
	Spawn(platform string) (Process, error)
}

// SpawnerFunc adapts a function to the Spawner interface.
type SpawnerFunc func(platform string) (Process, error)

// Spawn calls f(platform).
func (f SpawnerFunc) Spawn(platform string) (Process, error) {
	return f(platform)
}

// Log entry types emitted by builders.
const (
	LogDebug    = "debug"
	LogInfo     = "info"
	LogWarn     = "warn"
	LogError    = "error"
	LogSuccess  = "success"
	LogProgress = "progress"
)

// FallbackIssuer is attributed to builder output lines that are not
// structured log entries.
const FallbackIssuer = "BuilderWorker"

// LogEntry is one structured log line written by a builder on stdout or
// stderr.
type LogEntry struct {
	// Timestamp is milliseconds since the Unix epoch.
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"`
	Issuer    string `json:"issuer"`
	Message   []any  `json:"message"`
}

// Time returns Timestamp as a time.Time.
func (e LogEntry) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Text joins the message parts with spaces.
func (e LogEntry) Text() string {
	parts := make([]string, 0, len(e.Message))
	for _, m := range e.Message {
		switch v := m.(type) {
		case string:
			parts = append(parts, v)
		default:
			b, err := json.Marshal(v)
			if err != nil {
				continue
			}
			parts = append(parts, string(b))
		}
	}
	return strings.Join(parts, " ")
}

// LogFunc receives builder log entries. It is called from the builder's
// output readers and must not block for long.
type LogFunc func(platform string, entry LogEntry)

// ParseLogLine turns one line of builder output into a LogEntry. A line
// holding a JSON object with a type is taken as is; anything else becomes
// an info entry from FallbackIssuer. Blank lines report false.
func ParseLogLine(line string, now time.Time) (LogEntry, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return LogEntry{}, false
	}

	var entry LogEntry
	if strings.HasPrefix(line, "{") && json.Unmarshal([]byte(line), &entry) == nil && entry.Type != "" {
		if entry.Timestamp == 0 {
			entry.Timestamp = now.UnixMilli()
		}
		return entry, true
	}

	return LogEntry{
		Timestamp: now.UnixMilli(),
		Type:      LogInfo,
		Issuer:    FallbackIssuer,
		Message:   []any{line},
	}, true
}
