package builder

import (
	"strings"
	"testing"
	"time"
)

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{"started", Started{Reason: ReasonInvalid}, false},
		{"progress", Progress{Total: 10, Completed: 5}, false},
		{"failed", Failed{}, true},
		{"done", Done{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTerminal(tt.msg); got != tt.want {
				t.Errorf("IsTerminal(%T) = %v, want %v", tt.msg, got, tt.want)
			}
		})
	}
}

func TestStats_Accessors(t *testing.T) {
	s := Stats{
		"platform":   "ios",
		"durationMs": float64(1234),
		"assets":     "3",
	}

	if got := s.GetString("platform"); got != "ios" {
		t.Errorf("GetString(platform) = %q, want %q", got, "ios")
	}
	if got := s.GetInt("durationMs"); got != 1234 {
		t.Errorf("GetInt(durationMs) = %d, want 1234", got)
	}
	if got := s.GetInt("assets"); got != 3 {
		t.Errorf("GetInt(assets) = %d, want 3", got)
	}
	if got := s.GetInt("missing"); got != 0 {
		t.Errorf("GetInt(missing) = %d, want 0", got)
	}
	if got := s.GetString("missing"); got != "" {
		t.Errorf("GetString(missing) = %q, want empty", got)
	}
}

func TestParseLogLine(t *testing.T) {
	now := time.UnixMilli(1700000000000)

	tests := []struct {
		name       string
		line       string
		wantOK     bool
		wantType   string
		wantIssuer string
		wantText   string
		wantTS     int64
	}{
		{
			name:       "structured entry",
			line:       `{"timestamp":1600000000000,"type":"warn","issuer":"Compiler","message":["slow module",42]}`,
			wantOK:     true,
			wantType:   LogWarn,
			wantIssuer: "Compiler",
			wantText:   "slow module 42",
			wantTS:     1600000000000,
		},
		{
			name:       "structured entry without timestamp",
			line:       `{"type":"success","issuer":"Compiler","message":["built"]}`,
			wantOK:     true,
			wantType:   LogSuccess,
			wantIssuer: "Compiler",
			wantText:   "built",
			wantTS:     now.UnixMilli(),
		},
		{
			name:       "plain text",
			line:       "  bundling index.js  ",
			wantOK:     true,
			wantType:   LogInfo,
			wantIssuer: FallbackIssuer,
			wantText:   "bundling index.js",
			wantTS:     now.UnixMilli(),
		},
		{
			name:       "json without type",
			line:       `{"hello":"world"}`,
			wantOK:     true,
			wantType:   LogInfo,
			wantIssuer: FallbackIssuer,
			wantText:   `{"hello":"world"}`,
			wantTS:     now.UnixMilli(),
		},
		{
			name:     "malformed json",
			line:     `{"type":`,
			wantOK:   true,
			wantType: LogInfo,
			wantText: `{"type":`,
			wantTS:   now.UnixMilli(),
		},
		{
			name:   "blank",
			line:   "   ",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, ok := ParseLogLine(tt.line, now)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if entry.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", entry.Type, tt.wantType)
			}
			if tt.wantIssuer != "" && entry.Issuer != tt.wantIssuer {
				t.Errorf("Issuer = %q, want %q", entry.Issuer, tt.wantIssuer)
			}
			if got := entry.Text(); got != tt.wantText {
				t.Errorf("Text() = %q, want %q", got, tt.wantText)
			}
			if entry.Timestamp != tt.wantTS {
				t.Errorf("Timestamp = %d, want %d", entry.Timestamp, tt.wantTS)
			}
		})
	}
}

func TestLogEntry_Time(t *testing.T) {
	e := LogEntry{Timestamp: 1700000000123}
	if got := e.Time().UnixMilli(); got != 1700000000123 {
		t.Errorf("Time().UnixMilli() = %d", got)
	}
}

func TestLogEntry_TextSkipsNothingPrintable(t *testing.T) {
	e := LogEntry{Message: []any{"a", map[string]any{"k": "v"}, true}}
	got := e.Text()
	if !strings.HasPrefix(got, "a ") || !strings.Contains(got, `{"k":"v"}`) || !strings.HasSuffix(got, "true") {
		t.Errorf("Text() = %q", got)
	}
}

func TestSpawnerFunc(t *testing.T) {
	var got string
	s := SpawnerFunc(func(platform string) (Process, error) {
		got = platform
		return nil, nil
	})
	if _, err := s.Spawn("android"); err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	if got != "android" {
		t.Errorf("platform = %q, want android", got)
	}
}
