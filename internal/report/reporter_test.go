package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Iron-Ham/bundlr/internal/builder"
	"github.com/Iron-Ham/bundlr/internal/errors"
	"github.com/Iron-Ham/bundlr/internal/event"
)

func TestReporter_PlainOutput(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)
	bus := event.NewBus()
	r.Attach(bus)

	bus.Publish(event.NewBuildInvalidatedEvent("ios", builder.ReasonInitial))
	for _, c := range []int{10, 20, 30, 60, 100} {
		bus.Publish(event.NewBuildProgressEvent("ios", 100, c, "transforming"))
	}
	bus.Publish(event.NewBuildDoneEvent("ios", 3, map[string]any{"durationMs": 420}))
	r.Detach()

	bus.Publish(event.NewBuildInvalidatedEvent("ios", builder.ReasonInvalid))

	out := buf.String()
	for _, want := range []string{
		"building (initial)",
		" 10%",
		" 30%",
		" 60%",
		"100%",
		"✓ built 3 assets in 420ms",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	// 20% falls in the same quarter as 10%.
	if strings.Contains(out, " 20%") {
		t.Errorf("plain output not throttled:\n%s", out)
	}
	if strings.Contains(out, "(invalid)") {
		t.Errorf("event rendered after Detach:\n%s", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("escape codes written to a non-terminal:\n%q", out)
	}
}

func TestReporter_Errors(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)

	be := errors.NewBuildError("Unexpected token", nil).WithPlatform("android").WithStack("at App.js:3:7")
	r.Handle(event.NewBuildErrorEvent("android", be))
	r.Handle(event.NewBuildErrorEvent("ios", errors.ErrCompilerClosed))

	out := buf.String()
	if !strings.Contains(out, "✗ build error [platform=android]: Unexpected token") {
		t.Errorf("build error not rendered:\n%s", out)
	}
	if !strings.Contains(out, "at App.js:3:7") {
		t.Errorf("stack not rendered:\n%s", out)
	}
	if !strings.Contains(out, "✗ stopped") {
		t.Errorf("shutdown not rendered as stopped:\n%s", out)
	}
}

func TestReporter_BuilderLogs(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		level   string
		issuer  string
		want    string
		hidden  bool
	}{
		{"warning always shown", false, builder.LogWarn, "Compiler", "[Compiler] slow module", false},
		{"error always shown", false, builder.LogError, "Compiler", "[Compiler] slow module", false},
		{"info hidden by default", false, builder.LogInfo, "Compiler", "", true},
		{"info shown when verbose", true, builder.LogInfo, "Compiler", "[Compiler] slow module", false},
		{"fallback issuer omitted", true, builder.LogInfo, builder.FallbackIssuer, "slow module", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			r := New(&buf, WithVerbose(tt.verbose))
			r.Handle(event.NewBuilderLogEvent("ios", tt.level, tt.issuer, []any{"slow", "module"}))

			out := buf.String()
			if tt.hidden {
				if out != "" {
					t.Errorf("expected no output, got %q", out)
				}
				return
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output %q missing %q", out, tt.want)
			}
			if tt.issuer == builder.FallbackIssuer && strings.Contains(out, "[") {
				t.Errorf("fallback issuer rendered: %q", out)
			}
		})
	}
}

func TestReporter_InteractiveProgress(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, WithInteractive(true), WithWidth(60))

	r.Handle(event.NewBuildProgressEvent("ios", 4, 1, "resolving"))
	r.Handle(event.NewBuildProgressEvent("ios", 4, 2, "resolving"))
	r.Handle(event.NewBuildDoneEvent("ios", 1, nil))

	out := buf.String()
	if strings.Count(out, "\r\033[K") < 3 {
		t.Errorf("progress not redrawn in place: %q", out)
	}
	if !strings.Contains(out, "2/4") {
		t.Errorf("counts missing: %q", out)
	}
	if !strings.HasSuffix(out, "✓ built 1 assets\n") {
		t.Errorf("done line does not end output: %q", out)
	}
}

func TestReporter_DetachEndsInlineLine(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, WithInteractive(true))
	r.Attach(event.NewBus())
	r.Handle(event.NewBuildProgressEvent("ios", 2, 1, ""))
	r.Detach()

	if !strings.HasSuffix(buf.String(), "\n") {
		t.Errorf("output after Detach = %q, want trailing newline", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"a longer message", 8, "a longe…"},
		{"multi\nline", 20, "multi line"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
