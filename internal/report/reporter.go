// Package report renders the compiler's event stream for a terminal.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/Iron-Ham/bundlr/internal/builder"
	"github.com/Iron-Ham/bundlr/internal/errors"
	"github.com/Iron-Ham/bundlr/internal/event"
)

const (
	defaultWidth = 80
	labelWidth   = 10
	maxBarWidth  = 40
	// plainStep is the progress granularity, in percent, written when the
	// output is not a terminal.
	plainStep = 25
)

// Option configures a Reporter.
type Option func(*Reporter)

// WithInteractive forces in-place progress bars on or off.
func WithInteractive(on bool) Option {
	return func(r *Reporter) { r.interactive = on }
}

// WithWidth sets the terminal width used to size progress bars.
func WithWidth(w int) Option {
	return func(r *Reporter) {
		if w > 0 {
			r.width = w
		}
	}
}

// WithVerbose shows every builder log line instead of only warnings and
// errors.
func WithVerbose(on bool) Option {
	return func(r *Reporter) { r.verbose = on }
}

// Reporter renders the compiler's event stream as terminal lines.
type Reporter struct {
	out         io.Writer
	interactive bool
	width       int
	verbose     bool
	styles      styles

	mu      sync.Mutex
	bars    map[string]progress.Model
	lastPct map[string]int
	// inline is true while a progress line is drawn without a newline.
	inline bool

	bus   *event.Bus
	subID string
}

// New returns a Reporter writing to out. When out is a terminal, progress
// is drawn in place and sized to its width.
func New(out io.Writer, opts ...Option) *Reporter {
	r := &Reporter{
		out:     out,
		width:   defaultWidth,
		bars:    make(map[string]progress.Model),
		lastPct: make(map[string]int),
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		r.interactive = true
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			r.width = w
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	r.styles = newStyles(lipgloss.NewRenderer(out), labelWidth)
	return r
}

// Attach subscribes the reporter to every event on bus.
func (r *Reporter) Attach(bus *event.Bus) {
	r.Detach()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bus = bus
	r.subID = bus.SubscribeAll(r.Handle)
}

// Detach unsubscribes from the bus and ends any in-place progress line.
func (r *Reporter) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bus != nil {
		r.bus.Unsubscribe(r.subID)
		r.bus = nil
	}
	if r.inline {
		fmt.Fprintln(r.out)
		r.inline = false
	}
}

// Handle renders one event.
func (r *Reporter) Handle(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev := e.(type) {
	case event.BuildInvalidatedEvent:
		delete(r.lastPct, ev.Platform)
		r.line(ev.Platform, r.styles.building.Render("building")+r.styles.muted.Render(" ("+ev.Reason+")"))

	case event.BuildProgressEvent:
		r.progress(ev)

	case event.BuildDoneEvent:
		delete(r.lastPct, ev.Platform)
		summary := fmt.Sprintf("built %d assets", ev.AssetCount)
		if ms := builder.Stats(ev.Stats).GetInt("durationMs"); ms > 0 {
			summary += fmt.Sprintf(" in %dms", ms)
		}
		r.line(ev.Platform, r.styles.success.Render("✓ "+summary))

	case event.BuildErrorEvent:
		delete(r.lastPct, ev.Platform)
		r.line(ev.Platform, r.styles.failure.Render("✗ "+errorText(ev.Err)))
		var be *errors.BuildError
		if errors.As(ev.Err, &be) && be.Stack != "" {
			r.println(r.styles.stack.Render(be.Stack))
		}

	case event.BuilderLogEvent:
		r.log(ev)
	}
}

func (r *Reporter) progress(ev event.BuildProgressEvent) {
	pct := int(ev.Fraction() * 100)
	counts := fmt.Sprintf(" %d/%d", ev.Completed, ev.Total)

	if !r.interactive {
		last, seen := r.lastPct[ev.Platform]
		if seen && pct/plainStep == last/plainStep && pct < 100 {
			return
		}
		r.lastPct[ev.Platform] = pct
		r.line(ev.Platform, fmt.Sprintf("%3d%%", pct)+r.styles.muted.Render(counts+" "+ev.Message))
		return
	}

	bar, ok := r.bars[ev.Platform]
	if !ok {
		bar = progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	}
	bar.Width = min(maxBarWidth, max(10, r.width-labelWidth-len(counts)-2))
	r.bars[ev.Platform] = bar

	text := r.styles.platform.Render(ev.Platform) + bar.ViewAs(ev.Fraction()) + counts
	if room := r.width - lipgloss.Width(text) - 1; room > 3 && ev.Message != "" {
		text += " " + r.styles.muted.Render(truncate(ev.Message, room))
	}
	fmt.Fprint(r.out, "\r\033[K"+text)
	r.inline = true
}

func (r *Reporter) log(ev event.BuilderLogEvent) {
	text := strings.TrimSpace(builder.LogEntry{Message: ev.Message}.Text())
	if text == "" {
		return
	}
	var style lipgloss.Style
	switch ev.Level {
	case builder.LogError:
		style = r.styles.failure
	case builder.LogWarn:
		style = r.styles.warning
	default:
		if !r.verbose {
			return
		}
		style = r.styles.muted
	}
	if ev.Issuer != "" && ev.Issuer != builder.FallbackIssuer {
		text = "[" + ev.Issuer + "] " + text
	}
	r.line(ev.Platform, style.Render(text))
}

// line writes a full line for platform, ending any in-place progress line.
func (r *Reporter) line(platform, text string) {
	r.println(r.styles.platform.Render(platform) + text)
}

func (r *Reporter) println(s string) {
	if r.inline {
		fmt.Fprint(r.out, "\r\033[K")
		r.inline = false
	}
	fmt.Fprintln(r.out, s)
}

func errorText(err error) string {
	if err == nil {
		return "build failed"
	}
	switch errors.Classify(err) {
	case errors.KindClosed:
		return "stopped"
	default:
		return err.Error()
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if lipgloss.Width(s) <= n {
		return s
	}
	runes := []rune(s)
	if n <= 1 || len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
