package report

import "github.com/charmbracelet/lipgloss"

var (
	// Colors meet WCAG AA contrast on dark terminals.
	PrimaryColor = lipgloss.Color("#A78BFA") // Purple
	SuccessColor = lipgloss.Color("#10B981") // Green
	WarningColor = lipgloss.Color("#F59E0B") // Amber
	ErrorColor   = lipgloss.Color("#F87171") // Red
	MutedColor   = lipgloss.Color("#9CA3AF") // Gray
)

// styles are bound to the renderer of the reporter's writer so color is
// only emitted where that writer supports it.
type styles struct {
	platform lipgloss.Style
	building lipgloss.Style
	success  lipgloss.Style
	warning  lipgloss.Style
	failure  lipgloss.Style
	muted    lipgloss.Style
	stack    lipgloss.Style
}

func newStyles(r *lipgloss.Renderer, labelWidth int) styles {
	return styles{
		platform: r.NewStyle().Bold(true).Foreground(PrimaryColor).Width(labelWidth),
		building: r.NewStyle().Foreground(WarningColor),
		success:  r.NewStyle().Foreground(SuccessColor),
		warning:  r.NewStyle().Foreground(WarningColor),
		failure:  r.NewStyle().Bold(true).Foreground(ErrorColor),
		muted:    r.NewStyle().Foreground(MutedColor),
		stack: r.NewStyle().
			Foreground(MutedColor).
			PaddingLeft(4),
	}
}
