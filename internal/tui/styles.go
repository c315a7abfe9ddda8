package tui

import "github.com/charmbracelet/lipgloss"

// MapCap brand colors.
var (
	Green = lipgloss.Color("#1b5e20")
	Gold  = lipgloss.Color("#ffd700")
	Red   = lipgloss.Color("#e53935")
	Amber = lipgloss.Color("#FFC107")
	Muted = lipgloss.Color("#777777")
)

// Styles holds the terminal styles of the dashboard.
type Styles struct {
	Navbar    lipgloss.Style
	Section   lipgloss.Style
	Title     lipgloss.Style
	Label     lipgloss.Style
	Value     lipgloss.Style
	Highlight lipgloss.Style
	Chart     lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Muted     lipgloss.Style
}

// DefaultStyles returns the green and gold MapCap theme.
func DefaultStyles() Styles {
	return Styles{
		Navbar: lipgloss.NewStyle().
			Bold(true).
			Foreground(Gold).
			Background(Green).
			Padding(0, 1),
		Section: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Green).
			Padding(0, 1).
			MarginTop(1),
		Title:     lipgloss.NewStyle().Bold(true).Foreground(Green),
		Label:     lipgloss.NewStyle().Width(28),
		Value:     lipgloss.NewStyle().Bold(true),
		Highlight: lipgloss.NewStyle().Bold(true).Foreground(Gold),
		Chart:     lipgloss.NewStyle().Foreground(Green),
		Warning:   lipgloss.NewStyle().Foreground(Amber),
		Error:     lipgloss.NewStyle().Foreground(Red),
		Muted:     lipgloss.NewStyle().Foreground(Muted),
	}
}
