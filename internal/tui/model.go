// Package tui is the terminal dashboard: the same three bands as the web
// page, driven by a poller.
package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"

	"mapcap-ipo/internal/domain"
	"mapcap-ipo/internal/poller"
	"mapcap-ipo/internal/view"
)

// refreshTimeout bounds a manual refresh.
const refreshTimeout = 15 * time.Second

// StateMsg delivers a poller state to the model.
type StateMsg struct {
	State poller.State
}

type refreshDoneMsg struct {
	err error
}

// RefreshFunc re-pulls metrics on demand.
type RefreshFunc func(ctx context.Context) error

// Model is the bubbletea model of the watch view.
type Model struct {
	identity domain.Identity
	state    poller.State
	refresh  RefreshFunc
	styles   Styles
	width    int
	notice   string
	quitting bool
}

// New creates a model for identity. refresh may be nil.
func New(identity domain.Identity, initial poller.State, refresh RefreshFunc) Model {
	return Model{
		identity: identity,
		state:    initial,
		refresh:  refresh,
		styles:   DefaultStyles(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case StateMsg:
		m.state = msg.State
		return m, nil

	case refreshDoneMsg:
		if msg.err != nil {
			m.notice = poller.SyncFailureMessage
		} else {
			m.notice = ""
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			if m.refresh == nil {
				return m, nil
			}
			m.notice = "Refreshing..."
			refresh := m.refresh
			return m, func() tea.Msg {
				ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
				defer cancel()
				return refreshDoneMsg{err: refresh(ctx)}
			}
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	p := view.Build(view.Input{
		Identity:     m.identity,
		Metrics:      m.state.Snapshot,
		Loading:      m.state.Loading,
		SyncError:    m.state.Err,
		SDKAvailable: true, // read-only view, no wallet
	})
	s := m.styles

	var b strings.Builder
	b.WriteString(s.Navbar.Render("π " + p.Title))
	b.WriteString("\n")
	if p.Loading {
		b.WriteString(s.Muted.Render(p.LoadingText) + "\n")
	}
	if p.SyncError != "" {
		b.WriteString(s.Error.Render(p.SyncError) + "\n")
	}

	// Chart
	var chart strings.Builder
	chart.WriteString(s.Title.Render(p.ChartTitle) + "\n")
	if p.Chart.Empty {
		chart.WriteString(s.Muted.Render(p.ChartEmpty))
	} else {
		chart.WriteString(s.Chart.Render(Sparkline(m.state.Snapshot.DailyPrices)) + "\n")
		chart.WriteString(s.Muted.Render(fmt.Sprintf("0 to %s π, Week 1 to Week 4", p.Chart.AxisMax)))
	}
	b.WriteString(s.Section.Render(chart.String()) + "\n")

	// Stats
	var stats strings.Builder
	stats.WriteString(s.Title.Render(p.StatsTitle) + "\n")
	for i, row := range p.Stats {
		value := s.Value.Render(row.Value)
		if row.Highlight {
			value = s.Highlight.Render(row.Value)
		}
		stats.WriteString(s.Label.Render(row.Label) + value)
		if i < len(p.Stats)-1 {
			stats.WriteString("\n")
		}
	}
	if p.WhaleNotice != "" {
		stats.WriteString("\n" + s.Warning.Render(p.WhaleNotice))
	}
	b.WriteString(s.Section.Render(stats.String()) + "\n")

	// Footer
	footer := "r refresh • q quit"
	if !m.state.UpdatedAt.IsZero() {
		footer = "updated " + m.state.UpdatedAt.Format("15:04:05") + " • " + footer
	}
	if m.notice != "" {
		footer = m.notice + " • " + footer
	}
	b.WriteString(s.Muted.Render(footer))
	return b.String()
}

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders prices on the same scale as the web chart: zero at the
// bottom, 20% above the peak at the top.
func Sparkline(prices []decimal.Decimal) string {
	c := view.BuildChart(prices)
	if c.Empty {
		return ""
	}
	height := view.ChartBottom - view.ChartTop
	top := len(sparkLevels) - 1

	out := make([]rune, 0, len(c.Points))
	for _, pt := range c.Points {
		ratio := (view.ChartBottom - pt.Y) / height
		level := int(math.Round(ratio * float64(top)))
		if level < 0 {
			level = 0
		}
		if level > top {
			level = top
		}
		out = append(out, sparkLevels[level])
	}
	return string(out)
}
