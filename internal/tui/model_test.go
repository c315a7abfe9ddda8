package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"

	"mapcap-ipo/internal/domain"
	"mapcap-ipo/internal/poller"
)

func snapshot(whale bool) domain.MetricsSnapshot {
	m := domain.ZeroSnapshot()
	m.TotalInvestors = 1204
	m.TotalPiInvested = decimal.NewFromInt(56700)
	m.UserPiInvested = decimal.NewFromInt(1000)
	m.UserCapitalGain = domain.DeriveCapitalGain(m.UserPiInvested)
	m.DailyPrices = []decimal.Decimal{decimal.NewFromInt(1), decimal.NewFromInt(5)}
	m.IsWhale = whale
	return m
}

func TestModel_ViewRendersBands(t *testing.T) {
	m := New(domain.Identity{Username: "alice"}, poller.State{Snapshot: domain.ZeroSnapshot(), Loading: true}, nil)

	view := m.View()
	for _, want := range []string{"MapCapIPO - @alice", "Synchronizing with Pi Network Ledger...", "Calculating...", "MapCap IPO Statistics:"} {
		if !strings.Contains(view, want) {
			t.Errorf("initial view missing %q", want)
		}
	}

	updated, _ := m.Update(StateMsg{State: poller.State{Snapshot: snapshot(false), UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}})
	view = updated.View()
	for _, want := range []string{"1,204", "56,700 π", "1,200 π", "updated 03:04:05"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if strings.Contains(view, "Synchronizing") {
		t.Error("loading text shown after data arrived")
	}
	if strings.Contains(view, "Compliance") {
		t.Error("whale notice shown without backend flag")
	}
}

func TestModel_WhaleAndSyncError(t *testing.T) {
	m := New(domain.Identity{Username: "whale"}, poller.State{
		Snapshot: snapshot(true),
		Err:      poller.SyncFailureMessage,
	}, nil)

	view := m.View()
	if !strings.Contains(view, "Compliance: Investment exceeds 10% pool limit and is subject to refund.") {
		t.Error("whale notice missing")
	}
	if !strings.Contains(view, poller.SyncFailureMessage) {
		t.Error("sync failure message missing")
	}
	// Previous snapshot stays visible next to the error.
	if !strings.Contains(view, "56,700 π") {
		t.Error("snapshot hidden on sync failure")
	}
}

func TestModel_RefreshKey(t *testing.T) {
	calls := 0
	refresh := func(context.Context) error {
		calls++
		return errors.New("offline")
	}
	m := New(domain.Identity{Username: "alice"}, poller.State{Snapshot: domain.ZeroSnapshot()}, refresh)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if cmd == nil {
		t.Fatal("expected refresh command")
	}
	if !strings.Contains(next.View(), "Refreshing...") {
		t.Error("refresh in progress not shown")
	}

	msg := cmd()
	if calls != 1 {
		t.Fatalf("refresh called %d times", calls)
	}
	next, _ = next.Update(msg)
	if !strings.Contains(next.View(), poller.SyncFailureMessage) {
		t.Error("failed refresh not reported")
	}
}

func TestModel_Quit(t *testing.T) {
	m := New(domain.Identity{}, poller.State{Snapshot: domain.ZeroSnapshot()}, nil)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q does not quit")
	}
	if next.View() != "" {
		t.Error("view not cleared on quit")
	}
}

func TestSparkline(t *testing.T) {
	if got := Sparkline(nil); got != "" {
		t.Errorf("empty sparkline = %q", got)
	}
	got := []rune(Sparkline([]decimal.Decimal{decimal.Zero, decimal.NewFromInt(5), decimal.NewFromInt(10)}))
	if len(got) != 3 {
		t.Fatalf("got %d bars", len(got))
	}
	if got[0] != '▁' {
		t.Errorf("zero bar = %q", got[0])
	}
	// The peak sits below the top of the scale.
	if got[2] != '▇' {
		t.Errorf("peak bar = %q", got[2])
	}
	if !(got[0] < got[1] && got[1] < got[2]) {
		t.Errorf("bars not increasing: %q", string(got))
	}
}
