package view

import (
	"fmt"
	"time"

	"mapcap-ipo/internal/domain"
)

// Fixed texts of the dashboard.
const (
	AppTitle          = "MapCapIPO app"
	HelpURL           = "https://chatwithmac.com"
	LoadingText       = "Synchronizing with Pi Network Ledger..."
	SDKMissingWarning = "Pi SDK not detected. Open MapCapIPO in the Pi Browser to invest."
	AuditEmptyText    = "Waiting for engine data..."
	StatsTitle        = "MapCap IPO Statistics:"
	ChartTitle        = "MapCap Spot-price"
)

// WhaleNotice is shown when the backend flags a Pioneer above the pool limit.
var WhaleNotice = fmt.Sprintf("Compliance: Investment exceeds %d%% pool limit and is subject to refund.", domain.WhaleThresholdPct)

// NavbarTitle is "MapCapIPO - @user" for an authenticated Pioneer.
func NavbarTitle(identity domain.Identity) string {
	if identity.IsZero() {
		return AppTitle
	}
	return "MapCapIPO - @" + identity.Username
}

// StatRow is one line of the statistics panel.
type StatRow struct {
	Label     string
	Value     string
	Highlight bool
}

// StatsRows renders the four transparency values.
func StatsRows(m domain.MetricsSnapshot) []StatRow {
	return []StatRow{
		{Label: "Total investors to date", Value: FormatCount(m.TotalInvestors)},
		{Label: "Total pi invested to date", Value: FormatPi(m.TotalPiInvested) + " π"},
		{Label: "Your pi invested to date", Value: FormatPi(m.UserPiInvested) + " π"},
		{Label: "Your capital gain to date", Value: FormatPi(m.UserCapitalGain) + " π", Highlight: true},
	}
}

// WhaleNoticeFor returns the compliance notice when the backend flags the
// Pioneer, empty otherwise.
func WhaleNoticeFor(m domain.MetricsSnapshot) string {
	if m.IsWhale {
		return WhaleNotice
	}
	return ""
}

// AuditEntry is one line of the audit ledger.
type AuditEntry struct {
	Time    string
	Message string
	Level   Level
}

var phaseText = map[string]string{
	"initiated":           "payment initiated",
	"awaiting_approval":   "awaiting server approval",
	"awaiting_completion": "recorded in MapCap ledger, awaiting blockchain confirmation",
	"completed":           "completed",
	"cancelled":           "cancelled by Pioneer",
	"errored":             "failed",
	"incomplete":          "incomplete payment reported by wallet",
}

// AuditEntries renders payment events, keeping their order.
func AuditEntries(events []*domain.PaymentEvent, loc *time.Location) []AuditEntry {
	if loc == nil {
		loc = time.Local
	}
	out := make([]AuditEntry, 0, len(events))
	for _, e := range events {
		text, ok := phaseText[e.Phase]
		if !ok {
			text = e.Phase
		}
		id := e.PaymentID
		if id == "" {
			id = "pending"
		}
		msg := fmt.Sprintf("%s Pi [%s]: %s", FormatPi(e.Amount), id, text)
		if e.TxID != "" {
			msg += " (tx " + e.TxID + ")"
		}
		if e.Detail != "" {
			msg += ": " + e.Detail
		}

		level := LevelInfo
		switch e.Phase {
		case "completed":
			level = LevelSuccess
		case "errored":
			level = LevelError
		case "cancelled", "incomplete":
			level = LevelWarning
		}
		out = append(out, AuditEntry{
			Time:    time.UnixMilli(e.RecordedAt).In(loc).Format("15:04:05"),
			Message: msg,
			Level:   level,
		})
	}
	return out
}

// FlaggedSnapshot is a metrics snapshot held back for review.
type FlaggedSnapshot struct {
	At     time.Time
	Reason string
}

// FlaggedEntries renders held-back snapshots as audit warnings.
func FlaggedEntries(flagged []FlaggedSnapshot, loc *time.Location) []AuditEntry {
	if loc == nil {
		loc = time.Local
	}
	out := make([]AuditEntry, 0, len(flagged))
	for _, f := range flagged {
		out = append(out, AuditEntry{
			Time:    f.At.In(loc).Format("15:04:05"),
			Message: "Snapshot flagged for review: " + f.Reason,
			Level:   LevelWarning,
		})
	}
	return out
}

// Input is everything a page render depends on.
type Input struct {
	Identity     domain.Identity
	Metrics      domain.MetricsSnapshot
	Loading      bool
	SyncError    string
	SDKAvailable bool
	Events       []*domain.PaymentEvent
	Flagged      []FlaggedSnapshot
	Notice       *Notice
	Location     *time.Location
}

// Page is the three-band dashboard model.
type Page struct {
	Title       string
	HelpURL     string
	Loading     bool
	LoadingText string
	Warning     string
	SyncError   string

	ChartTitle string
	Chart      Chart
	ChartEmpty string

	StatsTitle  string
	Stats       []StatRow
	WhaleNotice string

	Audit      []AuditEntry
	AuditEmpty string

	Notice *Notice
}

// Build assembles the page model.
func Build(in Input) Page {
	p := Page{
		Title:       NavbarTitle(in.Identity),
		HelpURL:     HelpURL,
		Loading:     in.Loading,
		LoadingText: LoadingText,
		SyncError:   in.SyncError,
		ChartTitle:  ChartTitle,
		Chart:       BuildChart(in.Metrics.DailyPrices),
		ChartEmpty:  ChartEmptyText,
		StatsTitle:  StatsTitle,
		Stats:       StatsRows(in.Metrics),
		WhaleNotice: WhaleNoticeFor(in.Metrics),
		Audit:       append(AuditEntries(in.Events, in.Location), FlaggedEntries(in.Flagged, in.Location)...),
		AuditEmpty:  AuditEmptyText,
		Notice:      in.Notice,
	}
	if !in.SDKAvailable {
		p.Warning = SDKMissingWarning
	}
	return p
}
