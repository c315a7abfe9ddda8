package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MaxDailyPrices is the length of the IPO phase in days (4 calendar weeks).
const MaxDailyPrices = 28

// CapitalGainMultiplier is the fixed 20% early-adopter uplift applied to a
// Pioneer's contribution when the backend does not supply a gain figure.
var CapitalGainMultiplier = decimal.RequireFromString("1.20")

// WhaleThresholdPct is the share of the pool above which a contribution is
// subject to refund. Enforcement is the backend's; the client only shows the
// notice when the backend flags the Pioneer.
const WhaleThresholdPct = 10

// MetricsSnapshot holds the four IPO transparency values plus chart data.
// A snapshot is always replaced wholesale, never patched field by field.
type MetricsSnapshot struct {
	TotalInvestors  int64             `json:"totalInvestors"`
	TotalPiInvested decimal.Decimal   `json:"totalPiInvested"`
	UserPiInvested  decimal.Decimal   `json:"userPiInvested"`
	UserCapitalGain decimal.Decimal   `json:"userCapitalGain"`
	DailyPrices     []decimal.Decimal `json:"dailyPrices"` // chronological
	SpotPrice       decimal.Decimal   `json:"spotPrice"`
	IsWhale         bool              `json:"isWhale"` // backend compliance flag
}

// ZeroSnapshot returns the fail-safe snapshot rendered when no valid data
// is available.
func ZeroSnapshot() MetricsSnapshot {
	return MetricsSnapshot{DailyPrices: []decimal.Decimal{}}
}

// DeriveCapitalGain returns userPi * 1.20, without rounding.
func DeriveCapitalGain(userPi decimal.Decimal) decimal.Decimal {
	return userPi.Mul(CapitalGainMultiplier)
}

// Validate checks the per-field constraints of the data model.
// The cross-field invariant is checked separately by Consistent.
func (m MetricsSnapshot) Validate() error {
	if m.TotalInvestors < 0 {
		return fmt.Errorf("%w: totalInvestors %d is negative", ErrMalformedSnapshot, m.TotalInvestors)
	}
	if m.TotalPiInvested.IsNegative() {
		return fmt.Errorf("%w: totalPiInvested %s is negative", ErrMalformedSnapshot, m.TotalPiInvested)
	}
	if m.UserPiInvested.IsNegative() {
		return fmt.Errorf("%w: userPiInvested %s is negative", ErrMalformedSnapshot, m.UserPiInvested)
	}
	if m.SpotPrice.IsNegative() {
		return fmt.Errorf("%w: spotPrice %s is negative", ErrMalformedSnapshot, m.SpotPrice)
	}
	if len(m.DailyPrices) > MaxDailyPrices {
		return fmt.Errorf("%w: %d daily prices exceed the %d day phase", ErrMalformedSnapshot, len(m.DailyPrices), MaxDailyPrices)
	}
	for i, p := range m.DailyPrices {
		if p.IsNegative() {
			return fmt.Errorf("%w: daily price %d is negative", ErrMalformedSnapshot, i)
		}
	}
	return nil
}

// Consistent reports whether userPiInvested <= totalPiInvested.
func (m MetricsSnapshot) Consistent() bool {
	return m.UserPiInvested.LessThanOrEqual(m.TotalPiInvested)
}

// Clone returns a deep copy of the snapshot.
func (m MetricsSnapshot) Clone() MetricsSnapshot {
	c := m
	c.DailyPrices = make([]decimal.Decimal, len(m.DailyPrices))
	copy(c.DailyPrices, m.DailyPrices)
	return c
}

// SnapshotRecord is an accepted snapshot stored for history.
// Corresponds to metrics_snapshots table in ClickHouse.
type SnapshotRecord struct {
	Username   string
	ObservedAt int64 // when the snapshot was accepted (ms)
	Snapshot   MetricsSnapshot
}
