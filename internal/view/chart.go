package view

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"mapcap-ipo/internal/domain"
)

// Chart geometry in SVG user units (viewBox 0 0 400 200).
const (
	ChartLeft   = 40.0
	ChartRight  = 360.0
	ChartTop    = 20.0
	ChartBottom = 160.0
)

// peakHeadroom puts the top of the y axis 20% above the peak price.
var peakHeadroom = decimal.RequireFromString("1.2")

// ChartEmptyText is shown before the first daily price exists.
const ChartEmptyText = "Calculating..."

// Point is a plotted daily price.
type Point struct {
	X, Y  float64
	Day   int
	Price string
}

// Chart is the spot-price chart over the 28-day phase.
type Chart struct {
	Empty    bool
	Points   []Point
	Polyline string // SVG points attribute
	AxisMax  string // y value at ChartTop, in Pi
	Labels   []AxisLabel
}

// AxisLabel is a week marker on the x axis.
type AxisLabel struct {
	X    float64
	Text string
}

// DayX returns the x coordinate of day index i (0-based).
func DayX(i int) float64 {
	return ChartLeft + float64(i)*((ChartRight-ChartLeft)/domain.MaxDailyPrices)
}

// BuildChart scales prices so the y axis runs from 0 to 20% above the peak.
func BuildChart(prices []decimal.Decimal) Chart {
	c := Chart{
		Labels: []AxisLabel{
			{X: ChartLeft, Text: "Week 1"},
			{X: ChartRight, Text: "Week 4"},
		},
	}
	if len(prices) == 0 {
		c.Empty = true
		c.AxisMax = "0"
		return c
	}
	if len(prices) > domain.MaxDailyPrices {
		prices = prices[:domain.MaxDailyPrices]
	}

	peak := decimal.Zero
	for _, p := range prices {
		if p.GreaterThan(peak) {
			peak = p
		}
	}
	axisMax := peak.Mul(peakHeadroom)
	c.AxisMax = FormatPi(axisMax)

	height := ChartBottom - ChartTop
	coords := make([]string, 0, len(prices))
	for i, p := range prices {
		y := ChartBottom
		if axisMax.IsPositive() {
			ratio, _ := p.Div(axisMax).Float64()
			y = ChartBottom - ratio*height
		}
		pt := Point{X: DayX(i), Y: y, Day: i + 1, Price: FormatPi(p)}
		c.Points = append(c.Points, pt)
		coords = append(coords, fmt.Sprintf("%.2f,%.2f", pt.X, pt.Y))
	}
	c.Polyline = strings.Join(coords, " ")
	return c
}
