// Package view builds the presentation model shared by the web and
// terminal dashboards. It holds no state.
package view

import (
	"strings"

	"github.com/shopspring/decimal"
)

// maxFractionDigits is the precision of displayed Pi amounts.
const maxFractionDigits = 4

// FormatPi renders d with thousands separators and at most four
// fractional digits, trailing zeros trimmed.
func FormatPi(d decimal.Decimal) string {
	s := d.Round(maxFractionDigits).String()

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")

	out := sign + groupThousands(intPart)
	if hasFrac {
		out += "." + frac
	}
	if out == "-0" {
		return "0"
	}
	return out
}

// FormatCount renders n with thousands separators.
func FormatCount(n int64) string {
	return FormatPi(decimal.NewFromInt(n))
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
