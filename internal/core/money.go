// Package core provides money formatting and percentage helpers.
//
// Amounts are whole FCFA stored as int64. Percentages and averages go through
// shopspring/decimal and round exact halves to even, so 2.5 gives 2 and 3.5 gives 4.
package core

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FormatFCFA renders an amount with space thousands separators.
//
// Examples:
//
//	FormatFCFA(125000)  -> "125 000 FCFA"
//	FormatFCFA(-2500)   -> "-2 500 FCFA"
func FormatFCFA(amount int64) string {
	neg := amount < 0
	// Negating in uint64 keeps math.MinInt64 exact.
	magnitude := uint64(amount)
	if neg {
		magnitude = -magnitude
	}
	digits := strconv.FormatUint(magnitude, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	b.WriteString(" FCFA")
	return b.String()
}

// Progress returns achieved/target as a percentage capped at 100, rounded to one decimal.
func Progress(achieved, target int64) float64 {
	if target <= 0 {
		return 0
	}
	p := decimal.NewFromInt(achieved).Div(decimal.NewFromInt(target)).Mul(hundred)
	if p.GreaterThan(hundred) {
		p = hundred
	}
	return p.RoundBank(1).InexactFloat64()
}

// Trend returns the whole-percent change from previous to current, 0 when previous is 0.
func Trend(current, previous int64) int64 {
	if previous <= 0 {
		return 0
	}
	d := decimal.NewFromInt(current - previous).Div(decimal.NewFromInt(previous)).Mul(hundred)
	return d.RoundBank(0).IntPart()
}

// Average divides total by days and rounds to the nearest FCFA.
func Average(total int64, days int) int64 {
	if days <= 0 {
		return 0
	}
	return decimal.NewFromInt(total).Div(decimal.NewFromInt(int64(days))).RoundBank(0).IntPart()
}
