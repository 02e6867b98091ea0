// Package util provides common utility functions for price calculations
// and market-timezone handling.
package util

import (
	"math"

	"github.com/shopspring/decimal"
)

func tickDecimal(x, tick float64) (decimal.Decimal, decimal.Decimal, bool) {
	if tick == 0 || math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(tick) || math.IsInf(tick, 0) {
		return decimal.Zero, decimal.Zero, false
	}
	return decimal.NewFromFloat(x), decimal.NewFromFloat(math.Abs(tick)), true
}

// RoundToTick rounds x to the nearest tick increment, ties away from zero.
// For example, with tick=0.01, 1.235 becomes 1.24.
func RoundToTick(x, tick float64) float64 {
	d, t, ok := tickDecimal(x, tick)
	if !ok {
		return x
	}
	return d.Div(t).Round(0).Mul(t).InexactFloat64()
}

// FloorToTick rounds x down to a tick multiple.
func FloorToTick(x, tick float64) float64 {
	d, t, ok := tickDecimal(x, tick)
	if !ok {
		return x
	}
	return d.Div(t).Floor().Mul(t).InexactFloat64()
}

// CeilToTick rounds x up to a tick multiple.
func CeilToTick(x, tick float64) float64 {
	d, t, ok := tickDecimal(x, tick)
	if !ok {
		return x
	}
	return d.Div(t).Ceil().Mul(t).InexactFloat64()
}

// Round2 rounds to cents.
func Round2(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	return decimal.NewFromFloat(x).Round(2).InexactFloat64()
}

// RoundToNearest50 rounds a rupee amount to the nearest 50.
func RoundToNearest50(x float64) float64 {
	return RoundToTick(x, 50)
}

// MarkToMarket returns (initial - current) * lot, rounded to cents.
func MarkToMarket(initialPremium, currentPremium float64, lotSize int) float64 {
	pnl := decimal.NewFromFloat(initialPremium).
		Sub(decimal.NewFromFloat(currentPremium)).
		Mul(decimal.NewFromInt(int64(lotSize)))
	return pnl.Round(2).InexactFloat64()
}
