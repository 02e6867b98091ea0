package util

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTickRounding(t *testing.T) {
	tests := []struct {
		name string
		fn   func(x, tick float64) float64
		x    float64
		tick float64
		want float64
	}{
		{"round down", RoundToTick, 1.2345, 0.01, 1.23},
		{"tie away from zero", RoundToTick, 1.235, 0.01, 1.24},
		{"negative tie away from zero", RoundToTick, -1.235, 0.01, -1.24},
		{"strike step", RoundToTick, 24837, 50, 24850},
		{"banknifty strike step", RoundToTick, 51149.99, 100, 51100},
		{"floor just below boundary", FloorToTick, 1.2999999999999, 0.05, 1.25},
		{"floor just above boundary", FloorToTick, 1.2500000000001, 0.05, 1.25},
		{"floor negative", FloorToTick, -1.237, 0.01, -1.24},
		{"floor demand zone", FloorToTick, 24213.4, 50, 24200},
		{"ceil just above boundary", CeilToTick, 1.2500000000001, 0.05, 1.30},
		{"ceil just below boundary", CeilToTick, 1.2999999999999, 0.05, 1.30},
		{"ceil negative", CeilToTick, -1.231, 0.01, -1.23},
		{"ceil supply zone", CeilToTick, 24801.2, 50, 24850},
		{"ceil exact multiple", CeilToTick, 24800, 50, 24800},
		{"negative tick uses absolute value", RoundToTick, 1.235, -0.01, 1.24},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.fn(tt.x, tt.tick), 1e-10)
		})
	}
}

func TestTickRoundingPassthrough(t *testing.T) {
	for _, fn := range []func(x, tick float64) float64{RoundToTick, FloorToTick, CeilToTick} {
		assert.Equal(t, 1.2345, fn(1.2345, 0))
		assert.True(t, math.IsNaN(fn(math.NaN(), 0.01)))
		assert.True(t, math.IsInf(fn(math.Inf(1), 0.01), 1))
		assert.True(t, math.IsInf(fn(math.Inf(-1), 0.01), -1))
	}
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 24912.35, Round2(24912.345))
	assert.Equal(t, -0.01, Round2(-0.005))
	assert.Equal(t, 100.0, Round2(100))
}

func TestRoundToNearest50(t *testing.T) {
	// 0.8 * 200 * 75
	assert.Equal(t, 12000.0, RoundToNearest50(12000))
	// 0.8 * 137.35 * 35 = 3845.8
	assert.Equal(t, 3850.0, RoundToNearest50(3845.8))
	assert.Equal(t, 50.0, RoundToNearest50(25))
	assert.Equal(t, 0.0, RoundToNearest50(24.99))
}

func TestMarkToMarket(t *testing.T) {
	assert.Equal(t, 3750.0, MarkToMarket(200, 150, 75))
	assert.Equal(t, -1312.5, MarkToMarket(100, 137.5, 35))
	assert.Equal(t, 0.0, MarkToMarket(80.1, 80.1, 75))
}

func TestMarketLocation(t *testing.T) {
	loc := MarketLocation()
	noon := time.Date(2025, 8, 11, 12, 0, 0, 0, time.UTC).In(loc)
	_, offset := noon.Zone()
	assert.Equal(t, 5*3600+1800, offset)
	assert.Equal(t, 17, noon.Hour())

	assert.Equal(t, offset, zoneOffset(LoadLocation("Not/AZone")))
	assert.Equal(t, time.Date(2025, 8, 11, 0, 0, 0, 0, loc), DateOnly(noon))
}

func zoneOffset(loc *time.Location) int {
	_, off := time.Date(2025, 1, 1, 0, 0, 0, 0, loc).Zone()
	return off
}
