// Package strategy turns daily history and a live option chain into the
// three-row short-strangle table.
package strategy

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/eddiefleurent/zone_strangler/internal/models"
	"github.com/eddiefleurent/zone_strangler/internal/provider"
	"github.com/eddiefleurent/zone_strangler/internal/util"
)

// ErrInsufficientHistory is returned when fewer than two resampled periods exist.
var ErrInsufficientHistory = errors.New("insufficient history")

// Fallback band around spot when zones cannot be computed.
const (
	fallbackSupplyFactor = 1.02
	fallbackDemandFactor = 0.98
)

// HistoryPeriod picks the lookback: six months for weekly NIFTY, five years otherwise.
func HistoryPeriod(idx models.Index, h models.Horizon) provider.Period {
	if h == models.HorizonWeekly && idx == models.IndexNifty {
		return provider.Period6Months
	}
	return provider.Period5Years
}

// periodStart returns the first day of the calendar week (Monday) or month containing d.
func periodStart(d time.Time, h models.Horizon) time.Time {
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
	if h == models.HorizonMonthly {
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, d.Location())
	}
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	return day.AddDate(0, 0, -offset)
}

func validCandle(c models.Candle) bool {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return false
		}
	}
	return true
}

// Resample aggregates chronologically ordered daily candles into calendar
// weeks (Monday to Sunday) or calendar months: open is the first open, high
// the max, low the min and close the last close. Candles with a missing or
// non-positive field are ignored. Each period is dated by its first day.
func Resample(daily []models.Candle, h models.Horizon) []models.Candle {
	var out []models.Candle
	var curKey time.Time
	for _, c := range daily {
		if !validCandle(c) {
			continue
		}
		key := periodStart(c.Date, h)
		if len(out) == 0 || !key.Equal(curKey) {
			curKey = key
			out = append(out, models.Candle{Date: key, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close})
			continue
		}
		p := &out[len(out)-1]
		p.High = math.Max(p.High, c.High)
		p.Low = math.Min(p.Low, c.Low)
		p.Close = c.Close
	}
	return out
}

// sma averages the last n values, shrinking n to what is available.
func sma(vals []float64, n int) float64 {
	if n > len(vals) {
		n = len(vals)
	}
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals[len(vals)-n:] {
		sum += v
	}
	return sum / float64(n)
}

// ComputeZones derives supply and demand from the daily history:
//
//	rng5, rng10 = SMA(high-low, 5), SMA(high-low, 10) over resampled periods
//	base        = open of the final period
//	supply      = round2(max(base + rng5/2, base + rng10/2))
//	demand      = round2(min(base - rng5/2, base - rng10/2))
func ComputeZones(daily []models.Candle, h models.Horizon) (models.Zones, error) {
	periods := Resample(daily, h)
	if len(periods) < 2 {
		return models.Zones{}, fmt.Errorf("%w: %d %s periods", ErrInsufficientHistory, len(periods), h)
	}

	ranges := make([]float64, len(periods))
	for i, p := range periods {
		ranges[i] = p.High - p.Low
	}
	rng5 := sma(ranges, 5)
	rng10 := sma(ranges, 10)
	base := periods[len(periods)-1].Open

	u1, u2 := base+0.5*rng5, base+0.5*rng10
	l1, l2 := base-0.5*rng5, base-0.5*rng10
	return models.Zones{
		Supply:    util.Round2(math.Max(u1, u2)),
		Demand:    util.Round2(math.Min(l1, l2)),
		ZoneBased: true,
	}, nil
}

// FallbackZones brackets spot by ±2%.
func FallbackZones(spot float64) models.Zones {
	return models.Zones{
		Supply:    spot * fallbackSupplyFactor,
		Demand:    spot * fallbackDemandFactor,
		ZoneBased: false,
	}
}
