package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/zone_strangler/internal/models"
	"github.com/eddiefleurent/zone_strangler/internal/provider"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, ist)
}

// weekdayCandles returns weekday candles for n weeks starting on a Monday.
func weekdayCandles(start time.Time, weeks int, open, high, low float64) []models.Candle {
	var out []models.Candle
	for d := start; d.Before(start.AddDate(0, 0, 7*weeks)); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		out = append(out, models.Candle{Date: d, Open: open, High: high, Low: low, Close: open})
	}
	return out
}

func TestResample_Weekly(t *testing.T) {
	daily := []models.Candle{
		{Date: day(2025, 8, 4), Open: 100, High: 105, Low: 98, Close: 104},
		{Date: day(2025, 8, 6), Open: 104, High: 110, Low: 101, Close: 109},
		{Date: day(2025, 8, 8), Open: 109, High: 109, Low: 95, Close: 96},
		{Date: day(2025, 8, 10), Open: 0, High: 0, Low: 0, Close: 0}, // missing row
		{Date: day(2025, 8, 11), Open: 97, High: 99, Low: 90, Close: 91},
	}
	got := Resample(daily, models.HorizonWeekly)
	require.Len(t, got, 2)
	assert.Equal(t, models.Candle{Date: day(2025, 8, 4), Open: 100, High: 110, Low: 95, Close: 96}, got[0])
	assert.Equal(t, day(2025, 8, 11), got[1].Date)
	assert.Equal(t, 97.0, got[1].Open)
}

func TestResample_Monthly(t *testing.T) {
	daily := []models.Candle{
		{Date: day(2025, 7, 30), Open: 10, High: 12, Low: 9, Close: 11},
		{Date: day(2025, 7, 31), Open: 11, High: 15, Low: 10, Close: 14},
		{Date: day(2025, 8, 1), Open: 14, High: 14, Low: 8, Close: 9},
	}
	got := Resample(daily, models.HorizonMonthly)
	require.Len(t, got, 2)
	assert.Equal(t, 15.0, got[0].High)
	assert.Equal(t, 9.0, got[0].Low)
	assert.Equal(t, 14.0, got[1].Open)
}

func TestComputeZones_ConstantRange(t *testing.T) {
	candles := weekdayCandles(day(2025, 1, 6), 30, 100, 108, 92)
	z, err := ComputeZones(candles, models.HorizonWeekly)
	require.NoError(t, err)
	assert.Equal(t, models.Zones{Supply: 108, Demand: 92, ZoneBased: true}, z)
}

func TestComputeZones_ShortHistoryUsesAvailablePeriods(t *testing.T) {
	// Three weeks with ranges 10, 20, 30: both averages cover all three.
	var candles []models.Candle
	for i, rng := range []float64{10, 20, 30} {
		candles = append(candles, models.Candle{Date: day(2025, 8, 4).AddDate(0, 0, 7*i), Open: 1000, High: 1000 + rng, Low: 1000, Close: 1000})
	}
	z, err := ComputeZones(candles, models.HorizonWeekly)
	require.NoError(t, err)
	assert.Equal(t, 1010.0, z.Supply)
	assert.Equal(t, 990.0, z.Demand)
}

func TestComputeZones_InsufficientHistory(t *testing.T) {
	_, err := ComputeZones(nil, models.HorizonWeekly)
	assert.True(t, errors.Is(err, ErrInsufficientHistory))

	_, err = ComputeZones(weekdayCandles(day(2025, 8, 4), 1, 100, 101, 99), models.HorizonWeekly)
	assert.True(t, errors.Is(err, ErrInsufficientHistory))
}

func TestComputeZones_BracketsBase(t *testing.T) {
	candles := weekdayCandles(day(2024, 1, 1), 60, 500, 530, 480)
	for _, h := range []models.Horizon{models.HorizonWeekly, models.HorizonMonthly} {
		z, err := ComputeZones(candles, h)
		require.NoError(t, err, h)
		assert.GreaterOrEqual(t, z.Supply, 500.0, h)
		assert.LessOrEqual(t, z.Demand, 500.0, h)
	}
}

func TestFallbackZones(t *testing.T) {
	z := FallbackZones(25000)
	assert.InDelta(t, 1.02, z.Supply/25000, 1e-12)
	assert.InDelta(t, 0.98, z.Demand/25000, 1e-12)
	assert.False(t, z.ZoneBased)
}

func TestSelectStrikes_EmptyChain(t *testing.T) {
	s := SelectStrikes(models.Zones{Supply: 108, Demand: 92}, 50, nil)
	assert.Equal(t, [3]float64{150, 200, 250}, s.CE)
	assert.Equal(t, [3]float64{50, 0, -50}, s.PE)
}

func TestSelectStrikes_RichestPutsBelowHigh(t *testing.T) {
	pe := map[float64]float64{
		24300: 100, // above pe_high
		24250: 80,  // pe_high itself is not a candidate
		24200: 60,
		24150: 45,
		24100: 45,
		24050: 0,
	}
	s := SelectStrikes(models.Zones{Supply: 24810, Demand: 24290}, 50, pe)
	assert.Equal(t, [3]float64{24850, 24900, 24950}, s.CE)
	assert.Equal(t, [3]float64{24250, 24200, 24150}, s.PE)
}

func TestSelectStrikes_SingleCandidate(t *testing.T) {
	s := SelectStrikes(models.Zones{Supply: 51210, Demand: 50050}, 100, map[float64]float64{49700: 20})
	assert.Equal(t, [3]float64{51300, 51400, 51500}, s.CE)
	assert.Equal(t, [3]float64{50000, 49700, 49600}, s.PE)
}

func TestThreshold(t *testing.T) {
	assert.Equal(t, 12000.0, Threshold(200, 75))
	assert.Equal(t, 9200.0, Threshold(153.3, 75))
	assert.Equal(t, 0.0, Threshold(0, 75))
}

func TestBuildTable_PricesRowsAndWarnsOnZeroThreshold(t *testing.T) {
	quotes := provider.StrikeQuotes{
		24850: {CE: 120},
		24900: {CE: 90},
		24250: {PE: 80},
		24200: {PE: 60},
		24150: {PE: 45},
	}
	table := BuildTable(TableInput{
		Index:   models.IndexNifty,
		Horizon: models.HorizonWeekly,
		Expiry:  day(2025, 8, 14),
		LotSize: 75,
		Zones:   models.Zones{Supply: 24810, Demand: 24290, ZoneBased: true},
		Spot:    24550,
		Quotes:  quotes,
	})

	require.Len(t, table.Rows, 3)
	for i, row := range table.Rows {
		assert.Equal(t, models.RewardTiers[i], row.Tier)
		assert.Equal(t, row.TargetAmount, row.StoplossAmount)
	}
	high := table.Rows[0]
	assert.Equal(t, 200.0, high.CombinedPremium)
	assert.Equal(t, 12000.0, high.TargetAmount)
	assert.Equal(t, "NIFTY_14-Aug-2025_HighReward", table.TradeID(high))

	low := table.Rows[2]
	assert.Equal(t, 24950.0, low.CEStrike)
	assert.Equal(t, 0.0, low.CEPrice)
	assert.Equal(t, 45.0, low.PEPrice)
	require.Len(t, table.Warnings, 1)
	assert.Contains(t, table.Warnings[0], "no traded CE price at 24950")
}

func TestBuildTable_EmptyQuotes(t *testing.T) {
	table := BuildTable(TableInput{
		Index:   models.IndexNifty,
		Horizon: models.HorizonWeekly,
		Expiry:  day(2025, 8, 14),
		LotSize: 75,
		Zones:   FallbackZones(100),
		Spot:    100,
	})
	require.Len(t, table.Rows, 3)
	for _, row := range table.Rows {
		assert.Zero(t, row.TargetAmount)
		assert.Zero(t, row.StoplossAmount)
	}
	// One fallback warning plus one per zero-threshold row.
	assert.Len(t, table.Warnings, 4)
}

func TestNextWeeklyExpiry(t *testing.T) {
	assert.Equal(t, day(2025, 8, 14), NextWeeklyExpiry(day(2025, 8, 11)))
	assert.Equal(t, day(2025, 8, 14), NextWeeklyExpiry(day(2025, 8, 14)))
	assert.Equal(t, day(2025, 8, 21), NextWeeklyExpiry(day(2025, 8, 15)))
}

func TestNextMonthlyExpiry(t *testing.T) {
	assert.Equal(t, day(2025, 8, 28), NextMonthlyExpiry(day(2025, 8, 1)))
	assert.Equal(t, day(2025, 8, 28), NextMonthlyExpiry(day(2025, 8, 28)))
	assert.Equal(t, day(2025, 9, 25), NextMonthlyExpiry(day(2025, 8, 29)))
	assert.Equal(t, day(2026, 1, 29), NextMonthlyExpiry(day(2025, 12, 26)))
}

func TestResolveExpiry(t *testing.T) {
	today := day(2025, 8, 11)
	computed := day(2025, 8, 14)
	tests := []struct {
		name   string
		listed []time.Time
		want   time.Time
	}{
		{"exact", []time.Time{day(2025, 8, 14), day(2025, 8, 21)}, day(2025, 8, 14)},
		{"holiday moves earlier", []time.Time{day(2025, 8, 13), day(2025, 8, 21)}, day(2025, 8, 13)},
		{"past dates ignored", []time.Time{day(2025, 8, 7), day(2025, 8, 21)}, day(2025, 8, 21)},
		{"nothing listed", nil, computed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveExpiry(computed, tt.listed, today))
		})
	}
}

func TestHistoryPeriod(t *testing.T) {
	assert.Equal(t, provider.Period6Months, HistoryPeriod(models.IndexNifty, models.HorizonWeekly))
	assert.Equal(t, provider.Period5Years, HistoryPeriod(models.IndexNifty, models.HorizonMonthly))
	assert.Equal(t, provider.Period5Years, HistoryPeriod(models.IndexBankNifty, models.HorizonWeekly))
}

type stubHistory struct {
	candles []models.Candle
	err     error
	symbol  string
	period  provider.Period
}

func (s *stubHistory) FetchDaily(_ context.Context, symbol string, period provider.Period) ([]models.Candle, error) {
	s.symbol, s.period = symbol, period
	return s.candles, s.err
}

type stubChain struct {
	chain   *provider.Chain
	listed  []time.Time
	err     error
	symbols []string
}

func (s *stubChain) ListExpiries(_ context.Context, symbol string) ([]time.Time, error) {
	s.symbols = append(s.symbols, symbol)
	return s.listed, s.err
}

func (s *stubChain) FetchChain(_ context.Context, symbol string) (*provider.Chain, error) {
	s.symbols = append(s.symbols, symbol)
	return s.chain, s.err
}

func TestBuilder_ZoneBasedWeeklyNifty(t *testing.T) {
	history := &stubHistory{candles: weekdayCandles(day(2025, 1, 6), 30, 100, 108, 92)}
	chain := &stubChain{chain: provider.NewChain(100)}
	now := func() time.Time { return time.Date(2025, 8, 11, 10, 0, 0, 0, ist) }

	b := NewBuilder(history, chain, ist, nil, now)
	table, err := b.Build(context.Background(), Request{Index: models.IndexNifty, Horizon: models.HorizonWeekly, Expiry: day(2025, 8, 14)})
	require.NoError(t, err)

	assert.Equal(t, "^NSEI", history.symbol)
	assert.Equal(t, provider.Period6Months, history.period)
	assert.True(t, table.Zones.ZoneBased)
	assert.Equal(t, 75, table.LotSize)

	var ce, pe []float64
	for _, row := range table.Rows {
		ce = append(ce, row.CEStrike)
		pe = append(pe, row.PEStrike)
	}
	assert.Equal(t, []float64{150, 200, 250}, ce)
	assert.Equal(t, []float64{50, 0, -50}, pe)
}

func TestBuilder_FallsBackWhenHistoryEmpty(t *testing.T) {
	c := provider.NewChain(25000)
	c.Set(day(2025, 8, 14), 25500, provider.Quote{CE: 40})
	b := NewBuilder(&stubHistory{}, &stubChain{chain: c}, ist, nil, func() time.Time { return time.Date(2025, 8, 11, 10, 0, 0, 0, ist) })

	table, err := b.Build(context.Background(), Request{Index: models.IndexNifty, Horizon: models.HorizonWeekly, LotSize: 50})
	require.NoError(t, err)
	assert.False(t, table.Zones.ZoneBased)
	assert.InDelta(t, 1.02, table.Zones.Supply/25000, 1e-12)
	assert.InDelta(t, 0.98, table.Zones.Demand/25000, 1e-12)
	assert.Equal(t, day(2025, 8, 14), table.Expiry)
	assert.Equal(t, 50, table.LotSize)
	assert.Equal(t, 25500.0, table.Rows[0].CEStrike)
	assert.Equal(t, 40.0, table.Rows[0].CEPrice)
	assert.NotEmpty(t, table.Warnings)
}

func TestBuilder_ResolvesHolidayExpiry(t *testing.T) {
	c := provider.NewChain(24550)
	c.Set(day(2025, 8, 13), 24600, provider.Quote{CE: 100})
	c.Set(day(2025, 8, 21), 24600, provider.Quote{CE: 150})
	b := NewBuilder(&stubHistory{err: provider.ErrProviderUnavailable}, &stubChain{chain: c}, ist, nil,
		func() time.Time { return time.Date(2025, 8, 11, 10, 0, 0, 0, ist) })

	table, err := b.Build(context.Background(), Request{Index: models.IndexNifty, Horizon: models.HorizonWeekly})
	require.NoError(t, err)
	assert.Equal(t, "13-Aug-2025", table.ExpiryLabel())
}

func TestBuilder_ChainFailureIsAnError(t *testing.T) {
	b := NewBuilder(&stubHistory{}, &stubChain{err: provider.ErrProviderUnavailable}, ist, nil, nil)
	_, err := b.Build(context.Background(), Request{Index: models.IndexBankNifty, Horizon: models.HorizonMonthly})
	assert.True(t, errors.Is(err, provider.ErrProviderUnavailable))

	_, err = b.Build(context.Background(), Request{Index: "SENSEX", Horizon: models.HorizonWeekly})
	assert.Error(t, err)
}

func TestBuilder_ExpiriesDropsPastDates(t *testing.T) {
	chain := &stubChain{listed: []time.Time{day(2025, 8, 7), day(2025, 8, 14), day(2025, 8, 28)}}
	b := NewBuilder(&stubHistory{}, chain, ist, nil, func() time.Time { return time.Date(2025, 8, 11, 10, 0, 0, 0, ist) })

	got, err := b.Expiries(context.Background(), models.IndexBankNifty)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(2025, 8, 14), day(2025, 8, 28)}, got)
	assert.Equal(t, []string{"BANKNIFTY"}, chain.symbols)
}
