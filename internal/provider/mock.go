package provider

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/eddiefleurent/zone_strangler/internal/models"
)

// MockProvider serves a synthetic chain and history around a drifting spot.
// It backs paper mode so the whole pipeline runs without network access.
type MockProvider struct {
	mu   sync.Mutex
	spot map[models.Index]float64
	vol  float64 // annualised volatility used for premiums
	now  func() time.Time
	loc  *time.Location
}

// secureFloat64 generates a cryptographically secure random float64 between 0 and 1
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// NewMockProvider creates a provider with spots near recent index levels.
func NewMockProvider(loc *time.Location, now func() time.Time) *MockProvider {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &MockProvider{
		spot: map[models.Index]float64{
			models.IndexNifty:     24500 + secureFloat64()*500,
			models.IndexBankNifty: 51000 + secureFloat64()*1000,
		},
		vol: 0.12 + secureFloat64()*0.06,
		now: now,
		loc: loc,
	}
}

func (m *MockProvider) index(symbol string) (models.Index, error) {
	switch symbol {
	case string(models.IndexNifty), models.IndexNifty.HistorySymbol():
		return models.IndexNifty, nil
	case string(models.IndexBankNifty), models.IndexBankNifty.HistorySymbol():
		return models.IndexBankNifty, nil
	}
	return "", fmt.Errorf("%w: unknown symbol %s", ErrNoData, symbol)
}

// FetchDaily returns a random walk ending at the current spot, weekdays only.
func (m *MockProvider) FetchDaily(ctx context.Context, symbol string, period Period) ([]models.Candle, error) {
	idx, err := m.index(symbol)
	if err != nil {
		return nil, err
	}
	days := 183
	if period == Period5Years {
		days = 5 * 365
	}

	m.mu.Lock()
	price := m.spot[idx]
	m.mu.Unlock()

	today := m.today()
	var rev []models.Candle
	for d := 1; d <= days; d++ {
		day := today.AddDate(0, 0, -d)
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		move := price * 0.01 * (secureFloat64() - 0.5) * 2
		closePx := price
		openPx := price - move
		high := math.Max(openPx, closePx) * (1 + secureFloat64()*0.005)
		low := math.Min(openPx, closePx) * (1 - secureFloat64()*0.005)
		rev = append(rev, models.Candle{Date: day, Open: openPx, High: high, Low: low, Close: closePx})
		price = openPx
	}

	out := make([]models.Candle, len(rev))
	for i, c := range rev {
		out[len(rev)-1-i] = c
	}
	return out, nil
}

// ListExpiries returns the next four Thursdays plus the following two
// month-end Thursdays.
func (m *MockProvider) ListExpiries(ctx context.Context, symbol string) ([]time.Time, error) {
	if _, err := m.index(symbol); err != nil {
		return nil, err
	}
	return m.expiries(), nil
}

// FetchChain prices strikes within forty steps of spot on every listed expiry.
func (m *MockProvider) FetchChain(ctx context.Context, symbol string) (*Chain, error) {
	idx, err := m.index(symbol)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.spot[idx] += (secureFloat64() - 0.5) * m.spot[idx] * 0.002
	spot := m.spot[idx]
	vol := m.vol
	m.mu.Unlock()

	step := idx.StrikeStep()
	atm := math.Round(spot/step) * step
	chain := NewChain(math.Round(spot*100) / 100)
	today := m.today()
	for _, exp := range m.expiries() {
		years := math.Max(exp.Sub(today).Hours()/24, 0.5) / 365
		sd := spot * vol * math.Sqrt(years)
		for k := -40; k <= 40; k++ {
			strike := atm + float64(k)*step
			chain.Set(exp, strike, Quote{
				CE: premium(spot, strike, sd, true),
				PE: premium(spot, strike, sd, false),
			})
		}
	}
	return chain, nil
}

// premium is intrinsic value plus a time value that decays with distance
// from spot in standard deviations.
func premium(spot, strike, sd float64, call bool) float64 {
	intrinsic := math.Max(0, strike-spot)
	if call {
		intrinsic = math.Max(0, spot-strike)
	}
	z := math.Abs(strike-spot) / sd
	timeValue := 0.4 * sd * math.Exp(-0.5*z*z)
	p := math.Round((intrinsic+timeValue)*20) / 20
	if p < 0.05 {
		return 0
	}
	return p
}

func (m *MockProvider) today() time.Time {
	n := m.now().In(m.loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, m.loc)
}

func (m *MockProvider) expiries() []time.Time {
	today := m.today()
	seen := make(map[string]bool)
	var out []time.Time
	add := func(t time.Time) {
		if k := DateKey(t); !seen[k] {
			seen[k] = true
			out = append(out, t)
		}
	}

	thu := today.AddDate(0, 0, (int(time.Thursday)-int(today.Weekday())+7)%7)
	for i := 0; i < 4; i++ {
		add(thu.AddDate(0, 0, 7*i))
	}
	for i := 0; i < 2; i++ {
		firstOfNext := time.Date(today.Year(), today.Month()+time.Month(i+1), 1, 0, 0, 0, 0, m.loc)
		last := firstOfNext.AddDate(0, 0, -1)
		for last.Weekday() != time.Thursday {
			last = last.AddDate(0, 0, -1)
		}
		if !last.Before(today) {
			add(last)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

var (
	_ ChainProvider   = (*MockProvider)(nil)
	_ HistoryProvider = (*MockProvider)(nil)
)
