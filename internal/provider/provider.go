// Package provider defines the market-data contracts used by the strategy
// builder and the monitor, plus concrete NSE, Yahoo and synthetic adapters.
package provider

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/eddiefleurent/zone_strangler/internal/models"
)

var (
	// ErrProviderUnavailable is returned once retries are exhausted, the
	// circuit is open or the call deadline passed.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrNoData means the upstream answered but had nothing for the request.
	ErrNoData = errors.New("no data")
)

// Period is a history lookback understood by HistoryProvider.
type Period string

const (
	Period6Months Period = "6mo"
	Period5Years  Period = "5y"
)

// HistoryProvider returns daily candles for an index symbol, oldest first,
// one row per trading day. An empty result is not an error.
type HistoryProvider interface {
	FetchDaily(ctx context.Context, symbol string, period Period) ([]models.Candle, error)
}

// ChainProvider returns listed expiries and the live option chain.
type ChainProvider interface {
	ListExpiries(ctx context.Context, symbol string) ([]time.Time, error)
	FetchChain(ctx context.Context, symbol string) (*Chain, error)
}

// Quote holds last traded prices at one strike. Zero means no traded price.
type Quote struct {
	CE float64 `json:"ce"`
	PE float64 `json:"pe"`
}

// StrikeQuotes maps strike to quote for one expiry.
type StrikeQuotes map[float64]Quote

// Chain is one snapshot of an index option chain.
type Chain struct {
	Underlying float64                 `json:"underlying_value"`
	Expiries   map[string]StrikeQuotes `json:"expiries"` // keyed by DateKey
}

// DateKey is the map key used for expiries.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// NewChain creates an empty snapshot.
func NewChain(underlying float64) *Chain {
	return &Chain{Underlying: underlying, Expiries: make(map[string]StrikeQuotes)}
}

// Set records a quote, keeping any side already present when the new one is zero.
func (c *Chain) Set(expiry time.Time, strike float64, q Quote) {
	key := DateKey(expiry)
	sq, ok := c.Expiries[key]
	if !ok {
		sq = make(StrikeQuotes)
		c.Expiries[key] = sq
	}
	cur := sq[strike]
	if q.CE > 0 {
		cur.CE = q.CE
	}
	if q.PE > 0 {
		cur.PE = q.PE
	}
	sq[strike] = cur
}

// ForExpiry returns the quotes for an expiry, nil when it is not listed.
func (c *Chain) ForExpiry(expiry time.Time) StrikeQuotes {
	if c == nil {
		return nil
	}
	return c.Expiries[DateKey(expiry)]
}

// Prices looks up the CE price at ceStrike and the PE price at peStrike.
// Missing strikes price as zero.
func (c *Chain) Prices(expiry time.Time, ceStrike, peStrike float64) (ce, pe float64) {
	sq := c.ForExpiry(expiry)
	return sq[ceStrike].CE, sq[peStrike].PE
}

// ExpiryDates returns the listed expiries in ascending order.
func (c *Chain) ExpiryDates(loc *time.Location) []time.Time {
	if loc == nil {
		loc = time.UTC
	}
	out := make([]time.Time, 0, len(c.Expiries))
	for key := range c.Expiries {
		if t, err := time.ParseInLocation("2006-01-02", key, loc); err == nil {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// PEPrices returns strike → PE price for strikes with a traded put.
func (sq StrikeQuotes) PEPrices() map[float64]float64 {
	out := make(map[float64]float64, len(sq))
	for strike, q := range sq {
		if q.PE > 0 {
			out[strike] = q.PE
		}
	}
	return out
}

// CEPrices returns strike → CE price for strikes with a traded call.
func (sq StrikeQuotes) CEPrices() map[float64]float64 {
	out := make(map[float64]float64, len(sq))
	for strike, q := range sq {
		if q.CE > 0 {
			out[strike] = q.CE
		}
	}
	return out
}

// ChainSymbol is the symbol the option-chain provider knows an index by.
func ChainSymbol(idx models.Index) string {
	return string(idx)
}
