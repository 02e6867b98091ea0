// Package models provides the data structures shared by the strategy builder,
// the trade lifecycle and the monitoring scheduler.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Index is one of the tradable index underlyings.
type Index string

const (
	// IndexNifty is the NIFTY 50 index
	IndexNifty Index = "NIFTY"
	// IndexBankNifty is the NIFTY BANK index
	IndexBankNifty Index = "BANKNIFTY"
)

// Indices lists every supported index in a stable order.
var Indices = []Index{IndexNifty, IndexBankNifty}

// ParseIndex accepts an index name in any case.
func ParseIndex(s string) (Index, error) {
	idx := Index(strings.ToUpper(strings.TrimSpace(s)))
	if !idx.Valid() {
		return "", fmt.Errorf("unknown index %q", s)
	}
	return idx, nil
}

// Valid returns true if the Index is one of the defined constants
func (i Index) Valid() bool {
	switch i {
	case IndexNifty, IndexBankNifty:
		return true
	default:
		return false
	}
}

// StrikeStep returns the minimum spacing between listed strikes.
func (i Index) StrikeStep() float64 {
	if i == IndexBankNifty {
		return 100
	}
	return 50
}

// DefaultLotSize is used when the settings carry no override.
func (i Index) DefaultLotSize() int {
	if i == IndexBankNifty {
		return 35
	}
	return 75
}

// HistorySymbol is the symbol the history provider knows the index by.
func (i Index) HistorySymbol() string {
	if i == IndexBankNifty {
		return "^NSEBANK"
	}
	return "^NSEI"
}

// Horizon selects the resample period applied to daily candles.
type Horizon string

const (
	// HorizonWeekly resamples to calendar weeks
	HorizonWeekly Horizon = "Weekly"
	// HorizonMonthly resamples to calendar months
	HorizonMonthly Horizon = "Monthly"
)

// ParseHorizon accepts "weekly"/"monthly" in any case.
func ParseHorizon(s string) (Horizon, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "weekly", "week", "w":
		return HorizonWeekly, nil
	case "monthly", "month", "m":
		return HorizonMonthly, nil
	default:
		return "", fmt.Errorf("unknown horizon %q", s)
	}
}

// Valid returns true if the Horizon is one of the defined constants
func (h Horizon) Valid() bool {
	return h == HorizonWeekly || h == HorizonMonthly
}

// Candle is one daily (or resampled) OHLC bar.
type Candle struct {
	Date  time.Time `json:"date"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// Zones is the supply/demand pair derived from recent candles.
type Zones struct {
	Supply float64 `json:"supply"`
	Demand float64 `json:"demand"`
	// ZoneBased is false when the percentage fallback around spot was used.
	ZoneBased bool `json:"zone_based"`
}

// RewardTier labels a strategy row by distance from the zones.
type RewardTier string

const (
	// RewardHigh sits closest to the zones and carries the most premium
	RewardHigh RewardTier = "High"
	// RewardMid is one step further out
	RewardMid RewardTier = "Mid"
	// RewardLow is furthest out of the money
	RewardLow RewardTier = "Low"
)

// RewardTiers lists the tiers in table order.
var RewardTiers = []RewardTier{RewardHigh, RewardMid, RewardLow}

// Label returns the form used in trade ids, e.g. "HighReward".
func (r RewardTier) Label() string {
	return string(r) + "Reward"
}

// ExpiryLayout is the date layout used for expiries in trade ids and on disk.
const ExpiryLayout = "02-Jan-2006"

// MinuteLayout is the timestamp layout for start and close times.
const MinuteLayout = "2006-01-02 15:04"

// FormatExpiry renders an expiry date in ExpiryLayout.
func FormatExpiry(t time.Time) string {
	return t.Format(ExpiryLayout)
}

// ParseExpiry parses ExpiryLayout, also accepting ISO dates.
func ParseExpiry(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	for _, layout := range []string{ExpiryLayout, "2006-01-02", "02-01-2006"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid expiry %q", s)
}
