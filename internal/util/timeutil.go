package util

import (
	"time"
	_ "time/tzdata"
)

// MarketTimezone is the IANA name of the Indian market timezone.
const MarketTimezone = "Asia/Kolkata"

// ist is a fixed +05:30 zone used when the tz database is unavailable.
var ist = time.FixedZone("IST", 5*60*60+30*60)

// LoadLocation resolves name, falling back to IST.
func LoadLocation(name string) *time.Location {
	if name == "" {
		name = MarketTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return ist
	}
	return loc
}

// MarketLocation returns the Indian market timezone.
func MarketLocation() *time.Location {
	return LoadLocation(MarketTimezone)
}

// DateOnly truncates t to midnight in its own location.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
