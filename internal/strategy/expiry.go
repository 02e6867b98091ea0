package strategy

import (
	"time"

	"github.com/eddiefleurent/zone_strangler/internal/models"
	"github.com/eddiefleurent/zone_strangler/internal/util"
)

// NextWeeklyExpiry returns the next Thursday on or after today.
func NextWeeklyExpiry(today time.Time) time.Time {
	day := util.DateOnly(today)
	return day.AddDate(0, 0, (int(time.Thursday)-int(day.Weekday())+7)%7)
}

// lastThursday returns the last Thursday of the month containing t.
func lastThursday(t time.Time) time.Time {
	last := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location()).AddDate(0, 0, -1)
	return last.AddDate(0, 0, -((int(last.Weekday()) - int(time.Thursday) + 7) % 7))
}

// NextMonthlyExpiry returns this month's last Thursday, or next month's
// once this month's has passed.
func NextMonthlyExpiry(today time.Time) time.Time {
	day := util.DateOnly(today)
	if exp := lastThursday(day); !exp.Before(day) {
		return exp
	}
	return lastThursday(time.Date(day.Year(), day.Month()+1, 1, 0, 0, 0, 0, day.Location()))
}

// NextExpiry dispatches on the horizon.
func NextExpiry(h models.Horizon, today time.Time) time.Time {
	if h == models.HorizonMonthly {
		return NextMonthlyExpiry(today)
	}
	return NextWeeklyExpiry(today)
}

// ResolveExpiry maps a computed Thursday onto the exchange's listed
// expiries, which move earlier around holidays. An exact match wins, then
// the latest listed date between today and computed, then the first listed
// date after today. With nothing usable listed the computed date stands.
func ResolveExpiry(computed time.Time, listed []time.Time, today time.Time) time.Time {
	computed = util.DateOnly(computed)
	day := util.DateOnly(today.In(computed.Location()))

	var within, after time.Time
	for _, l := range listed {
		d := util.DateOnly(l.In(computed.Location()))
		if d.Equal(computed) {
			return d
		}
		if d.Before(day) {
			continue
		}
		if d.Before(computed) {
			if within.IsZero() || d.After(within) {
				within = d
			}
		} else if after.IsZero() || d.Before(after) {
			after = d
		}
	}
	switch {
	case !within.IsZero():
		return within
	case !after.IsZero():
		return after
	default:
		return computed
	}
}
