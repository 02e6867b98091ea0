package models

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Update interval choices
const (
	Interval15Mins = "15 Mins"
	Interval30Mins = "30 Mins"
	Interval1Hour  = "1 Hour"
	IntervalOff    = "Disable"
)

// ActivityLogCap bounds the activity log kept in settings.
const ActivityLogCap = 50

// Settings is the user-editable configuration persisted by the settings store.
type Settings struct {
	UpdateInterval       string           `json:"update_interval"`
	NiftyLotSize         int              `json:"nifty_lot_size"`
	BankNiftyLotSize     int              `json:"banknifty_lot_size"`
	EnableTargetAlerts   bool             `json:"enable_target_alerts"`
	EnableStoplossAlerts bool             `json:"enable_stoploss_alerts"`
	AutoCloseTargets     bool             `json:"auto_close_targets"`
	AutoCloseStoploss    bool             `json:"auto_close_stoploss"`
	EnableEODReport      bool             `json:"enable_eod_report"`
	TelegramBotToken     string           `json:"telegram_bot_token"`
	TelegramChatID       string           `json:"telegram_chat_id"`
	MultipleSchedules    []Schedule       `json:"multiple_schedules"`
	ActivityLog          []ActivityRecord `json:"activity_log"`

	Extra map[string]json.RawMessage `json:"-"`
}

type settingsAlias Settings

// DefaultSettings returns the built-in defaults every load is merged over.
func DefaultSettings() *Settings {
	return &Settings{
		UpdateInterval:       Interval15Mins,
		NiftyLotSize:         IndexNifty.DefaultLotSize(),
		BankNiftyLotSize:     IndexBankNifty.DefaultLotSize(),
		EnableTargetAlerts:   true,
		EnableStoplossAlerts: true,
		AutoCloseTargets:     true,
		AutoCloseStoploss:    true,
		EnableEODReport:      true,
		MultipleSchedules:    []Schedule{},
		ActivityLog:          []ActivityRecord{},
	}
}

// UnmarshalJSON overlays the decoded members onto the receiver, so decoding
// into DefaultSettings() yields a complete configuration from a partial file.
func (s *Settings) UnmarshalJSON(data []byte) error {
	a := settingsAlias(*s)
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := unknownFields(data, reflect.TypeOf(a))
	if err != nil {
		return err
	}
	*s = Settings(a)
	s.Extra = extra
	return nil
}

// MarshalJSON encodes the declared fields plus any preserved members.
func (s Settings) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(settingsAlias(s))
	if err != nil {
		return nil, err
	}
	return withUnknownFields(base, s.Extra)
}

// Clone returns a deep copy.
func (s *Settings) Clone() *Settings {
	c := *s
	c.MultipleSchedules = make([]Schedule, len(s.MultipleSchedules))
	for i, sc := range s.MultipleSchedules {
		c.MultipleSchedules[i] = sc.Clone()
	}
	c.ActivityLog = append([]ActivityRecord(nil), s.ActivityLog...)
	c.Extra = cloneExtra(s.Extra)
	return &c
}

// LotSize returns the configured lot size for an index.
func (s *Settings) LotSize(idx Index) int {
	switch idx {
	case IndexNifty:
		if s.NiftyLotSize > 0 {
			return s.NiftyLotSize
		}
	case IndexBankNifty:
		if s.BankNiftyLotSize > 0 {
			return s.BankNiftyLotSize
		}
	}
	return idx.DefaultLotSize()
}

// MonitorInterval converts update_interval to a duration. ok is false when
// monitoring is disabled.
func (s *Settings) MonitorInterval() (d time.Duration, ok bool, err error) {
	switch strings.TrimSpace(s.UpdateInterval) {
	case Interval15Mins, "":
		return 15 * time.Minute, true, nil
	case Interval30Mins:
		return 30 * time.Minute, true, nil
	case Interval1Hour:
		return time.Hour, true, nil
	case IntervalOff:
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("unknown update_interval %q", s.UpdateInterval)
	}
}

// AppendActivity adds a record and drops the oldest beyond ActivityLogCap.
func (s *Settings) AppendActivity(rec ActivityRecord) {
	s.ActivityLog = append(s.ActivityLog, rec)
	if over := len(s.ActivityLog) - ActivityLogCap; over > 0 {
		s.ActivityLog = append([]ActivityRecord(nil), s.ActivityLog[over:]...)
	}
}

// Validate checks the fields a user can break through the API.
func (s *Settings) Validate() error {
	if _, _, err := s.MonitorInterval(); err != nil {
		return err
	}
	if s.NiftyLotSize < 0 || s.BankNiftyLotSize < 0 {
		return fmt.Errorf("lot sizes must be non-negative")
	}
	seen := make(map[string]bool)
	for _, sc := range s.MultipleSchedules {
		if err := sc.Validate(); err != nil {
			return err
		}
		if sc.ID != "" && seen[sc.ID] {
			return fmt.Errorf("duplicate schedule id %q", sc.ID)
		}
		seen[sc.ID] = true
	}
	return nil
}

// Schedule is a recurring auto-generation entry.
type Schedule struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Enabled     bool              `json:"enabled"`
	Time        string            `json:"time"` // HH:MM market timezone
	Instruments []Index           `json:"instruments"`
	Horizons    map[Index]Horizon `json:"horizon_per_instrument"`
	ActiveDays  []string          `json:"active_days"` // Mon..Sun
}

// Clone returns a deep copy.
func (s Schedule) Clone() Schedule {
	c := s
	c.Instruments = append([]Index(nil), s.Instruments...)
	c.ActiveDays = append([]string(nil), s.ActiveDays...)
	if s.Horizons != nil {
		c.Horizons = make(map[Index]Horizon, len(s.Horizons))
		for k, v := range s.Horizons {
			c.Horizons[k] = v
		}
	}
	return c
}

// HorizonFor returns the horizon chosen for an instrument, Weekly by default.
func (s Schedule) HorizonFor(idx Index) Horizon {
	if h, ok := s.Horizons[idx]; ok && h.Valid() {
		return h
	}
	return HorizonWeekly
}

// Clock parses Time into hour and minute.
func (s Schedule) Clock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s.Time))
	if err != nil {
		return 0, 0, fmt.Errorf("schedule %q: invalid time %q", s.Name, s.Time)
	}
	return t.Hour(), t.Minute(), nil
}

var weekdayAbbrev = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// Weekdays resolves ActiveDays, accepting full or three-letter names.
func (s Schedule) Weekdays() ([]time.Weekday, error) {
	var out []time.Weekday
	seen := make(map[time.Weekday]bool)
	for _, d := range s.ActiveDays {
		key := strings.ToLower(strings.TrimSpace(d))
		if len(key) > 3 {
			key = key[:3]
		}
		wd, ok := weekdayAbbrev[key]
		if !ok {
			return nil, fmt.Errorf("schedule %q: unknown day %q", s.Name, d)
		}
		if !seen[wd] {
			seen[wd] = true
			out = append(out, wd)
		}
	}
	return out, nil
}

// Validate checks time, days and instruments.
func (s Schedule) Validate() error {
	if _, _, err := s.Clock(); err != nil {
		return err
	}
	if _, err := s.Weekdays(); err != nil {
		return err
	}
	for _, idx := range s.Instruments {
		if !idx.Valid() {
			return fmt.Errorf("schedule %q: unknown instrument %q", s.Name, idx)
		}
	}
	for idx, h := range s.Horizons {
		if !h.Valid() {
			return fmt.Errorf("schedule %q: unknown horizon %q for %s", s.Name, h, idx)
		}
	}
	return nil
}

// ActivityRecord is one entry of the bounded auto-generation log.
type ActivityRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
}
