package models

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Trade is the persisted form of an adopted strategy row.
type Trade struct {
	ID             string      `json:"id"`
	Instrument     Index       `json:"instrument"`
	Expiry         string      `json:"expiry"` // ExpiryLayout
	RewardType     RewardTier  `json:"reward_type"`
	CEStrike       float64     `json:"ce_strike"`
	PEStrike       float64     `json:"pe_strike"`
	LotSize        int         `json:"lot_size"`
	InitialPremium float64     `json:"initial_premium"`
	TargetAmount   float64     `json:"target_amount"`
	StoplossAmount float64     `json:"stoploss_amount"`
	Status         TradeStatus `json:"status"`
	EntryTag       string      `json:"entry_tag"`
	StartTime      string      `json:"start_time"` // MinuteLayout, market timezone
	PnL            *float64    `json:"pnl,omitempty"`
	FinalPnL       *float64    `json:"final_pnl,omitempty"`
	ClosedDate     string      `json:"closed_date,omitempty"`
	// Alerted remembers a threshold alert raised while auto-close was off.
	Alerted TradeStatus `json:"alerted,omitempty"`

	// Extra keeps members written by other tools so they survive a rewrite.
	Extra map[string]json.RawMessage `json:"-"`
}

type tradeAlias Trade

// TradeID builds "{index}_{expiry}_{tier}Reward".
func TradeID(idx Index, expiry string, tier RewardTier) string {
	return fmt.Sprintf("%s_%s_%s", idx, expiry, tier.Label())
}

// DefaultEntryTag is the group label used when the caller supplies none.
func DefaultEntryTag(t time.Time) string {
	return t.Weekday().String() + " Selling"
}

// NewTrade creates a Running trade from a strategy row.
func NewTrade(table *StrategyTable, row StrategyRow, tag string, now time.Time) Trade {
	return Trade{
		ID:             table.TradeID(row),
		Instrument:     table.Index,
		Expiry:         table.ExpiryLabel(),
		RewardType:     row.Tier,
		CEStrike:       row.CEStrike,
		PEStrike:       row.PEStrike,
		LotSize:        table.LotSize,
		InitialPremium: row.CombinedPremium,
		TargetAmount:   row.TargetAmount,
		StoplossAmount: row.StoplossAmount,
		Status:         StatusRunning,
		EntryTag:       tag,
		StartTime:      now.Truncate(time.Minute).Format(MinuteLayout),
	}
}

// UnmarshalJSON decodes a trade, keeping unknown members and filling
// defaults for records written before a field existed.
func (t *Trade) UnmarshalJSON(data []byte) error {
	var a tradeAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := unknownFields(data, reflect.TypeOf(a))
	if err != nil {
		return err
	}
	*t = Trade(a)
	t.Extra = extra
	if t.Status == "" {
		if t.FinalPnL == nil && t.ClosedDate == "" {
			t.Status = StatusRunning
		} else {
			t.Status = StatusManuallyClosed
		}
	}
	if t.LotSize <= 0 && t.Instrument.Valid() {
		t.LotSize = t.Instrument.DefaultLotSize()
	}
	return nil
}

// MarshalJSON encodes the declared fields plus any preserved members.
func (t Trade) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(tradeAlias(t))
	if err != nil {
		return nil, err
	}
	return withUnknownFields(base, t.Extra)
}

// Clone returns a deep copy.
func (t Trade) Clone() Trade {
	c := t
	if t.PnL != nil {
		v := *t.PnL
		c.PnL = &v
	}
	if t.FinalPnL != nil {
		v := *t.FinalPnL
		c.FinalPnL = &v
	}
	c.Extra = cloneExtra(t.Extra)
	return c
}

// IsRunning reports whether the trade is still open.
func (t *Trade) IsRunning() bool {
	return t.Status == StatusRunning
}

// CurrentPnL returns final_pnl for closed trades and the latest pnl otherwise.
func (t *Trade) CurrentPnL() float64 {
	if t.FinalPnL != nil {
		return *t.FinalPnL
	}
	if t.PnL != nil {
		return *t.PnL
	}
	return 0
}

// SetPnL records the latest mark-to-market.
func (t *Trade) SetPnL(v float64) {
	t.PnL = &v
}

// ExpiryDate parses the stored expiry.
func (t *Trade) ExpiryDate(loc *time.Location) (time.Time, error) {
	return ParseExpiry(t.Expiry, loc)
}

// StartDay returns the calendar day of start_time ("2006-01-02").
func (t *Trade) StartDay() string {
	if i := strings.IndexByte(t.StartTime, ' '); i > 0 {
		return t.StartTime[:i]
	}
	return t.StartTime
}

// Close moves a Running trade to a terminal status, snapshotting pnl into
// final_pnl and stamping closed_date.
func (t *Trade) Close(to TradeStatus, condition string, pnl float64, at time.Time) error {
	if err := IsValidTransition(t.Status, to, condition); err != nil {
		return fmt.Errorf("trade %s state transition failed: %w", t.ID, err)
	}
	t.Status = to
	t.SetPnL(pnl)
	final := pnl
	t.FinalPnL = &final
	t.ClosedDate = at.Truncate(time.Minute).Format(MinuteLayout)
	t.Alerted = ""
	return nil
}

// ValidateState checks that status and closing fields agree.
func (t *Trade) ValidateState() error {
	if !t.Status.Valid() {
		return fmt.Errorf("trade %s: unknown status %q", t.ID, t.Status)
	}
	if t.TargetAmount < 0 || t.StoplossAmount < 0 {
		return fmt.Errorf("trade %s: thresholds must be non-negative (target %.2f, stoploss %.2f)",
			t.ID, t.TargetAmount, t.StoplossAmount)
	}
	closedFields := t.FinalPnL != nil || t.ClosedDate != ""
	if t.IsRunning() && closedFields {
		return fmt.Errorf("trade %s in state %s: final_pnl and closed_date must be unset", t.ID, t.Status)
	}
	if !t.IsRunning() && (t.FinalPnL == nil || t.ClosedDate == "") {
		return fmt.Errorf("trade %s in state %s: final_pnl and closed_date must be set", t.ID, t.Status)
	}
	return nil
}
