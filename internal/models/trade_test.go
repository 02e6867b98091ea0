package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable() *StrategyTable {
	return &StrategyTable{
		Index:   IndexNifty,
		Horizon: HorizonWeekly,
		Expiry:  time.Date(2025, 8, 14, 0, 0, 0, 0, time.UTC),
		LotSize: 75,
		Rows: []StrategyRow{
			{Tier: RewardHigh, CEStrike: 24800, PEStrike: 24300, CEPrice: 120, PEPrice: 80, CombinedPremium: 200, TargetAmount: 12000, StoplossAmount: 12000},
		},
	}
}

func TestTradeID(t *testing.T) {
	assert.Equal(t, "NIFTY_14-Aug-2025_HighReward", TradeID(IndexNifty, "14-Aug-2025", RewardHigh))
	assert.Equal(t, "BANKNIFTY_28-Aug-2025_LowReward", TradeID(IndexBankNifty, "28-Aug-2025", RewardLow))
}

func TestDefaultEntryTag(t *testing.T) {
	wed := time.Date(2025, 8, 13, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, "Wednesday Selling", DefaultEntryTag(wed))
}

func TestNewTrade(t *testing.T) {
	table := sampleTable()
	now := time.Date(2025, 8, 11, 9, 31, 55, 0, time.UTC)
	tr := NewTrade(table, table.Rows[0], "Monday Selling", now)

	assert.Equal(t, "NIFTY_14-Aug-2025_HighReward", tr.ID)
	assert.Equal(t, StatusRunning, tr.Status)
	assert.Equal(t, "2025-08-11 09:31", tr.StartTime)
	assert.Equal(t, "2025-08-11", tr.StartDay())
	assert.Equal(t, 200.0, tr.InitialPremium)
	assert.Equal(t, 75, tr.LotSize)
	assert.Nil(t, tr.PnL)
	require.NoError(t, tr.ValidateState())
}

func TestTradeJSON_PreservesUnknownFields(t *testing.T) {
	raw := `{"id":"NIFTY_14-Aug-2025_MidReward","instrument":"NIFTY","expiry":"14-Aug-2025",
		"reward_type":"Mid","ce_strike":24850,"pe_strike":24200,"lot_size":75,"initial_premium":150,
		"target_amount":9000,"stoploss_amount":9000,"status":"Running","entry_tag":"Monday Selling",
		"start_time":"2025-08-11 09:31","broker_ref":"abc-1","notes":{"a":1}}`

	var tr Trade
	require.NoError(t, json.Unmarshal([]byte(raw), &tr))
	require.Len(t, tr.Extra, 2)

	out, err := json.Marshal(tr)
	require.NoError(t, err)

	var back map[string]any
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, "abc-1", back["broker_ref"])
	assert.Equal(t, map[string]any{"a": float64(1)}, back["notes"])
	assert.Equal(t, "Mid", back["reward_type"])

	// Encoding is stable across a second round trip.
	var again Trade
	require.NoError(t, json.Unmarshal(out, &again))
	out2, err := json.Marshal(again)
	require.NoError(t, err)
	assert.JSONEq(t, string(out), string(out2))
	assert.Equal(t, string(out), string(out2))
}

func TestTradeJSON_DefaultsForMissingFields(t *testing.T) {
	var running Trade
	require.NoError(t, json.Unmarshal([]byte(`{"id":"x","instrument":"BANKNIFTY"}`), &running))
	assert.Equal(t, StatusRunning, running.Status)
	assert.Equal(t, 35, running.LotSize)

	var closed Trade
	require.NoError(t, json.Unmarshal([]byte(`{"id":"y","instrument":"NIFTY","final_pnl":10,"closed_date":"2025-08-11 10:00"}`), &closed))
	assert.Equal(t, StatusManuallyClosed, closed.Status)
}

func TestTradeValidateState(t *testing.T) {
	pnl := 100.0
	tests := []struct {
		name    string
		trade   Trade
		wantErr bool
	}{
		{"running clean", Trade{ID: "a", Status: StatusRunning}, false},
		{"running with final pnl", Trade{ID: "b", Status: StatusRunning, FinalPnL: &pnl}, true},
		{"closed without date", Trade{ID: "c", Status: StatusTarget, FinalPnL: &pnl}, true},
		{"negative target", Trade{ID: "d", Status: StatusRunning, TargetAmount: -1}, true},
		{"unknown status", Trade{ID: "e", Status: "Paused"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.trade.ValidateState()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTradeClone_IsDeep(t *testing.T) {
	pnl := 10.0
	tr := Trade{ID: "a", PnL: &pnl, Extra: map[string]json.RawMessage{"k": json.RawMessage(`1`)}}
	c := tr.Clone()
	*c.PnL = 20
	c.Extra["k"][0] = '2'
	assert.Equal(t, 10.0, *tr.PnL)
	assert.Equal(t, "1", string(tr.Extra["k"]))
}

func TestCurrentPnL(t *testing.T) {
	tr := Trade{}
	assert.Equal(t, 0.0, tr.CurrentPnL())
	tr.SetPnL(-50)
	assert.Equal(t, -50.0, tr.CurrentPnL())
	final := 75.0
	tr.FinalPnL = &final
	assert.Equal(t, 75.0, tr.CurrentPnL())
}

func TestParseExpiry(t *testing.T) {
	for _, in := range []string{"14-Aug-2025", "2025-08-14", "14-08-2025"} {
		got, err := ParseExpiry(in, time.UTC)
		require.NoError(t, err, in)
		assert.Equal(t, time.Date(2025, 8, 14, 0, 0, 0, 0, time.UTC), got)
	}
	_, err := ParseExpiry("Aug 14", time.UTC)
	assert.Error(t, err)
}

func TestParseIndexAndHorizon(t *testing.T) {
	idx, err := ParseIndex(" banknifty ")
	require.NoError(t, err)
	assert.Equal(t, IndexBankNifty, idx)
	assert.Equal(t, 100.0, idx.StrikeStep())
	assert.Equal(t, "^NSEBANK", idx.HistorySymbol())

	_, err = ParseIndex("FINNIFTY")
	assert.Error(t, err)

	h, err := ParseHorizon("MONTHLY")
	require.NoError(t, err)
	assert.Equal(t, HorizonMonthly, h)
	_, err = ParseHorizon("daily")
	assert.Error(t, err)
}
