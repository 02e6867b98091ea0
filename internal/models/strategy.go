package models

import "time"

// StrategyRow is one short-strangle candidate.
type StrategyRow struct {
	Tier            RewardTier `json:"reward_tier"`
	CEStrike        float64    `json:"ce_strike"`
	PEStrike        float64    `json:"pe_strike"`
	CEPrice         float64    `json:"ce_price"`
	PEPrice         float64    `json:"pe_price"`
	CombinedPremium float64    `json:"combined_premium"`
	TargetAmount    float64    `json:"target_amount"`
	StoplossAmount  float64    `json:"stoploss_amount"`
}

// StrategyTable holds the High, Mid and Low rows for one index and expiry.
type StrategyTable struct {
	Index    Index         `json:"index"`
	Horizon  Horizon       `json:"horizon"`
	Expiry   time.Time     `json:"expiry"`
	LotSize  int           `json:"lot_size"`
	Zones    Zones         `json:"zones"`
	Spot     float64       `json:"spot"`
	Rows     []StrategyRow `json:"rows"`
	Warnings []string      `json:"warnings,omitempty"`
}

// ExpiryLabel returns the expiry formatted for trade ids.
func (t *StrategyTable) ExpiryLabel() string {
	return FormatExpiry(t.Expiry)
}

// TradeID builds the store key for a row of this table.
func (t *StrategyTable) TradeID(row StrategyRow) string {
	return TradeID(t.Index, t.ExpiryLabel(), row.Tier)
}
