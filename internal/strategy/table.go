package strategy

import (
	"fmt"
	"time"

	"github.com/eddiefleurent/zone_strangler/internal/models"
	"github.com/eddiefleurent/zone_strangler/internal/provider"
	"github.com/eddiefleurent/zone_strangler/internal/util"
)

// ThresholdFactor is the share of the collected premium used for both the
// target and the stop.
const ThresholdFactor = 0.80

// Threshold returns round_to_nearest_50(combined · 0.80 · lot).
func Threshold(combinedPremium float64, lotSize int) float64 {
	return util.RoundToNearest50(combinedPremium * ThresholdFactor * float64(lotSize))
}

// TableInput gathers everything BuildTable needs.
type TableInput struct {
	Index   models.Index
	Horizon models.Horizon
	Expiry  time.Time
	LotSize int
	Zones   models.Zones
	Spot    float64
	Quotes  provider.StrikeQuotes // chain for Expiry; nil prices everything at zero
}

// BuildTable selects strikes and prices the High, Mid and Low rows. Missing
// strikes price as zero and the row is still emitted with a warning.
func BuildTable(in TableInput) *models.StrategyTable {
	strikes := SelectStrikes(in.Zones, in.Index.StrikeStep(), in.Quotes.PEPrices())

	table := &models.StrategyTable{
		Index:   in.Index,
		Horizon: in.Horizon,
		Expiry:  in.Expiry,
		LotSize: in.LotSize,
		Zones:   in.Zones,
		Spot:    in.Spot,
		Rows:    make([]models.StrategyRow, 0, len(models.RewardTiers)),
	}
	if !in.Zones.ZoneBased {
		table.Warnings = append(table.Warnings,
			fmt.Sprintf("History unavailable; zones are ±2%% of spot %.2f", in.Spot))
	}

	for i, tier := range models.RewardTiers {
		ce, pe := strikes.CE[i], strikes.PE[i]
		cePrice, pePrice := in.Quotes[ce].CE, in.Quotes[pe].PE
		combined := util.Round2(cePrice + pePrice)
		threshold := Threshold(combined, in.LotSize)

		table.Rows = append(table.Rows, models.StrategyRow{
			Tier:            tier,
			CEStrike:        ce,
			PEStrike:        pe,
			CEPrice:         cePrice,
			PEPrice:         pePrice,
			CombinedPremium: combined,
			TargetAmount:    threshold,
			StoplossAmount:  threshold,
		})

		switch {
		case threshold == 0:
			table.Warnings = append(table.Warnings, fmt.Sprintf(
				"%s: no traded price at CE %.0f / PE %.0f; target and stop are zero and the trade will not auto-close",
				tier.Label(), ce, pe))
		case cePrice == 0:
			table.Warnings = append(table.Warnings, fmt.Sprintf("%s: no traded CE price at %.0f", tier.Label(), ce))
		case pePrice == 0:
			table.Warnings = append(table.Warnings, fmt.Sprintf("%s: no traded PE price at %.0f", tier.Label(), pe))
		}
	}
	return table
}
