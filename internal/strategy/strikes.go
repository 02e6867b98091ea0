package strategy

import (
	"sort"

	"github.com/eddiefleurent/zone_strangler/internal/models"
	"github.com/eddiefleurent/zone_strangler/internal/util"
)

// Strikes holds the call and put strikes in High, Mid, Low order.
type Strikes struct {
	CE [3]float64
	PE [3]float64
}

// SelectStrikes places calls at ceil(supply/step)·step and the next two
// steps out. The High put is floor(demand/step)·step; Mid and Low are the
// two richest traded puts below it, degrading one step at a time when the
// chain has fewer candidates.
func SelectStrikes(z models.Zones, step float64, pePrices map[float64]float64) Strikes {
	var s Strikes
	ceHigh := util.CeilToTick(z.Supply, step)
	s.CE = [3]float64{ceHigh, ceHigh + step, ceHigh + 2*step}

	peHigh := util.FloorToTick(z.Demand, step)
	cands := putCandidates(peHigh, pePrices)

	peMid := peHigh - step
	if len(cands) > 0 {
		peMid = cands[0]
	}
	peLow := peMid - step
	if len(cands) > 1 {
		peLow = cands[1]
	}
	s.PE = [3]float64{peHigh, peMid, peLow}
	return s
}

// putCandidates returns strikes below peHigh with a positive price, richest
// first, higher strike first on ties.
func putCandidates(peHigh float64, pePrices map[float64]float64) []float64 {
	var cands []float64
	for strike, price := range pePrices {
		if strike < peHigh && price > 0 {
			cands = append(cands, strike)
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		pi, pj := pePrices[cands[i]], pePrices[cands[j]]
		if pi != pj {
			return pi > pj
		}
		return cands[i] > cands[j]
	})
	return cands
}
