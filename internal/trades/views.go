package trades

import (
	"fmt"
	"sort"
	"strings"

	"github.com/eddiefleurent/zone_strangler/internal/models"
	"github.com/eddiefleurent/zone_strangler/internal/util"
)

// GroupBy selects how running trades are grouped.
type GroupBy string

const (
	GroupByExpiry GroupBy = "expiry"
	GroupByDay    GroupBy = "day"
	GroupByTag    GroupBy = "tag"
)

// ParseGroupBy accepts expiry, day or tag; empty means expiry.
func ParseGroupBy(s string) (GroupBy, error) {
	switch g := GroupBy(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return GroupByExpiry, nil
	case GroupByExpiry, GroupByDay, GroupByTag:
		return g, nil
	default:
		return "", fmt.Errorf("unknown grouping %q (want expiry, day or tag)", s)
	}
}

// Group is one bucket of a running view.
type Group struct {
	Key    string         `json:"key"`
	Trades []models.Trade `json:"trades"`
	PnL    float64        `json:"pnl"`
}

// ClosedFilter narrows the closed view. Empty fields match everything.
type ClosedFilter struct {
	Instrument models.Index       `json:"instrument,omitempty"`
	Status     models.TradeStatus `json:"status,omitempty"`
	Tag        string             `json:"tag,omitempty"`
}

// GroupPnL sums pnl, or final_pnl for closed trades, to the cent.
func GroupPnL(trades []models.Trade) float64 {
	total := 0.0
	for i := range trades {
		total += trades[i].CurrentPnL()
	}
	return util.Round2(total)
}

func groupKey(t *models.Trade, by GroupBy) string {
	switch by {
	case GroupByDay:
		return t.StartDay()
	case GroupByTag:
		return t.EntryTag
	default:
		return t.Expiry
	}
}

func (m *Manager) runningTrades() ([]models.Trade, error) {
	all, err := m.repo.Trades()
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	out := all[:0:0]
	for i := range all {
		if all[i].IsRunning() {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// Running returns Running trades grouped by expiry (soonest first), start
// day (most recent first) or entry tag (alphabetical).
func (m *Manager) Running(by GroupBy) ([]Group, error) {
	running, err := m.runningTrades()
	if err != nil {
		return nil, err
	}
	index := make(map[string]int)
	var groups []Group
	for _, t := range running {
		key := groupKey(&t, by)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key})
		}
		groups[i].Trades = append(groups[i].Trades, t)
	}

	for i := range groups {
		g := &groups[i]
		sort.Slice(g.Trades, func(a, b int) bool { return g.Trades[a].ID < g.Trades[b].ID })
		g.PnL = GroupPnL(g.Trades)
	}
	sort.Slice(groups, func(a, b int) bool { return m.groupLess(by, groups[a].Key, groups[b].Key) })
	return groups, nil
}

func (m *Manager) groupLess(by GroupBy, a, b string) bool {
	switch by {
	case GroupByDay:
		return a > b
	case GroupByExpiry:
		ta, errA := models.ParseExpiry(a, m.loc)
		tb, errB := models.ParseExpiry(b, m.loc)
		if errA == nil && errB == nil && !ta.Equal(tb) {
			return ta.Before(tb)
		}
	}
	return a < b
}

// Closed returns terminal trades matching f, most recently closed first.
func (m *Manager) Closed(f ClosedFilter) ([]models.Trade, error) {
	all, err := m.repo.Trades()
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	out := all[:0:0]
	for _, t := range all {
		if !t.Status.IsTerminal() {
			continue
		}
		if f.Instrument != "" && t.Instrument != f.Instrument {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Tag != "" && t.EntryTag != f.Tag {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].ClosedDate != out[b].ClosedDate {
			return out[a].ClosedDate > out[b].ClosedDate
		}
		return out[a].ID < out[b].ID
	})
	return out, nil
}

// Expired reports Running trades whose expiry is before today. The monitor
// leaves them alone; the dashboard lists them for manual closing.
func (m *Manager) Expired() ([]models.Trade, error) {
	running, err := m.runningTrades()
	if err != nil {
		return nil, err
	}
	today := util.DateOnly(m.clock())
	out := running[:0:0]
	for _, t := range running {
		exp, err := t.ExpiryDate(m.loc)
		if err == nil && exp.Before(today) {
			out = append(out, t)
		}
	}
	return out, nil
}
