package monitor

import (
	"context"
	"fmt"
	"strings"

	"github.com/eddiefleurent/zone_strangler/internal/models"
	"github.com/eddiefleurent/zone_strangler/internal/notify"
	"github.com/eddiefleurent/zone_strangler/internal/provider"
	"github.com/eddiefleurent/zone_strangler/internal/util"
)

// EODReport is the end-of-day summary. It never changes the store.
type EODReport struct {
	Text   string  `json:"text"`
	Trades int     `json:"trades"`
	Priced int     `json:"priced"`
	Total  float64 `json:"total_pnl"`
}

// EOD marks every eligible trade to market without transitions or writes
// and sends one aggregated message. For a given store and chain snapshot
// the text depends only on the injected clock.
func (m *Monitor) EOD(ctx context.Context) (*EODReport, error) {
	if !m.eodBusy.CompareAndSwap(false, true) {
		m.metrics.Sweep(KindEOD, "skipped")
		return nil, ErrSweepInProgress
	}
	defer m.eodBusy.Store(false)

	report, err := m.eod(ctx)
	if err != nil {
		m.metrics.Sweep(KindEOD, "error")
		m.logger.WithError(err).Error("EOD report failed")
		return nil, err
	}
	m.metrics.Sweep(KindEOD, "ok")
	notify.SafeSend(ctx, m.notifier, m.logger, report.Text)
	m.logger.WithField("trades", report.Trades).Info("EOD report sent")
	return report, nil
}

func (m *Monitor) eod(ctx context.Context) (*EODReport, error) {
	all, err := m.repo.Trades()
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	now := m.clock()
	groups, order := m.eligible(all, util.DateOnly(now))

	var sb strings.Builder
	fmt.Fprintf(&sb, "*EOD Report* %s\n", now.Format("02-Jan-2006 15:04"))
	report := &EODReport{}
	if len(order) == 0 {
		sb.WriteString("\nNo running trades.")
		report.Text = sb.String()
		return report, nil
	}
	chains := m.fetchChains(ctx, order)

	for _, idx := range order {
		chain, ok := chains[idx]
		section, tag := "", ""
		sub := 0.0
		for _, t := range groups[idx] {
			if head := fmt.Sprintf("%s %s", idx, t.Expiry); head != section {
				if section != "" {
					fmt.Fprintf(&sb, "  Subtotal: %s\n", notify.FormatRupees(util.Round2(sub)))
				}
				section, tag, sub = head, "", 0
				fmt.Fprintf(&sb, "\n*%s*\n", head)
				if !ok {
					sb.WriteString("  no chain data\n")
				}
			}
			if t.EntryTag != tag {
				tag = t.EntryTag
				fmt.Fprintf(&sb, "_%s_\n", tag)
			}
			report.Trades++

			line, pnl, priced := m.eodLine(&t, chain)
			sb.WriteString(line)
			if priced {
				report.Priced++
				sub += pnl
				report.Total += pnl
			}
		}
		fmt.Fprintf(&sb, "  Subtotal: %s\n", notify.FormatRupees(util.Round2(sub)))
	}
	report.Total = util.Round2(report.Total)
	fmt.Fprintf(&sb, "\nTotal P/L: %s (%d of %d priced)", notify.FormatRupees(report.Total), report.Priced, report.Trades)
	report.Text = sb.String()
	return report, nil
}

func (m *Monitor) eodLine(t *models.Trade, chain *provider.Chain) (string, float64, bool) {
	if chain != nil {
		if ce, pe := m.quote(t, chain); ce != 0 || pe != 0 {
			pnl := util.MarkToMarket(t.InitialPremium, ce+pe, t.LotSize)
			return fmt.Sprintf("• %s CE %.0f / PE %.0f: %s\n", t.RewardType, t.CEStrike, t.PEStrike, notify.FormatRupees(pnl)), pnl, true
		}
	}
	return fmt.Sprintf("• %s CE %.0f / PE %.0f: no price (last %s)\n", t.RewardType, t.CEStrike, t.PEStrike, notify.FormatRupees(t.CurrentPnL())), 0, false
}
