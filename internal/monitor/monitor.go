// Package monitor marks Running trades to market, applies target and
// stop-loss transitions and produces the end-of-day report.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/zone_strangler/internal/logging"
	"github.com/eddiefleurent/zone_strangler/internal/metrics"
	"github.com/eddiefleurent/zone_strangler/internal/models"
	"github.com/eddiefleurent/zone_strangler/internal/notify"
	"github.com/eddiefleurent/zone_strangler/internal/provider"
	"github.com/eddiefleurent/zone_strangler/internal/storage"
	"github.com/eddiefleurent/zone_strangler/internal/util"
)

// ErrSweepInProgress is returned when a sweep is requested while another runs.
var ErrSweepInProgress = errors.New("sweep already in progress")

var errUnchanged = errors.New("no change")

// Sweep kinds reported to metrics.
const (
	KindMonitor = "monitor"
	KindEOD     = "eod"
)

// Config contains optional settings for the monitor.
type Config struct {
	Location *time.Location
	Now      func() time.Time
	Renderer notify.Renderer
}

// Monitor runs sweeps over the shared repository. At most one sweep or
// EOD report runs at a time.
type Monitor struct {
	repo     *storage.Repository
	chain    provider.ChainProvider
	notifier notify.Notifier
	renderer notify.Renderer
	metrics  *metrics.Metrics
	logger   *logrus.Logger
	loc      *time.Location
	now      func() time.Time

	busy    atomic.Bool
	eodBusy atomic.Bool
}

// New creates a monitor. notifier and m may be nil.
func New(
	repo *storage.Repository,
	chain provider.ChainProvider,
	notifier notify.Notifier,
	m *metrics.Metrics,
	logger *logrus.Logger,
	config ...Config,
) *Monitor {
	if repo == nil || chain == nil {
		panic("monitor.New: repository and chain provider must not be nil")
	}
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.Location == nil {
		cfg.Location = util.MarketLocation()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Monitor{
		repo:     repo,
		chain:    chain,
		notifier: notifier,
		renderer: cfg.Renderer,
		metrics:  m,
		logger:   logger,
		loc:      cfg.Location,
		now:      cfg.Now,
	}
}

// Alert is one threshold event raised by a sweep.
type Alert struct {
	TradeID string             `json:"trade_id"`
	Status  models.TradeStatus `json:"status"` // Target or Stoploss
	PnL     float64            `json:"pnl"`
	Closed  bool               `json:"closed"`
	Silent  bool               `json:"silent,omitempty"` // alerts disabled for this threshold
}

// Report summarises a sweep.
type Report struct {
	Evaluated int                 `json:"evaluated"`
	Updated   int                 `json:"updated"`
	Skipped   int                 `json:"skipped"`
	Alerts    []Alert             `json:"alerts"`
	Failed    []models.Index      `json:"failed_instruments,omitempty"`
	Payloads  []notify.PnLPayload `json:"-"`
	Message   string              `json:"message"`
}

func (m *Monitor) clock() time.Time {
	return m.now().In(m.loc)
}

func (m *Monitor) acquire() error {
	if !m.busy.CompareAndSwap(false, true) {
		return ErrSweepInProgress
	}
	return nil
}

func (m *Monitor) release() { m.busy.Store(false) }

// eligible returns the Running trades with expiry on or after today,
// grouped by instrument in sorted order. Trades inside a group are
// ordered by expiry, then entry tag, then id.
func (m *Monitor) eligible(all []models.Trade, today time.Time) (map[models.Index][]models.Trade, []models.Index) {
	groups := make(map[models.Index][]models.Trade)
	for _, t := range all {
		if !t.IsRunning() {
			continue
		}
		exp, err := t.ExpiryDate(m.loc)
		if err != nil {
			m.logger.WithField("trade_id", t.ID).WithError(err).Warn("Unreadable expiry, trade not monitored")
			continue
		}
		if exp.Before(today) {
			continue
		}
		groups[t.Instrument] = append(groups[t.Instrument], t)
	}
	order := make([]models.Index, 0, len(groups))
	for idx, ts := range groups {
		order = append(order, idx)
		sortTrades(ts, m.loc)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	return groups, order
}

func sortTrades(ts []models.Trade, loc *time.Location) {
	sort.SliceStable(ts, func(i, j int) bool {
		a, b := ts[i], ts[j]
		if a.Instrument != b.Instrument {
			return a.Instrument < b.Instrument
		}
		ea, _ := a.ExpiryDate(loc)
		eb, _ := b.ExpiryDate(loc)
		if !ea.Equal(eb) {
			return ea.Before(eb)
		}
		if a.EntryTag != b.EntryTag {
			return a.EntryTag < b.EntryTag
		}
		return a.ID < b.ID
	})
}

// fetchChains loads one chain snapshot per instrument concurrently. An
// instrument whose fetch fails is missing from the result.
func (m *Monitor) fetchChains(ctx context.Context, instruments []models.Index) map[models.Index]*provider.Chain {
	var (
		mu     sync.Mutex
		chains = make(map[models.Index]*provider.Chain, len(instruments))
	)
	var g errgroup.Group
	for _, idx := range instruments {
		idx := idx
		g.Go(func() error {
			chain, err := m.chain.FetchChain(ctx, provider.ChainSymbol(idx))
			if err != nil {
				m.metrics.ProviderFailure(string(idx))
				m.logger.WithField("instrument", idx).WithError(err).Warn("No chain data, skipping group")
				return nil
			}
			mu.Lock()
			chains[idx] = chain
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return chains
}

// quote prices a trade against a snapshot.
func (m *Monitor) quote(t *models.Trade, chain *provider.Chain) (ce, pe float64) {
	exp, err := t.ExpiryDate(m.loc)
	if err != nil {
		return 0, 0
	}
	return chain.Prices(exp, t.CEStrike, t.PEStrike)
}

// Sweep marks every eligible trade to market. Trades whose chain could not
// be fetched, and trades with no price on either leg, are left untouched.
// Alerts and the per-instrument P/L summaries are sent after the store
// write succeeds.
func (m *Monitor) Sweep(ctx context.Context) (*Report, error) {
	if err := m.acquire(); err != nil {
		m.metrics.Sweep(KindMonitor, "skipped")
		return nil, err
	}
	defer m.release()

	report, err := m.sweep(ctx)
	if err != nil {
		m.metrics.Sweep(KindMonitor, "error")
		m.logger.WithError(err).Error("Sweep failed")
		return nil, err
	}
	m.metrics.Sweep(KindMonitor, "ok")

	for _, a := range report.Alerts {
		if a.Silent {
			continue
		}
		notify.SafeSend(ctx, m.notifier, m.logger, alertText(a))
	}
	if note := unpricedNote(report.Failed); note != "" {
		if len(report.Payloads) > 0 {
			report.Payloads[0].Notes = append(report.Payloads[0].Notes, note)
		} else {
			notify.SafeSend(ctx, m.notifier, m.logger, note)
		}
	}
	for _, p := range report.Payloads {
		notify.SendPnL(ctx, m.notifier, m.renderer, m.logger, p)
	}
	return report, nil
}

// unpricedNote summarises the instruments whose chain could not be fetched.
func unpricedNote(failed []models.Index) string {
	if len(failed) == 0 {
		return ""
	}
	names := make([]string, len(failed))
	for i, idx := range failed {
		names[i] = string(idx)
	}
	return fmt.Sprintf("No chain data for %s; its trades were not updated", strings.Join(names, ", "))
}

func (m *Monitor) sweep(ctx context.Context) (*Report, error) {
	settings, err := m.repo.Settings()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	all, err := m.repo.Trades()
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}

	now := m.clock()
	today := util.DateOnly(now)
	groups, order := m.eligible(all, today)
	report := &Report{}
	if len(order) == 0 {
		report.Message = "No running trades to monitor"
		m.metrics.SetRunning(0)
		return report, nil
	}
	chains := m.fetchChains(ctx, order)

	var transitions []models.TradeStatus
	err = m.repo.UpdateTrades(func(current []models.Trade) ([]models.Trade, error) {
		// The store may have changed since the snapshot above; evaluate the
		// current records in the same order.
		byID := make(map[string]int, len(current))
		for i := range current {
			byID[current[i].ID] = i
		}
		payloads := make(map[models.Index]*notify.PnLPayload)

		for _, idx := range order {
			chain, ok := chains[idx]
			if !ok {
				report.Failed = append(report.Failed, idx)
				continue
			}
			for _, snap := range groups[idx] {
				i, ok := byID[snap.ID]
				if !ok || !current[i].IsRunning() {
					continue
				}
				t := &current[i]
				report.Evaluated++
				ce, pe := m.quote(t, chain)
				if ce == 0 && pe == 0 {
					report.Skipped++
					continue
				}
				alert, err := evaluate(t, ce+pe, settings, now)
				if err != nil {
					return nil, err
				}
				report.Updated++
				if alert != nil {
					report.Alerts = append(report.Alerts, *alert)
					if alert.Closed {
						transitions = append(transitions, alert.Status)
						continue
					}
				}
				p, ok := payloads[idx]
				if !ok {
					p = &notify.PnLPayload{Title: fmt.Sprintf("%s P/L %s", idx, now.Format("02-Jan 15:04"))}
					payloads[idx] = p
				}
				p.Add(t.EntryTag, notify.PnLEntry{TradeID: t.ID, RewardType: t.RewardType, PnL: t.CurrentPnL()})
			}
		}
		for _, idx := range order {
			if p, ok := payloads[idx]; ok {
				report.Payloads = append(report.Payloads, *p)
			}
		}
		if report.Updated == 0 {
			return nil, errUnchanged
		}
		return current, nil
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		return nil, err
	}

	for _, s := range transitions {
		m.metrics.Transition(string(s))
	}
	m.metrics.SetRunning(countRunning(m.repo))
	report.Message = fmt.Sprintf("Evaluated %d trade(s): %d updated, %d without prices, %d alert(s)",
		report.Evaluated, report.Updated, report.Skipped, len(report.Alerts))
	if len(report.Failed) > 0 {
		names := make([]string, len(report.Failed))
		for i, idx := range report.Failed {
			names[i] = string(idx)
		}
		report.Message += "; no data for " + strings.Join(names, ", ")
	}
	m.logger.WithFields(logrus.Fields{
		"evaluated": report.Evaluated,
		"updated":   report.Updated,
		"skipped":   report.Skipped,
		"alerts":    len(report.Alerts),
		"failed":    len(report.Failed),
	}).Info("Sweep complete")
	return report, nil
}

func countRunning(repo *storage.Repository) int {
	all, err := repo.Trades()
	if err != nil {
		return 0
	}
	n := 0
	for i := range all {
		if all[i].IsRunning() {
			n++
		}
	}
	return n
}

// evaluate applies the threshold rules to one priced trade and returns the
// alert to send, if any. A zero threshold never fires. With auto-close off
// the trade stays Running and the alert is raised once until P/L moves back
// inside both thresholds.
func evaluate(t *models.Trade, current float64, s *models.Settings, now time.Time) (*Alert, error) {
	pnl := util.MarkToMarket(t.InitialPremium, current, t.LotSize)

	var (
		status    models.TradeStatus
		condition string
		autoClose bool
		alertsOn  bool
	)
	switch {
	case t.TargetAmount > 0 && pnl >= t.TargetAmount:
		status, condition = models.StatusTarget, models.ConditionTargetHit
		autoClose, alertsOn = s.AutoCloseTargets, s.EnableTargetAlerts
	case t.StoplossAmount > 0 && pnl <= -t.StoplossAmount:
		status, condition = models.StatusStoploss, models.ConditionStoplossHit
		autoClose, alertsOn = s.AutoCloseStoploss, s.EnableStoplossAlerts
	default:
		t.SetPnL(pnl)
		t.Alerted = ""
		return nil, nil
	}

	if autoClose {
		if err := t.Close(status, condition, pnl, now); err != nil {
			return nil, err
		}
		return &Alert{TradeID: t.ID, Status: status, PnL: pnl, Closed: true, Silent: !alertsOn}, nil
	}

	t.SetPnL(pnl)
	if t.Alerted == status || !alertsOn {
		return nil, nil
	}
	t.Alerted = status
	return &Alert{TradeID: t.ID, Status: status, PnL: pnl}, nil
}

func alertText(a Alert) string {
	label := "Target hit"
	if a.Status == models.StatusStoploss {
		label = "Stop-loss hit"
	}
	action := "closed"
	if !a.Closed {
		action = "still running, auto-close is off"
	}
	return fmt.Sprintf("*%s* %s\nP/L: %s (%s)", label, a.TradeID, notify.FormatRupees(a.PnL), action)
}
