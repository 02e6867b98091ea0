// Package trades adopts strategy tables into the trade store and runs the
// user-initiated lifecycle operations on it.
package trades

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/zone_strangler/internal/logging"
	"github.com/eddiefleurent/zone_strangler/internal/metrics"
	"github.com/eddiefleurent/zone_strangler/internal/models"
	"github.com/eddiefleurent/zone_strangler/internal/notify"
	"github.com/eddiefleurent/zone_strangler/internal/storage"
	"github.com/eddiefleurent/zone_strangler/internal/util"
)

// errUnchanged aborts an update without rewriting the store.
var errUnchanged = errors.New("no change")

// Config contains optional settings for the manager.
type Config struct {
	Location *time.Location
	Now      func() time.Time
}

// Manager owns adoption and manual operations on trades. All writes go
// through the shared repository so they serialise with the monitor.
type Manager struct {
	repo     *storage.Repository
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   *logrus.Logger
	loc      *time.Location
	now      func() time.Time
}

// NewManager creates a trade manager. notifier and m may be nil.
func NewManager(
	repo *storage.Repository,
	notifier notify.Notifier,
	m *metrics.Metrics,
	logger *logrus.Logger,
	config ...Config,
) *Manager {
	if repo == nil {
		panic("trades.NewManager: repository must not be nil")
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
	return &Manager{
		repo:     repo,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		loc:      cfg.Location,
		now:      cfg.Now,
	}
}

func (m *Manager) clock() time.Time {
	return m.now().In(m.loc)
}

// update runs fn under the repository write lock. errUnchanged from fn
// skips the save and is not reported.
func (m *Manager) update(fn func([]models.Trade) ([]models.Trade, error)) error {
	err := m.repo.UpdateTrades(fn)
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if err == nil {
		m.refreshRunningGauge()
	}
	return err
}

func (m *Manager) refreshRunningGauge() {
	if m.metrics == nil {
		return
	}
	all, err := m.repo.Trades()
	if err != nil {
		return
	}
	n := 0
	for i := range all {
		if all[i].IsRunning() {
			n++
		}
	}
	m.metrics.SetRunning(n)
}

// AdoptResult reports what an adoption did.
type AdoptResult struct {
	Added   []string `json:"added"`
	Skipped []string `json:"skipped"`
	Tag     string   `json:"tag"`
	Message string   `json:"message"`
}

// Adopt appends one Running trade per table row, or per selected tier when
// tiers are given. Rows whose id already exists are skipped, so adopting
// the same table twice adds nothing. An empty tag becomes
// "{Weekday} Selling".
func (m *Manager) Adopt(_ context.Context, table *models.StrategyTable, tag string, tiers ...models.RewardTier) (*AdoptResult, error) {
	if table == nil || len(table.Rows) == 0 {
		return nil, fmt.Errorf("strategy table has no rows")
	}
	now := m.clock()
	tag = strings.TrimSpace(tag)
	if tag == "" {
		tag = models.DefaultEntryTag(now)
	}
	selected := make(map[models.RewardTier]bool, len(tiers))
	for _, t := range tiers {
		selected[t] = true
	}

	res := &AdoptResult{Tag: tag}
	err := m.update(func(current []models.Trade) ([]models.Trade, error) {
		existing := make(map[string]bool, len(current))
		for i := range current {
			existing[current[i].ID] = true
		}
		for _, row := range table.Rows {
			if len(selected) > 0 && !selected[row.Tier] {
				continue
			}
			id := table.TradeID(row)
			if existing[id] {
				res.Skipped = append(res.Skipped, id)
				continue
			}
			existing[id] = true
			current = append(current, models.NewTrade(table, row, tag, now))
			res.Added = append(res.Added, id)
		}
		if len(res.Added) == 0 {
			return nil, errUnchanged
		}
		return current, nil
	})
	if err != nil {
		return nil, fmt.Errorf("adopt %s %s: %w", table.Index, table.ExpiryLabel(), err)
	}

	m.metrics.Adopted(string(table.Index), len(res.Added))
	res.Message = fmt.Sprintf("%d new %s %s trade(s) adopted under %q", len(res.Added), table.Index, table.ExpiryLabel(), tag)
	if len(res.Skipped) > 0 {
		res.Message += fmt.Sprintf("; %d already adopted", len(res.Skipped))
	}
	if len(table.Warnings) > 0 {
		res.Message += ". Warnings: " + strings.Join(table.Warnings, "; ")
	}
	m.logger.WithFields(logrus.Fields{
		"instrument": table.Index,
		"expiry":     table.ExpiryLabel(),
		"tag":        tag,
		"added":      len(res.Added),
		"skipped":    len(res.Skipped),
	}).Info("Strategy adopted")
	return res, nil
}

// OpResult reports the trades touched by a manual operation.
type OpResult struct {
	IDs     []string `json:"ids"`
	Message string   `json:"message"`
}

// Count returns the number of trades affected.
func (r *OpResult) Count() int { return len(r.IDs) }

// Close manually closes the given Running trades at their last pnl.
// Unknown ids and trades that are already closed are ignored.
func (m *Manager) Close(ctx context.Context, ids ...string) (*OpResult, error) {
	want := toSet(ids)
	now := m.clock()
	res := &OpResult{}
	var lines []string
	total := 0.0

	err := m.update(func(current []models.Trade) ([]models.Trade, error) {
		for i := range current {
			t := &current[i]
			if !want[t.ID] || !t.IsRunning() {
				continue
			}
			pnl := t.CurrentPnL()
			if err := t.Close(models.StatusManuallyClosed, models.ConditionManualClose, pnl, now); err != nil {
				return nil, err
			}
			res.IDs = append(res.IDs, t.ID)
			lines = append(lines, fmt.Sprintf("• %s: %s", t.ID, notify.FormatRupees(pnl)))
			total += pnl
		}
		if len(res.IDs) == 0 {
			return nil, errUnchanged
		}
		return current, nil
	})
	if err != nil {
		return nil, fmt.Errorf("close trades: %w", err)
	}
	if len(res.IDs) == 0 {
		res.Message = "No running trades matched"
		return res, nil
	}

	for range res.IDs {
		m.metrics.Transition(string(models.StatusManuallyClosed))
	}
	res.Message = fmt.Sprintf("Manually closed %d trade(s), total P/L %s", len(res.IDs), notify.FormatRupees(util.Round2(total)))
	notify.SafeSend(ctx, m.notifier, m.logger, "*"+res.Message+"*\n"+strings.Join(lines, "\n"))
	m.logger.WithField("trades", res.IDs).Info("Trades manually closed")
	return res, nil
}

// CloseGroup closes every Running trade in one group of a running view.
func (m *Manager) CloseGroup(ctx context.Context, by GroupBy, key string) (*OpResult, error) {
	running, err := m.runningTrades()
	if err != nil {
		return nil, err
	}
	var ids []string
	for i := range running {
		if groupKey(&running[i], by) == key {
			ids = append(ids, running[i].ID)
		}
	}
	if len(ids) == 0 {
		return &OpResult{Message: fmt.Sprintf("No running trades in %s group %q", by, key)}, nil
	}
	return m.Close(ctx, ids...)
}

// Delete removes the given trades whatever their status.
func (m *Manager) Delete(ctx context.Context, ids ...string) (*OpResult, error) {
	want := toSet(ids)
	return m.remove(ctx, "selected", func(t *models.Trade) bool { return want[t.ID] })
}

// DeleteBatch removes every trade carrying an entry tag.
func (m *Manager) DeleteBatch(ctx context.Context, tag string) (*OpResult, error) {
	return m.remove(ctx, fmt.Sprintf("batch %q", tag), func(t *models.Trade) bool { return t.EntryTag == tag })
}

// DeleteExpiry removes every trade for an expiry ("14-Aug-2025"), limited
// to one instrument when instrument is non-empty.
func (m *Manager) DeleteExpiry(ctx context.Context, instrument models.Index, expiry string) (*OpResult, error) {
	scope := "expiry " + expiry
	if instrument != "" {
		scope = fmt.Sprintf("%s expiry %s", instrument, expiry)
	}
	return m.remove(ctx, scope, func(t *models.Trade) bool {
		return t.Expiry == expiry && (instrument == "" || t.Instrument == instrument)
	})
}

// DeleteAllClosed removes every trade in a terminal state.
func (m *Manager) DeleteAllClosed(ctx context.Context) (*OpResult, error) {
	return m.remove(ctx, "closed", func(t *models.Trade) bool { return t.Status.IsTerminal() })
}

func (m *Manager) remove(ctx context.Context, scope string, match func(*models.Trade) bool) (*OpResult, error) {
	res := &OpResult{}
	err := m.update(func(current []models.Trade) ([]models.Trade, error) {
		kept := current[:0:0]
		for i := range current {
			if match(&current[i]) {
				res.IDs = append(res.IDs, current[i].ID)
				continue
			}
			kept = append(kept, current[i])
		}
		if len(res.IDs) == 0 {
			return nil, errUnchanged
		}
		return kept, nil
	})
	if err != nil {
		return nil, fmt.Errorf("delete %s trades: %w", scope, err)
	}
	if len(res.IDs) == 0 {
		res.Message = fmt.Sprintf("No %s trades to delete", scope)
		return res, nil
	}

	sort.Strings(res.IDs)
	res.Message = fmt.Sprintf("Deleted %d %s trade(s)", len(res.IDs), scope)
	notify.SafeSend(ctx, m.notifier, m.logger, res.Message+"\n"+strings.Join(res.IDs, "\n"))
	m.logger.WithField("trades", res.IDs).Info("Trades deleted")
	return res, nil
}

func toSet(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out[id] = true
		}
	}
	return out
}
