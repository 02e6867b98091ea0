package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/zone_strangler/internal/logging"
	"github.com/eddiefleurent/zone_strangler/internal/models"
	"github.com/eddiefleurent/zone_strangler/internal/notify"
	"github.com/eddiefleurent/zone_strangler/internal/storage"
	"github.com/eddiefleurent/zone_strangler/internal/strategy"
	"github.com/eddiefleurent/zone_strangler/internal/trades"
	"github.com/eddiefleurent/zone_strangler/internal/util"
)

// Activity statuses
const (
	ActivitySuccess = "success"
	ActivityPartial = "partial"
	ActivityFailed  = "failed"
)

// Builder builds strategy tables.
type Builder interface {
	Build(ctx context.Context, req strategy.Request) (*models.StrategyTable, error)
}

// Adopter turns tables into trades.
type Adopter interface {
	Adopt(ctx context.Context, table *models.StrategyTable, tag string, tiers ...models.RewardTier) (*trades.AdoptResult, error)
}

// GeneratorConfig contains optional settings for the generator.
type GeneratorConfig struct {
	Location *time.Location
	Now      func() time.Time
	// MarketStatus labels the trigger time; the job runs whatever it returns.
	MarketStatus func(time.Time) string
}

// Generator runs one auto-generation schedule: build a table per
// instrument, adopt it under an "Auto" tag, notify and log the activity.
type Generator struct {
	builder  Builder
	adopter  Adopter
	repo     *storage.Repository
	notifier notify.Notifier
	logger   *logrus.Logger
	cfg      GeneratorConfig
}

// NewGenerator creates a generator. notifier may be nil.
func NewGenerator(builder Builder, adopter Adopter, repo *storage.Repository, notifier notify.Notifier, logger *logrus.Logger, config ...GeneratorConfig) *Generator {
	var cfg GeneratorConfig
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
	return &Generator{builder: builder, adopter: adopter, repo: repo, notifier: notifier, logger: logger, cfg: cfg}
}

// RunResult summarises one schedule run.
type RunResult struct {
	ScheduleID string         `json:"schedule_id"`
	Added      int            `json:"added"`
	Failed     []models.Index `json:"failed,omitempty"`
	Status     string         `json:"status"`
	Message    string         `json:"message"`
}

// AutoTag is the entry tag for trades adopted by a schedule.
func AutoTag(now time.Time, idx models.Index) string {
	return fmt.Sprintf("Auto %s %s", now.Format("02-Jan"), idx)
}

// RunSchedule executes sc now. An empty instrument list means every index.
// The run is not gated on market hours; the message states where the
// trigger fell. An error is returned only when every instrument failed.
func (g *Generator) RunSchedule(ctx context.Context, sc models.Schedule) (*RunResult, error) {
	now := g.cfg.Now().In(g.cfg.Location)
	log := g.logger.WithFields(logrus.Fields{"job": "auto-generate", "schedule_id": sc.ID})

	settings, err := g.repo.Settings()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	instruments := sc.Instruments
	if len(instruments) == 0 {
		instruments = models.Indices
	}

	res := &RunResult{ScheduleID: sc.ID}
	var lines []string
	for _, idx := range instruments {
		horizon := sc.HorizonFor(idx)
		table, err := g.builder.Build(ctx, strategy.Request{Index: idx, Horizon: horizon, LotSize: settings.LotSize(idx)})
		if err != nil {
			log.WithField("instrument", idx).WithError(err).Warn("Strategy build failed")
			res.Failed = append(res.Failed, idx)
			lines = append(lines, fmt.Sprintf("• %s %s: failed (%v)", idx, horizon, err))
			continue
		}
		adopted, err := g.adopter.Adopt(ctx, table, AutoTag(now, idx))
		if err != nil {
			log.WithField("instrument", idx).WithError(err).Warn("Adoption failed")
			res.Failed = append(res.Failed, idx)
			lines = append(lines, fmt.Sprintf("• %s %s: failed (%v)", idx, horizon, err))
			continue
		}
		res.Added += len(adopted.Added)
		lines = append(lines, fmt.Sprintf("• %s %s %s: %s", idx, horizon, table.ExpiryLabel(), adopted.Message))
	}

	switch {
	case len(res.Failed) == 0:
		res.Status = ActivitySuccess
	case len(res.Failed) < len(instruments):
		res.Status = ActivityPartial
	default:
		res.Status = ActivityFailed
	}

	name := sc.Name
	if name == "" {
		name = sc.ID
	}
	header := fmt.Sprintf("*Auto-generation: %s*", name)
	if g.cfg.MarketStatus != nil {
		header += fmt.Sprintf(" (triggered during %s)", g.cfg.MarketStatus(now))
	}
	res.Message = fmt.Sprintf("%d new trade(s) across %d instrument(s)", res.Added, len(instruments))
	notify.SafeSend(ctx, g.notifier, g.logger, header+"\n"+strings.Join(lines, "\n"))

	rec := models.ActivityRecord{
		ID:          uuid.NewString(),
		Title:       "Auto-generation: " + name,
		Description: res.Message + "\n" + strings.Join(lines, "\n"),
		Status:      res.Status,
		Timestamp:   now.Format("2006-01-02 15:04:05"),
	}
	if err := g.repo.AppendActivity(rec); err != nil {
		log.WithError(err).Warn("Activity record not saved")
	}

	log.WithFields(logrus.Fields{"added": res.Added, "status": res.Status}).Info("Schedule run complete")
	if res.Status == ActivityFailed {
		return res, fmt.Errorf("schedule %s: every instrument failed", name)
	}
	return res, nil
}
