// Package scheduler hosts the recurring jobs: the P/L monitor, the EOD
// report and the per-schedule auto-generation runs. The job set follows
// the settings store and is reconciled whenever settings are saved.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/zone_strangler/internal/logging"
	"github.com/eddiefleurent/zone_strangler/internal/models"
	"github.com/eddiefleurent/zone_strangler/internal/monitor"
	"github.com/eddiefleurent/zone_strangler/internal/storage"
	"github.com/eddiefleurent/zone_strangler/internal/util"
)

// Job keys
const (
	JobMonitor        = "monitor"
	JobEOD            = "eod"
	jobSchedulePrefix = "schedule:"
)

// Sweeper runs the monitor and EOD passes.
type Sweeper interface {
	Sweep(ctx context.Context) (*monitor.Report, error)
	EOD(ctx context.Context) (*monitor.EODReport, error)
}

// Runner executes one auto-generation schedule.
type Runner interface {
	RunSchedule(ctx context.Context, sc models.Schedule) (*RunResult, error)
}

// Config contains scheduler settings.
type Config struct {
	Location  *time.Location
	EODHour   int
	EODMinute int
}

// JobInfo describes a registered job.
type JobInfo struct {
	Key  string    `json:"key"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
}

type entry struct {
	spec string
	id   cron.EntryID
}

// Scheduler owns the cron instance and the current job set.
type Scheduler struct {
	cron    *cron.Cron
	repo    *storage.Repository
	sweeper Sweeper
	runner  Runner
	cfg     Config
	logger  *logrus.Logger

	mu      sync.Mutex
	entries map[string]entry
	baseCtx context.Context
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a scheduler. Jobs are not registered until Reconcile or Start.
func New(repo *storage.Repository, sweeper Sweeper, runner Runner, logger *logrus.Logger, cfg Config) *Scheduler {
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.Location == nil {
		cfg.Location = util.MarketLocation()
	}
	if cfg.EODHour == 0 && cfg.EODMinute == 0 {
		cfg.EODHour, cfg.EODMinute = 15, 45
	}
	cl := logging.CronLogger{Entry: logger.WithField("component", "cron")}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		repo:    repo,
		sweeper: sweeper,
		runner:  runner,
		cfg:     cfg,
		logger:  logger,
		entries: make(map[string]entry),
		baseCtx: context.Background(),
	}
}

// MonitorSpec is the cron spec for the P/L monitor interval.
func MonitorSpec(d time.Duration) string {
	return "@every " + d.String()
}

// EODSpec fires at hh:mm on weekdays.
func EODSpec(hour, minute int) string {
	return fmt.Sprintf("0 %d %d * * 1-5", minute, hour)
}

// ScheduleSpec converts a schedule into a seconds-first cron spec.
func ScheduleSpec(sc models.Schedule) (string, error) {
	hour, minute, err := sc.Clock()
	if err != nil {
		return "", err
	}
	days, err := sc.Weekdays()
	if err != nil {
		return "", err
	}
	if len(days) == 0 {
		return "", fmt.Errorf("schedule %q has no active days", sc.Name)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	dow := make([]string, len(days))
	for i, d := range days {
		dow[i] = strconv.Itoa(int(d))
	}
	return fmt.Sprintf("0 %d %d * * %s", minute, hour, strings.Join(dow, ",")), nil
}

type desiredJob struct {
	spec string
	run  func()
}

// desired computes the job set the settings call for.
func (s *Scheduler) desired(settings *models.Settings) map[string]desiredJob {
	jobs := make(map[string]desiredJob)

	if d, ok, err := settings.MonitorInterval(); err != nil {
		s.logger.WithError(err).Warn("Monitor interval invalid, monitor disabled")
	} else if ok {
		jobs[JobMonitor] = desiredJob{spec: MonitorSpec(d), run: s.runMonitor}
	}
	if settings.EnableEODReport {
		jobs[JobEOD] = desiredJob{spec: EODSpec(s.cfg.EODHour, s.cfg.EODMinute), run: s.runEOD}
	}
	for _, sc := range settings.MultipleSchedules {
		if !sc.Enabled || sc.ID == "" {
			continue
		}
		spec, err := ScheduleSpec(sc)
		if err != nil {
			s.logger.WithField("schedule_id", sc.ID).WithError(err).Warn("Schedule skipped")
			continue
		}
		id := sc.ID
		jobs[jobSchedulePrefix+id] = desiredJob{spec: spec, run: func() { s.runSchedule(id) }}
	}
	return jobs
}

// assignScheduleIDs gives every schedule without an id a fresh uuid.
func assignScheduleIDs(settings *models.Settings) bool {
	changed := false
	for i := range settings.MultipleSchedules {
		if settings.MultipleSchedules[i].ID == "" {
			settings.MultipleSchedules[i].ID = uuid.NewString()
			changed = true
		}
	}
	return changed
}

// Reconcile brings the registered jobs in line with the saved settings:
// removed or re-timed jobs are unregistered and new ones added. Jobs whose
// spec is unchanged keep running untouched.
func (s *Scheduler) Reconcile() error {
	settings, err := s.repo.Settings()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if assignScheduleIDs(settings.Clone()) {
		settings, err = s.repo.UpdateSettings(func(cur *models.Settings) error {
			assignScheduleIDs(cur)
			return nil
		})
		if err != nil {
			return fmt.Errorf("assign schedule ids: %w", err)
		}
	}
	want := s.desired(settings)

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.entries {
		if d, ok := want[key]; ok && d.spec == e.spec {
			continue
		}
		s.cron.Remove(e.id)
		delete(s.entries, key)
		s.logger.WithFields(logrus.Fields{"job": key, "spec": e.spec}).Info("Job removed")
	}
	for key, d := range want {
		if _, ok := s.entries[key]; ok {
			continue
		}
		id, err := s.cron.AddFunc(d.spec, d.run)
		if err != nil {
			s.logger.WithFields(logrus.Fields{"job": key, "spec": d.spec}).WithError(err).Error("Job not registered")
			continue
		}
		s.entries[key] = entry{spec: d.spec, id: id}
		s.logger.WithFields(logrus.Fields{"job": key, "spec": d.spec}).Info("Job registered")
	}
	return nil
}

// Jobs lists the registered jobs sorted by key.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(s.entries))
	for key, e := range s.entries {
		out = append(out, JobInfo{Key: key, Spec: e.spec, Next: s.cron.Entry(e.id).Next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Start registers the jobs, starts the cron loop and reconciles on every
// settings change until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	s.started = true
	s.baseCtx = ctx
	watchCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	if err := s.Reconcile(); err != nil {
		cancel()
		close(s.done)
		return err
	}
	s.cron.Start()
	s.logger.WithField("jobs", len(s.Jobs())).Info("Scheduler started")

	go func() {
		defer close(s.done)
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-s.repo.SettingsChanged():
				if err := s.Reconcile(); err != nil {
					s.logger.WithError(err).Error("Reconcile failed")
				}
			}
		}
	}()
	return nil
}

// Stop halts the cron loop and waits up to grace for running jobs.
// It reports whether every job finished in time.
func (s *Scheduler) Stop(grace time.Duration) bool {
	stopCtx := s.cron.Stop()
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	select {
	case <-stopCtx.Done():
		s.logger.Info("Scheduler stopped")
		return true
	case <-time.After(grace):
		s.logger.WithField("grace", grace).Warn("Scheduler stopped with jobs still running")
		return false
	}
}

func (s *Scheduler) ctx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCtx
}

func (s *Scheduler) runMonitor() {
	report, err := s.sweeper.Sweep(s.ctx())
	if err != nil {
		s.logger.WithField("job", JobMonitor).WithError(err).Warn("Monitor run failed")
		return
	}
	s.logger.WithField("job", JobMonitor).Debug(report.Message)
}

func (s *Scheduler) runEOD() {
	if _, err := s.sweeper.EOD(s.ctx()); err != nil {
		s.logger.WithField("job", JobEOD).WithError(err).Warn("EOD run failed")
	}
}

// runSchedule looks the schedule up at fire time so edits that keep the
// same spec take effect without re-registration.
func (s *Scheduler) runSchedule(id string) {
	log := s.logger.WithFields(logrus.Fields{"job": jobSchedulePrefix + id, "schedule_id": id})
	settings, err := s.repo.Settings()
	if err != nil {
		log.WithError(err).Error("Settings unavailable")
		return
	}
	for _, sc := range settings.MultipleSchedules {
		if sc.ID != id {
			continue
		}
		if !sc.Enabled {
			return
		}
		if _, err := s.runner.RunSchedule(s.ctx(), sc); err != nil {
			log.WithError(err).Warn("Schedule run failed")
		}
		return
	}
	log.Warn("Schedule no longer exists")
}
