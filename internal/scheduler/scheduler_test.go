package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/zone_strangler/internal/models"
	"github.com/eddiefleurent/zone_strangler/internal/monitor"
	"github.com/eddiefleurent/zone_strangler/internal/notify"
	"github.com/eddiefleurent/zone_strangler/internal/storage"
	"github.com/eddiefleurent/zone_strangler/internal/strategy"
	"github.com/eddiefleurent/zone_strangler/internal/trades"
)

var (
	ist    = time.FixedZone("IST", 5*3600+1800)
	monday = time.Date(2025, 8, 11, 9, 20, 0, 0, ist)
)

type fakeSweeper struct {
	mu     sync.Mutex
	sweeps int
	eods   int
}

func (f *fakeSweeper) Sweep(context.Context) (*monitor.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	return &monitor.Report{Message: "ok"}, nil
}

func (f *fakeSweeper) EOD(context.Context) (*monitor.EODReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eods++
	return &monitor.EODReport{}, nil
}

type fakeRunner struct {
	mu  sync.Mutex
	ran []models.Schedule
}

func (f *fakeRunner) RunSchedule(_ context.Context, sc models.Schedule) (*RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ran = append(f.ran, sc)
	return &RunResult{ScheduleID: sc.ID, Status: ActivitySuccess}, nil
}

func jobKeys(jobs []JobInfo) map[string]string {
	out := make(map[string]string, len(jobs))
	for _, j := range jobs {
		out[j.Key] = j.Spec
	}
	return out
}

func TestSpecs(t *testing.T) {
	assert.Equal(t, "@every 15m0s", MonitorSpec(15*time.Minute))
	assert.Equal(t, "0 45 15 * * 1-5", EODSpec(15, 45))

	spec, err := ScheduleSpec(models.Schedule{Name: "m", Time: "09:20", ActiveDays: []string{"Wed", "Mon", "monday"}})
	require.NoError(t, err)
	assert.Equal(t, "0 20 9 * * 1,3", spec)

	_, err = ScheduleSpec(models.Schedule{Name: "none", Time: "09:20"})
	assert.Error(t, err)
	_, err = ScheduleSpec(models.Schedule{Name: "bad", Time: "9h", ActiveDays: []string{"Mon"}})
	assert.Error(t, err)
}

func TestReconcile_FollowsSettings(t *testing.T) {
	store := storage.NewMockStorage()
	repo := storage.NewRepository(store, store)
	s := New(repo, &fakeSweeper{}, &fakeRunner{}, nil, Config{Location: ist, EODHour: 15, EODMinute: 45})

	require.NoError(t, s.Reconcile())
	assert.Equal(t, map[string]string{
		JobMonitor: "@every 15m0s",
		JobEOD:     "0 45 15 * * 1-5",
	}, jobKeys(s.Jobs()))

	_, err := repo.UpdateSettings(func(st *models.Settings) error {
		st.UpdateInterval = models.Interval1Hour
		st.EnableEODReport = false
		st.MultipleSchedules = []models.Schedule{
			{Name: "morning", Enabled: true, Time: "09:20", Instruments: []models.Index{models.IndexNifty}, ActiveDays: []string{"Mon", "Tue"}},
			{Name: "off", Enabled: false, Time: "10:00", ActiveDays: []string{"Mon"}},
		}
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.Reconcile())

	saved, err := repo.Settings()
	require.NoError(t, err)
	require.Len(t, saved.MultipleSchedules, 2)
	id := saved.MultipleSchedules[0].ID
	require.NotEmpty(t, id, "missing ids are assigned")
	assert.NotEmpty(t, saved.MultipleSchedules[1].ID)

	assert.Equal(t, map[string]string{
		JobMonitor:             "@every 1h0m0s",
		jobSchedulePrefix + id: "0 20 9 * * 1,2",
	}, jobKeys(s.Jobs()))

	_, err = repo.UpdateSettings(func(st *models.Settings) error {
		st.UpdateInterval = models.IntervalOff
		st.MultipleSchedules = nil
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.Reconcile())
	assert.Empty(t, s.Jobs())
}

func TestRunSchedule_LooksUpCurrentSettings(t *testing.T) {
	store := storage.NewMockStorage()
	settings := models.DefaultSettings()
	settings.MultipleSchedules = []models.Schedule{
		{ID: "a", Name: "on", Enabled: true, Time: "09:20", ActiveDays: []string{"Mon"}},
		{ID: "b", Name: "off", Enabled: false, Time: "09:20", ActiveDays: []string{"Mon"}},
	}
	store.SetSettings(settings)
	runner := &fakeRunner{}
	s := New(storage.NewRepository(store, store), &fakeSweeper{}, runner, nil, Config{Location: ist})

	s.runSchedule("a")
	s.runSchedule("b")
	s.runSchedule("gone")
	require.Len(t, runner.ran, 1)
	assert.Equal(t, "on", runner.ran[0].Name)
}

func TestStart_ReconcilesOnSettingsChange(t *testing.T) {
	store := storage.NewMockStorage()
	repo := storage.NewRepository(store, store)
	s := New(repo, &fakeSweeper{}, &fakeRunner{}, nil, Config{Location: ist})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	assert.Error(t, s.Start(ctx))
	assert.Len(t, s.Jobs(), 2)

	_, err := repo.UpdateSettings(func(st *models.Settings) error {
		st.EnableEODReport = false
		return nil
	})
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return len(s.Jobs()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, s.Stop(time.Second))
}

type fakeBuilder struct {
	fail map[models.Index]error
	reqs []strategy.Request
}

func (f *fakeBuilder) Build(_ context.Context, req strategy.Request) (*models.StrategyTable, error) {
	f.reqs = append(f.reqs, req)
	if err := f.fail[req.Index]; err != nil {
		return nil, err
	}
	return &models.StrategyTable{
		Index:   req.Index,
		Horizon: req.Horizon,
		Expiry:  time.Date(2025, 8, 14, 0, 0, 0, 0, ist),
		LotSize: req.LotSize,
		Rows: []models.StrategyRow{
			{Tier: models.RewardHigh, CEStrike: 24850, PEStrike: 24250, CombinedPremium: 200, TargetAmount: 12000, StoplossAmount: 12000},
		},
	}, nil
}

func TestGenerator_RunSchedule(t *testing.T) {
	store := storage.NewMockStorage()
	settings := models.DefaultSettings()
	settings.NiftyLotSize = 50
	store.SetSettings(settings)
	repo := storage.NewRepository(store, store)
	clock := func() time.Time { return monday }
	rec := &notify.Recorder{}

	mgr := trades.NewManager(repo, nil, nil, nil, trades.Config{Location: ist, Now: clock})
	builder := &fakeBuilder{fail: map[models.Index]error{models.IndexBankNifty: errors.New("no chain")}}
	gen := NewGenerator(builder, mgr, repo, rec, nil, GeneratorConfig{
		Location:     ist,
		Now:          clock,
		MarketStatus: func(time.Time) string { return "market hours" },
	})

	sc := models.Schedule{
		ID:       "s1",
		Name:     "Morning",
		Enabled:  true,
		Time:     "09:20",
		Horizons: map[models.Index]models.Horizon{models.IndexBankNifty: models.HorizonMonthly},
	}
	res, err := gen.RunSchedule(context.Background(), sc)
	require.NoError(t, err)
	assert.Equal(t, ActivityPartial, res.Status)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, []models.Index{models.IndexBankNifty}, res.Failed)

	require.Len(t, builder.reqs, 2)
	assert.Equal(t, strategy.Request{Index: models.IndexNifty, Horizon: models.HorizonWeekly, LotSize: 50}, builder.reqs[0])
	assert.Equal(t, models.HorizonMonthly, builder.reqs[1].Horizon)

	all, err := repo.Trades()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Auto 11-Aug NIFTY", all[0].EntryTag)

	msgs := rec.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "Auto-generation: Morning")
	assert.Contains(t, msgs[0].Text, "triggered during market hours")
	assert.Contains(t, msgs[0].Text, "BANKNIFTY Monthly: failed")

	saved, err := repo.Settings()
	require.NoError(t, err)
	require.Len(t, saved.ActivityLog, 1)
	act := saved.ActivityLog[0]
	assert.Equal(t, ActivityPartial, act.Status)
	assert.Equal(t, "2025-08-11 09:20:00", act.Timestamp)
	assert.NotEmpty(t, act.ID)

	// A second run adopts nothing new and still logs the activity.
	res, err = gen.RunSchedule(context.Background(), sc)
	require.NoError(t, err)
	assert.Zero(t, res.Added)
	saved, err = repo.Settings()
	require.NoError(t, err)
	assert.Len(t, saved.ActivityLog, 2)
}

func TestGenerator_AllFailedIsAnError(t *testing.T) {
	store := storage.NewMockStorage()
	repo := storage.NewRepository(store, store)
	builder := &fakeBuilder{fail: map[models.Index]error{
		models.IndexNifty:     errors.New("down"),
		models.IndexBankNifty: errors.New("down"),
	}}
	gen := NewGenerator(builder, trades.NewManager(repo, nil, nil, nil), repo, nil, nil, GeneratorConfig{Location: ist, Now: func() time.Time { return monday }})

	res, err := gen.RunSchedule(context.Background(), models.Schedule{ID: "x", Name: "x"})
	assert.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, ActivityFailed, res.Status)
}

func TestAutoTag(t *testing.T) {
	assert.Equal(t, "Auto 11-Aug BANKNIFTY", AutoTag(monday, models.IndexBankNifty))
}
