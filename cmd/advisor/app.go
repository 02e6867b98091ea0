package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/zone_strangler/internal/config"
	"github.com/eddiefleurent/zone_strangler/internal/logging"
	"github.com/eddiefleurent/zone_strangler/internal/metrics"
	"github.com/eddiefleurent/zone_strangler/internal/monitor"
	"github.com/eddiefleurent/zone_strangler/internal/notify"
	"github.com/eddiefleurent/zone_strangler/internal/provider"
	"github.com/eddiefleurent/zone_strangler/internal/scheduler"
	"github.com/eddiefleurent/zone_strangler/internal/storage"
	"github.com/eddiefleurent/zone_strangler/internal/strategy"
	"github.com/eddiefleurent/zone_strangler/internal/trades"
)

// App holds the wired components shared by every command.
type App struct {
	Config    *config.Config
	Logger    *logrus.Logger
	Metrics   *metrics.Metrics
	Repo      *storage.Repository
	Notifier  notify.Notifier
	Builder   *strategy.Builder
	Trades    *trades.Manager
	Monitor   *monitor.Monitor
	Generator *scheduler.Generator
	Now       func() time.Time
}

// newApp builds the component graph from cfg. logger may be nil.
func newApp(cfg *config.Config, logger *logrus.Logger) (*App, error) {
	if logger == nil {
		logger = logging.New(cfg.Environment, cfg.Logging)
	}
	loc := cfg.Location()
	now := time.Now

	tradeStore := storage.NewJSONTradeStore(cfg.Storage.TradesPath, logger)
	settingsStore := storage.NewJSONSettingsStore(cfg.Storage.SettingsPath, logger)
	repo := storage.NewRepository(tradeStore, settingsStore)
	if _, err := repo.Settings(); err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	chain, history, err := newProviders(cfg, loc, logger, now)
	if err != nil {
		return nil, err
	}

	n := newNotifier(cfg, repo, logger)
	m := metrics.New()

	builder := strategy.NewBuilder(history, chain, loc, logger, now)
	mgr := trades.NewManager(repo, n, m, logger, trades.Config{Location: loc, Now: now})
	mon := monitor.New(repo, chain, n, m, logger, monitor.Config{
		Location: loc,
		Now:      now,
		Renderer: notify.DefaultBarChart(),
	})
	gen := scheduler.NewGenerator(builder, mgr, repo, n, logger, scheduler.GeneratorConfig{
		Location:     loc,
		Now:          now,
		MarketStatus: cfg.MarketStatus,
	})

	return &App{
		Config:    cfg,
		Logger:    logger,
		Metrics:   m,
		Repo:      repo,
		Notifier:  n,
		Builder:   builder,
		Trades:    mgr,
		Monitor:   mon,
		Generator: gen,
		Now:       now,
	}, nil
}

func newProviders(cfg *config.Config, loc *time.Location, logger *logrus.Logger, now func() time.Time) (provider.ChainProvider, provider.HistoryProvider, error) {
	retry := provider.RetryConfig{
		CallTimeout: cfg.Providers.CallTimeout,
		MaxRetries:  cfg.Providers.MaxRetries,
		RetryGap:    cfg.Providers.RetryGap,
	}

	var mock *provider.MockProvider
	mockProvider := func() *provider.MockProvider {
		if mock == nil {
			mock = provider.NewMockProvider(loc, now)
		}
		return mock
	}

	var chain provider.ChainProvider
	switch cfg.Providers.Chain {
	case config.ProviderNSE:
		chain = provider.NewResilientChain(
			provider.NewNSEClient(cfg.Providers.NSEBaseURL, nil, loc, logger),
			retry, provider.DefaultCircuitBreakerSettings, logger)
	case config.ProviderMock:
		chain = mockProvider()
	default:
		return nil, nil, fmt.Errorf("unknown chain provider %q", cfg.Providers.Chain)
	}

	var history provider.HistoryProvider
	switch cfg.Providers.History {
	case config.ProviderYahoo:
		history = provider.NewResilientHistory(
			provider.NewYahooClient(cfg.Providers.YahooBaseURL, nil, loc, logger),
			retry, provider.DefaultCircuitBreakerSettings, logger)
	case config.ProviderMock:
		history = mockProvider()
	default:
		return nil, nil, fmt.Errorf("unknown history provider %q", cfg.Providers.History)
	}
	return chain, history, nil
}

// newNotifier always logs and also sends to Telegram. Credentials are read
// from the settings store on every send and fall back to the config file.
func newNotifier(cfg *config.Config, repo *storage.Repository, logger *logrus.Logger) notify.Notifier {
	creds := func() (string, string) {
		token, chatID := cfg.Telegram.BotToken, cfg.Telegram.ChatID
		if s, err := repo.Settings(); err == nil {
			if s.TelegramBotToken != "" {
				token = s.TelegramBotToken
			}
			if s.TelegramChatID != "" {
				chatID = s.TelegramChatID
			}
		}
		return token, chatID
	}
	tg := notify.NewTelegramNotifier(cfg.Telegram.APIBaseURL, creds, nil, logger)
	return notify.NewMultiNotifier(notify.LogNotifier{Logger: logger}, credentialGate{creds: creds, next: tg})
}

// credentialGate drops messages while no Telegram credentials are set so a
// log-only setup does not report a failure on every send.
type credentialGate struct {
	creds notify.Credentials
	next  notify.Notifier
}

func (g credentialGate) Send(ctx context.Context, text string, images ...[]byte) error {
	if token, chatID := g.creds(); token == "" || chatID == "" {
		return nil
	}
	return g.next.Send(ctx, text, images...)
}
