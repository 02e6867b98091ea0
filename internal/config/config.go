// Package config provides configuration management for the strangle advisor.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/eddiefleurent/zone_strangler/internal/util"
)

// Provider names
const (
	ProviderNSE   = "nse"
	ProviderYahoo = "yahoo"
	ProviderMock  = "mock"
)

// Market status labels used to annotate scheduled runs
const (
	StatusMarketHours = "market hours"
	StatusAfterHours  = "after hours"
	StatusWeekend     = "weekend"
)

const (
	defaultTradesPath   = "data/trades.json"
	defaultSettingsPath = "data/settings.json"
	defaultCallTimeout  = 15 * time.Second
	defaultMaxRetries   = 3
	defaultRetryGap     = time.Second
	defaultPort         = 8080
)

// Config represents the complete process configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Storage     StorageConfig     `yaml:"storage"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Market      MarketConfig      `yaml:"market"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
	Logging     LoggingConfig     `yaml:"logging"`
	Telegram    TelegramConfig    `yaml:"telegram"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
	Timezone string `yaml:"timezone"`  // defaults to Asia/Kolkata
}

// StorageConfig locates the JSON artefacts.
type StorageConfig struct {
	TradesPath   string `yaml:"trades_path"`
	SettingsPath string `yaml:"settings_path"`
}

// ProvidersConfig selects and tunes the market-data providers.
type ProvidersConfig struct {
	Chain        string        `yaml:"chain"`   // nse | mock
	History      string        `yaml:"history"` // yahoo | mock
	NSEBaseURL   string        `yaml:"nse_base_url"`
	YahooBaseURL string        `yaml:"yahoo_base_url"`
	CallTimeout  time.Duration `yaml:"call_timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryGap     time.Duration `yaml:"retry_gap"`
}

// MarketConfig defines the trading window and EOD time, all "HH:MM" local.
type MarketConfig struct {
	Open    string `yaml:"open"`
	Close   string `yaml:"close"`
	EODTime string `yaml:"eod_time"`
}

// DashboardConfig controls the JSON API.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// LoggingConfig controls the optional rotating log file.
type LoggingConfig struct {
	File       string `yaml:"file"`
	JSON       bool   `yaml:"json"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// TelegramConfig holds transport settings. Credentials here are used only
// when the settings store carries none.
type TelegramConfig struct {
	APIBaseURL string `yaml:"api_base_url"`
	BotToken   string `yaml:"bot_token"`
	ChatID     string `yaml:"chat_id"`
}

// Default returns a configuration usable without a file.
func Default() *Config {
	c := &Config{Environment: EnvironmentConfig{Mode: "paper", LogLevel: "info"}}
	c.applyDefaults()
	return c
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Environment.Timezone == "" {
		c.Environment.Timezone = util.MarketTimezone
	}
	if c.Storage.TradesPath == "" {
		c.Storage.TradesPath = defaultTradesPath
	}
	if c.Storage.SettingsPath == "" {
		c.Storage.SettingsPath = defaultSettingsPath
	}
	p := &c.Providers
	if p.Chain == "" {
		p.Chain = ProviderMock
	}
	if p.History == "" {
		p.History = ProviderMock
	}
	if p.CallTimeout == 0 {
		p.CallTimeout = defaultCallTimeout
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = defaultMaxRetries
	}
	if p.RetryGap == 0 {
		p.RetryGap = defaultRetryGap
	}
	if c.Market.Open == "" {
		c.Market.Open = "09:15"
	}
	if c.Market.Close == "" {
		c.Market.Close = "15:30"
	}
	if c.Market.EODTime == "" {
		c.Market.EODTime = "15:45"
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = defaultPort
	}
	if c.Telegram.APIBaseURL == "" {
		c.Telegram.APIBaseURL = "https://api.telegram.org"
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}
	switch strings.ToLower(c.Environment.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of debug, info, warn, error")
	}
	if _, err := time.LoadLocation(c.Environment.Timezone); err != nil {
		return fmt.Errorf("environment.timezone invalid: %w", err)
	}

	if c.Providers.Chain != ProviderNSE && c.Providers.Chain != ProviderMock {
		return fmt.Errorf("providers.chain must be 'nse' or 'mock'")
	}
	if c.Providers.History != ProviderYahoo && c.Providers.History != ProviderMock {
		return fmt.Errorf("providers.history must be 'yahoo' or 'mock'")
	}
	if c.Environment.Mode == "live" && (c.Providers.Chain == ProviderMock || c.Providers.History == ProviderMock) {
		return fmt.Errorf("live mode requires real providers (chain=nse, history=yahoo)")
	}
	if c.Providers.CallTimeout <= 0 {
		return fmt.Errorf("providers.call_timeout must be > 0")
	}
	if c.Providers.MaxRetries < 0 {
		return fmt.Errorf("providers.max_retries must be >= 0")
	}
	if c.Providers.RetryGap < time.Second {
		return fmt.Errorf("providers.retry_gap must be at least 1s")
	}

	open, err1 := parseClock(c.Market.Open)
	closeAt, err2 := parseClock(c.Market.Close)
	if err1 != nil || err2 != nil || open >= closeAt {
		return fmt.Errorf("market trading window invalid (open/close parse/order)")
	}
	if _, err := parseClock(c.Market.EODTime); err != nil {
		return fmt.Errorf("market.eod_time invalid: %w", err)
	}

	if c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port must be in 1..65535")
	}
	return nil
}

// IsPaperTrading returns true if the advisor runs on synthetic data.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// Location returns the configured market timezone.
func (c *Config) Location() *time.Location {
	return util.LoadLocation(c.Environment.Timezone)
}

// EODClock returns the EOD report time as hour and minute.
func (c *Config) EODClock() (hour, minute int) {
	m, err := parseClock(c.Market.EODTime)
	if err != nil {
		return 15, 45
	}
	return m / 60, m % 60
}

// IsWithinTradingHours checks if the given time falls within configured trading hours.
func (c *Config) IsWithinTradingHours(now time.Time) bool {
	return c.MarketStatus(now) == StatusMarketHours
}

// MarketStatus classifies t as market hours, after hours or weekend.
func (c *Config) MarketStatus(now time.Time) string {
	local := now.In(c.Location())
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return StatusWeekend
	}
	open, err1 := parseClock(c.Market.Open)
	closeAt, err2 := parseClock(c.Market.Close)
	if err1 != nil || err2 != nil {
		open, closeAt = 9*60+15, 15*60+30
	}
	m := local.Hour()*60 + local.Minute()
	// Inclusive open, exclusive close
	if m >= open && m < closeAt {
		return StatusMarketHours
	}
	return StatusAfterHours
}

// parseClock converts "HH:MM" to minutes after midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
