package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	configPath := filepath.Join("..", "..", "config.yaml.example")
	cfg, err := Load(configPath)
	require.NoError(t, err, "example config should load")
	assert.True(t, cfg.IsPaperTrading())
	assert.Equal(t, 15*time.Second, cfg.Providers.CallTimeout)
	assert.Equal(t, "15:45", cfg.Market.EODTime)
}

func TestLoad_InvalidPath(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	assert.Error(t, err)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesDefaultsAndExpandsEnv(t *testing.T) {
	t.Setenv("ADVISOR_CHAT", "12345")
	cfg, err := Load(writeConfig(t, `
environment:
  mode: paper
telegram:
  chat_id: ${ADVISOR_CHAT}
`))
	require.NoError(t, err)

	assert.Equal(t, "12345", cfg.Telegram.ChatID)
	assert.Equal(t, "Asia/Kolkata", cfg.Environment.Timezone)
	assert.Equal(t, ProviderMock, cfg.Providers.Chain)
	assert.Equal(t, 3, cfg.Providers.MaxRetries)
	assert.Equal(t, time.Second, cfg.Providers.RetryGap)
	assert.Equal(t, "data/trades.json", cfg.Storage.TradesPath)
	h, m := cfg.EODClock()
	assert.Equal(t, 15, h)
	assert.Equal(t, 45, m)
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	_, err := Load(writeConfig(t, "environment:\n  mode: paper\nbroker:\n  api_key: x\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad mode", func(c *Config) { c.Environment.Mode = "sandbox" }},
		{"bad log level", func(c *Config) { c.Environment.LogLevel = "trace" }},
		{"bad timezone", func(c *Config) { c.Environment.Timezone = "Mars/Olympus" }},
		{"bad chain provider", func(c *Config) { c.Providers.Chain = "kite" }},
		{"bad history provider", func(c *Config) { c.Providers.History = "nse" }},
		{"live with mock", func(c *Config) { c.Environment.Mode = "live" }},
		{"retry gap too short", func(c *Config) { c.Providers.RetryGap = 500 * time.Millisecond }},
		{"window reversed", func(c *Config) { c.Market.Open, c.Market.Close = "15:30", "09:15" }},
		{"bad eod", func(c *Config) { c.Market.EODTime = "quarter to four" }},
		{"bad port", func(c *Config) { c.Dashboard.Port = 70000 }},
	}
	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}

	live := Default()
	live.Environment.Mode = "live"
	live.Providers.Chain = ProviderNSE
	live.Providers.History = ProviderYahoo
	assert.NoError(t, live.Validate())
}

func TestMarketStatus(t *testing.T) {
	c := Default()
	ist := c.Location()
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2025, 8, 11, 9, 14, 0, 0, ist), StatusAfterHours},
		{time.Date(2025, 8, 11, 9, 15, 0, 0, ist), StatusMarketHours},
		{time.Date(2025, 8, 11, 15, 29, 0, 0, ist), StatusMarketHours},
		{time.Date(2025, 8, 11, 15, 30, 0, 0, ist), StatusAfterHours},
		{time.Date(2025, 8, 16, 11, 0, 0, 0, ist), StatusWeekend},
		{time.Date(2025, 8, 17, 11, 0, 0, 0, ist), StatusWeekend},
		// 05:00 UTC is 10:30 IST
		{time.Date(2025, 8, 12, 5, 0, 0, 0, time.UTC), StatusMarketHours},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.MarketStatus(tt.at), tt.at.String())
	}
	assert.True(t, c.IsWithinTradingHours(time.Date(2025, 8, 12, 5, 0, 0, 0, time.UTC)))
}
