package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/zone_strangler/internal/config"
	"github.com/eddiefleurent/zone_strangler/internal/logging"
	"github.com/eddiefleurent/zone_strangler/internal/scheduler"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	body := `environment:
  mode: paper
  log_level: error
storage:
  trades_path: ` + filepath.Join(dir, "trades.json") + `
  settings_path: ` + filepath.Join(dir, "settings.json") + `
providers:
  chain: mock
  history: mock
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var built *config.Config
	cmd := newRootCmdWith(func(cfg *config.Config) (*App, error) {
		built = cfg
		return newApp(cfg, logging.Discard())
	})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := cmd.Execute()
	if err == nil {
		require.NotNil(t, built)
	}
	return out.String(), err
}

func TestGenerateAndAdopt(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	out, err := run(t, "generate", "--config", cfgPath, "--index", "nifty", "--adopt", "--tag", "cli", "--json")
	require.NoError(t, err)

	var got struct {
		Table struct {
			Index   string        `json:"index"`
			LotSize int           `json:"lot_size"`
			Rows    []interface{} `json:"rows"`
		} `json:"table"`
		Adopted struct {
			Added []interface{} `json:"added"`
			Tag   string        `json:"tag"`
		} `json:"adopted"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.Equal(t, "NIFTY", got.Table.Index)
	assert.Equal(t, 75, got.Table.LotSize)
	assert.Len(t, got.Table.Rows, 3)
	assert.Len(t, got.Adopted.Added, 3)
	assert.Equal(t, "cli", got.Adopted.Tag)

	data, err := os.ReadFile(filepath.Join(dir, "trades.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"entry_tag": "cli"`)

	out, err = run(t, "run-monitor-once", "--config", cfgPath)
	require.NoError(t, err)
	var report map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &report), out)
	assert.Contains(t, report, "evaluated")

	out, err = run(t, "run-eod-once", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "EOD Report")
}

func TestGenerateTextOutput(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir())
	out, err := run(t, "generate", "--config", cfgPath, "--index", "BANKNIFTY", "--horizon", "monthly")
	require.NoError(t, err)
	assert.Contains(t, out, "BANKNIFTY Monthly")
	assert.Contains(t, out, "HighReward")

	_, err = run(t, "generate", "--config", cfgPath, "--index", "SENSEX")
	assert.Error(t, err)
}

func TestRegenSchedules(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir())
	out, err := run(t, "regen-schedules", "--config", cfgPath)
	require.NoError(t, err)

	var jobs []scheduler.JobInfo
	require.NoError(t, json.Unmarshal([]byte(out), &jobs), out)
	keys := make([]string, 0, len(jobs))
	for _, j := range jobs {
		keys = append(keys, j.Key)
	}
	assert.Contains(t, keys, scheduler.JobMonitor)
}

func TestConfigFallback(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	_, err = run(t, "regen-schedules")
	require.NoError(t, err, "missing default config falls back to defaults")

	_, err = run(t, "regen-schedules", "--config", filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}
