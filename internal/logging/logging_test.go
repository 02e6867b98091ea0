package logging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/zone_strangler/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, logrus.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, logrus.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel(""))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("verbose"))
}

func TestNewLogger_TeesToFile(t *testing.T) {
	var console bytes.Buffer
	file := filepath.Join(t.TempDir(), "logs", "advisor.log")

	logger := newLogger(config.EnvironmentConfig{LogLevel: "info"}, config.LoggingConfig{File: file, JSON: true}, &console)
	logger.WithField("instrument", "NIFTY").Info("sweep complete")
	logger.Debug("hidden")

	assert.Contains(t, console.String(), `"instrument":"NIFTY"`)
	assert.NotContains(t, console.String(), "hidden")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sweep complete")
}

func TestCronLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel)

	cl := CronLogger{Entry: logrus.NewEntry(logger)}
	cl.Info("schedule", "entry", 3, 42, "ignored-key")
	cl.Error(errors.New("boom"), "panic", "job", "eod")

	out := buf.String()
	assert.Contains(t, out, "entry=3")
	assert.Contains(t, out, "job=eod")
	assert.Contains(t, out, "boom")
}
