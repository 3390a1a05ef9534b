package clockpi

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tarediiran-industries.com/clockpi/internal/display"
	"tarediiran-industries.com/clockpi/internal/quotes"
)

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestParseArgs_Defaults(t *testing.T) {
	cfg, err := ParseArgs("clockpi", nil, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, DefaultConfigFile(), cfg.ConfigFile)
	assert.Equal(t, "A15", cfg.Transit.Station)
	assert.Equal(t, 2, cfg.Transit.TrainCount)
	assert.Equal(t, 30*time.Second, cfg.Schedule.PartialDelay.Duration)
	assert.Equal(t, 8, cfg.Bootstrap.Attempts)
}

func TestParseArgs_TOML(t *testing.T) {
	path := writeFile(t, "clockpi.toml", `
[transit]
feed_urls = ["https://feeds.example.test/ace"]
station = "F20"
routes = ["F", "G"]
train_count = 3
fetch_timeout = "4s"

[schedule]
partial_delay = "15s"
workers = 2

[display]
device = "png"
output_dir = "/tmp/frames"
`)

	cfg, err := ParseArgs("clockpi", []string{"--config", path}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, []string{"https://feeds.example.test/ace"}, cfg.Transit.FeedURLs)
	assert.Equal(t, "F20", cfg.Transit.Station)
	assert.Equal(t, []string{"F", "G"}, cfg.Transit.Routes)
	assert.Equal(t, 3, cfg.Transit.TrainCount)
	assert.Equal(t, 4*time.Second, cfg.Transit.FetchTimeout.Duration)
	assert.Equal(t, 15*time.Second, cfg.Schedule.PartialDelay.Duration)
	assert.Equal(t, 4, cfg.Schedule.FullEvery, "unset keys keep their defaults")
	assert.Equal(t, 2, cfg.Schedule.Workers)
	assert.Equal(t, "png", cfg.Display.Device)
}

func TestParseArgs_YAML(t *testing.T) {
	path := writeFile(t, "clockpi.yaml", `
transit:
  station: A15
  routes: [A]
  train_count: 1
bootstrap:
  attempts: 2
  timeout: 500ms
quotes:
  dir: /srv/quotes
log:
  level: debug
`)

	cfg, err := ParseArgs("clockpi", []string{"-c", path}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, []string{"A"}, cfg.Transit.Routes)
	assert.Equal(t, 2, cfg.Bootstrap.Attempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Bootstrap.Timeout.Duration)
	assert.Equal(t, "/srv/quotes", cfg.Quotes.Dir)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestParseArgs_FlagsOverrideFile(t *testing.T) {
	path := writeFile(t, "clockpi.toml", `
[transit]
station = "F20"
train_count = 3
`)

	cfg, err := ParseArgs("clockpi", []string{
		"--config", path,
		"--station", "A15",
		"--route", "A", "--route", "C",
		"--train-count", "5",
		"--device", "png", "--output-dir", t.TempDir(),
	}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, "A15", cfg.Transit.Station)
	assert.Equal(t, []string{"A", "C"}, cfg.Transit.Routes)
	assert.Equal(t, 5, cfg.Transit.TrainCount)
	assert.Equal(t, "png", cfg.Display.Device)
}

func TestParseArgs_Invalid(t *testing.T) {
	for name, args := range map[string][]string{
		"zero train count":     {"--train-count", "0"},
		"png without dir":      {"--device", "png"},
		"unknown device":       {"--device", "lcd"},
		"bad feed url":         {"--feed-url", "not a url"},
		"bad log level":        {"--log-level", "chatty"},
		"bad telemetry listen": {"--telemetry", "nowhere"},
		"unknown flag":         {"--frobnicate"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseArgs("clockpi", args, &bytes.Buffer{})
			assert.Error(t, err)
		})
	}
}

func TestParseArgs_BadDuration(t *testing.T) {
	path := writeFile(t, "clockpi.toml", "[schedule]\npartial_delay = \"soon\"\n")
	_, err := ParseArgs("clockpi", []string{"--config", path}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestParseArgs_Version(t *testing.T) {
	var errOut bytes.Buffer
	_, err := ParseArgs("clockpi", []string{"--version"}, &errOut)
	assert.ErrorIs(t, err, pflag.ErrHelp)
	assert.Contains(t, errOut.String(), "clockpi: version dev")

	assert.Equal(t, 0, Main("clockpi", []string{"--version"}, &bytes.Buffer{}, &errOut))
}

func TestMain_ReportsBadConfig(t *testing.T) {
	var errOut bytes.Buffer
	assert.Equal(t, -1, Main("clockpi", []string{"--train-count", "-1"}, &bytes.Buffer{}, &errOut))
	assert.Contains(t, errOut.String(), "TrainCount")
}

func TestTransitQuery(t *testing.T) {
	query := DefaultConfigFile().Transit.Query()
	assert.Equal(t, "A15", query.Station)
	assert.True(t, query.Routes.Contains("D"))
	assert.False(t, query.Routes.Contains("E"))
	assert.Equal(t, 2, query.TrainCount)
}

func TestOpenQuoteStore(t *testing.T) {
	store, closeStore, err := OpenQuoteStore(context.Background(), QuotesConfig{})
	require.NoError(t, err)
	assert.Nil(t, store)
	closeStore()

	store, closeStore, err = OpenQuoteStore(context.Background(), QuotesConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &quotes.FileStore{}, store)
	closeStore()
}

func TestOpenDevice_PNG(t *testing.T) {
	device, err := OpenDevice(DisplayConfig{Device: "png", OutputDir: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.IsType(t, &display.PNGDevice{}, device)

	_, err = OpenDevice(DisplayConfig{Device: "lcd"}, nil)
	assert.Error(t, err)
}
