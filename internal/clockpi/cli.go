package clockpi

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"tarediiran-industries.com/clockpi/internal/common"
)

// Duration accepts "30s"-style strings in TOML and YAML files.
type Duration struct {
	time.Duration
}

func (duration *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	duration.Duration = parsed
	return nil
}

func (duration Duration) MarshalText() ([]byte, error) {
	return []byte(duration.String()), nil
}

type TransitConfig struct {
	FeedURLs     []string `toml:"feed_urls" yaml:"feed_urls" validate:"required,min=1,dive,url"`
	Station      string   `toml:"station" yaml:"station" validate:"required"`
	Routes       []string `toml:"routes" yaml:"routes" validate:"required,min=1,dive,required"`
	TrainCount   int      `toml:"train_count" yaml:"train_count" validate:"gt=0"`
	APIKey       string   `toml:"api_key" yaml:"api_key"`
	FetchTimeout Duration `toml:"fetch_timeout" yaml:"fetch_timeout"`
}

type ScheduleConfig struct {
	PartialDelay Duration `toml:"partial_delay" yaml:"partial_delay"`
	FullEvery    int      `toml:"full_every" yaml:"full_every" validate:"gte=0"`
	Workers      int      `toml:"workers" yaml:"workers" validate:"gte=0"`
}

type BootstrapConfig struct {
	URL      string   `toml:"url" yaml:"url" validate:"omitempty,url"`
	Attempts int      `toml:"attempts" yaml:"attempts" validate:"gte=0"`
	Timeout  Duration `toml:"timeout" yaml:"timeout"`
}

type DisplayConfig struct {
	Device       string `toml:"device" yaml:"device" validate:"oneof=epd png"`
	SPIPort      string `toml:"spi_port" yaml:"spi_port"`
	OutputDir    string `toml:"output_dir" yaml:"output_dir" validate:"required_if=Device png"`
	StationLabel string `toml:"station_label" yaml:"station_label"`
}

type QuotesConfig struct {
	Dir      string `toml:"dir" yaml:"dir" validate:"excluded_with=Database"`
	Database string `toml:"database" yaml:"database"`
}

type TelemetryConfig struct {
	Listen string `toml:"listen" yaml:"listen" validate:"omitempty,hostname_port"`
}

type LogConfig struct {
	Level string `toml:"level" yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
}

type ConfigFile struct {
	Transit   TransitConfig   `toml:"transit" yaml:"transit"`
	Schedule  ScheduleConfig  `toml:"schedule" yaml:"schedule"`
	Bootstrap BootstrapConfig `toml:"bootstrap" yaml:"bootstrap"`
	Display   DisplayConfig   `toml:"display" yaml:"display"`
	Quotes    QuotesConfig    `toml:"quotes" yaml:"quotes"`
	Telemetry TelemetryConfig `toml:"telemetry" yaml:"telemetry"`
	Log       LogConfig       `toml:"log" yaml:"log"`
}

type Config struct {
	Version    bool
	ConfigPath string
	ConfigFile
}

const (
	aceFeed  = "https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-ace"
	bdfmFeed = "https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-bdfm"
)

// DefaultConfigFile watches the A, C, B and D trains at 125 St.
func DefaultConfigFile() ConfigFile {
	return ConfigFile{
		Transit: TransitConfig{
			FeedURLs:     []string{aceFeed, bdfmFeed},
			Station:      "A15",
			Routes:       []string{"A", "C", "B", "D"},
			TrainCount:   2,
			FetchTimeout: Duration{10 * time.Second},
		},
		Schedule: ScheduleConfig{
			PartialDelay: Duration{30 * time.Second},
			FullEvery:    4,
			Workers:      4,
		},
		Bootstrap: BootstrapConfig{
			URL:      aceFeed,
			Attempts: 8,
			Timeout:  Duration{12 * time.Second},
		},
		Display: DisplayConfig{
			Device:       "epd",
			StationLabel: "125 St",
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfigFile decodes path over base. Files ending in .yml or .yaml are
// read as YAML, anything else as TOML.
func LoadConfigFile(path string, base ConfigFile) (ConfigFile, error) {
	cfg := base
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		data, err := os.ReadFile(path)
		if err != nil {
			return ConfigFile{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return ConfigFile{}, err
		}
	default:
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return ConfigFile{}, err
		}
	}
	return cfg, nil
}

func ParseArgs(programName string, args []string, errOut io.Writer) (Config, error) {
	cfg := Config{ConfigFile: DefaultConfigFile()}

	fs := pflag.NewFlagSet(programName, pflag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.Usage = func() {
		fmt.Fprintf(errOut, "Usage: %s [options]\n\n", programName)
		fmt.Fprintln(errOut, "Options")
		fs.PrintDefaults()
	}

	var overrides ConfigFile
	fs.BoolVar(&cfg.Version, "version", false, "Prints version")
	fs.StringVarP(&cfg.ConfigPath, "config", "c", "", "Configuration file (.toml, .yml or .yaml)")
	fs.StringSliceVar(&overrides.Transit.FeedURLs, "feed-url", nil, "GTFS-RT feed URL (repeatable)")
	fs.StringVar(&overrides.Transit.Station, "station", "", "Stop id without direction suffix, e.g. A15")
	fs.StringSliceVar(&overrides.Transit.Routes, "route", nil, "Route to show (repeatable)")
	fs.IntVar(&overrides.Transit.TrainCount, "train-count", 0, "Arrivals shown per direction")
	fs.StringVar(&overrides.Display.Device, "device", "", "Output device: epd or png")
	fs.StringVar(&overrides.Display.OutputDir, "output-dir", "", "Directory for png frames")
	fs.StringVar(&overrides.Quotes.Dir, "quotes-dir", "", "Directory of HH_MM.json quote files")
	fs.StringVar(&overrides.Telemetry.Listen, "telemetry", "", "Telemetry listen address, e.g. :9100")
	fs.StringVar(&overrides.Log.Level, "log-level", "", "debug, info, warn or error")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.Version {
		fmt.Fprintf(errOut, "%s: version %s (%s)\n", programName, common.Version, common.GitCommit)
		return cfg, pflag.ErrHelp
	}

	if cfg.ConfigPath != "" {
		file, err := LoadConfigFile(cfg.ConfigPath, cfg.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("LoadConfigFile: %w", err)
		}
		cfg.ConfigFile = file
	}

	if fs.Changed("feed-url") {
		cfg.Transit.FeedURLs = overrides.Transit.FeedURLs
	}
	if fs.Changed("station") {
		cfg.Transit.Station = overrides.Transit.Station
	}
	if fs.Changed("route") {
		cfg.Transit.Routes = overrides.Transit.Routes
	}
	if fs.Changed("train-count") {
		cfg.Transit.TrainCount = overrides.Transit.TrainCount
	}
	if fs.Changed("device") {
		cfg.Display.Device = overrides.Display.Device
	}
	if fs.Changed("output-dir") {
		cfg.Display.OutputDir = overrides.Display.OutputDir
	}
	if fs.Changed("quotes-dir") {
		cfg.Quotes.Dir = overrides.Quotes.Dir
		cfg.Quotes.Database = ""
	}
	if fs.Changed("telemetry") {
		cfg.Telemetry.Listen = overrides.Telemetry.Listen
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = overrides.Log.Level
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (cfg Config) Validate() error {
	if err := validate.Struct(cfg.ConfigFile); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) && len(invalid) > 0 {
			return fmt.Errorf("invalid configuration: %s failed %q", invalid[0].Namespace(), invalid[0].Tag())
		}
		return err
	}
	return nil
}

func Main(programName string, args []string, out, errOut io.Writer) int {
	cfg, err := ParseArgs(programName, args, errOut)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(errOut, "Error:", err)
		return -1
	}

	return Run(cfg, out)
}
