package clockpi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"tarediiran-industries.com/clockpi/internal/common"
	"tarediiran-industries.com/clockpi/internal/db"
	"tarediiran-industries.com/clockpi/internal/display"
	"tarediiran-industries.com/clockpi/internal/quotes"
	"tarediiran-industries.com/clockpi/internal/scheduler"
	"tarediiran-industries.com/clockpi/internal/transit/arrivals"
	"tarediiran-industries.com/clockpi/internal/transit/feed"
	"tarediiran-industries.com/clockpi/internal/web/boardweb"
)

func Run(cfg Config, out io.Writer) int {
	level, err := common.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintln(out, "Error:", err)
		return -1
	}
	logger := common.InitLogging(out, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("clockpi stopped with error", "error", err)
		return 1
	}
	logger.Info("Finished.")
	return 0
}

func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	var registry prometheus.Registerer = prometheus.NewRegistry()
	var telemetry *common.TelemetryServer
	if cfg.Telemetry.Listen != "" {
		telemetry = common.NewTelemetryServer(cfg.Telemetry.Listen)
		registry = telemetry.GetRegistry()
	}
	metrics := common.NewMetrics(registry)

	client := NewFeedClient(cfg.Transit, metrics)
	aggregator := arrivals.NewAggregator(client, clockwork.NewRealClock())

	store, closeStore, err := OpenQuoteStore(ctx, cfg.Quotes)
	if err != nil {
		return err
	}
	defer closeStore()

	device, err := OpenDevice(cfg.Display, logger)
	if err != nil {
		return err
	}

	board := scheduler.New(
		scheduler.Config{
			Query:        cfg.Transit.Query(),
			FullEvery:    cfg.Schedule.FullEvery,
			Workers:      cfg.Schedule.Workers,
			PartialDelay: cfg.Schedule.PartialDelay.Duration,
			Bootstrap: scheduler.BootstrapConfig{
				URL:      cfg.Bootstrap.URL,
				Attempts: cfg.Bootstrap.Attempts,
				Timeout:  cfg.Bootstrap.Timeout.Duration,
			},
		},
		scheduler.Deps{
			Device:  device,
			Layout:  display.NewLayout(cfg.Display.StationLabel),
			Boards:  aggregator,
			Quotes:  store,
			Prober:  client,
			Logger:  logger,
			Metrics: metrics,
		},
	)

	if telemetry != nil {
		telemetry.HandleStatus(func() any { return board.Stats() })
		pages, err := boardweb.NewBoardPages(board, cfg.Display.StationLabel, nil)
		if err != nil {
			return fmt.Errorf("board pages: %w", err)
		}
		telemetry.Mount("/board", pages.Routes())
		if err := telemetry.Start(); err != nil {
			return fmt.Errorf("start telemetry: %w", err)
		}
		defer telemetry.Stop()
	}

	logger.Info(
		"clockpi starting",
		"version", common.Version,
		"station", cfg.Transit.Station,
		"routes", cfg.Transit.Routes,
		"feeds", len(cfg.Transit.FeedURLs),
		"device", cfg.Display.Device,
	)
	return board.Run(ctx)
}

// Query turns the transit section into an aggregator query.
func (transit TransitConfig) Query() arrivals.Query {
	return arrivals.Query{
		FeedURLs:   transit.FeedURLs,
		Station:    transit.Station,
		Routes:     arrivals.NewRouteSet(transit.Routes...),
		TrainCount: transit.TrainCount,
	}
}

func NewFeedClient(transit TransitConfig, metrics *common.Metrics) *feed.Client {
	opts := []feed.Option{feed.WithMetrics(metrics)}
	if transit.FetchTimeout.Duration > 0 {
		opts = append(opts, feed.WithTimeout(transit.FetchTimeout.Duration))
	}
	if transit.APIKey != "" {
		opts = append(opts, feed.WithHeader("x-api-key", transit.APIKey))
	}
	return feed.NewClient(opts...)
}

// OpenQuoteStore returns the configured quote source, or nil when none is
// configured. The returned close function is always safe to call.
func OpenQuoteStore(ctx context.Context, cfg QuotesConfig) (quotes.Store, func(), error) {
	switch {
	case cfg.Database != "":
		database, err := db.NewDatabaseConnection(ctx, cfg.Database)
		if err != nil {
			return nil, func() {}, fmt.Errorf("open quote database: %w", err)
		}
		return quotes.NewPostgresStore(database), func() { _ = database.Close() }, nil
	case cfg.Dir != "":
		return quotes.NewFileStore(cfg.Dir), func() {}, nil
	}
	return nil, func() {}, nil
}

func OpenDevice(cfg DisplayConfig, logger *slog.Logger) (display.Device, error) {
	switch cfg.Device {
	case "png":
		return display.NewPNGDevice(cfg.OutputDir, logger)
	case "epd", "":
		return display.OpenEPD(cfg.SPIPort)
	}
	return nil, fmt.Errorf("unknown display device %q", cfg.Device)
}
