package common

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	FeedFetchSeconds  *prometheus.HistogramVec
	FeedBytesTotal    *prometheus.CounterVec
	FeedErrorsTotal   *prometheus.CounterVec
	RefreshesTotal    *prometheus.CounterVec
	RefreshSeconds    *prometheus.HistogramVec
	DeviceErrorsTotal *prometheus.CounterVec
	RefreshesInFlight prometheus.Gauge
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		FeedFetchSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clockpi_feed_fetch_seconds",
				Help:    "Time to GET and decode one GTFS-RT feed",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		FeedBytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clockpi_feed_bytes_total",
				Help: "Bytes downloaded per feed endpoint",
			},
			[]string{"endpoint"},
		),
		FeedErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clockpi_feed_errors_total",
				Help: "Feed fetch failures by endpoint and class (network, server)",
			},
			[]string{"endpoint", "kind"},
		),
		RefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clockpi_refreshes_total",
				Help: "Display refreshes by kind and result",
			},
			[]string{"kind", "result"},
		),
		RefreshSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clockpi_refresh_seconds",
				Help:    "Time spent holding the display for one refresh",
				Buckets: []float64{0.5, 1, 2, 4, 8, 16, 32},
			},
			[]string{"kind"},
		),
		DeviceErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clockpi_device_errors_total",
				Help: "Display device I/O failures by operation",
			},
			[]string{"op"},
		),
		RefreshesInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "clockpi_refreshes_in_flight",
				Help: "Dispatched refreshes not yet completed",
			},
		),
	}

	registry.MustRegister(
		metrics.FeedFetchSeconds,
		metrics.FeedBytesTotal,
		metrics.FeedErrorsTotal,
		metrics.RefreshesTotal,
		metrics.RefreshSeconds,
		metrics.DeviceErrorsTotal,
		metrics.RefreshesInFlight,
	)

	return metrics
}

type TelemetryServer struct {
	addr     string
	router   chi.Router
	registry *prometheus.Registry

	server   *http.Server
	listener net.Listener
}

func NewTelemetryServer(addr string) *TelemetryServer {
	telemetry := &TelemetryServer{
		addr:     addr,
		registry: prometheus.NewRegistry(),
		router:   chi.NewRouter(),
	}

	telemetry.router.Use(middleware.RequestID)
	telemetry.router.Use(middleware.Recoverer)

	telemetry.router.Handle(
		"/metrics",
		promhttp.HandlerFor(telemetry.registry, promhttp.HandlerOpts{}),
	)
	telemetry.router.Get("/healthz", func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ok\n"))
	})

	buildInfo := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clockpi_build_info",
			Help: "Build metadata",
		},
		[]string{"version", "git_commit"},
	)

	telemetry.registry.MustRegister(
		collectors.NewGoCollector(), // Go runtime metrics
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		buildInfo,
	)

	buildInfo.WithLabelValues(Version, GitCommit).Set(1)

	telemetry.router.HandleFunc("/debug/pprof/", pprof.Index)
	telemetry.router.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	telemetry.router.HandleFunc("/debug/pprof/profile", pprof.Profile)
	telemetry.router.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	telemetry.router.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return telemetry
}

func (telemetry *TelemetryServer) GetRegistry() *prometheus.Registry {
	return telemetry.registry
}

// HandleStatus serves the JSON encoding of whatever snapshot returns at /status.
func (telemetry *TelemetryServer) HandleStatus(snapshot func() any) {
	telemetry.router.Get("/status", func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(writer).Encode(snapshot()); err != nil {
			http.Error(writer, err.Error(), http.StatusInternalServerError)
		}
	})
}

// Mount attaches handler under pattern, e.g. a sub-router at /board.
func (telemetry *TelemetryServer) Mount(pattern string, handler http.Handler) {
	telemetry.router.Mount(pattern, handler)
}

func (telemetry *TelemetryServer) Handler() http.Handler {
	return telemetry.router
}

func (telemetry *TelemetryServer) Start() error {
	telemetry.server = &http.Server{
		Addr:              telemetry.addr,
		Handler:           telemetry.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", telemetry.addr)
	if err != nil {
		return err
	}

	telemetry.listener = listener

	go telemetry.server.Serve(telemetry.listener)

	slog.Info("telemetry server started", "addr", listener.Addr().String())
	return nil
}

func (telemetry *TelemetryServer) Stop() error {
	if telemetry.server == nil {
		return nil
	}

	return telemetry.server.Close()
}
