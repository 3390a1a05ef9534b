package scheduler

import (
	"context"
	"time"

	"tarediiran-industries.com/clockpi/internal/transit/feed"
)

const (
	DefaultProbeAttempts = 8
	DefaultProbeTimeout  = 12 * time.Second
)

// Prober performs one bounded request. feed.Client satisfies it.
type Prober interface {
	FetchWithin(ctx context.Context, url string, timeout time.Duration) feed.Result
}

type BootstrapConfig struct {
	URL      string
	Attempts int
	Timeout  time.Duration
}

func (config BootstrapConfig) withDefaults() BootstrapConfig {
	if config.Attempts <= 0 {
		config.Attempts = DefaultProbeAttempts
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultProbeTimeout
	}
	return config
}

// boot checks connectivity before the minute loop starts. Only a network
// failure uses up an attempt; any response at all counts as connected.
// It gives up quietly when attempts run out.
func (scheduler *Scheduler) boot(ctx context.Context) {
	bootstrap := scheduler.config.Bootstrap
	if scheduler.prober == nil || bootstrap.URL == "" {
		scheduler.setProbeOutcome("skipped")
		return
	}

	for attempt := 1; attempt <= bootstrap.Attempts; attempt++ {
		if ctx.Err() != nil {
			scheduler.setProbeOutcome("interrupted")
			return
		}

		result := scheduler.prober.FetchWithin(ctx, bootstrap.URL, bootstrap.Timeout)
		connected := result.Kind() != feed.Network
		if ctx.Err() != nil {
			scheduler.setProbeOutcome("interrupted")
			return
		}

		scheduler.logger.Info(
			"connectivity probe",
			"attempt", attempt,
			"of", bootstrap.Attempts,
			"connected", connected,
			"error", result.Err,
		)
		scheduler.showStartup(connected)

		if connected {
			scheduler.setProbeOutcome("connected")
			return
		}
	}

	scheduler.logger.Warn("connectivity probe exhausted, starting anyway", "attempts", bootstrap.Attempts)
	scheduler.setProbeOutcome("exhausted")
}

func (scheduler *Scheduler) showStartup(connected bool) {
	scheduler.lock.acquire()
	defer scheduler.lock.release()

	canvas := scheduler.layout.NewCanvas()
	scheduler.layout.RenderStartup(canvas, connected)

	err := scheduler.device.InitFast()
	if err == nil {
		err = scheduler.device.DisplayFull(canvas)
	}
	if err == nil {
		err = scheduler.device.Sleep()
	}
	if err != nil {
		scheduler.logger.Error("startup screen failed", "error", err)
	}
}

func (scheduler *Scheduler) setProbeOutcome(outcome string) {
	scheduler.statsMu.Lock()
	defer scheduler.statsMu.Unlock()
	scheduler.probeOutcome = outcome
}
