// Package scheduler drives the board: it wakes on every wall-clock minute,
// dispatches full or partial repaints, and follows each with a train-only
// repaint. All device access is serialized through one FIFO lock.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"tarediiran-industries.com/clockpi/internal/common"
	"tarediiran-industries.com/clockpi/internal/display"
	"tarediiran-industries.com/clockpi/internal/quotes"
	"tarediiran-industries.com/clockpi/internal/transit/arrivals"
)

type State int32

const (
	StateIdle State = iota
	StateBooting
	StateRunning
	StateDraining
	StateStopped
)

func (state State) String() string {
	switch state {
	case StateIdle:
		return "idle"
	case StateBooting:
		return "booting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(state))
}

type RefreshKind int

const (
	KindFull RefreshKind = iota
	KindPartial
	KindTrains
)

func (kind RefreshKind) String() string {
	switch kind {
	case KindFull:
		return "full"
	case KindPartial:
		return "partial"
	case KindTrains:
		return "trains"
	}
	return fmt.Sprintf("kind(%d)", int(kind))
}

// KindForCycle picks the minute refresh for cycle n, counted from zero.
// Cycle zero and every fullEvery-th cycle after it repaint the whole panel.
func KindForCycle(n, fullEvery int) RefreshKind {
	if fullEvery <= 1 || n%fullEvery == 0 {
		return KindFull
	}
	return KindPartial
}

const (
	DefaultFullEvery    = 4
	DefaultPartialDelay = 30 * time.Second
	// DefaultWorkers bounds refreshes that are running or queued on the
	// device lock.
	DefaultWorkers = 4
)

var ErrAlreadyStarted = errors.New("scheduler already started")

type Config struct {
	Query        arrivals.Query
	FullEvery    int
	PartialDelay time.Duration
	Workers      int
	Bootstrap    BootstrapConfig
}

// BoardSource produces the arrival board for one refresh.
type BoardSource interface {
	Aggregate(ctx context.Context, query arrivals.Query) arrivals.Board
}

type Deps struct {
	Device display.Device
	Layout *display.Layout
	Boards BoardSource
	// Quotes may be nil, in which case the quote section stays blank.
	Quotes quotes.Store
	// Prober may be nil to skip the connectivity check.
	Prober  Prober
	Clock   clockwork.Clock
	Logger  *slog.Logger
	Metrics *common.Metrics
}

type Scheduler struct {
	config  Config
	device  display.Device
	layout  *display.Layout
	boards  BoardSource
	quotes  quotes.Store
	prober  Prober
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *common.Metrics

	state   atomic.Int32
	lock    *ticketLock
	workers errgroup.Group

	// baseline is the last fully painted canvas. Only touched while the
	// device lock is held.
	baseline *image.Gray

	statsMu      sync.Mutex
	cycles       int
	nextID       uint64
	inFlight     map[uint64]RefreshKind
	dispatched   map[RefreshKind]int
	completed    map[RefreshKind]int
	failed       map[RefreshKind]int
	skipped      map[RefreshKind]int
	lastError    string
	lastRefresh  time.Time
	probeOutcome string
	latestBoard  arrivals.Board
}

func New(config Config, deps Deps) *Scheduler {
	if config.FullEvery <= 0 {
		config.FullEvery = DefaultFullEvery
	}
	if config.PartialDelay <= 0 {
		config.PartialDelay = DefaultPartialDelay
	}
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	config.Bootstrap = config.Bootstrap.withDefaults()
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Layout == nil {
		deps.Layout = display.NewLayout("")
	}

	scheduler := &Scheduler{
		config:     config,
		device:     deps.Device,
		layout:     deps.Layout,
		boards:     deps.Boards,
		quotes:     deps.Quotes,
		prober:     deps.Prober,
		clock:      deps.Clock,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		lock:       newTicketLock(),
		inFlight:   map[uint64]RefreshKind{},
		dispatched: map[RefreshKind]int{},
		completed:  map[RefreshKind]int{},
		failed:     map[RefreshKind]int{},
		skipped:    map[RefreshKind]int{},
	}
	scheduler.workers.SetLimit(config.Workers)
	return scheduler
}

func (scheduler *Scheduler) State() State {
	return State(scheduler.state.Load())
}

func (scheduler *Scheduler) setState(state State) {
	scheduler.state.Store(int32(state))
	scheduler.logger.Info("scheduler state", "state", state)
}

// Run boots, runs the minute loop until ctx is cancelled, then drains
// in-flight refreshes and powers the panel down. It returns once the
// device has been shut down.
func (scheduler *Scheduler) Run(ctx context.Context) error {
	if !scheduler.state.CompareAndSwap(int32(StateIdle), int32(StateBooting)) {
		return ErrAlreadyStarted
	}
	scheduler.logger.Info("scheduler state", "state", StateBooting)

	scheduler.boot(ctx)
	if ctx.Err() == nil {
		scheduler.setState(StateRunning)
		scheduler.loop(ctx)
	}

	return scheduler.drain()
}

func (scheduler *Scheduler) loop(ctx context.Context) {
	for cycle := 0; ; cycle++ {
		if !scheduler.sleep(ctx, scheduler.untilNextMinute()) {
			return
		}

		kind := KindForCycle(cycle, scheduler.config.FullEvery)
		scheduler.statsMu.Lock()
		scheduler.cycles++
		scheduler.statsMu.Unlock()
		scheduler.logger.Debug("minute boundary", "cycle", cycle, "kind", kind)
		scheduler.dispatch(ctx, kind)

		if !scheduler.sleep(ctx, scheduler.config.PartialDelay) {
			return
		}
		scheduler.dispatch(ctx, KindTrains)
	}
}

// sleep waits for d on the scheduler clock. It reports false as soon as
// ctx is done.
func (scheduler *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-scheduler.clock.After(d):
		return ctx.Err() == nil
	}
}

func (scheduler *Scheduler) untilNextMinute() time.Duration {
	now := scheduler.clock.Now()
	return now.Truncate(time.Minute).Add(time.Minute).Sub(now)
}

type job struct {
	id     uint64
	ticket uint64
}

// dispatch hands the refresh to a worker and takes its place in the device
// queue before returning, so device order matches request order. When
// every worker is busy the refresh is skipped rather than queued.
func (scheduler *Scheduler) dispatch(ctx context.Context, kind RefreshKind) {
	at := scheduler.clock.Now()
	// Refreshes are never cut short by shutdown; feed timeouts bound them.
	jobCtx := context.WithoutCancel(ctx)

	jobs := make(chan job, 1)
	started := scheduler.workers.TryGo(func() error {
		next := <-jobs
		defer scheduler.finish(next.id)

		scheduler.lock.wait(next.ticket)
		defer scheduler.lock.release()
		scheduler.refresh(jobCtx, kind, at)
		return nil
	})
	if !started {
		scheduler.skip(kind)
		return
	}

	ticket := scheduler.lock.reserve()

	scheduler.statsMu.Lock()
	scheduler.nextID++
	id := scheduler.nextID
	scheduler.inFlight[id] = kind
	scheduler.dispatched[kind]++
	scheduler.statsMu.Unlock()
	if scheduler.metrics != nil {
		scheduler.metrics.RefreshesInFlight.Inc()
	}

	jobs <- job{id: id, ticket: ticket}
}

func (scheduler *Scheduler) skip(kind RefreshKind) {
	scheduler.statsMu.Lock()
	scheduler.skipped[kind]++
	inFlight := len(scheduler.inFlight)
	scheduler.statsMu.Unlock()

	scheduler.logger.Warn("refresh skipped, display busy", "kind", kind, "in_flight", inFlight)
	if scheduler.metrics != nil {
		scheduler.metrics.RefreshesTotal.WithLabelValues(kind.String(), "skipped").Inc()
	}
}

func (scheduler *Scheduler) finish(id uint64) {
	scheduler.statsMu.Lock()
	delete(scheduler.inFlight, id)
	scheduler.statsMu.Unlock()
	if scheduler.metrics != nil {
		scheduler.metrics.RefreshesInFlight.Dec()
	}
}

// refresh runs one refresh while holding the device lock.
func (scheduler *Scheduler) refresh(ctx context.Context, kind RefreshKind, at time.Time) {
	benchmark := common.NewBenchmarker(scheduler.logger, "refresh "+kind.String())

	var err error
	switch kind {
	case KindFull:
		err = scheduler.fullRefresh(ctx, at)
	case KindPartial:
		err = scheduler.partialRefresh(ctx, at, display.SectionAll)
	case KindTrains:
		err = scheduler.partialRefresh(ctx, at, display.SectionTrains)
	}
	elapsed := benchmark.Close()

	result := "ok"
	if err != nil {
		result = "error"
		scheduler.logger.Error("refresh abandoned", "kind", kind, "error", err)
		var deviceErr *display.DeviceError
		if errors.As(err, &deviceErr) && scheduler.metrics != nil {
			scheduler.metrics.DeviceErrorsTotal.WithLabelValues(string(deviceErr.Op)).Inc()
		}
	} else {
		scheduler.logger.Info("refresh done", "kind", kind, "elapsed", elapsed)
	}

	if scheduler.metrics != nil {
		scheduler.metrics.RefreshesTotal.WithLabelValues(kind.String(), result).Inc()
		scheduler.metrics.RefreshSeconds.WithLabelValues(kind.String()).Observe(elapsed.Seconds())
	}

	scheduler.statsMu.Lock()
	defer scheduler.statsMu.Unlock()
	if err != nil {
		scheduler.failed[kind]++
		scheduler.lastError = err.Error()
		return
	}
	scheduler.completed[kind]++
	scheduler.lastRefresh = at
}

func (scheduler *Scheduler) fullRefresh(ctx context.Context, at time.Time) error {
	if err := scheduler.device.Init(); err != nil {
		return err
	}

	canvas := scheduler.layout.NewCanvas()
	scheduler.layout.Render(canvas, display.SectionAll, scheduler.frame(ctx, at, display.SectionAll))

	if err := scheduler.device.DisplayFull(canvas); err != nil {
		return err
	}
	scheduler.baseline = canvas
	return scheduler.device.Sleep()
}

func (scheduler *Scheduler) partialRefresh(ctx context.Context, at time.Time, sections display.Section) error {
	if scheduler.baseline == nil {
		scheduler.logger.Info("no baseline canvas, doing a full refresh instead")
		return scheduler.fullRefresh(ctx, at)
	}

	if err := scheduler.device.InitPartial(); err != nil {
		return err
	}

	region := scheduler.layout.Render(scheduler.baseline, sections, scheduler.frame(ctx, at, sections))
	if err := scheduler.device.DisplayPartial(scheduler.baseline, region); err != nil {
		// The canvas no longer matches the panel.
		scheduler.baseline = nil
		return err
	}
	return scheduler.device.Sleep()
}

// frame gathers only the content the given sections draw.
func (scheduler *Scheduler) frame(ctx context.Context, at time.Time, sections display.Section) display.Frame {
	frame := display.Frame{Now: at}

	if sections&display.SectionQuote != 0 && scheduler.quotes != nil {
		quote, ok, err := scheduler.quotes.Lookup(ctx, at)
		switch {
		case err != nil:
			scheduler.logger.Warn("quote lookup failed", "minute", quotes.MinuteKey(at), "error", err)
		case !ok:
			scheduler.logger.Debug("no quote for minute", "minute", quotes.MinuteKey(at))
		default:
			frame.Quote = quote
		}
	}

	if sections&display.SectionTrains != 0 && scheduler.boards != nil {
		frame.Board = scheduler.boards.Aggregate(ctx, scheduler.config.Query)
		if frame.Board.Failed() {
			scheduler.logger.Warn("arrival board degraded", "error", frame.Board.Error)
		}
		scheduler.statsMu.Lock()
		scheduler.latestBoard = frame.Board
		scheduler.statsMu.Unlock()
	}
	return frame
}

// drain waits for every dispatched refresh, then clears and powers down
// the panel exactly once.
func (scheduler *Scheduler) drain() error {
	scheduler.setState(StateDraining)
	_ = scheduler.workers.Wait()

	scheduler.lock.acquire()
	defer scheduler.lock.release()

	err := scheduler.device.Init()
	if err == nil {
		err = scheduler.device.Clear()
	}
	err = errors.Join(err, scheduler.device.Shutdown(true))
	scheduler.baseline = nil

	scheduler.setState(StateStopped)
	if err != nil {
		scheduler.logger.Error("display shutdown incomplete", "error", err)
		return fmt.Errorf("shutdown display: %w", err)
	}
	return nil
}

// LatestBoard is the arrival board drawn by the most recent refresh.
func (scheduler *Scheduler) LatestBoard() arrivals.Board {
	scheduler.statsMu.Lock()
	defer scheduler.statsMu.Unlock()
	return scheduler.latestBoard
}

type Stats struct {
	State        string         `json:"state"`
	Cycles       int            `json:"cycles"`
	InFlight     int            `json:"in_flight"`
	Dispatched   map[string]int `json:"dispatched"`
	Completed    map[string]int `json:"completed"`
	Failed       map[string]int `json:"failed"`
	Skipped      map[string]int `json:"skipped"`
	LastError    string         `json:"last_error,omitempty"`
	LastRefresh  time.Time      `json:"last_refresh"`
	ProbeOutcome string         `json:"probe_outcome,omitempty"`
}

func (scheduler *Scheduler) Stats() Stats {
	scheduler.statsMu.Lock()
	defer scheduler.statsMu.Unlock()

	byName := func(counts map[RefreshKind]int) map[string]int {
		named := make(map[string]int, len(counts))
		for kind, count := range counts {
			named[kind.String()] = count
		}
		return named
	}

	return Stats{
		State:        scheduler.State().String(),
		Cycles:       scheduler.cycles,
		InFlight:     len(scheduler.inFlight),
		Dispatched:   byName(scheduler.dispatched),
		Completed:    byName(scheduler.completed),
		Failed:       byName(scheduler.failed),
		Skipped:      byName(scheduler.skipped),
		LastError:    scheduler.lastError,
		LastRefresh:  scheduler.lastRefresh,
		ProbeOutcome: scheduler.probeOutcome,
	}
}
