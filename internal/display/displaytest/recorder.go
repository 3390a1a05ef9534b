// Package displaytest provides an in-memory display.Device that records
// every call for assertions.
package displaytest

import (
	"image"
	"image/draw"
	"sync"
	"sync/atomic"
	"time"

	"tarediiran-industries.com/clockpi/internal/display"
)

type Call struct {
	Op     display.Op
	Region image.Rectangle
}

// Recorder logs calls in order and tracks how many were in progress at
// once. Delay slows every call down to widen race windows. When Gate is
// set, every call blocks until it can receive from Gate; close it to let
// the device run freely.
type Recorder struct {
	Delay time.Duration
	Gate  <-chan struct{}

	mu       sync.Mutex
	calls    []Call
	failures map[display.Op][]error
	frames   []*image.Gray

	active    atomic.Int32
	maxActive atomic.Int32
}

func NewRecorder() *Recorder {
	return &Recorder{failures: map[display.Op][]error{}}
}

// FailNext makes the next call of op return err. Repeated calls queue.
func (recorder *Recorder) FailNext(op display.Op, err error) {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	recorder.failures[op] = append(recorder.failures[op], err)
}

func (recorder *Recorder) Calls() []Call {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	return append([]Call(nil), recorder.calls...)
}

func (recorder *Recorder) Ops() []display.Op {
	calls := recorder.Calls()
	ops := make([]display.Op, len(calls))
	for i, call := range calls {
		ops[i] = call.Op
	}
	return ops
}

// Frames returns copies of every image passed to DisplayFull or
// DisplayPartial.
func (recorder *Recorder) Frames() []*image.Gray {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	return append([]*image.Gray(nil), recorder.frames...)
}

// MaxConcurrent is the highest number of device calls observed running
// at the same time.
func (recorder *Recorder) MaxConcurrent() int {
	return int(recorder.maxActive.Load())
}

func (recorder *Recorder) Init() error        { return recorder.record(display.OpInit, image.Rectangle{}, nil) }
func (recorder *Recorder) InitFast() error    { return recorder.record(display.OpInitFast, image.Rectangle{}, nil) }
func (recorder *Recorder) InitPartial() error { return recorder.record(display.OpInitPartial, image.Rectangle{}, nil) }
func (recorder *Recorder) Clear() error       { return recorder.record(display.OpClear, image.Rectangle{}, nil) }
func (recorder *Recorder) Sleep() error       { return recorder.record(display.OpSleep, image.Rectangle{}, nil) }

func (recorder *Recorder) DisplayFull(frame image.Image) error {
	return recorder.record(display.OpDisplayFull, frame.Bounds(), frame)
}

func (recorder *Recorder) DisplayPartial(frame image.Image, region image.Rectangle) error {
	return recorder.record(display.OpDisplayPartial, region, frame)
}

func (recorder *Recorder) Shutdown(cleanup bool) error {
	return recorder.record(display.OpShutdown, image.Rectangle{}, nil)
}

func (recorder *Recorder) record(op display.Op, region image.Rectangle, frame image.Image) error {
	active := recorder.active.Add(1)
	defer recorder.active.Add(-1)
	for {
		seen := recorder.maxActive.Load()
		if active <= seen || recorder.maxActive.CompareAndSwap(seen, active) {
			break
		}
	}

	if recorder.Gate != nil {
		<-recorder.Gate
	}
	if recorder.Delay > 0 {
		time.Sleep(recorder.Delay)
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	recorder.calls = append(recorder.calls, Call{Op: op, Region: region})
	if frame != nil {
		snapshot := image.NewGray(frame.Bounds())
		draw.Draw(snapshot, snapshot.Bounds(), frame, frame.Bounds().Min, draw.Src)
		recorder.frames = append(recorder.frames, snapshot)
	}
	if queued := recorder.failures[op]; len(queued) > 0 {
		recorder.failures[op] = queued[1:]
		return &display.DeviceError{Op: op, Err: queued[0]}
	}
	return nil
}
