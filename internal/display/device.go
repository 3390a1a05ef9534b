// Package display holds the output side of the board: the Device
// interface the scheduler drives, its hardware and file adapters, and the
// fixed Layout that draws time, quote and arrivals onto a canvas.
package display

import (
	"fmt"
	"image"
)

// Device is a slow, stateful e-paper panel. Every call reports failure as
// an error value; callers decide whether a cycle is abandoned.
//
// InitFast and InitPartial select a quicker waveform where the hardware
// has one; a panel without one may run its normal init for both.
type Device interface {
	Init() error
	InitFast() error
	InitPartial() error
	Clear() error
	Sleep() error
	DisplayFull(frame image.Image) error
	DisplayPartial(frame image.Image, region image.Rectangle) error
	// Shutdown powers the panel down. With cleanup it also releases the
	// bus and GPIO resources.
	Shutdown(cleanup bool) error
}

type Op string

const (
	OpInit           Op = "init"
	OpInitFast       Op = "init_fast"
	OpInitPartial    Op = "init_partial"
	OpClear          Op = "clear"
	OpSleep          Op = "sleep"
	OpDisplayFull    Op = "display_full"
	OpDisplayPartial Op = "display_partial"
	OpShutdown       Op = "shutdown"
)

// DeviceError is a hardware communication failure.
type DeviceError struct {
	Op  Op
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("display %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

func wrap(op Op, err error) error {
	if err == nil {
		return nil
	}
	return &DeviceError{Op: op, Err: err}
}
