package display

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
)

var errAsleep = errors.New("display is asleep; init required")

// PNGDevice writes every pushed frame to a directory. It keeps the same
// wake/sleep discipline as the panel so misuse surfaces off-hardware.
type PNGDevice struct {
	dir    string
	logger *slog.Logger

	screen *image.Gray
	awake  bool
	closed bool
	frames int
}

func NewPNGDevice(dir string, logger *slog.Logger) (*PNGDevice, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	screen := image.NewGray(image.Rect(0, 0, Width, Height))
	fill(screen, screen.Bounds(), paper)
	return &PNGDevice{dir: dir, logger: logger, screen: screen}, nil
}

func (device *PNGDevice) wake(op Op) error {
	if device.closed {
		return wrap(op, errClosed)
	}
	device.awake = true
	device.logger.Debug("display wake", "op", op)
	return nil
}

func (device *PNGDevice) Init() error        { return device.wake(OpInit) }
func (device *PNGDevice) InitFast() error    { return device.wake(OpInitFast) }
func (device *PNGDevice) InitPartial() error { return device.wake(OpInitPartial) }

func (device *PNGDevice) Clear() error {
	if !device.awake {
		return wrap(OpClear, errAsleep)
	}
	fill(device.screen, device.screen.Bounds(), paper)
	return wrap(OpClear, device.write())
}

func (device *PNGDevice) Sleep() error {
	device.awake = false
	return nil
}

func (device *PNGDevice) DisplayFull(frame image.Image) error {
	if !device.awake {
		return wrap(OpDisplayFull, errAsleep)
	}
	draw.Draw(device.screen, device.screen.Bounds(), frame, frame.Bounds().Min, draw.Src)
	return wrap(OpDisplayFull, device.write())
}

func (device *PNGDevice) DisplayPartial(frame image.Image, region image.Rectangle) error {
	if !device.awake {
		return wrap(OpDisplayPartial, errAsleep)
	}
	region = region.Intersect(device.screen.Bounds())
	draw.Draw(device.screen, region, frame, region.Min, draw.Src)
	return wrap(OpDisplayPartial, device.write())
}

func (device *PNGDevice) Shutdown(cleanup bool) error {
	device.awake = false
	device.closed = device.closed || cleanup
	return nil
}

// Latest is the path of the most recently written screen.
func (device *PNGDevice) Latest() string {
	return filepath.Join(device.dir, "latest.png")
}

func (device *PNGDevice) write() error {
	device.frames++
	numbered := filepath.Join(device.dir, fmt.Sprintf("frame-%06d.png", device.frames))
	for _, path := range []string{numbered, device.Latest()} {
		if err := writePNG(path, device.screen); err != nil {
			return err
		}
	}
	device.logger.Debug("frame written", "path", numbered)
	return nil
}

func writePNG(path string, img image.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
