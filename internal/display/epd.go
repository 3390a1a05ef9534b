package display

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/devices/v3/waveshare2in13v4"
	"periph.io/x/host/v3"
)

// EPD drives a Waveshare e-paper HAT over SPI. The panel is mounted in
// portrait orientation, so landscape frames are scaled to fit and rotated
// before they are pushed.
type EPD struct {
	port      spi.PortCloser
	dev       *waveshare2in13v4.Dev
	landscape *image.Gray
	portrait  *image1bit.VerticalLSB
	closed    bool
}

// OpenEPD initializes the host drivers and opens the named SPI port. An
// empty name selects the first port the registry knows about.
func OpenEPD(spiPort string) (*EPD, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}

	port, err := spireg.Open(spiPort)
	if err != nil {
		return nil, fmt.Errorf("open spi %q: %w", spiPort, err)
	}

	opts := waveshare2in13v4.EPD2in13v4
	dev, err := waveshare2in13v4.NewHat(port, &opts)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("open e-paper hat: %w", err)
	}

	bounds := dev.Bounds()
	return &EPD{
		port:      port,
		dev:       dev,
		landscape: image.NewGray(image.Rect(0, 0, bounds.Dy(), bounds.Dx())),
		portrait:  image1bit.NewVerticalLSB(bounds),
	}, nil
}

var errClosed = errors.New("device closed")

func (epd *EPD) Init() error {
	if epd.closed {
		return wrap(OpInit, errClosed)
	}
	return wrap(OpInit, epd.dev.Init())
}

// InitFast and InitPartial run the controller's standard init: the HAT
// driver exports no fast or partial waveform. Partial paints still save
// time by uploading only the dirty region.
func (epd *EPD) InitFast() error {
	if epd.closed {
		return wrap(OpInitFast, errClosed)
	}
	return wrap(OpInitFast, epd.dev.Init())
}

func (epd *EPD) InitPartial() error {
	if epd.closed {
		return wrap(OpInitPartial, errClosed)
	}
	return wrap(OpInitPartial, epd.dev.Init())
}

func (epd *EPD) Clear() error {
	return wrap(OpClear, epd.dev.Clear(color.White))
}

func (epd *EPD) Sleep() error {
	return wrap(OpSleep, epd.dev.Sleep())
}

func (epd *EPD) DisplayFull(frame image.Image) error {
	epd.compose(frame, frame.Bounds())
	return wrap(OpDisplayFull, epd.dev.Draw(epd.dev.Bounds(), epd.portrait, image.Point{}))
}

func (epd *EPD) DisplayPartial(frame image.Image, region image.Rectangle) error {
	epd.compose(frame, region)
	dirty := epd.panelRect(frame.Bounds(), region)
	if dirty.Empty() {
		return nil
	}
	return wrap(OpDisplayPartial, epd.dev.Draw(dirty, epd.portrait, dirty.Min))
}

// panelRect maps a region of a frame onto the rotated panel.
func (epd *EPD) panelRect(frame, region image.Rectangle) image.Rectangle {
	src := region.Intersect(frame)
	if src.Empty() {
		return image.Rectangle{}
	}
	landscape := scaleRect(src, frame, epd.landscape.Bounds())
	return rotateRect(landscape, epd.portrait.Bounds().Dx()).Intersect(epd.portrait.Bounds())
}

func (epd *EPD) Shutdown(cleanup bool) error {
	err := epd.dev.Halt()
	if cleanup && !epd.closed {
		epd.closed = true
		err = errors.Join(err, epd.port.Close())
	}
	return wrap(OpShutdown, err)
}

// compose scales region of frame into the landscape buffer and rotates
// the whole buffer into the panel's bit image.
func (epd *EPD) compose(frame image.Image, region image.Rectangle) {
	src := region.Intersect(frame.Bounds())
	if src.Empty() {
		return
	}
	dst := scaleRect(src, frame.Bounds(), epd.landscape.Bounds())
	xdraw.ApproxBiLinear.Scale(epd.landscape, dst, frame, src, xdraw.Src, nil)

	bounds := epd.portrait.Bounds()
	width := bounds.Dx()
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < width; x++ {
			epd.portrait.Set(x, y, epd.landscape.GrayAt(y, width-1-x))
		}
	}
}

// rotateRect maps a landscape rectangle to portrait coordinates, matching
// the pixel mapping in compose.
func rotateRect(r image.Rectangle, portraitWidth int) image.Rectangle {
	return image.Rect(portraitWidth-r.Max.Y, r.Min.X, portraitWidth-r.Min.Y, r.Max.X)
}

func scaleRect(r, from, to image.Rectangle) image.Rectangle {
	sx := func(x int) int { return to.Min.X + (x-from.Min.X)*to.Dx()/from.Dx() }
	sy := func(y int) int { return to.Min.Y + (y-from.Min.Y)*to.Dy()/from.Dy() }
	return image.Rect(sx(r.Min.X), sy(r.Min.Y), sx(r.Max.X), sy(r.Max.Y))
}
