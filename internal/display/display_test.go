package display

import (
	"bytes"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"tarediiran-industries.com/clockpi/internal/quotes"
	"tarediiran-industries.com/clockpi/internal/transit/arrivals"
)

var sampleFrame = Frame{
	Now: time.Date(2026, 3, 14, 15, 9, 0, 0, time.UTC),
	Quote: quotes.Quote{
		QuoteFirst:    "At",
		QuoteTimeCase: "nine minutes past three",
		QuoteLast:     "the train finally pulled in.",
		Title:         "A Novel",
		Author:        "Some Author",
	},
	Board: arrivals.Board{
		Uptown:   []arrivals.Arrival{{RouteID: "A", MinutesAway: 0}, {RouteID: "C", MinutesAway: 4}},
		Downtown: []arrivals.Arrival{{RouteID: "E", MinutesAway: 2}},
	},
}

func inked(canvas *image.Gray, rect image.Rectangle) int {
	count := 0
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if canvas.GrayAt(x, y).Y < 0x80 {
				count++
			}
		}
	}
	return count
}

func TestSectionBounds(t *testing.T) {
	assert.Equal(t, image.Rect(0, 0, Width, Height), SectionAll.Bounds())
	assert.Equal(t, trainsRect, SectionTrains.Bounds())
	assert.Equal(t, clockRect.Union(quoteRect), (SectionClock | SectionQuote).Bounds())
	assert.True(t, Section(0).Bounds().Empty())
}

func TestRender_DrawsEverySection(t *testing.T) {
	layout := NewLayout("14 St")
	canvas := layout.NewCanvas()

	region := layout.Render(canvas, SectionAll, sampleFrame)

	assert.Equal(t, canvas.Bounds(), region)
	assert.Positive(t, inked(canvas, clockRect))
	assert.Positive(t, inked(canvas, quoteRect))
	assert.Positive(t, inked(canvas, trainsRect))
}

func TestRender_LeavesOtherSectionsUntouched(t *testing.T) {
	layout := NewLayout("")
	canvas := layout.NewCanvas()
	layout.Render(canvas, SectionAll, sampleFrame)
	before := bytes.Clone(canvas.Pix)

	next := sampleFrame
	next.Now = next.Now.Add(time.Hour)
	next.Board = arrivals.Board{Error: arrivals.NetworkMessage}
	region := layout.Render(canvas, SectionTrains, next)

	assert.Equal(t, trainsRect, region)
	top := image.Rect(0, 0, Width, trainsRect.Min.Y)
	for y := top.Min.Y; y < top.Max.Y; y++ {
		start := canvas.PixOffset(0, y)
		require.Equal(t, before[start:start+Width], canvas.Pix[start:start+Width], "row %d changed", y)
	}
	assert.NotEqual(t, before, canvas.Pix)
}

func TestRender_EmptyDirectionsShowPlaceholder(t *testing.T) {
	layout := NewLayout("")
	withTrains := layout.NewCanvas()
	layout.Render(withTrains, SectionTrains, sampleFrame)

	empty := layout.NewCanvas()
	layout.Render(empty, SectionTrains, Frame{})

	assert.Positive(t, inked(empty, trainsRect))
	assert.NotEqual(t, withTrains.Pix, empty.Pix)
}

func TestRender_LongQuoteStaysInsideItsSection(t *testing.T) {
	layout := NewLayout("")
	canvas := layout.NewCanvas()
	long := sampleFrame
	for i := 0; i < 200; i++ {
		long.Quote.QuoteLast += " and then some more words"
	}

	layout.Render(canvas, SectionQuote, long)

	assert.Zero(t, inked(canvas, clockRect))
	assert.Zero(t, inked(canvas, trainsRect))
}

func TestRenderStartup(t *testing.T) {
	layout := NewLayout("")
	connecting := layout.NewCanvas()
	connected := layout.NewCanvas()

	layout.RenderStartup(connecting, false)
	layout.RenderStartup(connected, true)

	assert.Positive(t, inked(connecting, connecting.Bounds()))
	assert.NotEqual(t, connecting.Pix, connected.Pix)
}

func TestWrap(t *testing.T) {
	layout := NewLayout("")
	lines := wrapText(layout.small, "one two three four five six", measure(layout.small, "one two three"))
	assert.Equal(t, []string{"one two three", "four five six"}, lines)
	assert.Empty(t, wrapText(layout.small, "   ", 100))
}

func TestScaleRect(t *testing.T) {
	from := image.Rect(0, 0, 800, 480)
	to := image.Rect(0, 0, 250, 122)
	assert.Equal(t, to, scaleRect(from, from, to))
	assert.Equal(t, image.Rect(0, 81, 250, 122), scaleRect(trainsRect, from, to))
}

func TestEPD_PartialPaintTargetsDirtyPanelArea(t *testing.T) {
	epd := &EPD{
		landscape: image.NewGray(image.Rect(0, 0, 250, 122)),
		portrait:  image1bit.NewVerticalLSB(image.Rect(0, 0, 122, 250)),
	}
	frame := image.NewGray(image.Rect(0, 0, Width, Height))
	fill(frame, frame.Bounds(), paper)
	fill(frame, trainsRect, ink)
	epd.compose(frame, frame.Bounds())

	dirty := epd.panelRect(frame.Bounds(), trainsRect)
	assert.Equal(t, image.Rect(0, 0, 41, 250), dirty)
	assert.Equal(t, epd.portrait.Bounds(), epd.panelRect(frame.Bounds(), frame.Bounds()))
	assert.True(t, epd.panelRect(frame.Bounds(), image.Rect(900, 0, 950, 10)).Empty())

	// Inked pixels land inside the dirty area, paper outside it.
	assert.Equal(t, image1bit.Off, epd.portrait.BitAt(10, 100))
	assert.Equal(t, image1bit.On, epd.portrait.BitAt(100, 100))
	assert.True(t, image.Pt(10, 100).In(dirty))
	assert.False(t, image.Pt(100, 100).In(dirty))
}

func TestPNGDevice(t *testing.T) {
	dir := t.TempDir()
	device, err := NewPNGDevice(dir, nil)
	require.NoError(t, err)

	layout := NewLayout("")
	canvas := layout.NewCanvas()
	layout.Render(canvas, SectionAll, sampleFrame)

	var deviceErr *DeviceError
	err = device.DisplayFull(canvas)
	require.ErrorAs(t, err, &deviceErr)
	assert.Equal(t, OpDisplayFull, deviceErr.Op)
	assert.True(t, errors.Is(err, errAsleep))

	require.NoError(t, device.Init())
	require.NoError(t, device.DisplayFull(canvas))
	require.NoError(t, device.Sleep())
	require.NoError(t, device.InitPartial())
	require.NoError(t, device.DisplayPartial(canvas, trainsRect))
	require.NoError(t, device.Sleep())

	for _, name := range []string{"frame-000001.png", "frame-000002.png", "latest.png"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	assert.Equal(t, filepath.Join(dir, "latest.png"), device.Latest())

	require.NoError(t, device.Shutdown(true))
	assert.ErrorIs(t, device.Init(), errClosed)
}
