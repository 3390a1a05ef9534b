package display

import (
	"image"
	"image/color"
	"image/draw"
	"strings"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/inconsolata"
	"golang.org/x/image/math/fixed"

	"tarediiran-industries.com/clockpi/internal/quotes"
	"tarediiran-industries.com/clockpi/internal/transit/arrivals"
)

const (
	Width  = 800
	Height = 480
)

// Section selects parts of the layout to redraw.
type Section uint8

const (
	SectionClock Section = 1 << iota
	SectionQuote
	SectionTrains

	SectionAll = SectionClock | SectionQuote | SectionTrains
)

var (
	clockRect  = image.Rect(0, 0, Width, 48)
	quoteRect  = image.Rect(0, 48, Width, 320)
	trainsRect = image.Rect(0, 320, Width, Height)
)

// Bounds returns the union of the rectangles covered by sections.
func (sections Section) Bounds() image.Rectangle {
	var bounds image.Rectangle
	if sections&SectionClock != 0 {
		bounds = bounds.Union(clockRect)
	}
	if sections&SectionQuote != 0 {
		bounds = bounds.Union(quoteRect)
	}
	if sections&SectionTrains != 0 {
		bounds = bounds.Union(trainsRect)
	}
	return bounds
}

var (
	paper = color.Gray{Y: 0xff}
	ink   = color.Gray{Y: 0x00}
)

// Frame is everything drawn in one refresh.
type Frame struct {
	Now   time.Time
	Quote quotes.Quote
	Board arrivals.Board
}

type Layout struct {
	StationLabel string
	TimeFormat   string

	regular font.Face
	bold    font.Face
	small   font.Face
}

func NewLayout(stationLabel string) *Layout {
	return &Layout{
		StationLabel: stationLabel,
		TimeFormat:   "03:04 PM",
		regular:      inconsolata.Regular8x16,
		bold:         inconsolata.Bold8x16,
		small:        basicfont.Face7x13,
	}
}

// NewCanvas returns a blank full-screen canvas.
func (layout *Layout) NewCanvas() *image.Gray {
	canvas := image.NewGray(image.Rect(0, 0, Width, Height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(paper), image.Point{}, draw.Src)
	return canvas
}

// Render clears and redraws the requested sections of canvas and returns
// the region it touched.
func (layout *Layout) Render(canvas *image.Gray, sections Section, frame Frame) image.Rectangle {
	if sections&SectionClock != 0 {
		fill(canvas, clockRect, paper)
		layout.drawClock(canvas, frame.Now)
	}
	if sections&SectionQuote != 0 {
		fill(canvas, quoteRect, paper)
		layout.drawQuote(canvas, frame.Quote)
	}
	if sections&SectionTrains != 0 {
		fill(canvas, trainsRect, paper)
		layout.drawTrains(canvas, frame.Board)
	}
	return sections.Bounds()
}

// RenderStartup draws the boot screen shown while connectivity is probed.
func (layout *Layout) RenderStartup(canvas *image.Gray, connected bool) {
	fill(canvas, canvas.Bounds(), paper)
	layout.centered(canvas, layout.bold, 100, "Starting Up...")
	status := "Connecting Wifi"
	if connected {
		status = "Wifi Connected!"
	}
	layout.centered(canvas, layout.bold, 300, status)
}

func (layout *Layout) drawClock(canvas *image.Gray, now time.Time) {
	layout.centered(canvas, layout.bold, 30, now.Format(layout.TimeFormat))
}

const (
	quotePadX      = 50
	quoteLineSpace = 5
	attributionGap = 10
	maxTitleLines  = 2
)

type token struct {
	word string
	face font.Face
}

func (layout *Layout) quoteTokens(quote quotes.Quote) []token {
	segments := []token{
		{quote.QuoteFirst, layout.regular},
		{quote.QuoteTimeCase, layout.bold},
		{quote.QuoteLast, layout.regular},
	}
	var tokens []token
	for _, segment := range segments {
		for _, word := range strings.Fields(segment.word) {
			tokens = append(tokens, token{word + " ", segment.face})
		}
	}
	if n := len(tokens); n > 0 {
		tokens[n-1].word = strings.TrimSuffix(tokens[n-1].word, " ")
	}
	return tokens
}

func (layout *Layout) drawQuote(canvas *image.Gray, quote quotes.Quote) {
	left := quoteRect.Min.X + quotePadX
	right := quoteRect.Max.X - quotePadX
	lineHeight := lineHeightOf(layout.regular) + quoteLineSpace
	smallLine := lineHeightOf(layout.small) + quoteLineSpace

	attribution := wrapText(layout.small, quote.Title, right-left)
	if len(attribution) > maxTitleLines {
		attribution = attribution[:maxTitleLines]
	}
	if quote.Author != "" {
		attribution = append(attribution, quote.Author)
	}
	limit := quoteRect.Max.Y - attributionGap - len(attribution)*smallLine - layout.small.Metrics().Descent.Ceil()

	x, y := left, quoteRect.Min.Y+lineHeight
	lastLine := quoteRect.Min.Y
	for _, tok := range layout.quoteTokens(quote) {
		width := measure(tok.face, tok.word)
		if x+width > right && x > left {
			x = left
			y += lineHeight
		}
		if y > limit {
			break
		}
		text(canvas, tok.face, x, y, tok.word)
		x += width
		lastLine = y
	}

	y = lastLine + attributionGap
	for _, line := range attribution {
		y += smallLine
		text(canvas, layout.small, right-measure(layout.small, line), y, line)
	}
}

const (
	uptownX     = 50
	downtownX   = 450
	bulletSize  = 14
	rowSpacing  = 5
	columnTop   = 360
	emptyUptown = "No uptown arrivals soon..."
	emptyDown   = "No downtown arrivals soon..."
)

func (layout *Layout) drawTrains(canvas *image.Gray, board arrivals.Board) {
	top := trainsRect.Min.Y + 16
	if layout.StationLabel != "" {
		text(canvas, layout.small, 20, top, layout.StationLabel)
	}
	if board.Error != "" {
		text(canvas, layout.small, Width-20-measure(layout.small, board.Error), top, board.Error)
	}
	hline(canvas, top+4, ink)

	layout.drawColumn(canvas, uptownX, "Uptown:", emptyUptown, board.Uptown)
	layout.drawColumn(canvas, downtownX, "Downtown:", emptyDown, board.Downtown)
}

func (layout *Layout) drawColumn(canvas *image.Gray, x int, heading, empty string, trains []arrivals.Arrival) {
	if len(trains) == 0 {
		text(canvas, layout.regular, x-bulletSize, columnTop+bulletSize, empty)
		return
	}

	text(canvas, layout.regular, x-bulletSize, columnTop-4, heading)
	y := columnTop + bulletSize + rowSpacing
	for _, train := range trains {
		if y+bulletSize > trainsRect.Max.Y {
			break
		}
		bullet(canvas, x, y, bulletSize)
		label := train.RouteID
		labelDrawer := font.Drawer{
			Dst:  canvas,
			Src:  image.NewUniform(paper),
			Face: layout.bold,
			Dot:  fixed.P(x-measure(layout.bold, label)/2, y+lineHeightOf(layout.bold)/2-3),
		}
		labelDrawer.DrawString(label)
		text(canvas, layout.regular, x+bulletSize+10, y+5, train.Label())
		y += 2*bulletSize + rowSpacing
	}
}

func (layout *Layout) centered(canvas *image.Gray, face font.Face, y int, s string) {
	text(canvas, face, (Width-measure(face, s))/2, y, s)
}

func text(canvas *image.Gray, face font.Face, x, y int, s string) {
	drawer := font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(ink),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	drawer.DrawString(s)
}

func measure(face font.Face, s string) int {
	return font.MeasureString(face, s).Round()
}

func lineHeightOf(face font.Face) int {
	return face.Metrics().Height.Ceil()
}

func wrapText(face font.Face, s string, maxWidth int) []string {
	var lines []string
	var current []string
	for _, word := range strings.Fields(s) {
		candidate := strings.Join(append(current, word), " ")
		if len(current) > 0 && measure(face, candidate) > maxWidth {
			lines = append(lines, strings.Join(current, " "))
			current = []string{word}
			continue
		}
		current = append(current, word)
	}
	if len(current) > 0 {
		lines = append(lines, strings.Join(current, " "))
	}
	return lines
}

func fill(canvas *image.Gray, rect image.Rectangle, c color.Gray) {
	draw.Draw(canvas, rect, image.NewUniform(c), image.Point{}, draw.Src)
}

func hline(canvas *image.Gray, y int, c color.Gray) {
	for x := 0; x < Width; x++ {
		canvas.SetGray(x, y, c)
	}
}

func bullet(canvas *image.Gray, cx, cy, radius int) {
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			if x*x+y*y <= radius*radius {
				canvas.SetGray(cx+x, cy+y, ink)
			}
		}
	}
}
