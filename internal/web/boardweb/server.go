// Package boardweb serves a browser preview of the arrival board the panel
// is currently showing.
package boardweb

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	"tarediiran-industries.com/clockpi/internal/transit/arrivals"
)

// BoardSource is satisfied by *scheduler.Scheduler.
type BoardSource interface {
	LatestBoard() arrivals.Board
}

type BoardPages struct {
	source       BoardSource
	renderer     *Renderer
	stationLabel string
	clock        clockwork.Clock
}

func NewBoardPages(source BoardSource, stationLabel string, clock clockwork.Clock) (*BoardPages, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &BoardPages{
		source:       source,
		renderer:     renderer,
		stationLabel: stationLabel,
		clock:        clock,
	}, nil
}

// Routes returns a router meant to be mounted under a prefix such as
// /board.
func (pages *BoardPages) Routes() chi.Router {
	router := chi.NewRouter()
	router.Get("/", pages.handleBoardPage)
	router.Get("/partial", pages.handleBoardPartial)
	return router
}

func (pages *BoardPages) handleBoardPage(writer http.ResponseWriter, request *http.Request) {
	query := ParseBoardQuery(request.URL.Query())
	viewmodel := BuildBoardPageVM(pages.stationLabel, query.Direction, 0)
	pages.renderer.Write(writer, pageLayout, viewmodel)
}

func (pages *BoardPages) handleBoardPartial(writer http.ResponseWriter, request *http.Request) {
	query := ParseBoardQuery(request.URL.Query())
	viewmodel := BuildBoardTableVM(query.Direction, pages.source.LatestBoard(), pages.clock.Now())
	pages.renderer.Write(writer, fragmentBoard, viewmodel)
}
