// Package arrivals turns one or more GTFS-RT feeds into a bounded,
// direction-bucketed list of upcoming trains at a single station.
//
// Aggregation degrades rather than fails: a feed that cannot be fetched
// sets the board's error message, while arrivals recovered from the
// feeds that did succeed are still returned.
package arrivals

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"tarediiran-industries.com/clockpi/internal/transit/feed"
)

const (
	NetworkMessage = "Network issue fetching arrivals"
	ServerMessage  = "Server issue fetching arrivals"
)

type Direction int

const (
	Uptown Direction = iota
	Downtown
)

func (direction Direction) String() string {
	if direction == Uptown {
		return "uptown"
	}
	return "downtown"
}

type Arrival struct {
	RouteID     string `json:"route_id"`
	MinutesAway int    `json:"minutes_away"`
}

// Label renders the countdown the way the board shows it.
func (arrival Arrival) Label() string {
	if arrival.MinutesAway == 0 {
		return "<1 min away"
	}
	return fmt.Sprintf("%d min away", arrival.MinutesAway)
}

type RouteSet map[string]struct{}

func NewRouteSet(routes ...string) RouteSet {
	set := make(RouteSet, len(routes))
	for _, route := range routes {
		set[route] = struct{}{}
	}
	return set
}

func (set RouteSet) Contains(route string) bool {
	_, ok := set[route]
	return ok
}

type Query struct {
	FeedURLs   []string
	Station    string
	Routes     RouteSet
	TrainCount int
}

type Board struct {
	Uptown    []Arrival `json:"uptown"`
	Downtown  []Arrival `json:"downtown"`
	Error     string    `json:"error,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

func (board Board) Failed() bool {
	return board.Error != ""
}

// Fetcher is satisfied by *feed.Client.
type Fetcher interface {
	Fetch(ctx context.Context, url string) feed.Result
}

type Aggregator struct {
	fetcher Fetcher
	clock   clockwork.Clock
}

func NewAggregator(fetcher Fetcher, clock clockwork.Clock) *Aggregator {
	return &Aggregator{fetcher: fetcher, clock: clock}
}

// Aggregate fetches every feed in parallel and merges their arrivals. It
// never returns an error; feed failures are folded into Board.Error.
func (aggregator *Aggregator) Aggregate(ctx context.Context, query Query) Board {
	if len(query.FeedURLs) == 0 || query.TrainCount <= 0 {
		return Board{Uptown: []Arrival{}, Downtown: []Arrival{}, FetchedAt: aggregator.clock.Now()}
	}

	results := make([]feed.Result, len(query.FeedURLs))
	var group errgroup.Group
	for i, url := range query.FeedURLs {
		group.Go(func() error {
			results[i] = aggregator.fetcher.Fetch(ctx, url)
			return nil
		})
	}
	_ = group.Wait()

	now := aggregator.clock.Now()
	board := Board{FetchedAt: now}
	var uptown, downtown []Arrival

	// Results are walked in feed order so the merge, and which failure
	// message survives, does not depend on completion order.
	for _, result := range results {
		switch result.Kind() {
		case feed.None:
			up, down := Collect(result.Feed, query.Station, query.Routes, now)
			uptown = append(uptown, up...)
			downtown = append(downtown, down...)
		case feed.Network:
			board.Error = NetworkMessage
		default:
			board.Error = ServerMessage
		}
	}

	board.Uptown = Bound(uptown, query.TrainCount)
	board.Downtown = Bound(downtown, query.TrainCount)
	return board
}

// Collect extracts the arrivals at station for the filtered routes from a
// single decoded feed, in feed order.
func Collect(message *gtfs.FeedMessage, station string, routes RouteSet, now time.Time) (uptown, downtown []Arrival) {
	for _, entity := range message.GetEntity() {
		tripUpdate := entity.GetTripUpdate()
		if tripUpdate == nil {
			continue
		}

		routeID := tripUpdate.GetTrip().GetRouteId()
		if !routes.Contains(routeID) {
			continue
		}

		for _, stopTimeUpdate := range tripUpdate.GetStopTimeUpdate() {
			stopID := stopTimeUpdate.GetStopId()
			if !strings.HasPrefix(stopID, station) {
				continue
			}

			minutes, ok := MinutesAway(stopTimeUpdate.GetArrival().GetTime(), now)
			if !ok {
				continue
			}

			arrival := Arrival{RouteID: routeID, MinutesAway: minutes}
			if DirectionOf(stopID, station) == Uptown {
				uptown = append(uptown, arrival)
			} else {
				downtown = append(downtown, arrival)
			}
		}
	}
	return uptown, downtown
}

// MinutesAway floors the time until arrivalUnix to whole minutes. Unset
// times and arrivals at or before now are rejected.
func MinutesAway(arrivalUnix int64, now time.Time) (int, bool) {
	if arrivalUnix == 0 {
		return 0, false
	}
	delta := time.Unix(arrivalUnix, 0).Sub(now)
	if delta <= 0 {
		return 0, false
	}
	return int(delta / time.Minute), true
}

// DirectionOf classifies a platform stop id: the station's "N" platform
// is uptown, every other platform downtown.
func DirectionOf(stopID, station string) Direction {
	if stopID == station+"N" {
		return Uptown
	}
	return Downtown
}

// Bound stable-sorts arrivals by minutes away and keeps at most count.
func Bound(arrivals []Arrival, count int) []Arrival {
	if count <= 0 {
		return []Arrival{}
	}
	sorted := slices.Clone(arrivals)
	slices.SortStableFunc(sorted, func(a, b Arrival) int {
		return a.MinutesAway - b.MinutesAway
	})
	if len(sorted) > count {
		sorted = sorted[:count]
	}
	if sorted == nil {
		sorted = []Arrival{}
	}
	return sorted
}
