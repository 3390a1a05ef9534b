// Package feedtest builds GTFS-RT fixtures and httptest servers for tests.
package feedtest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

type StopTime struct {
	StopID  string
	Arrival time.Time
	// NoArrival leaves the arrival event unset.
	NoArrival bool
}

type Trip struct {
	Route string
	Stops []StopTime
	// Alert emits a non trip-update entity instead.
	Alert bool
}

// Message builds a feed with one entity per trip.
func Message(now time.Time, trips ...Trip) *gtfs.FeedMessage {
	entities := make([]*gtfs.FeedEntity, 0, len(trips))
	for i, trip := range trips {
		entity := &gtfs.FeedEntity{Id: proto.String(fmt.Sprintf("entity-%d", i))}
		if trip.Alert {
			entity.Alert = &gtfs.Alert{}
			entities = append(entities, entity)
			continue
		}

		updates := make([]*gtfs.TripUpdate_StopTimeUpdate, 0, len(trip.Stops))
		for _, stop := range trip.Stops {
			update := &gtfs.TripUpdate_StopTimeUpdate{StopId: proto.String(stop.StopID)}
			if !stop.NoArrival {
				update.Arrival = &gtfs.TripUpdate_StopTimeEvent{Time: proto.Int64(stop.Arrival.Unix())}
			}
			updates = append(updates, update)
		}

		entity.TripUpdate = &gtfs.TripUpdate{
			Trip: &gtfs.TripDescriptor{
				TripId:  proto.String(fmt.Sprintf("%s..%03d", trip.Route, i)),
				RouteId: proto.String(trip.Route),
			},
			StopTimeUpdate: updates,
		}
		entities = append(entities, entity)
	}

	return &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(uint64(now.Unix())),
		},
		Entity: entities,
	}
}

func Marshal(t testing.TB, message *gtfs.FeedMessage) []byte {
	t.Helper()
	body, err := proto.Marshal(message)
	require.NoError(t, err)
	return body
}

// Serve starts a server answering every GET with body.
func Serve(t testing.TB, body []byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/x-protobuf")
		_, _ = writer.Write(body)
	}))
	t.Cleanup(server.Close)
	return server
}

// ServeFeed serves the marshaled feed of trips relative to now.
func ServeFeed(t testing.TB, now time.Time, trips ...Trip) *httptest.Server {
	t.Helper()
	return Serve(t, Marshal(t, Message(now, trips...)))
}

// ServeStatus answers every request with the given status code.
func ServeStatus(t testing.TB, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server
}

// ServeStall holds every request until the test ends.
func ServeStall(t testing.TB) *httptest.Server {
	t.Helper()
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		select {
		case <-release:
		case <-request.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})
	return server
}

// ClosedURL returns a URL nothing listens on.
func ClosedURL(t testing.TB) string {
	t.Helper()
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	return url
}
