package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tarediiran-industries.com/clockpi/internal/common"
	"tarediiran-industries.com/clockpi/internal/transit/feed/feedtest"
)

func TestFetch_DecodesFeed(t *testing.T) {
	now := time.Now()
	server := feedtest.ServeFeed(t, now, feedtest.Trip{
		Route: "A",
		Stops: []feedtest.StopTime{{StopID: "A15N", Arrival: now.Add(3 * time.Minute)}},
	})

	result := NewClient().Fetch(context.Background(), server.URL)

	require.NoError(t, result.Err)
	assert.Equal(t, None, result.Kind())
	require.Len(t, result.Feed.GetEntity(), 1)
	assert.Equal(t, "A", result.Feed.GetEntity()[0].GetTripUpdate().GetTrip().GetRouteId())
}

func TestFetch_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		name string
		url  func(t *testing.T) string
		want ErrorKind
	}{
		{
			name: "connection refused",
			url:  func(t *testing.T) string { return feedtest.ClosedURL(t) },
			want: Network,
		},
		{
			name: "timeout",
			url:  func(t *testing.T) string { return feedtest.ServeStall(t).URL },
			want: Network,
		},
		{
			name: "http 503",
			url:  func(t *testing.T) string { return feedtest.ServeStatus(t, http.StatusServiceUnavailable).URL },
			want: Server,
		},
		{
			name: "http 404",
			url:  func(t *testing.T) string { return feedtest.ServeStatus(t, http.StatusNotFound).URL },
			want: Server,
		},
		{
			name: "undecodable body",
			url:  func(t *testing.T) string { return feedtest.Serve(t, []byte{0xff, 0xff, 0xff}).URL },
			want: Server,
		},
		{
			name: "html instead of protobuf",
			url:  func(t *testing.T) string { return feedtest.Serve(t, []byte("<html>down for maintenance</html>")).URL },
			want: Server,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(WithTimeout(200 * time.Millisecond))
			result := client.Fetch(context.Background(), tt.url(t))

			require.Error(t, result.Err)
			assert.Nil(t, result.Feed)
			assert.Equal(t, tt.want, result.Kind())

			var fetchErr *FetchError
			require.True(t, errors.As(result.Err, &fetchErr))
			assert.Equal(t, tt.want == Network, errors.Is(result.Err, ErrNetwork))
			assert.Equal(t, tt.want == Server, errors.Is(result.Err, ErrServer))
		})
	}
}

func TestFetch_OwnTimeoutBeatsCallerDeadline(t *testing.T) {
	server := feedtest.ServeStall(t)
	client := NewClient(WithTimeout(100 * time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	start := time.Now()
	result := client.Fetch(ctx, server.URL)

	assert.Equal(t, Network, result.Kind())
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestFetchWithin_LongerTimeoutThanClientDefault(t *testing.T) {
	body := feedtest.Marshal(t, feedtest.Message(time.Now()))
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		time.Sleep(150 * time.Millisecond)
		_, _ = writer.Write(body)
	}))
	defer server.Close()

	client := NewClient(WithTimeout(100 * time.Millisecond))

	result := client.FetchWithin(context.Background(), server.URL, 500*time.Millisecond)
	require.NoError(t, result.Err)
	assert.Equal(t, None, result.Kind())

	result = client.Fetch(context.Background(), server.URL)
	assert.Equal(t, Network, result.Kind())
}

func TestFetch_OneRequestPerCallAndHeaders(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		hits.Add(1)
		assert.Equal(t, "secret", request.Header.Get("x-api-key"))
		writer.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(WithHeader("x-api-key", "secret"))
	result := client.Fetch(context.Background(), server.URL)

	assert.Equal(t, Server, result.Kind())
	assert.Equal(t, int32(1), hits.Load(), "fetch must not retry")
}

func TestFetch_RecordsMetrics(t *testing.T) {
	metrics := common.NewMetrics(prometheus.NewRegistry())
	ok := feedtest.ServeFeed(t, time.Now())
	bad := feedtest.ServeStatus(t, http.StatusInternalServerError)

	client := NewClient(WithMetrics(metrics))
	client.Fetch(context.Background(), ok.URL)
	client.Fetch(context.Background(), bad.URL)
	client.Fetch(context.Background(), bad.URL)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.FeedErrorsTotal.WithLabelValues(bad.URL, "server")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.FeedErrorsTotal.WithLabelValues(ok.URL, "server")))
	assert.Greater(t, testutil.ToFloat64(metrics.FeedBytesTotal.WithLabelValues(ok.URL)), 0.0)
}
