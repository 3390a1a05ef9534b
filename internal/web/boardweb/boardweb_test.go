package boardweb

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tarediiran-industries.com/clockpi/internal/transit/arrivals"
)

type fixedBoard arrivals.Board

func (board fixedBoard) LatestBoard() arrivals.Board { return arrivals.Board(board) }

var fetchedAt = time.Date(2026, 3, 14, 15, 9, 0, 0, time.UTC)

var sample = arrivals.Board{
	Uptown:    []arrivals.Arrival{{RouteID: "A", MinutesAway: 0}, {RouteID: "C", MinutesAway: 6}},
	Downtown:  []arrivals.Arrival{{RouteID: "D", MinutesAway: 2}},
	Error:     arrivals.ServerMessage,
	FetchedAt: fetchedAt,
}

func TestParseBoardQuery(t *testing.T) {
	assert.Equal(t, "ALL", ParseBoardQuery(url.Values{}).Direction)
	assert.Equal(t, "UPTOWN", ParseBoardQuery(url.Values{"direction": {" uptown "}}).Direction)
	assert.Equal(t, "ALL", ParseBoardQuery(url.Values{"direction": {"sideways"}}).Direction)
}

func TestBuildBoardTableVM(t *testing.T) {
	now := fetchedAt.Add(90 * time.Second)

	all := BuildBoardTableVM("ALL", sample, now)
	assert.Equal(t, []ArrivalRowVM{
		{Route: "A", Direction: "uptown", Countdown: "<1 min away"},
		{Route: "C", Direction: "uptown", Countdown: "6 min away"},
		{Route: "D", Direction: "downtown", Countdown: "2 min away"},
	}, all.Rows)
	assert.Equal(t, "15:09:00", all.UpdatedAt)
	assert.Equal(t, "1m ago", all.Age)
	assert.Equal(t, arrivals.ServerMessage, all.Error)

	downtown := BuildBoardTableVM("DOWNTOWN", sample, now)
	require.Len(t, downtown.Rows, 1)
	assert.Equal(t, "D", downtown.Rows[0].Route)

	empty := BuildBoardTableVM("ALL", arrivals.Board{}, now)
	assert.Empty(t, empty.Rows)
	assert.Empty(t, empty.UpdatedAt)
}

func TestFormatAge(t *testing.T) {
	now := fetchedAt
	assert.Equal(t, "0.0s ago", formatAge(now, now.Add(time.Second)))
	assert.Equal(t, "2.5s ago", formatAge(now, now.Add(-2500*time.Millisecond)))
	assert.Equal(t, "42s ago", formatAge(now, now.Add(-42*time.Second)))
	assert.Equal(t, "3h ago", formatAge(now, now.Add(-3*time.Hour)))
}

func TestBoardPages(t *testing.T) {
	pages, err := NewBoardPages(fixedBoard(sample), "125 St", clockwork.NewFakeClockAt(fetchedAt.Add(5*time.Second)))
	require.NoError(t, err)

	router := chi.NewRouter()
	router.Mount("/board", pages.Routes())
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	get := func(path string) string {
		t.Helper()
		resp, err := http.Get(server.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}

	page := get("/board")
	assert.Contains(t, page, "<h1>125 St</h1>")
	assert.Contains(t, page, `data-direction="ALL"`)
	assert.Contains(t, page, `<a href="?direction=UPTOWN">Uptown</a>`)
	assert.Contains(t, page, "<b>All</b>")

	partial := get("/board/partial?direction=uptown")
	assert.Contains(t, partial, "&lt;1 min away")
	assert.Contains(t, partial, "6 min away")
	assert.Contains(t, partial, "<td>Uptown</td>")
	assert.NotContains(t, partial, "<td>D</td>")
	assert.Contains(t, partial, arrivals.ServerMessage)
	assert.Contains(t, partial, "Updated 15:09:00 (5.0s ago)")
}

func TestRenderer_FailedRenderIsACleanError(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	recorder := httptest.NewRecorder()
	renderer.Write(recorder, fragmentBoard, BoardTableVM{Rows: []ArrivalRowVM{{Route: "A", Direction: "uptown"}}})
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, htmlContentType, recorder.Header().Get("Content-Type"))

	recorder = httptest.NewRecorder()
	renderer.Write(recorder, fragmentBoard, struct{}{})
	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.NotContains(t, recorder.Body.String(), "<table>")
}

func TestLabelFunc(t *testing.T) {
	label := templateFuncs["label"].(func(string) string)
	assert.Equal(t, "Downtown", label("DOWNTOWN"))
	assert.Equal(t, "Uptown", label("uptown"))
	assert.Equal(t, "", label(""))
}
