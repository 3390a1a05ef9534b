package boardweb

import (
	"fmt"
	"time"

	"tarediiran-industries.com/clockpi/internal/transit/arrivals"
)

func BuildBoardPageVM(stationLabel, selected string, pollSeconds int) BoardPageVM {
	if selected == "" {
		selected = "ALL"
	}
	if pollSeconds <= 0 {
		pollSeconds = 15
	}

	return BoardPageVM{
		StationLabel: stationLabel,
		Directions:   []string{"ALL", "UPTOWN", "DOWNTOWN"},
		Selected:     selected,
		PollSeconds:  pollSeconds,
	}
}

func BuildBoardTableVM(selected string, board arrivals.Board, now time.Time) BoardTableVM {
	rows := make([]ArrivalRowVM, 0, len(board.Uptown)+len(board.Downtown))
	add := func(direction arrivals.Direction, trains []arrivals.Arrival) {
		for _, train := range trains {
			rows = append(rows, ArrivalRowVM{
				Route:     train.RouteID,
				Direction: direction.String(),
				Countdown: train.Label(),
			})
		}
	}
	if selected != "DOWNTOWN" {
		add(arrivals.Uptown, board.Uptown)
	}
	if selected != "UPTOWN" {
		add(arrivals.Downtown, board.Downtown)
	}

	viewmodel := BoardTableVM{
		Selected: selected,
		Error:    board.Error,
		Rows:     rows,
	}
	if !board.FetchedAt.IsZero() {
		viewmodel.UpdatedAt = board.FetchedAt.Format("15:04:05")
		viewmodel.Age = formatAge(now, board.FetchedAt)
	}
	return viewmodel
}

func formatAge(now, then time.Time) string {
	d := now.Sub(then)
	if d < 0 {
		d = 0
	}
	if d < 10*time.Second {
		return fmt.Sprintf("%.1fs ago", d.Seconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh ago", int(d.Hours()))
}
