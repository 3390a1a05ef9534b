package cmd

import (
	"fmt"
	"io"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"tarediiran-industries.com/clockpi/internal/transit/arrivals"
)

func NewArrivalsCmd(app *ClockCtlApp) *cobra.Command {
	var station string
	var routes []string
	var count int

	cmd := &cobra.Command{
		Use:   "arrivals",
		Short: "Print upcoming arrivals at the configured station",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Config()
			if err != nil {
				return err
			}
			client, err := app.FeedClient()
			if err != nil {
				return err
			}

			query := cfg.Transit.Query()
			if cmd.Flags().Changed("station") {
				query.Station = station
			}
			if cmd.Flags().Changed("route") {
				query.Routes = arrivals.NewRouteSet(routes...)
			}
			if cmd.Flags().Changed("count") {
				query.TrainCount = count
			}

			board := arrivals.NewAggregator(client, clockwork.NewRealClock()).Aggregate(cmd.Context(), query)
			printBoard(cmd.OutOrStdout(), board)
			return nil
		},
	}

	cmd.Flags().StringVar(&station, "station", "", "Stop id without direction suffix")
	cmd.Flags().StringSliceVar(&routes, "route", nil, "Route to include (repeatable)")
	cmd.Flags().IntVar(&count, "count", 0, "Arrivals per direction")

	return cmd
}

func printBoard(out io.Writer, board arrivals.Board) {
	if board.Failed() {
		fmt.Fprintln(out, board.Error)
	}
	for _, column := range []struct {
		heading string
		trains  []arrivals.Arrival
	}{
		{"Uptown:", board.Uptown},
		{"Downtown:", board.Downtown},
	} {
		fmt.Fprintln(out, column.heading)
		if len(column.trains) == 0 {
			fmt.Fprintln(out, "  none soon")
		}
		for _, train := range column.trains {
			minutes := fmt.Sprint(train.MinutesAway)
			if train.MinutesAway == 0 {
				minutes = "<1"
			}
			fmt.Fprintf(out, "  %s train in %s min\n", train.RouteID, minutes)
		}
	}
}
