package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

func NewStopsCmd(app *ClockCtlApp) *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "stops <url>",
		Short: "List stop ids with live arrivals in a feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.FeedClient()
			if err != nil {
				return err
			}

			result := client.Fetch(cmd.Context(), args[0])
			if result.Err != nil {
				return result.Err
			}

			stops := map[string]struct{}{}
			for _, entity := range result.Feed.GetEntity() {
				for _, update := range entity.GetTripUpdate().GetStopTimeUpdate() {
					if strings.HasPrefix(update.GetStopId(), prefix) {
						stops[update.GetStopId()] = struct{}{}
					}
				}
			}

			ids := make([]string, 0, len(stops))
			for id := range stops {
				ids = append(ids, id)
			}
			slices.Sort(ids)
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "Only list stop ids starting with this")

	return cmd
}
