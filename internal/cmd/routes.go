package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

// NewRoutesCmd lists the routes that currently have trip updates in the
// configured feeds, which helps pick values for transit.routes.
func NewRoutesCmd(app *ClockCtlApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routes [url...]",
		Short: "List routes with live trip updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Config()
			if err != nil {
				return err
			}
			client, err := app.FeedClient()
			if err != nil {
				return err
			}

			urls := args
			if len(urls) == 0 {
				urls = cfg.Transit.FeedURLs
			}

			for _, url := range urls {
				result := client.Fetch(cmd.Context(), url)
				if result.Err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", url, result.Err)
					continue
				}

				seen := map[string]int{}
				for _, entity := range result.Feed.GetEntity() {
					if update := entity.GetTripUpdate(); update != nil {
						seen[update.GetTrip().GetRouteId()]++
					}
				}
				routes := make([]string, 0, len(seen))
				for route := range seen {
					routes = append(routes, route)
				}
				slices.Sort(routes)

				parts := make([]string, len(routes))
				for i, route := range routes {
					parts[i] = fmt.Sprintf("%s(%d)", route, seen[route])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", url, strings.Join(parts, " "))
			}
			return nil
		},
	}

	return cmd
}
