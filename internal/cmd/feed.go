package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
)

func NewFeedCmd(app *ClockCtlApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Inspect raw GTFS-RT feeds",
	}
	cmd.AddCommand(newFeedDumpCmd(app))
	return cmd
}

func newFeedDumpCmd(app *ClockCtlApp) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "dump <url>",
		Short: "Fetch one feed and print its entities as JSON",
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

			options := protojson.MarshalOptions{Multiline: true}
			for i, entity := range result.Feed.GetEntity() {
				if limit > 0 && i >= limit {
					break
				}
				jsonBytes, err := options.Marshal(entity)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(jsonBytes))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Print at most this many entities (0 prints all)")

	return cmd
}
