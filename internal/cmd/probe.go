package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"tarediiran-industries.com/clockpi/internal/transit/feed"
)

func NewProbeCmd(app *ClockCtlApp) *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Run one connectivity check the way the board does at startup",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Config()
			if err != nil {
				return err
			}
			client, err := app.FeedClient()
			if err != nil {
				return err
			}
			if url == "" {
				url = cfg.Bootstrap.URL
			}

			result := client.FetchWithin(cmd.Context(), url, cfg.Bootstrap.Timeout.Duration)
			switch result.Kind() {
			case feed.None:
				fmt.Fprintf(cmd.OutOrStdout(), "connected: %d entities\n", len(result.Feed.GetEntity()))
			case feed.Server:
				fmt.Fprintf(cmd.OutOrStdout(), "connected, feed unusable: %v\n", result.Err)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "not connected: %v\n", result.Err)
				return fmt.Errorf("probe failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Endpoint to probe (default: bootstrap.url)")

	return cmd
}
