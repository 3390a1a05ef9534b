package cmd

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func NewHealthCmd(app *ClockCtlApp) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query a running clockpi's telemetry server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				cfg, err := app.Config()
				if err != nil {
					return err
				}
				addr = cfg.Telemetry.Listen
			}
			if addr == "" {
				return fmt.Errorf("no telemetry address; pass --addr or set telemetry.listen")
			}

			base := addr
			if !strings.Contains(base, "://") {
				if strings.HasPrefix(base, ":") {
					base = "localhost" + base
				}
				base = "http://" + base
			}

			client := &http.Client{Timeout: 5 * time.Second}
			for _, path := range []string{"/healthz", "/status"} {
				request, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, base+path, nil)
				if err != nil {
					return err
				}
				resp, err := client.Do(request)
				if err != nil {
					return fmt.Errorf("GET %s: %w", path, err)
				}
				body, err := io.ReadAll(resp.Body)
				resp.Body.Close()
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				if resp.StatusCode != http.StatusOK {
					return fmt.Errorf("GET %s: HTTP status %d", path, resp.StatusCode)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", path, strings.TrimSpace(string(body)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Telemetry address (default: telemetry.listen)")

	return cmd
}
