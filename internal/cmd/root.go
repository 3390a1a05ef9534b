package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"tarediiran-industries.com/clockpi/internal/clockpi"
	"tarediiran-industries.com/clockpi/internal/common"
	"tarediiran-industries.com/clockpi/internal/transit/feed"
)

type ClockCtlApp struct {
	ConfigPath string
}

func Execute() error {
	app := &ClockCtlApp{}
	rootCmd := NewRootCmd(app)
	return rootCmd.ExecuteContext(context.Background())
}

func NewRootCmd(app *ClockCtlApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "clockpi-ctl",
		Short:         "CLI tool used to inspect feeds, quotes and a running clockpi",
		Version:       common.Version + " (" + common.GitCommit + ")",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(
		&app.ConfigPath,
		"config",
		os.Getenv("CLOCKPI_CONFIG"),
		"Path to configuration file (.toml, .yml or .yaml)",
	)

	cmd.AddCommand(NewArrivalsCmd(app))
	cmd.AddCommand(NewFeedCmd(app))
	cmd.AddCommand(NewRoutesCmd(app))
	cmd.AddCommand(NewStopsCmd(app))
	cmd.AddCommand(NewQuoteCmd(app))
	cmd.AddCommand(NewQuotesCmd(app))
	cmd.AddCommand(NewProbeCmd(app))
	cmd.AddCommand(NewHealthCmd(app))

	return cmd
}

// Config returns the defaults overlaid with the config file, if any. It is
// not validated; each command checks what it uses.
func (app *ClockCtlApp) Config() (clockpi.ConfigFile, error) {
	cfg := clockpi.DefaultConfigFile()
	if app.ConfigPath == "" {
		return cfg, nil
	}
	return clockpi.LoadConfigFile(app.ConfigPath, cfg)
}

func (app *ClockCtlApp) FeedClient() (*feed.Client, error) {
	cfg, err := app.Config()
	if err != nil {
		return nil, err
	}
	return clockpi.NewFeedClient(cfg.Transit, nil), nil
}
