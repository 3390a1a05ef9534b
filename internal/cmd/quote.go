package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"tarediiran-industries.com/clockpi/internal/clockpi"
	"tarediiran-industries.com/clockpi/internal/common"
	"tarediiran-industries.com/clockpi/internal/db"
	"tarediiran-industries.com/clockpi/internal/quotes"
)

func NewQuoteCmd(app *ClockCtlApp) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "quote [HH:MM]",
		Short: "Print the quote the board would show now or at the given minute",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Config()
			if err != nil {
				return err
			}
			if dir != "" {
				cfg.Quotes = clockpi.QuotesConfig{Dir: dir}
			}

			at := time.Now()
			if len(args) == 1 {
				parsed, err := time.Parse("15:04", args[0])
				if err != nil {
					return fmt.Errorf("parse minute %q: %w", args[0], err)
				}
				at = time.Date(at.Year(), at.Month(), at.Day(), parsed.Hour(), parsed.Minute(), 0, 0, at.Location())
			}

			store, closeStore, err := clockpi.OpenQuoteStore(cmd.Context(), cfg.Quotes)
			if err != nil {
				return err
			}
			defer closeStore()
			if store == nil {
				return fmt.Errorf("no quote source configured; set quotes.dir or quotes.database")
			}

			quote, ok, err := store.Lookup(cmd.Context(), at)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "No quote for %s\n", quotes.MinuteKey(at))
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), quote.Text())
			fmt.Fprintf(cmd.OutOrStdout(), "  -- %s, %s\n", quote.Title, quote.Author)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Quote directory, overriding the config file")

	return cmd
}

func NewQuotesCmd(app *ClockCtlApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quotes",
		Short: "Maintain the quote collection",
	}
	cmd.AddCommand(newQuotesMissingCmd(app))
	cmd.AddCommand(newQuotesImportCmd(app))
	return cmd
}

func (app *ClockCtlApp) quoteDir(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	cfg, err := app.Config()
	if err != nil {
		return "", err
	}
	if cfg.Quotes.Dir == "" {
		return "", fmt.Errorf("no quote directory; pass --dir or set quotes.dir")
	}
	return cfg.Quotes.Dir, nil
}

func newQuotesMissingCmd(app *ClockCtlApp) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "missing",
		Short: "List minutes of the day without a HH_MM.json file",
		RunE: func(cmd *cobra.Command, args []string) error {
			quoteDir, err := app.quoteDir(dir)
			if err != nil {
				return err
			}

			missing, err := quotes.MissingMinutes(quoteDir)
			if err != nil {
				return err
			}

			if len(missing) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No missing minutes, all files present.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Missing %d minute(s):\n", len(missing))
			for _, name := range missing {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Quote directory")

	return cmd
}

func newQuotesImportCmd(app *ClockCtlApp) *cobra.Command {
	var dir string
	var database string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Bulk load a quote directory into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			quoteDir, err := app.quoteDir(dir)
			if err != nil {
				return err
			}
			if database == "" {
				cfg, err := app.Config()
				if err != nil {
					return err
				}
				database = cfg.Quotes.Database
			}
			if database == "" {
				return fmt.Errorf("no database; pass --database or set quotes.database")
			}

			conn, err := db.NewDatabaseConnection(cmd.Context(), database)
			if err != nil {
				return err
			}
			defer conn.Close()

			count, err := common.RuntimeBenchmark(slog.Default(), "quotes import", func() (int64, error) {
				return quotes.Import(cmd.Context(), conn, quoteDir)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d quotes from %s\n", count, quoteDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Quote directory")
	cmd.Flags().StringVar(&database, "database", "", "Postgres connection string")

	return cmd
}
