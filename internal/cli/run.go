package cli

import (
	"github.com/spf13/cobra"

	"moex-history/internal/app"
)

var batchOpts app.BatchOptions

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Run one batch over the instrument list",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Fetch(cmd.Context(), batchOpts)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Repeat batches on the configured schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context(), batchOpts)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{fetchCmd, runCmd} {
		flags := cmd.Flags()
		flags.StringVar(&batchOpts.TickersFile, "tickers-file", "", "File with one ticker per line (defaults to config)")
		flags.StringVar(&batchOpts.Tickers, "tickers", "", "Comma separated tickers; replaces the tickers file")
		flags.IntVar(&batchOpts.Concurrency, "concurrency", 0, "Maximum instruments in flight (defaults to config)")
		flags.IntVar(&batchOpts.Workers, "workers", 0, "Persistence worker count (defaults to config)")
		flags.StringVar(&batchOpts.OutputDir, "output", "", "CSV output directory (defaults to config)")
	}
}
