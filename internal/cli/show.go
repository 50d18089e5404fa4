package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"moex-history/internal/app"
)

var showOpts app.ShowOptions

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the latest stored rows of a series",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showOpts.Limit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		return getApp().Show(cmd.Context(), showOpts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showOpts.Ticker, "ticker", "", "Instrument ticker")
	showCmd.Flags().StringVar(&showOpts.Kind, "kind", "prices", "Series kind: prices or dividends")
	showCmd.Flags().IntVar(&showOpts.Limit, "limit", 20, "Number of rows to display")
	_ = showCmd.MarkFlagRequired("ticker")
}
