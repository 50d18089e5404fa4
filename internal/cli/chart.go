package cli

import (
	"github.com/spf13/cobra"

	"moex-history/internal/app"
)

var chartOpts app.ChartOptions

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Render stored closing prices and dividends as a PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Chart(cmd.Context(), chartOpts)
	},
}

func init() {
	chartCmd.Flags().StringVar(&chartOpts.Ticker, "ticker", "", "Instrument ticker")
	chartCmd.Flags().StringVar(&chartOpts.PNGPath, "png", "", "Path to write PNG chart (defaults to the output directory)")
	chartCmd.Flags().IntVar(&chartOpts.MaxPoints, "max-points", 0, "Downsample closes to at most this many points")
	_ = chartCmd.MarkFlagRequired("ticker")
}
