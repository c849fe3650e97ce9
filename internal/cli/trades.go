package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ensemble-trader/internal/app"
)

var tradesLimit int

var tradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "Display recent trade ledger entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tradesLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		return getApp().Trades(cmd.Context(), app.TradesOptions{
			Limit: tradesLimit,
		})
	},
}

func init() {
	tradesCmd.Flags().IntVar(&tradesLimit, "limit", 20, "Number of ledger entries to display")
}
