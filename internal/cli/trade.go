package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"ensemble-trader/internal/app"
	"ensemble-trader/internal/engine"
)

var (
	executeSymbol   string
	executeCategory string
	closePrice      float64
)

var executeCmd = &cobra.Command{
	Use:   "execute",
	Short: "Evaluate a symbol and submit the sized order to the broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		if executeSymbol == "" {
			return errors.New("--symbol is required")
		}

		outcome, err := getApp().ExecuteTrade(cmd.Context(), app.TradeOptions{
			Symbol:   executeSymbol,
			Category: executeCategory,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if done := printGate(out, outcome); done {
			return nil
		}

		printTrade(out, outcome.Trade)
		return nil
	},
}

var closeCmd = &cobra.Command{
	Use:   "close <trade-id>",
	Short: "Close an open trade and realize its P&L",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		price := decimal.Zero
		if closePrice > 0 {
			price = decimal.NewFromFloat(closePrice)
		}

		trade, err := getApp().CloseTrade(cmd.Context(), args[0], price)
		if err != nil {
			return err
		}

		printTrade(cmd.OutOrStdout(), trade)
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <trade-id>",
	Short: "Cancel a pending trade",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		trade, err := getApp().CancelTrade(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		printTrade(cmd.OutOrStdout(), trade)
		return nil
	},
}

// printGate reports a downgraded decision or risk rejection and returns true
// when no order was produced.
func printGate(out io.Writer, outcome *app.TradeOutcome) bool {
	if outcome.Decision.Unavailable {
		fmt.Fprintf(out, "no trade: %s (symbol %s)\n", outcome.Decision.Reason, outcome.Decision.Symbol)
		return true
	}
	if outcome.Rejection != nil {
		fmt.Fprintf(out, "rejected: %s (%s)\n", outcome.Rejection.Reason, outcome.Rejection.Detail)
		return true
	}
	return outcome.Order == nil && outcome.Trade == nil && outcome.Simulation == nil
}

func printTrade(out io.Writer, trade *engine.Trade) {
	fmt.Fprintf(out, "trade: %s\n", trade.ID)
	fmt.Fprintf(out, "symbol: %s\n", trade.Symbol)
	fmt.Fprintf(out, "side: %s\n", trade.Side)
	fmt.Fprintf(out, "status: %s\n", trade.Status)
	fmt.Fprintf(out, "entry: %s\n", trade.EntryPrice.String())
	if trade.ExitPrice != nil {
		fmt.Fprintf(out, "exit: %s\n", trade.ExitPrice.String())
		fmt.Fprintf(out, "realized pnl: %s\n", trade.RealizedPnL.StringFixed(2))
	}
}

func init() {
	executeCmd.Flags().StringVar(&executeSymbol, "symbol", "", "Instrument symbol, e.g. BTCUSDT")
	executeCmd.Flags().StringVar(&executeCategory, "category", "crypto", "Market category: crypto, forex, or index")

	closeCmd.Flags().Float64Var(&closePrice, "price", 0, "Exit price (defaults to current market price)")
}
