package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"ensemble-trader/internal/app"
)

var (
	simulateSymbol   string
	simulateCategory string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Evaluate a symbol and project the trade outcome without committing capital",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateSymbol == "" {
			return errors.New("--symbol is required")
		}

		outcome, err := getApp().SimulateTrade(cmd.Context(), app.TradeOptions{
			Symbol:   simulateSymbol,
			Category: simulateCategory,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if done := printGate(out, outcome); done {
			return nil
		}

		sim := outcome.Simulation
		fmt.Fprintf(out, "side: %s\n", sim.Order.Side)
		fmt.Fprintf(out, "notional: %s %s\n", sim.Order.Size.String(), sim.Order.Currency)
		fmt.Fprintf(out, "entry: %s\n", sim.Order.EntryPrice.String())
		fmt.Fprintf(out, "stop loss: %s\n", sim.Order.StopLossPrice.String())
		fmt.Fprintf(out, "take profit: %s\n", sim.Order.TakeProfitPrice.String())
		fmt.Fprintf(out, "risk/reward: %.2f\n", sim.RiskReward)
		fmt.Fprintf(out, "win probability: %.2f\n", sim.WinProbability)
		fmt.Fprintf(out, "expected value: %s %s\n", sim.ExpectedValue.StringFixed(2), sim.Order.Currency)
		return nil
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "", "Instrument symbol, e.g. BTCUSDT")
	simulateCmd.Flags().StringVar(&simulateCategory, "category", "crypto", "Market category: crypto, forex, or index")
}
