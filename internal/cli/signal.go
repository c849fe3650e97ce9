package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"ensemble-trader/internal/app"
)

var (
	signalSymbol   string
	signalCategory string
	signalUser     string
	signalAds      int
)

var signalCmd = &cobra.Command{
	Use:   "signal",
	Short: "Evaluate one symbol on demand and print the consensus decision",
	RunE: func(cmd *cobra.Command, args []string) error {
		if signalSymbol == "" {
			return errors.New("--symbol is required")
		}

		result, err := getApp().GetSignal(cmd.Context(), app.SignalOptions{
			Symbol:     signalSymbol,
			Category:   signalCategory,
			User:       signalUser,
			AdsWatched: signalAds,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if result.QuotaExhausted {
			fmt.Fprintf(out, "daily quota exhausted (used %d of %d, resets %s)\n",
				result.Quota.Used, result.Quota.Limit+result.Quota.Bonus,
				result.Quota.ResetsAt.Format("2006-01-02 15:04 MST"))
			return nil
		}

		decision := result.Decision
		fmt.Fprintf(out, "symbol: %s\n", result.Symbol)
		fmt.Fprintf(out, "price: %s\n", result.Quote.Price.String())
		fmt.Fprintf(out, "side: %s\n", decision.Side)
		fmt.Fprintf(out, "confidence: %.4f\n", decision.Confidence)
		fmt.Fprintf(out, "signals: %d\n", len(decision.Signals))
		if decision.Unavailable {
			fmt.Fprintf(out, "unavailable: %s\n", decision.Reason)
		}
		fmt.Fprintf(out, "quota remaining: %d\n", result.Quota.Remaining)
		return nil
	},
}

func init() {
	signalCmd.Flags().StringVar(&signalSymbol, "symbol", "", "Instrument symbol, e.g. BTCUSDT")
	signalCmd.Flags().StringVar(&signalCategory, "category", "crypto", "Market category: crypto, forex, or index")
	signalCmd.Flags().StringVar(&signalUser, "user", "", "Quota account (defaults to local)")
	signalCmd.Flags().IntVar(&signalAds, "ads-watched", 0, "Ads watched to unlock bonus signals")
}
