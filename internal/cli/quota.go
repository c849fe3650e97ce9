package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	quotaCategory string
	quotaUser     string
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show the daily signal allowance for a category",
	RunE: func(cmd *cobra.Command, args []string) error {
		status := getApp().DailyQuota(quotaCategory, quotaUser)
		fmt.Fprintf(cmd.OutOrStdout(), "limit: %d\nbonus: %d\nused: %d\nremaining: %d\nresets: %s\n",
			status.Limit, status.Bonus, status.Used, status.Remaining,
			status.ResetsAt.Format("2006-01-02 15:04 MST"))
		return nil
	},
}

func init() {
	quotaCmd.Flags().StringVar(&quotaCategory, "category", "crypto", "Market category: crypto, forex, or index")
	quotaCmd.Flags().StringVar(&quotaUser, "user", "", "Quota account (defaults to local)")
}
