package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "collector",
		Short:         "Custodial multi-chain payment collector",
		Long:          `Issues single-use deposit addresses for BTC, LTC, ETH and SOL orders, reports custodial balances and sweeps paid deposits to a treasury.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newMigrateCommand(),
		newIssueCommand(),
		newListCommand(),
		newBalanceCommand(),
		newSweepCommand(),
		newMarkPaidCommand(),
		newRunCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
