package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"ledgermatch/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "ledgermatch",
	Short: "Ledgermatch - find and verify the voucher that books an invoice",
	Long: `Ledgermatch locates the ledger voucher that books a supplier or customer
invoice in Fortnox, checks the voucher's posting against the expected booking
and reports issues an accountant should review before attesting the invoice.

Voucher lookup tries, in order: voucher links stored on the invoice, a
reference-filtered search of the voucher list and a heuristic search scored
by amount, date and accounts.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Debug().
			Str("version", version).
			Msg("Ledgermatch executed without subcommand")

		_ = cmd.Help()
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}
