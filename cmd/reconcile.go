package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"ledgermatch/internal/logger"
	"ledgermatch/internal/reconciliation"
	"ledgermatch/pkg/services"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [invoice.json]",
	Short: "Find the voucher that books an invoice and check its posting",
	Long: `Find the Fortnox voucher that books one invoice, check the voucher's posting
against the expected booking and print an attestation report as JSON.

The invoice document is a JSON object:
  {
    "invoiceType": "supplier" | "customer",
    "invoice": {"id", "invoiceNumber", "invoiceDate", "dueDate", "total", "booked"},
    "record": { raw invoice fields from Fortnox, e.g. GivenNumber, Vouchers },
    "expectedRows": [{"account", "debit", "credit"}]  or
    "lines": [{"account", "net", "vatRate"}]
  }

Required environment variables:
  FORTNOX_ACCESS_TOKEN - Bearer token for the Fortnox API

Optional environment variables:
  FORTNOX_BASE_URL, MATCH_RUNTIME_BUDGET, MATCH_MAX_DETAIL_FETCHES, MATCH_WORKERS`,
	Example: `  # Full lookup: explicit links, reference search, heuristic search
  ledgermatch reconcile invoice-1001.json

  # Only the heuristic search, report written to a file
  ledgermatch reconcile invoice-1001.json --strategy heuristic --output report.json`,
	Args: cobra.ExactArgs(1),
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().String("strategy", "all", "Lookup strategy: all, explicit, reference or heuristic")
	reconcileCmd.Flags().StringP("output", "o", "", "Write the report to this file instead of stdout")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("reconcile")

	strategy, _ := cmd.Flags().GetString("strategy")
	output, _ := cmd.Flags().GetString("output")

	req, err := loadInvoiceDocument(args[0])
	if err != nil {
		return err
	}

	engine, _, err := newEngine(nil)
	if err != nil {
		return err
	}

	log.Info().
		Str("invoice_id", req.Invoice.ID).
		Str("invoice_type", string(req.InvoiceType)).
		Str("strategy", strategy).
		Msg("Starting voucher lookup")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	report, err := resolveReport(ctx, engine, req, strategy)
	if err != nil {
		if services.IsAuthorizationError(err) {
			return fmt.Errorf("Fortnox rejected the access token, check FORTNOX_ACCESS_TOKEN and its scopes: %w", err)
		}
		return fmt.Errorf("voucher lookup failed: %w", err)
	}

	event := log.Info().
		Str("invoice_id", req.Invoice.ID).
		Int("issues", len(report.Issues))
	if report.Resolution != nil && report.Resolution.Match != nil {
		event = event.Str("voucher", report.Resolution.Match.VoucherRef.String()).
			Float64("score", report.Resolution.Match.Score)
	}
	event.Msg("Voucher lookup completed")

	return writeJSON(output, cmd.OutOrStdout(), report)
}

// resolveReport runs one strategy, or all of them, and builds the report
func resolveReport(ctx context.Context, engine *reconciliation.Engine, req reconciliation.MatchRequest, strategy string) (*reconciliation.Report, error) {
	var resolve func(context.Context, reconciliation.MatchRequest) (*reconciliation.MatchOutcome, error)

	switch strings.ToLower(strategy) {
	case "all", "":
		return engine.Attest(ctx, req)
	case string(reconciliation.StrategyExplicit):
		resolve = engine.ResolveExplicitVoucherMatch
	case string(reconciliation.StrategyReference):
		resolve = engine.ResolveReferenceVoucherMatch
	case string(reconciliation.StrategyHeuristic):
		resolve = engine.ResolveHeuristicVoucherMatch
	default:
		return nil, fmt.Errorf("unknown strategy: %s (must be all, explicit, reference or heuristic)", strategy)
	}

	outcome, err := resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	resolution := reconciliation.ResolutionFromOutcome(req, outcome)
	report := reconciliation.BuildReport(req, resolution)
	return &report, nil
}
