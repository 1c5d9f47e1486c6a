package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"ledgermatch/internal/booking"
	"ledgermatch/internal/logger"
	"ledgermatch/internal/posting"
	"ledgermatch/pkg/models"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check a voucher posting against the expected booking offline",
	Long: `Compare a voucher posting with the expected posting of an invoice without
calling Fortnox. Both postings are JSON arrays of rows
{"account", "debit", "credit", "description"}; the expected posting can also
be derived from invoice lines {"account", "net", "vatRate"}.

The voucher is treated as explicitly linked to a booked invoice, so the
report lists the posting issues only.`,
	Example: `  # Compare two postings
  ledgermatch check --type supplier --expected expected.json --actual voucher.json

  # Derive the expected posting from invoice lines
  ledgermatch check --type customer --lines lines.json --actual voucher.json`,
	RunE: runCheck,
}

// checkReport is the output of the check command
type checkReport struct {
	InvoiceType models.InvoiceType  `json:"invoiceType"`
	Expected    []models.PostingRow `json:"expected"`
	Actual      []models.PostingRow `json:"actual"`
	Totals      posting.Totals      `json:"totals"`
	Checks      posting.CheckResult `json:"checks"`
	Issues      []posting.Issue     `json:"issues"`
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().String("type", "", "Invoice type (supplier or customer) [REQUIRED]")
	checkCmd.Flags().String("expected", "", "JSON file with the expected posting rows")
	checkCmd.Flags().String("lines", "", "JSON file with invoice lines to derive the expected posting")
	checkCmd.Flags().String("actual", "", "JSON file with the voucher posting rows [REQUIRED]")
	checkCmd.Flags().StringP("output", "o", "", "Write the report to this file instead of stdout")

	checkCmd.MarkFlagRequired("type")
	checkCmd.MarkFlagRequired("actual")
	checkCmd.MarkFlagsMutuallyExclusive("expected", "lines")
}

func runCheck(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("check")

	typeFlag, _ := cmd.Flags().GetString("type")
	expectedPath, _ := cmd.Flags().GetString("expected")
	linesPath, _ := cmd.Flags().GetString("lines")
	actualPath, _ := cmd.Flags().GetString("actual")
	output, _ := cmd.Flags().GetString("output")

	invoiceType, err := models.ParseInvoiceType(typeFlag)
	if err != nil {
		return err
	}

	var expected []models.PostingRow
	switch {
	case expectedPath != "":
		if err := readJSONFile(expectedPath, &expected); err != nil {
			return err
		}
	case linesPath != "":
		var lines []models.InvoiceLine
		if err := readJSONFile(linesPath, &lines); err != nil {
			return err
		}
		expected, err = booking.ExpectedPosting(invoiceType, lines)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("either --expected or --lines is required")
	}

	var actual []models.PostingRow
	if err := readJSONFile(actualPath, &actual); err != nil {
		return err
	}

	report := buildCheckReport(invoiceType, expected, actual)

	log.Info().
		Str("invoice_type", string(invoiceType)).
		Bool("passed", report.Checks.Passed()).
		Int("issues", len(report.Issues)).
		Msg("Posting check completed")

	return writeJSON(output, cmd.OutOrStdout(), report)
}

func buildCheckReport(invoiceType models.InvoiceType, expected, actual []models.PostingRow) checkReport {
	expected = posting.Normalize(expected)
	actual = posting.Normalize(actual)
	checks := posting.Check(invoiceType, expected, actual)

	return checkReport{
		InvoiceType: invoiceType,
		Expected:    expected,
		Actual:      actual,
		Totals:      posting.ComputeTotals(actual),
		Checks:      checks,
		Issues: posting.BuildPostingIssues(posting.IssueInput{
			InvoiceType:   invoiceType,
			Booked:        models.BookedYes,
			Checks:        checks,
			PostingStatus: posting.PostingStatusBooked,
			PostingSource: posting.PostingSourceExplicit,
			Confidence:    1,
		}),
	}
}

func readJSONFile(path string, v any) error {
	const op = "readJSONFile"

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%s: failed to read %s: %w", op, path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: invalid JSON in %s: %w", op, path, err)
	}
	return nil
}
