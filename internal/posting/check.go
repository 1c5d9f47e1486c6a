package posting

import (
	"ledgermatch/pkg/models"
)

// RowConsistencyThreshold is the minimum account overlap for the row/account
// consistency check to pass.
const RowConsistencyThreshold = 0.5

// CheckResult is the outcome of comparing an actual voucher posting against
// the expected posting of an invoice.
type CheckResult struct {
	Balanced              bool `json:"balanced"`
	TotalMatch            bool `json:"total_match"`
	VATMatch              bool `json:"vat_match"`
	ControlAccountPresent bool `json:"control_account_present"`
	RowAccountConsistency bool `json:"row_account_consistency"`
}

// Passed returns true when every check passed.
func (c CheckResult) Passed() bool {
	return c.Balanced && c.TotalMatch && c.VATMatch && c.ControlAccountPresent && c.RowAccountConsistency
}

// Check compares the candidate posting with the expected one. Both sides are
// normalized first, so callers may pass raw rows.
func Check(invoiceType models.InvoiceType, expected, actual []models.PostingRow) CheckResult {
	expected = Normalize(expected)
	actual = Normalize(actual)

	expectedTotals := ComputeTotals(expected)
	actualTotals := ComputeTotals(actual)

	expectedVAT, expectedHasVAT := vatAmount(expected)
	actualVAT, actualHasVAT := vatAmount(actual)
	vatMatch := MoneyEqual(expectedVAT, actualVAT)
	if !expectedHasVAT && !actualHasVAT {
		vatMatch = true
	}

	return CheckResult{
		Balanced:              actualTotals.Balanced,
		TotalMatch:            MoneyEqual(expectedTotals.Gross(), actualTotals.Gross()),
		VATMatch:              vatMatch,
		ControlAccountPresent: HasControlAccount(invoiceType, actual),
		RowAccountConsistency: AccountOverlap(invoiceType, expected, actual) >= RowConsistencyThreshold,
	}
}
