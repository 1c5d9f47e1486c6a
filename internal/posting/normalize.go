// Package posting normalizes voucher postings, checks them against an
// expected booking and classifies the outcome into attestation issues.
package posting

import (
	"github.com/shopspring/decimal"
	"ledgermatch/pkg/models"
)

// Swedish BAS control and VAT accounts.
const (
	AccountReceivable = 1510
	AccountBank       = 1930
	AccountPayable    = 2440

	vatAccountFirst = 2610
	vatAccountLast  = 2669
)

// Tolerance is the largest difference still considered equal for money values.
var Tolerance = decimal.NewFromFloat(0.01)

// Totals holds the debit/credit sums of a posting.
type Totals struct {
	Debit    decimal.Decimal `json:"debit"`
	Credit   decimal.Decimal `json:"credit"`
	Balanced bool            `json:"balanced"`
}

// Gross returns the larger side of the posting, which equals the booked
// invoice total for a regular invoice voucher.
func (t Totals) Gross() decimal.Decimal {
	return decimal.Max(t.Debit, t.Credit)
}

// RoundMoney rounds to two decimals, half away from zero.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// MoneyEqual compares two amounts within Tolerance after rounding.
func MoneyEqual(a, b decimal.Decimal) bool {
	return RoundMoney(a).Sub(RoundMoney(b)).Abs().LessThanOrEqual(Tolerance)
}

// Normalize rounds every row and drops rows without debit and credit.
func Normalize(rows []models.PostingRow) []models.PostingRow {
	normalized := make([]models.PostingRow, 0, len(rows))
	for _, row := range rows {
		row.Debit = RoundMoney(row.Debit)
		row.Credit = RoundMoney(row.Credit)
		if row.Debit.IsZero() && row.Credit.IsZero() {
			continue
		}
		normalized = append(normalized, row)
	}
	return normalized
}

// NormalizeVoucherRows converts raw ledger rows, skipping rows the ledger
// marked as removed by a correction.
func NormalizeVoucherRows(rows []models.VoucherRow) []models.PostingRow {
	converted := make([]models.PostingRow, 0, len(rows))
	for _, row := range rows {
		if row.Removed {
			continue
		}
		description := row.Description
		if description == "" {
			description = row.TransactionInformation
		}
		converted = append(converted, models.PostingRow{
			Account:     row.Account,
			Debit:       decimal.NewFromFloat(row.Debit),
			Credit:      decimal.NewFromFloat(row.Credit),
			Description: description,
		})
	}
	return Normalize(converted)
}

// ComputeTotals sums debit and credit of the rows.
func ComputeTotals(rows []models.PostingRow) Totals {
	debit := decimal.Zero
	credit := decimal.Zero
	for _, row := range rows {
		debit = RoundMoney(debit.Add(row.Debit))
		credit = RoundMoney(credit.Add(row.Credit))
	}
	return Totals{
		Debit:    debit,
		Credit:   credit,
		Balanced: MoneyEqual(debit, credit),
	}
}

// ControlAccounts returns the accounts of which at least one must appear in
// a correct booking of the invoice type.
func ControlAccounts(invoiceType models.InvoiceType) []int {
	if invoiceType == models.InvoiceTypeCustomer {
		return []int{AccountReceivable, AccountBank}
	}
	return []int{AccountPayable}
}

// IsControlAccount reports whether account is a control account for the invoice type.
func IsControlAccount(invoiceType models.InvoiceType, account int) bool {
	for _, control := range ControlAccounts(invoiceType) {
		if control == account {
			return true
		}
	}
	return false
}

// HasControlAccount reports whether the rows contain a control account.
func HasControlAccount(invoiceType models.InvoiceType, rows []models.PostingRow) bool {
	for _, row := range rows {
		if IsControlAccount(invoiceType, row.Account) {
			return true
		}
	}
	return false
}

// IsVATAccount reports whether the account is a BAS VAT account (26xx up to 2669).
func IsVATAccount(account int) bool {
	return account >= vatAccountFirst && account <= vatAccountLast
}

// AccountOverlap is the fraction of expected non-control accounts that also
// occur in the actual rows. Returns 0.5 when there is nothing to compare.
func AccountOverlap(invoiceType models.InvoiceType, expected, actual []models.PostingRow) float64 {
	expectedAccounts := make(map[int]struct{})
	for _, row := range expected {
		if IsControlAccount(invoiceType, row.Account) {
			continue
		}
		expectedAccounts[row.Account] = struct{}{}
	}
	if len(expectedAccounts) == 0 {
		return 0.5
	}

	actualAccounts := make(map[int]struct{}, len(actual))
	for _, row := range actual {
		actualAccounts[row.Account] = struct{}{}
	}

	matched := 0
	for account := range expectedAccounts {
		if _, ok := actualAccounts[account]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(expectedAccounts))
}

// vatAmount sums |debit-credit| over VAT account rows.
func vatAmount(rows []models.PostingRow) (decimal.Decimal, bool) {
	total := decimal.Zero
	found := false
	for _, row := range rows {
		if !IsVATAccount(row.Account) {
			continue
		}
		found = true
		total = total.Add(row.Debit.Sub(row.Credit))
	}
	return RoundMoney(total.Abs()), found
}
