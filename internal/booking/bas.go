// Package booking derives the expected BAS posting of an invoice from its
// line items, which the posting checker compares against the ledger voucher.
package booking

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"ledgermatch/internal/posting"
	"ledgermatch/pkg/models"
)

// BAS VAT accounts
const (
	AccountOutgoingVAT25 = 2611
	AccountOutgoingVAT12 = 2621
	AccountOutgoingVAT6  = 2631
	AccountIncomingVAT   = 2641
)

var (
	rate25 = decimal.NewFromFloat(0.25)
	rate12 = decimal.NewFromFloat(0.12)
	rate6  = decimal.NewFromFloat(0.06)
)

// ExpectedPosting builds the posting a correct booking of the invoice lines
// would produce.
//
// Supplier invoices debit each cost account with the net amount, debit the
// incoming VAT account and credit accounts payable with the gross total.
// Customer invoices credit revenue and outgoing VAT per rate and debit
// accounts receivable.
func ExpectedPosting(invoiceType models.InvoiceType, lines []models.InvoiceLine) ([]models.PostingRow, error) {
	const op = "ExpectedPosting"

	if !invoiceType.IsValid() {
		return nil, fmt.Errorf("%s: invalid invoice type %q", op, invoiceType)
	}

	netByAccount := make(map[int]decimal.Decimal)
	vatByAccount := make(map[int]decimal.Decimal)
	gross := decimal.Zero

	for i, line := range lines {
		if err := validateLine(line); err != nil {
			return nil, fmt.Errorf("%s: line %d: %w", op, i+1, err)
		}

		net := posting.RoundMoney(line.Net)
		vat := posting.RoundMoney(line.Net.Mul(line.VATRate))

		netByAccount[line.Account] = netByAccount[line.Account].Add(net)
		if !vat.IsZero() {
			vatAccount, err := vatAccountFor(invoiceType, line.VATRate)
			if err != nil {
				return nil, fmt.Errorf("%s: line %d: %w", op, i+1, err)
			}
			vatByAccount[vatAccount] = vatByAccount[vatAccount].Add(vat)
		}
		gross = gross.Add(net).Add(vat)
	}

	var rows []models.PostingRow
	if invoiceType == models.InvoiceTypeSupplier {
		rows = append(rows, models.PostingRow{Account: posting.AccountPayable, Credit: gross, Description: "Accounts payable"})
		rows = append(rows, sideRows(vatByAccount, true, "Incoming VAT")...)
		rows = append(rows, sideRows(netByAccount, true, "")...)
	} else {
		rows = append(rows, models.PostingRow{Account: posting.AccountReceivable, Debit: gross, Description: "Accounts receivable"})
		rows = append(rows, sideRows(vatByAccount, false, "Outgoing VAT")...)
		rows = append(rows, sideRows(netByAccount, false, "")...)
	}

	return posting.Normalize(rows), nil
}

// sideRows renders per-account amounts in account order on the debit or credit side.
func sideRows(amounts map[int]decimal.Decimal, debit bool, description string) []models.PostingRow {
	accounts := make([]int, 0, len(amounts))
	for account := range amounts {
		accounts = append(accounts, account)
	}
	sort.Ints(accounts)

	rows := make([]models.PostingRow, 0, len(accounts))
	for _, account := range accounts {
		row := models.PostingRow{Account: account, Description: description}
		if debit {
			row.Debit = amounts[account]
		} else {
			row.Credit = amounts[account]
		}
		rows = append(rows, row)
	}
	return rows
}

func vatAccountFor(invoiceType models.InvoiceType, rate decimal.Decimal) (int, error) {
	if invoiceType == models.InvoiceTypeSupplier {
		return AccountIncomingVAT, nil
	}
	switch {
	case rate.Equal(rate25):
		return AccountOutgoingVAT25, nil
	case rate.Equal(rate12):
		return AccountOutgoingVAT12, nil
	case rate.Equal(rate6):
		return AccountOutgoingVAT6, nil
	}
	return 0, fmt.Errorf("unsupported VAT rate %s (must be 0.25, 0.12, 0.06 or 0)", rate)
}

// validateLine checks the line uses a 4-digit BAS account and a sane VAT rate
func validateLine(line models.InvoiceLine) error {
	if line.Account < 1000 || line.Account > 9999 {
		return fmt.Errorf("invalid account %d (must be a 4-digit BAS account)", line.Account)
	}
	if line.VATRate.IsNegative() || line.VATRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("invalid VAT rate %s", line.VATRate)
	}
	return nil
}
