package reconciliation

import (
	"sort"
	"time"

	"ledgermatch/pkg/models"
)

const (
	minFinancialYear = 1900
	maxFinancialYear = 2999
)

// BuildVoucherYearCandidates returns the financial years to search, nearest
// to the anchor year first and descending on ties. Seeds come from explicit
// year fields on the record and the invoice and due dates; every seed is
// widened by one year on each side. Without seeds the current UTC year is
// used.
func BuildVoucherYearCandidates(record models.InvoiceRecord, invoice models.Invoice, now time.Time) []int {
	var seeds []int
	addSeed := func(year int, ok bool) {
		if ok && year >= minFinancialYear && year <= maxFinancialYear {
			seeds = append(seeds, year)
		}
	}

	addSeed(dateYear(invoice.InvoiceDate))
	for _, key := range models.FinancialYearKeys {
		addSeed(record.Int(key))
	}
	for _, voucher := range record.Records(models.VoucherListKeys...) {
		addSeed(voucher.Int(models.VoucherYearKeys...))
	}
	addSeed(dateYear(invoice.DueDate))

	if len(seeds) == 0 {
		seeds = append(seeds, now.UTC().Year())
	}
	anchor := seeds[0]

	set := make(map[int]struct{}, len(seeds)*3)
	for _, seed := range seeds {
		for year := seed - 1; year <= seed+1; year++ {
			set[year] = struct{}{}
		}
	}

	years := make([]int, 0, len(set))
	for year := range set {
		years = append(years, year)
	}
	sort.Slice(years, func(i, j int) bool {
		di, dj := absInt(years[i]-anchor), absInt(years[j]-anchor)
		if di != dj {
			return di < dj
		}
		return years[i] > years[j]
	})
	return years
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
