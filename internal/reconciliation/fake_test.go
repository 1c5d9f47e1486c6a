package reconciliation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"ledgermatch/pkg/models"
	"ledgermatch/pkg/services"
)

// statusError mimics a classified ledger client error.
type statusError struct {
	status int
}

func (e *statusError) Error() string   { return fmt.Sprintf("ledger returned HTTP %d", e.status) }
func (e *statusError) StatusCode() int { return e.status }

type detailCall struct {
	series string
	number int
	year   *int
}

// fakeVoucherService serves list pages and voucher details from functions
// and records every call.
type fakeVoucherService struct {
	list      func(query services.VoucherQuery) (*models.VoucherListResponse, error)
	detail    func(series string, number int, year *int) (*models.VoucherResponse, error)
	listDelay time.Duration

	mu          sync.Mutex
	listCalls   []services.VoucherQuery
	detailCalls []detailCall
}

var _ services.VoucherService = (*fakeVoucherService)(nil)

func (f *fakeVoucherService) GetVouchers(ctx context.Context, query services.VoucherQuery) (*models.VoucherListResponse, error) {
	f.mu.Lock()
	f.listCalls = append(f.listCalls, query)
	f.mu.Unlock()

	if f.listDelay > 0 {
		time.Sleep(f.listDelay)
	}
	if f.list == nil {
		return &models.VoucherListResponse{}, nil
	}
	return f.list(query)
}

func (f *fakeVoucherService) GetVoucher(ctx context.Context, series string, number int, year *int) (*models.VoucherResponse, error) {
	f.mu.Lock()
	f.detailCalls = append(f.detailCalls, detailCall{series: series, number: number, year: year})
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.detail == nil {
		return nil, &statusError{status: 404}
	}
	return f.detail(series, number, year)
}

func (f *fakeVoucherService) listCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listCalls)
}

func (f *fakeVoucherService) detailCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.detailCalls)
}

func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func postingRow(account int, debit, credit float64) models.PostingRow {
	return models.PostingRow{Account: account, Debit: money(debit), Credit: money(credit)}
}

func voucherRow(account int, debit, credit float64) models.VoucherRow {
	return models.VoucherRow{Account: account, Debit: debit, Credit: credit}
}

// supplierRequest is a booked supplier invoice of 1250 incl. 250 VAT.
func supplierRequest() MatchRequest {
	return MatchRequest{
		InvoiceType: models.InvoiceTypeSupplier,
		Invoice: models.Invoice{
			ID:          "1001",
			InvoiceDate: "2025-03-10",
			DueDate:     "2025-04-09",
			Total:       decimal.NewNullDecimal(money(1250)),
			Booked:      models.BookedYes,
		},
		Record: models.InvoiceRecord{"GivenNumber": "1001"},
		ExpectedRows: []models.PostingRow{
			postingRow(2440, 0, 1250),
			postingRow(2641, 250, 0),
			postingRow(6110, 1000, 0),
		},
	}
}

// matchingVoucher books supplierRequest exactly.
func matchingVoucher(series string, number, year int, date, refType, refNumber string) *models.VoucherResponse {
	return &models.VoucherResponse{Voucher: models.VoucherDetail{
		VoucherSeries:   series,
		VoucherNumber:   number,
		Year:            year,
		TransactionDate: date,
		ReferenceType:   refType,
		ReferenceNumber: refNumber,
		VoucherRows: []models.VoucherRow{
			voucherRow(2440, 0, 1250),
			voucherRow(2641, 250, 0),
			voucherRow(6110, 1000, 0),
		},
	}}
}

// unrelatedVoucher is a small posting that never matches supplierRequest.
func unrelatedVoucher(series string, number, year int, date string) *models.VoucherResponse {
	return &models.VoucherResponse{Voucher: models.VoucherDetail{
		VoucherSeries:   series,
		VoucherNumber:   number,
		Year:            year,
		TransactionDate: date,
		VoucherRows: []models.VoucherRow{
			voucherRow(2440, 0, 99),
			voucherRow(5410, 99, 0),
		},
	}}
}

func yearOf(query services.VoucherQuery) int {
	if query.FinancialYear == nil {
		return 0
	}
	return *query.FinancialYear
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
