package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PostingRow is one account line of a voucher or of an expected booking.
type PostingRow struct {
	Account     int             `json:"account"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
}

// VoucherRef is the ledger's addressable identity of one voucher.
// Year is zero when the financial year is not known.
type VoucherRef struct {
	Series string `json:"series"`
	Number int    `json:"number"`
	Year   int    `json:"year,omitempty"`
}

// Key is the deduplication key series+number+year.
func (r VoucherRef) Key() string {
	return fmt.Sprintf("%s|%d|%d", r.Series, r.Number, r.Year)
}

func (r VoucherRef) String() string {
	if r.Year > 0 {
		return fmt.Sprintf("%s%d (%d)", r.Series, r.Number, r.Year)
	}
	return fmt.Sprintf("%s%d", r.Series, r.Number)
}

// VoucherListEntry is one item of a voucher list page.
type VoucherListEntry struct {
	VoucherSeries   string `json:"VoucherSeries"`
	VoucherNumber   int    `json:"VoucherNumber"`
	Year            int    `json:"Year,omitempty"`
	TransactionDate string `json:"TransactionDate,omitempty"`
	ReferenceType   string `json:"ReferenceType,omitempty"`
	ReferenceNumber string `json:"ReferenceNumber,omitempty"`
	Description     string `json:"Description,omitempty"`
	Comments        string `json:"Comments,omitempty"`
}

// Ref returns the voucher identity of the list entry
func (e VoucherListEntry) Ref() VoucherRef {
	return VoucherRef{Series: e.VoucherSeries, Number: e.VoucherNumber, Year: e.Year}
}

// MetaInformation carries the pagination metadata of a list response.
type MetaInformation struct {
	TotalResources int `json:"@TotalResources,omitempty"`
	TotalPages     int `json:"@TotalPages,omitempty"`
	CurrentPage    int `json:"@CurrentPage,omitempty"`
}

// VoucherListResponse is the body of a voucher list call.
type VoucherListResponse struct {
	Vouchers        []VoucherListEntry `json:"Vouchers"`
	MetaInformation *MetaInformation   `json:"MetaInformation,omitempty"`
}

// TotalPages returns the reported page count, or 0 when unknown.
func (r *VoucherListResponse) TotalPages() int {
	if r == nil || r.MetaInformation == nil {
		return 0
	}
	return r.MetaInformation.TotalPages
}

// VoucherRow is a raw voucher row as returned by the ledger.
type VoucherRow struct {
	Account                int     `json:"Account"`
	Debit                  float64 `json:"Debit"`
	Credit                 float64 `json:"Credit"`
	Description            string  `json:"Description,omitempty"`
	TransactionInformation string  `json:"TransactionInformation,omitempty"`
	Removed                bool    `json:"Removed,omitempty"`
}

// VoucherDetail is the full voucher including its rows.
type VoucherDetail struct {
	VoucherSeries   string       `json:"VoucherSeries"`
	VoucherNumber   int          `json:"VoucherNumber"`
	Year            int          `json:"Year,omitempty"`
	TransactionDate string       `json:"TransactionDate,omitempty"`
	ReferenceType   string       `json:"ReferenceType,omitempty"`
	ReferenceNumber string       `json:"ReferenceNumber,omitempty"`
	Description     string       `json:"Description,omitempty"`
	VoucherRows     []VoucherRow `json:"VoucherRows"`
}

// VoucherResponse is the body of a voucher detail call.
type VoucherResponse struct {
	Voucher VoucherDetail `json:"Voucher"`
}
