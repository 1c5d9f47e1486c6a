package models

import (
	"fmt"
	"strconv"
	"strings"
)

// InvoiceRecord is the raw key/value payload of an invoice as delivered by
// the source ERP. Field names vary between endpoints, so lookups always go
// through an explicit list of alias keys.
type InvoiceRecord map[string]any

// Alias keys consulted on invoice records.
var (
	InvoiceIdentifierKeys = []string{"GivenNumber", "InvoiceNumber", "DocumentNumber"}
	ReferenceTypeKeys     = []string{"ReferenceType"}
	ReferenceNumberKeys   = []string{"ReferenceNumber"}

	SupplierPaymentKeys = []string{"PaymentNumber", "SupplierInvoicePaymentNumber", "SupplierPaymentNumber"}
	CustomerPaymentKeys = []string{"PaymentNumber", "InvoicePaymentNumber"}
	PaymentListKeys     = []string{"Payments", "SupplierInvoicePayments", "InvoicePayments"}
	PaymentNumberKeys   = []string{"Number", "PaymentNumber"}

	AccrualKeys = []string{"AccrualNumber", "AccrualId"}

	VoucherListKeys   = []string{"Vouchers"}
	VoucherSeriesKeys = []string{"VoucherSeries", "Series"}
	VoucherNumberKeys = []string{"VoucherNumber", "Number"}
	VoucherYearKeys   = []string{"VoucherYear", "Year"}

	LinkedVoucherSeriesKeys = []string{"VoucherSeries"}
	LinkedVoucherNumberKeys = []string{"VoucherNumber"}
	LinkedVoucherYearKeys   = []string{"VoucherYear"}

	FinancialYearKeys = []string{"FinancialYear", "VoucherYear", "Year"}
)

// String returns the first non-empty value found under any of the keys.
func (r InvoiceRecord) String(keys ...string) (string, bool) {
	for _, key := range keys {
		if s, ok := scalarString(r[key]); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// Strings returns every non-empty scalar value found under the keys, in key order.
func (r InvoiceRecord) Strings(keys ...string) []string {
	var values []string
	for _, key := range keys {
		if s, ok := scalarString(r[key]); ok && s != "" {
			values = append(values, s)
		}
	}
	return values
}

// Int returns the first value under the keys that parses as an integer.
func (r InvoiceRecord) Int(keys ...string) (int, bool) {
	for _, key := range keys {
		s, ok := scalarString(r[key])
		if !ok || s == "" {
			continue
		}
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
	}
	return 0, false
}

// Records returns the nested objects stored as an array under the first matching key.
func (r InvoiceRecord) Records(keys ...string) []InvoiceRecord {
	for _, key := range keys {
		items, ok := r[key].([]any)
		if !ok {
			continue
		}
		var records []InvoiceRecord
		for _, item := range items {
			switch v := item.(type) {
			case map[string]any:
				records = append(records, InvoiceRecord(v))
			case InvoiceRecord:
				records = append(records, v)
			}
		}
		if len(records) > 0 {
			return records
		}
	}
	return nil
}

// scalarString renders JSON scalars without losing integer formatting.
func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return strings.TrimSpace(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return "", false
	case fmt.Stringer:
		return strings.TrimSpace(t.String()), true
	}
	return "", false
}
