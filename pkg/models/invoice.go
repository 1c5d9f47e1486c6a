package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// InvoiceType distinguishes supplier (payable) from customer (receivable) invoices.
type InvoiceType string

const (
	InvoiceTypeSupplier InvoiceType = "supplier"
	InvoiceTypeCustomer InvoiceType = "customer"
)

// IsValid checks if the invoice type is known
func (t InvoiceType) IsValid() bool {
	return t == InvoiceTypeSupplier || t == InvoiceTypeCustomer
}

// ParseInvoiceType accepts the ledger's own spellings as well as the
// payable/receivable vocabulary used elsewhere in the tooling.
func ParseInvoiceType(s string) (InvoiceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "supplier", "payable", "supplierinvoice":
		return InvoiceTypeSupplier, nil
	case "customer", "receivable", "invoice":
		return InvoiceTypeCustomer, nil
	}
	return "", fmt.Errorf("invalid invoice type: %q (must be 'supplier' or 'customer')", s)
}

// BookedStatus is the tri-state booking flag reported by the source ERP.
type BookedStatus string

const (
	BookedYes     BookedStatus = "true"
	BookedNo      BookedStatus = "false"
	BookedUnknown BookedStatus = "unknown"
)

// IsBooked returns true only for a confirmed booking
func (b BookedStatus) IsBooked() bool {
	return b == BookedYes
}

// UnmarshalJSON accepts true, false, null and the strings "true", "false", "unknown".
func (b *BookedStatus) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*b = BookedUnknown
	case bool:
		if v {
			*b = BookedYes
		} else {
			*b = BookedNo
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "booked":
			*b = BookedYes
		case "false", "no", "unbooked":
			*b = BookedNo
		default:
			*b = BookedUnknown
		}
	default:
		return fmt.Errorf("invalid booked value: %s", string(data))
	}
	return nil
}

// MarshalJSON writes a JSON boolean for known states and "unknown" otherwise.
func (b BookedStatus) MarshalJSON() ([]byte, error) {
	switch b {
	case BookedYes:
		return []byte("true"), nil
	case BookedNo:
		return []byte("false"), nil
	}
	return []byte(`"unknown"`), nil
}

// Invoice is the immutable invoice input of a matching run.
type Invoice struct {
	ID            string              `json:"id"`
	InvoiceNumber string              `json:"invoiceNumber,omitempty"`
	InvoiceDate   string              `json:"invoiceDate"`
	DueDate       string              `json:"dueDate"`
	Total         decimal.NullDecimal `json:"total"`
	Booked        BookedStatus        `json:"booked"`
}

// InvoiceLine is one line item used to derive the expected posting.
type InvoiceLine struct {
	Account     int             `json:"account"`
	Net         decimal.Decimal `json:"net"`
	VATRate     decimal.Decimal `json:"vatRate"` // 0.25, 0.12, 0.06 or 0
	Description string          `json:"description,omitempty"`
}
