package reconciliation

import "errors"

var (
	// ErrInvalidInvoiceType is returned when a request names neither a
	// supplier nor a customer invoice.
	ErrInvalidInvoiceType = errors.New("invalid invoice type")

	// ErrNoVoucherService is returned when the engine has no ledger client.
	ErrNoVoucherService = errors.New("no voucher service configured")
)
