package services

import (
	"context"
	"errors"

	"ledgermatch/pkg/models"
)

// VoucherService is the remote ledger API consumed by the matching engine.
type VoucherService interface {
	// GetVouchers returns one page (or, with AllPages, every page) of vouchers.
	GetVouchers(ctx context.Context, query VoucherQuery) (*models.VoucherListResponse, error)

	// GetVoucher returns the voucher detail. financialYear may be nil to let
	// the ledger resolve the voucher without a year scope.
	GetVoucher(ctx context.Context, series string, number int, financialYear *int) (*models.VoucherResponse, error)
}

// VoucherQuery holds the parameters of a voucher list call.
type VoucherQuery struct {
	FinancialYear *int
	VoucherSeries string
	Page          int
	Limit         int
	AllPages      bool
	Search        string
}

// WithoutYear returns a copy of the query with the financial year removed.
func (q VoucherQuery) WithoutYear() VoucherQuery {
	q.FinancialYear = nil
	return q
}

// statusCoder is implemented by classified ledger client errors.
type statusCoder interface {
	StatusCode() int
}

// StatusCode extracts the HTTP status of a classified client error, or 0.
func StatusCode(err error) int {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}

// IsAuthorizationError reports whether the ledger refused the credentials (401/403).
func IsAuthorizationError(err error) bool {
	status := StatusCode(err)
	return status == 401 || status == 403
}

// IsClientError reports a recoverable client rejection, i.e. a 4xx other
// than an authorization failure or rate limiting.
func IsClientError(err error) bool {
	status := StatusCode(err)
	return status >= 400 && status < 500 && status != 401 && status != 403 && status != 429
}
