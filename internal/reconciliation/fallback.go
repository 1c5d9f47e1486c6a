package reconciliation

import (
	"context"
	"fmt"

	"ledgermatch/pkg/models"
	"ledgermatch/pkg/services"
)

// FallbackInfo records whether a call had to be retried without its
// financial year parameter.
type FallbackInfo struct {
	UsedFallback   bool `json:"usedFallback"`
	OriginalStatus int  `json:"originalStatus,omitempty"`
}

// ListVouchersWithFallback lists vouchers and, when the ledger rejects a
// year-scoped query as a client error, retries once without the year.
// Authorization failures are returned as they are.
func ListVouchersWithFallback(ctx context.Context, service services.VoucherService, query services.VoucherQuery) (*models.VoucherListResponse, FallbackInfo, error) {
	const op = "ListVouchersWithFallback"

	resp, err := service.GetVouchers(ctx, query)
	if err == nil {
		return resp, FallbackInfo{}, nil
	}
	if query.FinancialYear == nil || !services.IsClientError(err) {
		return nil, FallbackInfo{}, err
	}

	info := FallbackInfo{UsedFallback: true, OriginalStatus: services.StatusCode(err)}
	resp, err = service.GetVouchers(ctx, query.WithoutYear())
	if err != nil {
		return nil, info, fmt.Errorf("%s: retry without financial year: %w", op, err)
	}
	return resp, info, nil
}

// GetVoucherWithFallback fetches a voucher detail with the same retry rule
// as ListVouchersWithFallback. A zero year in ref means no year scope.
func GetVoucherWithFallback(ctx context.Context, service services.VoucherService, ref models.VoucherRef) (*models.VoucherResponse, FallbackInfo, error) {
	const op = "GetVoucherWithFallback"

	var year *int
	if ref.Year != 0 {
		y := ref.Year
		year = &y
	}

	resp, err := service.GetVoucher(ctx, ref.Series, ref.Number, year)
	if err == nil {
		return resp, FallbackInfo{}, nil
	}
	if year == nil || !services.IsClientError(err) {
		return nil, FallbackInfo{}, err
	}

	info := FallbackInfo{UsedFallback: true, OriginalStatus: services.StatusCode(err)}
	resp, err = service.GetVoucher(ctx, ref.Series, ref.Number, nil)
	if err != nil {
		return nil, info, fmt.Errorf("%s: retry without financial year: %w", op, err)
	}
	return resp, info, nil
}
