package reconciliation

import (
	"context"
	"fmt"

	"ledgermatch/internal/posting"
	"ledgermatch/pkg/models"
)

// Report is the attestation view of one invoice: the resolved voucher, the
// posting checks against the expected booking, and the resulting issues.
type Report struct {
	InvoiceType models.InvoiceType   `json:"invoiceType"`
	InvoiceID   string               `json:"invoiceId"`
	Booked      models.BookedStatus  `json:"booked"`
	Resolution  *Resolution          `json:"resolution"`
	Checks      *posting.CheckResult `json:"checks,omitempty"`
	Issues      []posting.Issue      `json:"issues"`
}

// BuildReport checks the matched voucher against the expected rows and
// classifies the outcome. Checks are omitted when no voucher was linked.
func BuildReport(req MatchRequest, resolution *Resolution) Report {
	report := Report{
		InvoiceType: req.InvoiceType,
		InvoiceID:   req.Invoice.ID,
		Booked:      req.Invoice.Booked,
		Resolution:  resolution,
	}

	input := posting.IssueInput{
		InvoiceType:   req.InvoiceType,
		Booked:        req.Invoice.Booked,
		PostingStatus: posting.PostingStatusUnknown,
		PostingSource: posting.PostingSourceNone,
	}
	if resolution != nil {
		input.PostingStatus = resolution.PostingStatus
		input.PostingSource = resolution.PostingSource
		input.Confidence = resolution.Confidence
		if resolution.Match != nil {
			checks := posting.Check(req.InvoiceType, req.ExpectedRows, resolution.Match.Rows)
			report.Checks = &checks
			input.Checks = checks
		}
	}

	report.Issues = posting.BuildPostingIssues(input)
	return report
}

// Attest resolves the invoice and builds its report.
func (e *Engine) Attest(ctx context.Context, req MatchRequest) (*Report, error) {
	const op = "Attest"

	resolution, err := e.Resolve(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	report := BuildReport(req, resolution)
	return &report, nil
}
