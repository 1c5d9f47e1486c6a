package posting

import (
	"fmt"

	"ledgermatch/pkg/models"
)

// Severity ranks how urgently an issue needs attention before attestation.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Issue codes
const (
	IssueActualPostingUnavailable = "ACTUAL_POSTING_UNAVAILABLE"
	IssueHeuristicMatchUncertain  = "HEURISTIC_MATCH_UNCERTAIN"
	IssueVoucherLinkMissing       = "VOUCHER_LINK_MISSING"
	IssueUnbalancedPosting        = "UNBALANCED_POSTING"
	IssueTotalMismatch            = "TOTAL_MISMATCH"
	IssueVATMismatch              = "VAT_MISMATCH"
	IssueControlAccountMissing    = "CONTROL_ACCOUNT_MISSING"
	IssueRowAccountConsistency    = "ROW_ACCOUNT_CONSISTENCY"
)

// HeuristicConfidenceThreshold is the confidence below which a heuristic
// match is flagged as uncertain.
const HeuristicConfidenceThreshold = 0.8

// PostingStatus describes whether an actual voucher posting was found.
type PostingStatus string

const (
	PostingStatusBooked   PostingStatus = "booked"
	PostingStatusUnbooked PostingStatus = "unbooked"
	PostingStatusUnknown  PostingStatus = "unknown"
)

// PostingSource describes how the voucher was linked to the invoice.
type PostingSource string

const (
	PostingSourceExplicit  PostingSource = "explicit"
	PostingSourceHeuristic PostingSource = "heuristic"
	PostingSourceNone      PostingSource = "none"
)

// Issue is a user-facing finding on an invoice posting.
type Issue struct {
	Code       string   `json:"code"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion"`
}

// IssueInput collects everything the classifier looks at.
type IssueInput struct {
	InvoiceType   models.InvoiceType
	Booked        models.BookedStatus
	Checks        CheckResult
	PostingStatus PostingStatus
	PostingSource PostingSource
	Confidence    float64
}

// BuildPostingIssues turns check results and match provenance into issues.
// Issues are emitted in a fixed order and all applicable ones are returned.
func BuildPostingIssues(in IssueInput) []Issue {
	issues := make([]Issue, 0)

	if in.Booked == models.BookedNo || (!in.Booked.IsBooked() && in.PostingStatus != PostingStatusBooked) {
		return append(issues, Issue{
			Code:       IssueActualPostingUnavailable,
			Severity:   SeverityInfo,
			Message:    "The invoice is not confirmed as booked, so there is no actual posting to verify.",
			Suggestion: "Book the invoice in the ledger and run the check again before attesting.",
		})
	}

	if in.PostingSource == PostingSourceHeuristic && in.Confidence < HeuristicConfidenceThreshold {
		issues = append(issues, Issue{
			Code:     IssueHeuristicMatchUncertain,
			Severity: SeverityWarning,
			Message: fmt.Sprintf("The voucher was matched by scoring only (confidence %.0f%%) and may belong to another transaction.",
				in.Confidence*100),
			Suggestion: "Open the voucher and confirm that it books this invoice.",
		})
	}

	if in.PostingSource == PostingSourceNone || in.PostingStatus != PostingStatusBooked {
		if in.Booked.IsBooked() {
			issues = append(issues, Issue{
				Code:       IssueVoucherLinkMissing,
				Severity:   SeverityWarning,
				Message:    "The invoice is marked as booked but no voucher could be linked to it.",
				Suggestion: "Check the voucher reference on the invoice or look up the voucher manually.",
			})
		}
		return issues
	}

	if !in.Checks.Balanced {
		issues = append(issues, Issue{
			Code:       IssueUnbalancedPosting,
			Severity:   SeverityCritical,
			Message:    "Debit and credit of the voucher do not balance.",
			Suggestion: "Correct the voucher so that total debit equals total credit.",
		})
	}
	if !in.Checks.TotalMatch {
		issues = append(issues, Issue{
			Code:       IssueTotalMismatch,
			Severity:   SeverityWarning,
			Message:    "The voucher total differs from the invoice total.",
			Suggestion: "Compare the booked amount with the invoice and correct the voucher if needed.",
		})
	}
	if !in.Checks.VATMatch {
		issues = append(issues, Issue{
			Code:       IssueVATMismatch,
			Severity:   SeverityWarning,
			Message:    "The VAT booked on the voucher differs from the VAT on the invoice.",
			Suggestion: "Verify the VAT rate and the VAT accounts (26xx) used on the voucher.",
		})
	}
	if !in.Checks.ControlAccountPresent {
		issues = append(issues, controlAccountIssue(in.InvoiceType))
	}
	if !in.Checks.RowAccountConsistency {
		issues = append(issues, Issue{
			Code:       IssueRowAccountConsistency,
			Severity:   SeverityWarning,
			Message:    "The accounts on the voucher do not correspond to the expected accounts for the invoice lines.",
			Suggestion: "Check that cost or revenue accounts were chosen according to the invoice content.",
		})
	}

	return issues
}

func controlAccountIssue(invoiceType models.InvoiceType) Issue {
	if invoiceType == models.InvoiceTypeCustomer {
		return Issue{
			Code:       IssueControlAccountMissing,
			Severity:   SeverityWarning,
			Message:    "Neither account 1510 (accounts receivable) nor 1930 (bank) appears on the voucher.",
			Suggestion: "Book the customer invoice against 1510, or 1930 for cash sales.",
		}
	}
	return Issue{
		Code:       IssueControlAccountMissing,
		Severity:   SeverityWarning,
		Message:    "Account 2440 (accounts payable) does not appear on the voucher.",
		Suggestion: "Book the supplier invoice against 2440 so the liability is tracked.",
	}
}
