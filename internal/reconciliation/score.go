package reconciliation

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"ledgermatch/internal/posting"
	"ledgermatch/pkg/models"
)

// Composite score weights; they sum to 1.
const (
	WeightReference = 0.45
	WeightAmount    = 0.25
	WeightDate      = 0.15
	WeightControl   = 0.10
	WeightOverlap   = 0.05
)

const (
	manualReferenceCap    = 0.72
	partialReferenceScore = 0.45
	noSignalsScore        = 0.55
	missingReferenceScore = 0.2
	neutralScore          = 0.5
)

// referencePriorityScores is indexed by reference type priority.
var referencePriorityScores = []float64{1.0, 0.92, 0.84, 0.72}

type amountStep struct {
	maxRelativeDiff float64
	score           float64
}

var amountSteps = []amountStep{
	{0.001, 1.0},
	{0.01, 0.85},
	{0.05, 0.6},
	{0.10, 0.4},
}

type dateStep struct {
	maxDays int
	score   float64
}

var dateSteps = []dateStep{
	{2, 1.0},
	{7, 0.9},
	{14, 0.75},
	{30, 0.6},
	{60, 0.45},
	{120, 0.3},
}

// ReferenceMatch is the outcome of correlating a voucher's reference fields
// with the invoice's signals.
type ReferenceMatch struct {
	Score    float64
	Exact    bool
	Evidence string
}

// ScoreBreakdown holds the five sub-scores of a composite match score.
type ScoreBreakdown struct {
	Reference float64 `json:"reference"`
	Amount    float64 `json:"amount"`
	Date      float64 `json:"date"`
	Control   float64 `json:"control"`
	Overlap   float64 `json:"overlap"`
}

// Composite returns the weighted sum clamped to [0,1].
func (b ScoreBreakdown) Composite() float64 {
	score := b.Reference*WeightReference +
		b.Amount*WeightAmount +
		b.Date*WeightDate +
		b.Control*WeightControl +
		b.Overlap*WeightOverlap
	return math.Max(0, math.Min(1, score))
}

// VoucherMatchResult is a scored voucher considered as the booking of an invoice.
type VoucherMatchResult struct {
	Score               float64             `json:"score"`
	VoucherRef          models.VoucherRef   `json:"voucherRef"`
	Rows                []models.PostingRow `json:"rows"`
	Totals              posting.Totals      `json:"totals"`
	TransactionDate     string              `json:"transactionDate,omitempty"`
	ReferenceEvidence   string              `json:"referenceEvidence,omitempty"`
	ReferenceScore      float64             `json:"referenceScore"`
	AcceptedByReference bool                `json:"acceptedByReference"`
	Breakdown           ScoreBreakdown      `json:"breakdown"`
}

// ScoreReference correlates a voucher reference with the invoice's signals.
// An exact type and number match scores by the type's priority, a matching
// number under another type scores partially.
func ScoreReference(invoiceType models.InvoiceType, signals []ReferenceSignal, referenceType, referenceNumber string) ReferenceMatch {
	if len(signals) == 0 {
		return ReferenceMatch{Score: noSignalsScore}
	}

	normalizedType := normalizeReferenceType(referenceType)
	normalizedNumber := normalizeReferenceNumber(referenceNumber)
	if normalizedNumber == "" {
		return ReferenceMatch{Score: missingReferenceScore}
	}

	var partial *ReferenceSignal
	for i := range signals {
		signal := signals[i]
		if !signal.Matches(normalizedNumber) {
			continue
		}
		if signal.Type == normalizedType {
			score := priorityScore(GetReferenceTypePriority(invoiceType, normalizedType))
			if normalizedType == ReferenceManual {
				score = math.Min(score, manualReferenceCap)
			}
			return ReferenceMatch{
				Score:    score,
				Exact:    true,
				Evidence: fmt.Sprintf("%s %s matches invoice reference", normalizedType, normalizedNumber),
			}
		}
		if partial == nil {
			partial = &signals[i]
		}
	}

	if partial != nil {
		return ReferenceMatch{
			Score:    partialReferenceScore,
			Evidence: fmt.Sprintf("number %s matches %s reference but voucher type is %s", normalizedNumber, partial.Type, normalizedType),
		}
	}
	return ReferenceMatch{}
}

func priorityScore(priority int) float64 {
	if priority < 0 {
		priority = 0
	}
	if priority >= len(referencePriorityScores) {
		return referencePriorityScores[len(referencePriorityScores)-1]
	}
	return referencePriorityScores[priority]
}

// ScoreAmount compares the invoice total with the larger side of the voucher.
func ScoreAmount(total decimal.NullDecimal, totals posting.Totals) float64 {
	if !total.Valid {
		return neutralScore
	}
	expected := posting.RoundMoney(total.Decimal).Abs()
	actual := totals.Gross()
	if expected.IsZero() {
		if actual.IsZero() {
			return 1
		}
		return 0.1
	}

	diff, _ := expected.Sub(actual).Abs().Div(expected).Float64()
	for _, step := range amountSteps {
		if diff <= step.maxRelativeDiff {
			return step.score
		}
	}
	return 0.1
}

// ScoreDate steps down with the day distance between invoice and transaction dates.
func ScoreDate(invoiceDate, transactionDate string) float64 {
	days, ok := dayDistance(invoiceDate, transactionDate)
	if !ok {
		return neutralScore
	}
	for _, step := range dateSteps {
		if days <= step.maxDays {
			return step.score
		}
	}
	return 0.1
}

// scoreVoucher builds the scored result of one fetched candidate.
func scoreVoucher(req *MatchRequest, signals []ReferenceSignal, expected []models.PostingRow, candidate voucherCandidate, detail *models.VoucherDetail) VoucherMatchResult {
	ref := candidate.ref
	transactionDate := candidate.transactionDate
	referenceType := candidate.referenceType
	referenceNumber := candidate.referenceNumber
	if detail != nil {
		if detail.Year != 0 {
			ref.Year = detail.Year
		}
		if detail.TransactionDate != "" {
			transactionDate = detail.TransactionDate
		}
		if detail.ReferenceType != "" || detail.ReferenceNumber != "" {
			referenceType = detail.ReferenceType
			referenceNumber = detail.ReferenceNumber
		}
	}

	var rows []models.PostingRow
	if detail != nil {
		rows = posting.NormalizeVoucherRows(detail.VoucherRows)
	}
	totals := posting.ComputeTotals(rows)
	reference := ScoreReference(req.InvoiceType, signals, referenceType, referenceNumber)

	breakdown := ScoreBreakdown{
		Reference: reference.Score,
		Amount:    ScoreAmount(req.Invoice.Total, totals),
		Date:      ScoreDate(req.Invoice.InvoiceDate, transactionDate),
		Overlap:   posting.AccountOverlap(req.InvoiceType, expected, rows),
	}
	if posting.HasControlAccount(req.InvoiceType, rows) {
		breakdown.Control = 1
	}

	return VoucherMatchResult{
		Score:               breakdown.Composite(),
		VoucherRef:          ref,
		Rows:                rows,
		Totals:              totals,
		TransactionDate:     transactionDate,
		ReferenceEvidence:   reference.Evidence,
		ReferenceScore:      reference.Score,
		AcceptedByReference: reference.Exact,
		Breakdown:           breakdown,
	}
}

// BetterMatch reports whether candidate should replace current as the best
// match: reference-accepted beats not accepted, then higher reference score,
// then higher composite score. The voucher identity breaks remaining ties so
// the outcome does not depend on completion order.
func BetterMatch(candidate, current *VoucherMatchResult) bool {
	if candidate == nil {
		return false
	}
	if current == nil {
		return true
	}
	if candidate.AcceptedByReference != current.AcceptedByReference {
		return candidate.AcceptedByReference
	}
	if candidate.ReferenceScore != current.ReferenceScore {
		return candidate.ReferenceScore > current.ReferenceScore
	}
	if candidate.Score != current.Score {
		return candidate.Score > current.Score
	}
	return refLess(candidate.VoucherRef, current.VoucherRef)
}

func refLess(a, b models.VoucherRef) bool {
	if a.Year != b.Year {
		return a.Year > b.Year
	}
	if a.Series != b.Series {
		return a.Series < b.Series
	}
	return a.Number < b.Number
}
