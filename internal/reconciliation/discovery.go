package reconciliation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"ledgermatch/pkg/models"
	"ledgermatch/pkg/services"
)

// voucherCandidate is a voucher seen during discovery, before its detail
// has been fetched.
type voucherCandidate struct {
	ref             models.VoucherRef
	transactionDate string
	referenceType   string
	referenceNumber string
	referenceScore  float64
	exactReference  bool
	dateDistance    int
}

// matchRun is the state of one strategy invocation.
type matchRun struct {
	engine   *Engine
	req      *MatchRequest
	signals  []ReferenceSignal
	expected []models.PostingRow
	log      zerolog.Logger
	started  time.Time
	deadline time.Time

	// mu guards diag while the detail-fetch pool runs.
	mu   sync.Mutex
	diag Diagnostics
}

func (r *matchRun) budgetExceeded() bool {
	return !r.engine.now().Before(r.deadline)
}

func (r *matchRun) newCandidate(entry models.VoucherListEntry) voucherCandidate {
	reference := ScoreReference(r.req.InvoiceType, r.signals, entry.ReferenceType, entry.ReferenceNumber)
	distance, ok := dayDistance(r.req.Invoice.InvoiceDate, entry.TransactionDate)
	if !ok {
		distance = math.MaxInt32
	}
	return voucherCandidate{
		ref:             entry.Ref(),
		transactionDate: entry.TransactionDate,
		referenceType:   entry.ReferenceType,
		referenceNumber: entry.ReferenceNumber,
		referenceScore:  reference.Score,
		exactReference:  reference.Exact,
		dateDistance:    distance,
	}
}

// explicitCandidates reads the voucher links stored on the invoice record:
// a Vouchers array or flat VoucherSeries/VoucherNumber/VoucherYear fields.
func explicitCandidates(record models.InvoiceRecord) []voucherCandidate {
	var candidates []voucherCandidate
	seen := make(map[string]struct{})
	add := func(series string, number, year int) {
		if series == "" || number <= 0 {
			return
		}
		ref := models.VoucherRef{Series: series, Number: number, Year: year}
		if _, dup := seen[ref.Key()]; dup {
			return
		}
		seen[ref.Key()] = struct{}{}
		candidates = append(candidates, voucherCandidate{ref: ref, dateDistance: math.MaxInt32})
	}

	for _, voucher := range record.Records(models.VoucherListKeys...) {
		series, _ := voucher.String(models.VoucherSeriesKeys...)
		number, _ := voucher.Int(models.VoucherNumberKeys...)
		year, _ := voucher.Int(models.VoucherYearKeys...)
		add(series, number, year)
	}

	series, _ := record.String(models.LinkedVoucherSeriesKeys...)
	number, _ := record.Int(models.LinkedVoucherNumberKeys...)
	year, _ := record.Int(models.LinkedVoucherYearKeys...)
	add(series, number, year)

	return candidates
}

// discover traverses the voucher list across the candidate financial years
// and returns the deduplicated, sorted candidates accepted by keep. Only
// authorization failures and cancellation are returned as errors.
func (r *matchRun) discover(ctx context.Context, keep func(*voucherCandidate) bool) ([]voucherCandidate, error) {
	years := BuildVoucherYearCandidates(r.req.Record, r.req.Invoice, r.engine.now())

	seen := make(map[string]struct{})
	var candidates []voucherCandidate
	collect := func(entry models.VoucherListEntry) {
		candidate := r.newCandidate(entry)
		key := candidate.ref.Key()
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		r.diag.CandidatesSeen++
		if !keep(&candidate) {
			r.diag.CandidatesFiltered++
			return
		}
		candidates = append(candidates, candidate)
	}

	for _, year := range years {
		if r.budgetExceeded() {
			r.diag.TimedOut = true
			break
		}
		r.diag.YearsSearched = append(r.diag.YearsSearched, year)

		unscoped, err := r.listYear(ctx, year, collect)
		if err != nil {
			return nil, err
		}
		// An unscoped listing is the same for every year.
		if unscoped {
			break
		}
	}

	sortCandidates(candidates)
	return candidates, nil
}

// listYear fetches the list pages of one financial year in probe order.
// It reports whether the ledger had to be queried without the year.
func (r *matchRun) listYear(ctx context.Context, year int, collect func(models.VoucherListEntry)) (bool, error) {
	const op = "listYear"

	y := year
	query := services.VoucherQuery{FinancialYear: &y, Limit: r.engine.opts.PageLimit}
	unscoped := false
	probe := []int{1}

	for i := 0; i < len(probe); i++ {
		if r.budgetExceeded() {
			r.diag.TimedOut = true
			return unscoped, nil
		}

		query.Page = probe[i]
		resp, info, err := ListVouchersWithFallback(ctx, r.engine.service, query)
		if info.UsedFallback && err == nil {
			unscoped = true
			query = query.WithoutYear()
			r.diag.ListFallbackUsed = true
			r.diag.FallbackStatusCode = info.OriginalStatus
			r.engine.metrics.fallbackUsed("list")
			r.log.Info().
				Int("year", year).
				Int("page", query.Page).
				Int("status", info.OriginalStatus).
				Msg("Voucher list rejected the financial year, listed without it")
		}
		if err != nil {
			if services.IsAuthorizationError(err) || ctx.Err() != nil {
				return unscoped, fmt.Errorf("%s: year %d page %d: %w", op, year, query.Page, err)
			}
			r.log.Warn().
				Err(err).
				Int("year", year).
				Int("page", query.Page).
				Msg("Failed to list vouchers, skipping year")
			return unscoped, nil
		}

		r.diag.ListPagesFetched++
		r.engine.metrics.listPageFetched()

		for _, entry := range resp.Vouchers {
			if entry.Year == 0 && !unscoped {
				entry.Year = year
			}
			collect(entry)
		}

		if len(resp.Vouchers) == 0 {
			break
		}
		totalPages := resp.TotalPages()
		if i == 0 {
			probe = PageProbeOrder(totalPages, r.engine.opts.MaxPagesPerYear)
		}
		if totalPages == 0 && len(resp.Vouchers) < query.Limit {
			break
		}
	}

	return unscoped, nil
}

// applyDateWindow narrows a candidate set larger than the fetch cap to the
// vouchers dated within the booking window of the invoice date. Candidates
// without a usable date are kept; an empty result keeps the full set.
func (r *matchRun) applyDateWindow(candidates []voucherCandidate) []voucherCandidate {
	opts := r.engine.opts
	if len(candidates) <= opts.MaxDetailFetches {
		return candidates
	}
	if _, err := parseDate(r.req.Invoice.InvoiceDate); err != nil {
		return candidates
	}

	window := opts.UnbookedWindowDays
	if r.req.Invoice.Booked.IsBooked() {
		window = opts.BookedWindowDays
	}

	filtered := make([]voucherCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.dateDistance == math.MaxInt32 || candidate.dateDistance <= window {
			filtered = append(filtered, candidate)
		}
	}
	if len(filtered) == 0 {
		return candidates
	}

	r.diag.DateWindowApplied = true
	r.diag.CandidatesFiltered += len(candidates) - len(filtered)
	return filtered
}

// sortCandidates orders candidates by reference score, then date proximity,
// then voucher identity.
func sortCandidates(candidates []voucherCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.referenceScore != b.referenceScore {
			return a.referenceScore > b.referenceScore
		}
		if a.dateDistance != b.dateDistance {
			return a.dateDistance < b.dateDistance
		}
		return refLess(a.ref, b.ref)
	})
}

// finish stamps elapsed time and metrics on the run and builds the outcome.
func (r *matchRun) finish(op string, match *VoucherMatchResult, err error) (*MatchOutcome, error) {
	r.diag.Elapsed = r.engine.now().Sub(r.started)

	result := "none"
	switch {
	case err != nil:
		result = "error"
	case match != nil:
		result = "matched"
	}
	r.engine.metrics.runFinished(r.diag.Strategy, result, r.diag.Elapsed)

	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &MatchOutcome{Match: match, Diagnostics: r.diag}, nil
}
