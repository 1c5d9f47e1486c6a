// Package reconciliation finds the ledger voucher that books an invoice.
//
// Three strategies are tried in order of cost and reliability: voucher links
// stored on the invoice record, a paginated list search filtered by
// reference, and a broad heuristic list search. Fetched vouchers are scored
// by reference, amount, date, control account and account overlap; the
// detail fetches run on a bounded worker pool under a runtime budget.
package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"ledgermatch/internal/logger"
	"ledgermatch/internal/posting"
	"ledgermatch/pkg/models"
	"ledgermatch/pkg/services"
)

// Options tunes candidate discovery and the detail-fetch pool.
type Options struct {
	// MinReferenceScore is the least reference score a list entry needs to
	// pass the reference-scoped filter.
	MinReferenceScore float64

	// MinHeuristicScore is the least composite score a heuristic match needs.
	MinHeuristicScore float64

	// BookedWindowDays and UnbookedWindowDays bound the date pre-filter
	// applied to large heuristic candidate sets.
	BookedWindowDays   int
	UnbookedWindowDays int

	// RuntimeBudget is the wall-clock budget of one strategy run.
	RuntimeBudget time.Duration

	// MaxDetailFetches caps voucher detail fetches per strategy run.
	MaxDetailFetches int

	// Workers is the size of the detail-fetch pool.
	Workers int

	// MaxPagesPerYear caps list pages fetched per financial year.
	MaxPagesPerYear int

	// PageLimit is the page size requested from the ledger.
	PageLimit int
}

// DefaultOptions returns the default tuning.
func DefaultOptions() Options {
	return Options{
		MinReferenceScore:  0.68,
		MinHeuristicScore:  0.6,
		BookedWindowDays:   180,
		UnbookedWindowDays: 45,
		RuntimeBudget:      5000 * time.Millisecond,
		MaxDetailFetches:   80,
		Workers:            6,
		MaxPagesPerYear:    3,
		PageLimit:          100,
	}
}

// withDefaults fills unset fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MinReferenceScore <= 0 {
		o.MinReferenceScore = d.MinReferenceScore
	}
	if o.MinHeuristicScore <= 0 {
		o.MinHeuristicScore = d.MinHeuristicScore
	}
	if o.BookedWindowDays <= 0 {
		o.BookedWindowDays = d.BookedWindowDays
	}
	if o.UnbookedWindowDays <= 0 {
		o.UnbookedWindowDays = d.UnbookedWindowDays
	}
	if o.RuntimeBudget <= 0 {
		o.RuntimeBudget = d.RuntimeBudget
	}
	if o.MaxDetailFetches <= 0 {
		o.MaxDetailFetches = d.MaxDetailFetches
	}
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	if o.MaxPagesPerYear <= 0 {
		o.MaxPagesPerYear = d.MaxPagesPerYear
	}
	if o.PageLimit <= 0 {
		o.PageLimit = d.PageLimit
	}
	return o
}

// MatchRequest is the input of one matching call.
type MatchRequest struct {
	InvoiceType  models.InvoiceType
	Invoice      models.Invoice
	Record       models.InvoiceRecord
	ExpectedRows []models.PostingRow
}

// Engine resolves invoices to ledger vouchers.
type Engine struct {
	service services.VoucherService
	opts    Options
	log     zerolog.Logger
	metrics *Metrics
	now     func() time.Time
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithLogger injects the logger used for recoverable failures.
func WithLogger(l zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.log = l
	}
}

// WithMetrics records run metrics on m.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock replaces the clock used for the budget and the fallback year.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine on top of a ledger voucher service.
func NewEngine(service services.VoucherService, opts Options, options ...EngineOption) *Engine {
	e := &Engine{
		service: service,
		opts:    opts.withDefaults(),
		log:     logger.WithComponent("reconciliation"),
		now:     time.Now,
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// Options returns the effective tuning.
func (e *Engine) Options() Options {
	return e.opts
}

// ResolveExplicitVoucherMatch scores the vouchers linked on the invoice
// record itself. No list search is made.
func (e *Engine) ResolveExplicitVoucherMatch(ctx context.Context, req MatchRequest) (*MatchOutcome, error) {
	const op = "ResolveExplicitVoucherMatch"

	run, err := e.newRun(req, StrategyExplicit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	candidates := explicitCandidates(req.Record)
	run.diag.CandidatesSeen = len(candidates)

	match, err := run.fetchAndScore(ctx, candidates, func(*VoucherMatchResult) bool { return true })
	return run.finish(op, match, err)
}

// ResolveReferenceVoucherMatch searches the voucher list for entries whose
// reference type and number match the invoice and accepts only exact
// reference matches.
func (e *Engine) ResolveReferenceVoucherMatch(ctx context.Context, req MatchRequest) (*MatchOutcome, error) {
	const op = "ResolveReferenceVoucherMatch"

	run, err := e.newRun(req, StrategyReference)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(run.signals) == 0 {
		return run.finish(op, nil, nil)
	}

	candidates, err := run.discover(ctx, func(c *voucherCandidate) bool {
		return c.exactReference && c.referenceScore >= e.opts.MinReferenceScore
	})
	if err != nil {
		return run.finish(op, nil, err)
	}

	match, err := run.fetchAndScore(ctx, candidates, func(m *VoucherMatchResult) bool {
		return m.AcceptedByReference
	})
	return run.finish(op, match, err)
}

// ResolveHeuristicVoucherMatch searches the voucher list without a reference
// filter. A candidate is accepted when its reference matched exactly or its
// composite score reaches MinHeuristicScore.
func (e *Engine) ResolveHeuristicVoucherMatch(ctx context.Context, req MatchRequest) (*MatchOutcome, error) {
	const op = "ResolveHeuristicVoucherMatch"

	run, err := e.newRun(req, StrategyHeuristic)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	candidates, err := run.discover(ctx, func(*voucherCandidate) bool { return true })
	if err != nil {
		return run.finish(op, nil, err)
	}
	candidates = run.applyDateWindow(candidates)

	match, err := run.fetchAndScore(ctx, candidates, func(m *VoucherMatchResult) bool {
		return m.AcceptedByReference || m.Score >= e.opts.MinHeuristicScore
	})
	return run.finish(op, match, err)
}

// Resolution is the combined result of Resolve.
type Resolution struct {
	Match         *VoucherMatchResult   `json:"match"`
	PostingStatus posting.PostingStatus `json:"postingStatus"`
	PostingSource posting.PostingSource `json:"postingSource"`
	Confidence    float64               `json:"confidence"`
	Diagnostics   []Diagnostics         `json:"diagnostics"`
}

// Resolve runs the explicit, reference and heuristic strategies in order
// and stops at the first accepted match.
func (e *Engine) Resolve(ctx context.Context, req MatchRequest) (*Resolution, error) {
	const op = "Resolve"

	strategies := []func(context.Context, MatchRequest) (*MatchOutcome, error){
		e.ResolveExplicitVoucherMatch,
		e.ResolveReferenceVoucherMatch,
		e.ResolveHeuristicVoucherMatch,
	}

	var diagnostics []Diagnostics
	var last *MatchOutcome
	for _, resolve := range strategies {
		outcome, err := resolve(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		diagnostics = append(diagnostics, outcome.Diagnostics)
		last = outcome
		if outcome.Match != nil {
			break
		}
	}

	resolution := ResolutionFromOutcome(req, last)
	resolution.Diagnostics = diagnostics
	return resolution, nil
}

// ResolutionFromOutcome derives posting status, posting source and
// confidence from one strategy outcome. Explicit links and exact reference
// matches count as explicit postings.
func ResolutionFromOutcome(req MatchRequest, outcome *MatchOutcome) *Resolution {
	resolution := &Resolution{
		PostingStatus: posting.PostingStatusUnknown,
		PostingSource: posting.PostingSourceNone,
	}
	if outcome == nil {
		return resolution
	}
	resolution.Diagnostics = []Diagnostics{outcome.Diagnostics}

	match := outcome.Match
	if match == nil {
		if req.Invoice.Booked == models.BookedNo {
			resolution.PostingStatus = posting.PostingStatusUnbooked
		}
		return resolution
	}

	resolution.Match = match
	resolution.PostingStatus = posting.PostingStatusBooked
	resolution.Confidence = match.Score
	switch {
	case outcome.Diagnostics.Strategy == StrategyExplicit:
		resolution.PostingSource = posting.PostingSourceExplicit
	case match.AcceptedByReference:
		resolution.PostingSource = posting.PostingSourceExplicit
		resolution.Confidence = max(match.Score, match.ReferenceScore)
	default:
		resolution.PostingSource = posting.PostingSourceHeuristic
	}
	return resolution
}

func (e *Engine) newRun(req MatchRequest, strategy Strategy) (*matchRun, error) {
	if !req.InvoiceType.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidInvoiceType, req.InvoiceType)
	}
	if e.service == nil {
		return nil, ErrNoVoucherService
	}

	runID := uuid.NewString()
	started := e.now()
	return &matchRun{
		engine:   e,
		req:      &req,
		signals:  BuildReferenceSignals(req.InvoiceType, req.Invoice, req.Record),
		expected: posting.Normalize(req.ExpectedRows),
		log: logger.WithInvoice(logger.WithRunID(e.log, runID), string(req.InvoiceType), req.Invoice.ID).
			With().Str("strategy", string(strategy)).Logger(),
		started:  started,
		deadline: started.Add(e.opts.RuntimeBudget),
		diag: Diagnostics{
			RunID:    runID,
			Strategy: strategy,
		},
	}, nil
}
