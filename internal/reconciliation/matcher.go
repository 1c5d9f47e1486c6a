package reconciliation

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"ledgermatch/pkg/services"
)

// fetchAndScore fetches and scores candidates on a bounded worker pool.
//
// Before every reservation the runtime budget and the fetch cap are checked;
// once either is exhausted no new fetch starts but in-flight fetches finish.
// Workers hand their results to this goroutine, which alone applies
// BetterMatch. Only authorization failures and cancellation are returned.
func (r *matchRun) fetchAndScore(ctx context.Context, candidates []voucherCandidate, accept func(*VoucherMatchResult) bool) (*VoucherMatchResult, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	opts := r.engine.opts
	next := 0
	reserve := func() (voucherCandidate, bool) {
		r.mu.Lock()
		defer r.mu.Unlock()

		if next >= len(candidates) {
			return voucherCandidate{}, false
		}
		if r.budgetExceeded() {
			r.diag.TimedOut = true
			return voucherCandidate{}, false
		}
		if r.diag.DetailFetches >= opts.MaxDetailFetches {
			r.diag.TimedOut = true
			r.diag.FetchLimitReached = true
			return voucherCandidate{}, false
		}

		candidate := candidates[next]
		next++
		r.diag.DetailFetches++
		return candidate, true
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make(chan VoucherMatchResult)

	workers := min(opts.Workers, len(candidates))
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				candidate, ok := reserve()
				if !ok {
					return nil
				}

				result, err := r.fetchCandidate(gctx, candidate)
				if err != nil {
					if services.IsAuthorizationError(err) || gctx.Err() != nil {
						return err
					}
					continue
				}

				select {
				case results <- result:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		})
	}

	var poolErr error
	go func() {
		poolErr = g.Wait()
		close(results)
	}()

	var best *VoucherMatchResult
	for result := range results {
		r.mu.Lock()
		r.diag.BestScore = max(r.diag.BestScore, result.Score)
		r.mu.Unlock()
		if !accept(&result) {
			continue
		}
		if BetterMatch(&result, best) {
			accepted := result
			best = &accepted
		}
	}

	if poolErr != nil {
		return nil, poolErr
	}
	return best, nil
}

// fetchCandidate fetches one voucher detail and scores it. Failures other
// than authorization and cancellation are logged with the voucher identity.
func (r *matchRun) fetchCandidate(ctx context.Context, candidate voucherCandidate) (VoucherMatchResult, error) {
	const op = "fetchCandidate"

	resp, info, err := GetVoucherWithFallback(ctx, r.engine.service, candidate.ref)
	if info.UsedFallback && err == nil {
		r.mu.Lock()
		r.diag.DetailFallbackUsed = true
		r.diag.FallbackStatusCode = info.OriginalStatus
		r.mu.Unlock()
		r.engine.metrics.fallbackUsed("detail")
		r.log.Info().
			Str("series", candidate.ref.Series).
			Int("number", candidate.ref.Number).
			Int("year", candidate.ref.Year).
			Int("status", info.OriginalStatus).
			Msg("Voucher detail rejected the financial year, fetched without it")
	}
	if err != nil {
		r.engine.metrics.detailFetched(false)
		if services.IsAuthorizationError(err) || ctx.Err() != nil {
			return VoucherMatchResult{}, fmt.Errorf("%s: voucher %s: %w", op, candidate.ref, err)
		}
		r.mu.Lock()
		r.diag.DetailFailures++
		r.mu.Unlock()
		r.log.Warn().
			Err(err).
			Str("series", candidate.ref.Series).
			Int("number", candidate.ref.Number).
			Int("year", candidate.ref.Year).
			Msg("Failed to fetch voucher detail, skipping candidate")
		return VoucherMatchResult{}, err
	}
	r.engine.metrics.detailFetched(true)

	return scoreVoucher(r.req, r.signals, r.expected, candidate, &resp.Voucher), nil
}
