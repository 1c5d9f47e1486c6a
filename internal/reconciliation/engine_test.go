package reconciliation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ledgermatch/internal/posting"
	"ledgermatch/pkg/models"
	"ledgermatch/pkg/services"
)

func newTestEngine(svc services.VoucherService, opts Options, extra ...EngineOption) *Engine {
	options := append([]EngineOption{WithLogger(zerolog.Nop())}, extra...)
	return NewEngine(svc, opts, options...)
}

func TestDefaultOptions(t *testing.T) {
	opts := NewEngine(&fakeVoucherService{}, Options{}).Options()
	assert.Equal(t, DefaultOptions(), opts)
	assert.Equal(t, 0.68, opts.MinReferenceScore)
	assert.Equal(t, 180, opts.BookedWindowDays)
	assert.Equal(t, 45, opts.UnbookedWindowDays)
	assert.Equal(t, 5*time.Second, opts.RuntimeBudget)
	assert.Equal(t, 80, opts.MaxDetailFetches)
	assert.Equal(t, 6, opts.Workers)
}

func TestInvalidRequest(t *testing.T) {
	engine := newTestEngine(&fakeVoucherService{}, Options{})
	req := supplierRequest()
	req.InvoiceType = "vendor"

	_, err := engine.ResolveHeuristicVoucherMatch(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidInvoiceType)

	_, err = newTestEngine(nil, Options{}).ResolveExplicitVoucherMatch(context.Background(), supplierRequest())
	assert.ErrorIs(t, err, ErrNoVoucherService)
}

func TestResolveExplicitVoucherMatch(t *testing.T) {
	t.Run("fetches linked vouchers without listing", func(t *testing.T) {
		svc := &fakeVoucherService{detail: func(series string, number int, year *int) (*models.VoucherResponse, error) {
			return matchingVoucher(series, number, *year, "2025-03-11", "", ""), nil
		}}
		req := supplierRequest()
		req.Record["Vouchers"] = []any{
			map[string]any{"VoucherSeries": "A", "VoucherNumber": float64(12), "Year": float64(2025)},
		}

		outcome, err := newTestEngine(svc, Options{}).ResolveExplicitVoucherMatch(context.Background(), req)
		require.NoError(t, err)
		require.NotNil(t, outcome.Match)

		assert.Equal(t, models.VoucherRef{Series: "A", Number: 12, Year: 2025}, outcome.Match.VoucherRef)
		assert.True(t, outcome.Match.Totals.Balanced)
		assert.Equal(t, 0, svc.listCallCount())
		assert.Equal(t, 1, outcome.Diagnostics.DetailFetches)
		assert.Equal(t, StrategyExplicit, outcome.Diagnostics.Strategy)
		assert.NotEmpty(t, outcome.Diagnostics.RunID)
	})

	t.Run("flat voucher fields", func(t *testing.T) {
		svc := &fakeVoucherService{detail: func(series string, number int, year *int) (*models.VoucherResponse, error) {
			assert.Nil(t, year)
			return matchingVoucher(series, number, 0, "2025-03-11", "", ""), nil
		}}
		req := supplierRequest()
		req.Record["VoucherSeries"] = "B"
		req.Record["VoucherNumber"] = "7"

		outcome, err := newTestEngine(svc, Options{}).ResolveExplicitVoucherMatch(context.Background(), req)
		require.NoError(t, err)
		require.NotNil(t, outcome.Match)
		assert.Equal(t, "B", outcome.Match.VoucherRef.Series)
	})

	t.Run("failed detail is skipped", func(t *testing.T) {
		svc := &fakeVoucherService{}
		req := supplierRequest()
		req.Record["VoucherSeries"] = "A"
		req.Record["VoucherNumber"] = float64(3)

		outcome, err := newTestEngine(svc, Options{}).ResolveExplicitVoucherMatch(context.Background(), req)
		require.NoError(t, err)
		assert.Nil(t, outcome.Match)
		assert.Equal(t, 1, outcome.Diagnostics.DetailFailures)
	})

	t.Run("no links means no calls", func(t *testing.T) {
		svc := &fakeVoucherService{}

		outcome, err := newTestEngine(svc, Options{}).ResolveExplicitVoucherMatch(context.Background(), supplierRequest())
		require.NoError(t, err)
		assert.Nil(t, outcome.Match)
		assert.Equal(t, 0, svc.detailCallCount())
	})
}

func TestResolveReferenceVoucherMatch(t *testing.T) {
	svc := &fakeVoucherService{
		list: func(q services.VoucherQuery) (*models.VoucherListResponse, error) {
			if yearOf(q) != 2025 {
				return &models.VoucherListResponse{}, nil
			}
			return &models.VoucherListResponse{Vouchers: []models.VoucherListEntry{
				{VoucherSeries: "A", VoucherNumber: 40, TransactionDate: "2025-03-10"},
				{VoucherSeries: "A", VoucherNumber: 41, TransactionDate: "2025-06-01", ReferenceType: "SUPPLIERINVOICE", ReferenceNumber: "01001"},
				{VoucherSeries: "A", VoucherNumber: 42, TransactionDate: "2025-03-10", ReferenceType: "SUPPLIERINVOICE", ReferenceNumber: "999"},
			}}, nil
		},
		detail: func(series string, number int, year *int) (*models.VoucherResponse, error) {
			if number == 41 {
				return matchingVoucher(series, number, 2025, "2025-06-01", "SUPPLIERINVOICE", "01001"), nil
			}
			return matchingVoucher(series, number, 2025, "2025-03-10", "", ""), nil
		},
	}

	outcome, err := newTestEngine(svc, Options{}).ResolveReferenceVoucherMatch(context.Background(), supplierRequest())
	require.NoError(t, err)
	require.NotNil(t, outcome.Match)

	assert.Equal(t, 41, outcome.Match.VoucherRef.Number)
	assert.True(t, outcome.Match.AcceptedByReference)
	assert.Equal(t, 1.0, outcome.Match.ReferenceScore)
	assert.Equal(t, 1, svc.detailCallCount())

	diag := outcome.Diagnostics
	assert.Equal(t, 3, diag.CandidatesSeen)
	assert.Equal(t, 2, diag.CandidatesFiltered)
	assert.Equal(t, []int{2025, 2026, 2024}, diag.YearsSearched)
}

func TestReferenceMatchBeatsCloseDate(t *testing.T) {
	svc := &fakeVoucherService{
		list: func(q services.VoucherQuery) (*models.VoucherListResponse, error) {
			if yearOf(q) != 2025 {
				return &models.VoucherListResponse{}, nil
			}
			return &models.VoucherListResponse{Vouchers: []models.VoucherListEntry{
				{VoucherSeries: "A", VoucherNumber: 1, TransactionDate: "2025-03-10"},
				{VoucherSeries: "A", VoucherNumber: 2, TransactionDate: "2025-11-20", ReferenceType: "SUPPLIERINVOICE", ReferenceNumber: "1001"},
			}}, nil
		},
		detail: func(series string, number int, year *int) (*models.VoucherResponse, error) {
			if number == 2 {
				return matchingVoucher(series, number, 2025, "2025-11-20", "SUPPLIERINVOICE", "1001"), nil
			}
			return matchingVoucher(series, number, 2025, "2025-03-10", "", ""), nil
		},
	}

	outcome, err := newTestEngine(svc, Options{}).ResolveHeuristicVoucherMatch(context.Background(), supplierRequest())
	require.NoError(t, err)
	require.NotNil(t, outcome.Match)
	assert.Equal(t, 2, outcome.Match.VoucherRef.Number)
	assert.True(t, outcome.Match.AcceptedByReference)
	assert.Equal(t, 2, outcome.Diagnostics.DetailFetches)
}

func TestReferenceMatchBelowHeuristicScore(t *testing.T) {
	svc := &fakeVoucherService{
		list: func(q services.VoucherQuery) (*models.VoucherListResponse, error) {
			if yearOf(q) != 2025 {
				return &models.VoucherListResponse{}, nil
			}
			return &models.VoucherListResponse{Vouchers: []models.VoucherListEntry{
				{VoucherSeries: "A", VoucherNumber: 1, TransactionDate: "2025-03-10"},
				{VoucherSeries: "A", VoucherNumber: 2, TransactionDate: "2025-11-20", ReferenceType: "SUPPLIERINVOICE", ReferenceNumber: "1001"},
			}}, nil
		},
		detail: func(series string, number int, year *int) (*models.VoucherResponse, error) {
			if number == 2 {
				// Booked on the wrong accounts with a 10% amount gap.
				return &models.VoucherResponse{Voucher: models.VoucherDetail{
					VoucherSeries:   series,
					VoucherNumber:   number,
					Year:            2025,
					TransactionDate: "2025-11-20",
					ReferenceType:   "SUPPLIERINVOICE",
					ReferenceNumber: "1001",
					VoucherRows: []models.VoucherRow{
						voucherRow(2441, 0, 1130),
						voucherRow(5410, 1130, 0),
					},
				}}, nil
			}
			return matchingVoucher(series, number, 2025, "2025-03-10", "", ""), nil
		},
	}

	outcome, err := newTestEngine(svc, Options{}).ResolveHeuristicVoucherMatch(context.Background(), supplierRequest())
	require.NoError(t, err)
	require.NotNil(t, outcome.Match)
	assert.Equal(t, 2, outcome.Match.VoucherRef.Number)
	assert.True(t, outcome.Match.AcceptedByReference)
	assert.Less(t, outcome.Match.Score, DefaultOptions().MinHeuristicScore)
}

func TestAuthorizationErrorsPropagate(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		svc := &fakeVoucherService{list: func(services.VoucherQuery) (*models.VoucherListResponse, error) {
			return nil, &statusError{status: 401}
		}}

		outcome, err := newTestEngine(svc, Options{}).ResolveHeuristicVoucherMatch(context.Background(), supplierRequest())
		require.Error(t, err)
		assert.Nil(t, outcome)
		assert.True(t, services.IsAuthorizationError(err))
		assert.Equal(t, 1, svc.listCallCount())
	})

	t.Run("detail", func(t *testing.T) {
		svc := &fakeVoucherService{
			list: func(services.VoucherQuery) (*models.VoucherListResponse, error) {
				entries := make([]models.VoucherListEntry, 20)
				for i := range entries {
					entries[i] = models.VoucherListEntry{VoucherSeries: "A", VoucherNumber: i + 1, TransactionDate: "2025-03-10"}
				}
				return &models.VoucherListResponse{Vouchers: entries}, nil
			},
			detail: func(string, int, *int) (*models.VoucherResponse, error) {
				return nil, &statusError{status: 403}
			},
		}

		_, err := newTestEngine(svc, Options{}).Resolve(context.Background(), supplierRequest())
		require.Error(t, err)
		assert.True(t, services.IsAuthorizationError(err))
		assert.Less(t, svc.detailCallCount(), 20)
	})
}

func TestListFallbackWithoutYear(t *testing.T) {
	svc := &fakeVoucherService{
		list: func(q services.VoucherQuery) (*models.VoucherListResponse, error) {
			if q.FinancialYear != nil {
				return nil, &statusError{status: 400}
			}
			return &models.VoucherListResponse{Vouchers: []models.VoucherListEntry{
				{VoucherSeries: "A", VoucherNumber: 5, TransactionDate: "2025-03-09"},
			}}, nil
		},
		detail: func(series string, number int, year *int) (*models.VoucherResponse, error) {
			assert.Nil(t, year)
			return matchingVoucher(series, number, 2025, "2025-03-09", "", ""), nil
		},
	}

	outcome, err := newTestEngine(svc, Options{}).ResolveHeuristicVoucherMatch(context.Background(), supplierRequest())
	require.NoError(t, err)
	require.NotNil(t, outcome.Match)

	diag := outcome.Diagnostics
	assert.True(t, diag.ListFallbackUsed)
	assert.Equal(t, 400, diag.FallbackStatusCode)
	assert.Equal(t, []int{2025}, diag.YearsSearched)
	assert.Equal(t, 2, svc.listCallCount())
}

func TestFailedListFallbackKeepsSearchingYears(t *testing.T) {
	svc := &fakeVoucherService{
		list: func(q services.VoucherQuery) (*models.VoucherListResponse, error) {
			switch yearOf(q) {
			case 0, 2026:
				return nil, &statusError{status: 400}
			case 2024:
				return &models.VoucherListResponse{Vouchers: []models.VoucherListEntry{
					{VoucherSeries: "A", VoucherNumber: 7, TransactionDate: "2025-03-08", ReferenceType: "SUPPLIERINVOICE", ReferenceNumber: "1001"},
				}}, nil
			}
			return &models.VoucherListResponse{}, nil
		},
		detail: func(series string, number int, year *int) (*models.VoucherResponse, error) {
			require.NotNil(t, year)
			return matchingVoucher(series, number, *year, "2025-03-08", "SUPPLIERINVOICE", "1001"), nil
		},
	}

	outcome, err := newTestEngine(svc, Options{}).ResolveHeuristicVoucherMatch(context.Background(), supplierRequest())
	require.NoError(t, err)
	require.NotNil(t, outcome.Match)
	assert.Equal(t, models.VoucherRef{Series: "A", Number: 7, Year: 2024}, outcome.Match.VoucherRef)

	diag := outcome.Diagnostics
	assert.Equal(t, []int{2025, 2026, 2024}, diag.YearsSearched)
	assert.False(t, diag.ListFallbackUsed)
	assert.Equal(t, 4, svc.listCallCount())
}

func TestDetailFallbackWithoutYear(t *testing.T) {
	svc := &fakeVoucherService{detail: func(series string, number int, year *int) (*models.VoucherResponse, error) {
		if year != nil {
			return nil, &statusError{status: 400}
		}
		return matchingVoucher(series, number, 2025, "2025-03-10", "", ""), nil
	}}
	req := supplierRequest()
	req.Record["VoucherSeries"] = "A"
	req.Record["VoucherNumber"] = float64(9)
	req.Record["VoucherYear"] = float64(2025)

	outcome, err := newTestEngine(svc, Options{}).ResolveExplicitVoucherMatch(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, outcome.Match)
	assert.True(t, outcome.Diagnostics.DetailFallbackUsed)
	assert.Equal(t, 400, outcome.Diagnostics.FallbackStatusCode)
	assert.Equal(t, 2, svc.detailCallCount())
}

func TestRuntimeBudgetExhausted(t *testing.T) {
	svc := &fakeVoucherService{
		listDelay: 5 * time.Millisecond,
		list: func(services.VoucherQuery) (*models.VoucherListResponse, error) {
			return &models.VoucherListResponse{
				Vouchers: []models.VoucherListEntry{
					{VoucherSeries: "A", VoucherNumber: 1, TransactionDate: "2025-03-10"},
					{VoucherSeries: "A", VoucherNumber: 2, TransactionDate: "2025-03-11"},
				},
				MetaInformation: &models.MetaInformation{TotalPages: 4},
			}, nil
		},
		detail: func(series string, number int, year *int) (*models.VoucherResponse, error) {
			return matchingVoucher(series, number, 2025, "2025-03-10", "", ""), nil
		},
	}

	outcome, err := newTestEngine(svc, Options{RuntimeBudget: time.Millisecond}).
		ResolveHeuristicVoucherMatch(context.Background(), supplierRequest())
	require.NoError(t, err)
	assert.Nil(t, outcome.Match)
	assert.True(t, outcome.Diagnostics.TimedOut)
	assert.Equal(t, 0, outcome.Diagnostics.DetailFetches)
	assert.Equal(t, 0, svc.detailCallCount())
}

func TestFetchLimit(t *testing.T) {
	svc := &fakeVoucherService{
		list: func(q services.VoucherQuery) (*models.VoucherListResponse, error) {
			if yearOf(q) != 2025 {
				return &models.VoucherListResponse{}, nil
			}
			entries := make([]models.VoucherListEntry, 10)
			for i := range entries {
				entries[i] = models.VoucherListEntry{VoucherSeries: "B", VoucherNumber: i + 1, TransactionDate: "2025-03-10"}
			}
			return &models.VoucherListResponse{Vouchers: entries}, nil
		},
		detail: func(series string, number int, year *int) (*models.VoucherResponse, error) {
			return unrelatedVoucher(series, number, 2025, "2025-03-10"), nil
		},
	}

	outcome, err := newTestEngine(svc, Options{MaxDetailFetches: 4, Workers: 2}).
		ResolveHeuristicVoucherMatch(context.Background(), supplierRequest())
	require.NoError(t, err)
	assert.Nil(t, outcome.Match)
	assert.Equal(t, 4, outcome.Diagnostics.DetailFetches)
	assert.Equal(t, 4, svc.detailCallCount())
	assert.True(t, outcome.Diagnostics.FetchLimitReached)
	assert.True(t, outcome.Diagnostics.TimedOut)
	assert.Greater(t, outcome.Diagnostics.BestScore, 0.0)
}

// deepLedger serves two filler pages of 150 unrelated vouchers for 2025
// followed by a third page holding the voucher that books supplierRequest.
func deepLedger(target models.VoucherListEntry) *fakeVoucherService {
	const perPage = 150
	page := func(n int) []models.VoucherListEntry {
		entries := make([]models.VoucherListEntry, 0, perPage)
		for i := 0; i < perPage; i++ {
			entries = append(entries, models.VoucherListEntry{
				VoucherSeries:   "B",
				VoucherNumber:   (n-1)*perPage + i + 1,
				TransactionDate: "2024-01-15",
				Description:     fmt.Sprintf("Filler %d", i),
			})
		}
		return entries
	}

	return &fakeVoucherService{
		list: func(q services.VoucherQuery) (*models.VoucherListResponse, error) {
			if yearOf(q) != 2025 {
				return &models.VoucherListResponse{}, nil
			}
			resp := &models.VoucherListResponse{MetaInformation: &models.MetaInformation{TotalPages: 3, CurrentPage: q.Page}}
			switch q.Page {
			case 1, 2:
				resp.Vouchers = page(q.Page)
			case 3:
				resp.Vouchers = []models.VoucherListEntry{target}
			}
			return resp, nil
		},
		detail: func(series string, number int, year *int) (*models.VoucherResponse, error) {
			if series == target.VoucherSeries && number == target.VoucherNumber {
				return matchingVoucher(series, number, 2025, target.TransactionDate, target.ReferenceType, target.ReferenceNumber), nil
			}
			return unrelatedVoucher(series, number, 2025, "2024-01-15"), nil
		},
	}
}

func TestDeepPageMatch(t *testing.T) {
	target := models.VoucherListEntry{VoucherSeries: "A", VoucherNumber: 77, TransactionDate: "2025-03-12"}
	svc := deepLedger(target)

	outcome, err := newTestEngine(svc, Options{}).ResolveHeuristicVoucherMatch(context.Background(), supplierRequest())
	require.NoError(t, err)
	require.NotNil(t, outcome.Match)

	match := outcome.Match
	assert.Equal(t, models.VoucherRef{Series: "A", Number: 77, Year: 2025}, match.VoucherRef)
	assert.False(t, match.AcceptedByReference)
	assert.GreaterOrEqual(t, match.Score, 0.6)
	assert.True(t, match.Totals.Balanced)
	assert.Len(t, match.Rows, 3)

	var pages2025 []int
	for _, q := range svc.listCalls {
		if yearOf(q) == 2025 {
			pages2025 = append(pages2025, q.Page)
		}
	}
	assert.Equal(t, []int{1, 3, 2}, pages2025)

	diag := outcome.Diagnostics
	assert.Equal(t, 301, diag.CandidatesSeen)
	assert.True(t, diag.DateWindowApplied)
	assert.Equal(t, 300, diag.CandidatesFiltered)
	assert.Equal(t, 1, diag.DetailFetches)
	assert.False(t, diag.TimedOut)
	assert.Equal(t, 5, diag.ListPagesFetched)
}

func TestResolve(t *testing.T) {
	t.Run("reference match is an explicit posting", func(t *testing.T) {
		target := models.VoucherListEntry{VoucherSeries: "A", VoucherNumber: 77, TransactionDate: "2025-03-12", ReferenceType: "SUPPLIERINVOICE", ReferenceNumber: "1001"}
		engine := newTestEngine(deepLedger(target), Options{})

		resolution, err := engine.Resolve(context.Background(), supplierRequest())
		require.NoError(t, err)
		require.NotNil(t, resolution.Match)
		assert.Equal(t, posting.PostingStatusBooked, resolution.PostingStatus)
		assert.Equal(t, posting.PostingSourceExplicit, resolution.PostingSource)
		assert.Equal(t, 1.0, resolution.Confidence)
		require.Len(t, resolution.Diagnostics, 2)
		assert.Equal(t, StrategyReference, resolution.Diagnostics[1].Strategy)
	})

	t.Run("heuristic match", func(t *testing.T) {
		target := models.VoucherListEntry{VoucherSeries: "A", VoucherNumber: 77, TransactionDate: "2025-03-12"}
		engine := newTestEngine(deepLedger(target), Options{})

		resolution, err := engine.Resolve(context.Background(), supplierRequest())
		require.NoError(t, err)
		require.NotNil(t, resolution.Match)
		assert.Equal(t, posting.PostingSourceHeuristic, resolution.PostingSource)
		assert.Equal(t, resolution.Match.Score, resolution.Confidence)
		assert.Len(t, resolution.Diagnostics, 3)
	})

	t.Run("nothing found", func(t *testing.T) {
		req := supplierRequest()
		req.Invoice.Booked = models.BookedNo

		resolution, err := newTestEngine(&fakeVoucherService{}, Options{}).Resolve(context.Background(), req)
		require.NoError(t, err)
		assert.Nil(t, resolution.Match)
		assert.Equal(t, posting.PostingStatusUnbooked, resolution.PostingStatus)
		assert.Equal(t, posting.PostingSourceNone, resolution.PostingSource)
	})
}

func TestAttest(t *testing.T) {
	target := models.VoucherListEntry{VoucherSeries: "A", VoucherNumber: 77, TransactionDate: "2025-03-12", ReferenceType: "SUPPLIERINVOICE", ReferenceNumber: "1001"}
	engine := newTestEngine(deepLedger(target), Options{})

	report, err := engine.Attest(context.Background(), supplierRequest())
	require.NoError(t, err)
	require.NotNil(t, report.Checks)
	assert.True(t, report.Checks.Passed())
	assert.Empty(t, report.Issues)
	assert.Equal(t, "1001", report.InvoiceID)
}

func TestBuildReportWithoutMatch(t *testing.T) {
	req := supplierRequest()
	report := BuildReport(req, &Resolution{
		PostingStatus: posting.PostingStatusUnknown,
		PostingSource: posting.PostingSourceNone,
	})

	assert.Nil(t, report.Checks)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, posting.IssueVoucherLinkMissing, report.Issues[0].Code)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	target := models.VoucherListEntry{VoucherSeries: "A", VoucherNumber: 77, TransactionDate: "2025-03-12"}
	engine := newTestEngine(deepLedger(target), Options{}, WithMetrics(metrics))

	_, err := engine.ResolveHeuristicVoucherMatch(context.Background(), supplierRequest())
	require.NoError(t, err)

	assert.Equal(t, 5.0, testutil.ToFloat64(metrics.listPages))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.detailFetches.WithLabelValues(fetchOutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.matches.WithLabelValues(string(StrategyHeuristic), "matched")))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.runDuration))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.listPageFetched() })
}

func TestConcurrentSelectionIsDeterministic(t *testing.T) {
	svc := &fakeVoucherService{
		list: func(q services.VoucherQuery) (*models.VoucherListResponse, error) {
			if yearOf(q) != 2025 {
				return &models.VoucherListResponse{}, nil
			}
			entries := make([]models.VoucherListEntry, 30)
			for i := range entries {
				entries[i] = models.VoucherListEntry{VoucherSeries: "A", VoucherNumber: i + 1, TransactionDate: "2025-03-10"}
			}
			return &models.VoucherListResponse{Vouchers: entries}, nil
		},
		detail: func(series string, number int, year *int) (*models.VoucherResponse, error) {
			time.Sleep(time.Duration(number%3) * time.Millisecond)
			return matchingVoucher(series, number, 2025, "2025-03-10", "", ""), nil
		},
	}
	engine := newTestEngine(svc, Options{Workers: 8})

	for i := 0; i < 5; i++ {
		outcome, err := engine.ResolveHeuristicVoucherMatch(context.Background(), supplierRequest())
		require.NoError(t, err)
		require.NotNil(t, outcome.Match)
		assert.Equal(t, models.VoucherRef{Series: "A", Number: 1, Year: 2025}, outcome.Match.VoucherRef)
	}
}

func TestClockDrivesYearFallback(t *testing.T) {
	svc := &fakeVoucherService{}
	engine := newTestEngine(svc, Options{}, WithClock(fixedClock(time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC))))

	req := supplierRequest()
	req.Invoice.InvoiceDate = ""
	req.Invoice.DueDate = ""

	outcome, err := engine.ResolveHeuristicVoucherMatch(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, outcome.Match)
	assert.Equal(t, []int{2026, 2027, 2025}, outcome.Diagnostics.YearsSearched)
	assert.Equal(t, 3, svc.listCallCount())
}
