package reconciliation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metric names.
const (
	MetricListPagesTotal     = "ledgermatch_list_pages_total"
	MetricDetailFetchesTotal = "ledgermatch_detail_fetches_total"
	MetricFallbacksTotal     = "ledgermatch_fallbacks_total"
	MetricMatchesTotal       = "ledgermatch_matches_total"
	MetricRunDuration        = "ledgermatch_run_duration_seconds"
)

// Detail fetch outcomes.
const (
	fetchOutcomeOK     = "ok"
	fetchOutcomeFailed = "failed"
)

// Metrics collects matching counters. A nil *Metrics records nothing.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Metrics struct {
	listPages     prometheus.Counter
	detailFetches *prometheus.CounterVec
	fallbacks     *prometheus.CounterVec
	matches       *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
}

// NewMetrics creates the matching metrics and registers them with reg.
// A nil reg leaves the metrics unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		listPages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricListPagesTotal,
			Help: "Voucher list pages fetched from the ledger",
		}),
		detailFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricDetailFetchesTotal,
			Help: "Voucher detail fetches by outcome",
		}, []string{"outcome"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricFallbacksTotal,
			Help: "Calls retried without financial year by call kind",
		}, []string{"call"}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricMatchesTotal,
			Help: "Strategy runs by strategy and result",
		}, []string{"strategy", "result"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricRunDuration,
			Help:    "Duration of strategy runs in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"strategy"}),
	}

	if reg != nil {
		reg.MustRegister(m.listPages, m.detailFetches, m.fallbacks, m.matches, m.runDuration)
	}
	return m
}

func (m *Metrics) listPageFetched() {
	if m == nil {
		return
	}
	m.listPages.Inc()
}

func (m *Metrics) detailFetched(ok bool) {
	if m == nil {
		return
	}
	outcome := fetchOutcomeOK
	if !ok {
		outcome = fetchOutcomeFailed
	}
	m.detailFetches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) fallbackUsed(call string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(call).Inc()
}

func (m *Metrics) runFinished(strategy Strategy, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.matches.WithLabelValues(string(strategy), result).Inc()
	m.runDuration.WithLabelValues(string(strategy)).Observe(elapsed.Seconds())
}
