package reconciliation

import "time"

// Strategy names a candidate discovery strategy.
type Strategy string

const (
	StrategyExplicit  Strategy = "explicit"
	StrategyReference Strategy = "reference"
	StrategyHeuristic Strategy = "heuristic"
)

// Diagnostics explains what one strategy run did. It is produced for every
// run, including runs that found nothing.
type Diagnostics struct {
	RunID              string        `json:"runId"`
	Strategy           Strategy      `json:"strategy"`
	CandidatesSeen     int           `json:"candidatesSeen"`
	CandidatesFiltered int           `json:"candidatesFiltered"`
	DetailFetches      int           `json:"detailFetches"`
	DetailFailures     int           `json:"detailFailures"`
	ListPagesFetched   int           `json:"listPagesFetched"`
	BestScore          float64       `json:"bestScore"`
	Elapsed            time.Duration `json:"elapsed"`
	TimedOut           bool          `json:"timedOut"`
	FetchLimitReached  bool          `json:"fetchLimitReached"`
	ListFallbackUsed   bool          `json:"listFallbackUsed"`
	DetailFallbackUsed bool          `json:"detailFallbackUsed"`
	FallbackStatusCode int           `json:"fallbackStatusCode,omitempty"`
	YearsSearched      []int         `json:"yearsSearched,omitempty"`
	DateWindowApplied  bool          `json:"dateWindowApplied"`
}

// MatchOutcome is the result of one strategy. Match is nil when nothing
// was accepted.
type MatchOutcome struct {
	Match       *VoucherMatchResult `json:"match"`
	Diagnostics Diagnostics         `json:"diagnostics"`
}
