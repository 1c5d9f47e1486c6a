package reconciliation

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// dateLayouts are tried in order; the ledger uses ISO dates, source ERPs
// occasionally deliver timestamps or European notation.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"20060102",
	"02.01.2006",
	"2.1.2006",
	"2006/01/02",
}

// parseDate parses a calendar date and truncates it to midnight UTC.
func parseDate(value string) (time.Time, error) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return time.Time{}, fmt.Errorf("empty date string")
	}

	for _, layout := range dateLayouts {
		if date, err := time.Parse(layout, cleaned); err == nil {
			y, m, d := date.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s", value)
}

// dayDistance returns the absolute number of days between two dates.
func dayDistance(a, b string) (int, bool) {
	first, err := parseDate(a)
	if err != nil {
		return 0, false
	}
	second, err := parseDate(b)
	if err != nil {
		return 0, false
	}
	days := math.Abs(first.Sub(second).Hours() / 24)
	return int(math.Round(days)), true
}

func dateYear(value string) (int, bool) {
	date, err := parseDate(value)
	if err != nil {
		return 0, false
	}
	return date.Year(), true
}
