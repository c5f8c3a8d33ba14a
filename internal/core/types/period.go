package types

import (
	"fmt"
	"time"
)

// Period is an accounting month in fixed-width "YYYY-MM" form.
// Lexicographic order equals chronological order, which the store relies on
// for range filters.
type Period string

const periodLayout = "2006-01"

// PeriodOf returns the period containing t (UTC).
func PeriodOf(t time.Time) Period {
	return Period(t.UTC().Format(periodLayout))
}

// ParsePeriod validates s as YYYY-MM.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse(periodLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid period %q: expected YYYY-MM", s)
	}
	return PeriodOf(t), nil
}

// String implements fmt.Stringer.
func (p Period) String() string { return string(p) }

// Before reports whether p is strictly earlier than other.
func (p Period) Before(other Period) bool { return p < other }

