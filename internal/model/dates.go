package model

import "time"

// The version store uses civil dates carried as UTC midnights. Two sentinels
// bound every validity window: OpenEndDate marks a version with no successor,
// and DimensionEpoch anchors reference-dimension windows far enough back that
// historical as-of lookups always resolve (anchoring them at load date breaks
// every snapshot older than the load).
var (
	OpenEndDate    = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	DimensionEpoch = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
)

// DateOf truncates a timestamp to its UTC civil date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MustDate parses a YYYY-MM-DD date and panics on malformed input.
// Intended for constants and tests.
func MustDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// NextDay returns the following civil date.
func NextDay(d time.Time) time.Time {
	return d.AddDate(0, 0, 1)
}

// PrevDay returns the preceding civil date.
func PrevDay(d time.Time) time.Time {
	return d.AddDate(0, 0, -1)
}

// MonthEnd returns the last day of the month containing d.
func MonthEnd(d time.Time) time.Time {
	firstOfNext := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1)
}

// IsOpenEnded reports whether a version's effective_to is the open sentinel.
func IsOpenEnded(d time.Time) bool {
	return d.Equal(OpenEndDate)
}
