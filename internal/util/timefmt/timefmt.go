package timefmt

import "time"

// ISO8601 is the ISO-8601 format used for timestamp serialization.
const ISO8601 = "2006-01-02T15:04:05.000Z"

// Format formats a time.Time to the standard string representation.
func Format(t time.Time) string {
	return t.UTC().Format(ISO8601)
}

// Parse parses a timestamp produced by Format. The zero time is
// returned for empty or malformed input (timestamps are ordering
// hints, not load-bearing data).
func Parse(s string) time.Time {
	t, err := time.Parse(ISO8601, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
