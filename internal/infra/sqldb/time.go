package sqldb

import "time"

// TimeLayout is the fixed-width UTC layout used for every timestamp column.
// Fixed width keeps lexical and chronological order identical on both dialects.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// Now returns the current time truncated to the stored precision.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a value written by FormatTime. RFC 3339 input is accepted too.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
