package collection

import "time"

// DayLayout is the canonical day-granularity key format.
const DayLayout = "2006-01-02"

// legacyDayLayout matches day keys written by older clients
// (JavaScript Date.toDateString in the en-US locale).
const legacyDayLayout = "Mon Jan 02 2006"

// DayOf returns the canonical day key of t in loc.
func DayOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DayLayout)
}

// ParseDay parses a canonical or legacy day key.
func ParseDay(s string) (time.Time, bool) {
	for _, layout := range []string{DayLayout, legacyDayLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// SameDay reports whether two day keys name the same calendar day,
// whichever layout each uses. Unparseable keys match only themselves.
func SameDay(a, b string) bool {
	if a == b {
		return true
	}
	ta, okA := ParseDay(a)
	tb, okB := ParseDay(b)
	return okA && okB && ta.Equal(tb)
}

// dayLess orders day keys chronologically; unparseable keys sort last in
// byte order.
func dayLess(a, b string) bool {
	ta, okA := ParseDay(a)
	tb, okB := ParseDay(b)

	switch {
	case okA && okB:
		if ta.Equal(tb) {
			return a < b
		}
		return ta.Before(tb)
	case okA:
		return true
	case okB:
		return false
	default:
		return a < b
	}
}
