package generic

import "time"

// =============================================================================
// DATES - All leave arithmetic is at day granularity, in UTC
// =============================================================================

const DateLayout = "2006-01-02"

// Date builds a UTC midnight.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// TruncateDay drops the clock part of t, keeping its calendar day.
func TruncateDay(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

// Today returns the current UTC day.
func Today() time.Time { return TruncateDay(time.Now().UTC()) }

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// DaysBetween counts calendar days from from to to, negative when to is earlier.
func DaysBetween(from, to time.Time) int {
	return int(TruncateDay(to).Sub(TruncateDay(from)).Hours() / 24)
}

// MonthsBetween counts completed calendar months from from to to.
// A month completes on the same day-of-month (or the last day of a shorter month).
func MonthsBetween(from, to time.Time) int {
	from, to = TruncateDay(from), TruncateDay(to)
	if to.Before(from) {
		return 0
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()-from.Month())
	if to.Day() < from.Day() && to.Day() != EndOfMonth(to.Year(), to.Month()).Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// AnniversaryIn returns the anniversary of anchor falling in year.
// A Feb 29 anchor lands on Feb 28 in non-leap years.
func AnniversaryIn(anchor time.Time, year int) time.Time {
	day := anchor.Day()
	if last := EndOfMonth(year, anchor.Month()).Day(); day > last {
		day = last
	}
	return Date(year, anchor.Month(), day)
}

func StartOfYear(year int) time.Time { return Date(year, time.January, 1) }
func EndOfYear(year int) time.Time   { return Date(year, time.December, 31) }
func EndOfMonth(year int, month time.Month) time.Time {
	return Date(year, month+1, 1).AddDate(0, 0, -1)
}
