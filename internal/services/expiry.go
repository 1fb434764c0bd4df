package services

import "time"

// durationMonths maps the plan duration labels sold to customers. Unknown
// labels fall back to one month.
var durationMonths = map[string]int{
	"1 Month":  1,
	"3 Months": 3,
	"7 Months": 7,
}

// MonthsForDuration returns the number of calendar months a duration label buys.
func MonthsForDuration(duration string) int {
	if m, ok := durationMonths[duration]; ok {
		return m
	}
	return 1
}

// CalculateExpiryDate adds the duration's months to start. The day of month is
// kept when the target month has it and clamped to the month's last day
// otherwise, so Jan 31 + 1 month is the last day of February, never March.
func CalculateExpiryDate(duration string, start time.Time) time.Time {
	return addMonthsClamped(start, MonthsForDuration(duration))
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()

	// Day 1 of the target month never overflows.
	target := time.Date(year, month+time.Month(months), 1, hour, minute, sec, t.Nanosecond(), t.Location())
	last := daysIn(target.Year(), target.Month(), t.Location())
	if day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, hour, minute, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
