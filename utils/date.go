package utils

import "time"

// Stay ranges are half-open [start, end) nights: a booking from the 10th to
// the 12th occupies the nights of the 10th and the 11th.

// DateOnly truncates t to midnight UTC. All daily schedule keys go through
// this so (unitId, date) stays unique regardless of the caller's timezone.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of nights in [start, endExclusive).
func DaysBetween(start, endExclusive time.Time) int {
	start = DateOnly(start)
	endExclusive = DateOnly(endExclusive)
	return int(endExclusive.Sub(start).Hours() / 24)
}

// EachDay calls fn for every date in [start, endExclusive) and stops early if
// fn returns false.
func EachDay(start, endExclusive time.Time, fn func(day time.Time) bool) {
	for d := DateOnly(start); d.Before(DateOnly(endExclusive)); d = d.AddDate(0, 0, 1) {
		if !fn(d) {
			return
		}
	}
}

// AbsDays returns the absolute distance between two dates in whole days.
func AbsDays(a, b time.Time) int {
	d := DaysBetween(b, a)
	if d < 0 {
		return -d
	}
	return d
}
