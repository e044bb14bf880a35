package utils

import (
	"testing"
	"time"
)

func TestDaysBetweenHalfOpen(t *testing.T) {
	start := time.Date(2025, 6, 9, 15, 30, 0, 0, time.UTC)
	end := time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC)
	if got := DaysBetween(start, end); got != 2 {
		t.Fatalf("DaysBetween = %d, want 2", got)
	}
	if got := DaysBetween(end, end); got != 0 {
		t.Fatalf("empty range = %d, want 0", got)
	}
}

func TestEachDayStopsBeforeEnd(t *testing.T) {
	start := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC)

	var seen []time.Time
	EachDay(start, end, func(day time.Time) bool {
		seen = append(seen, day)
		return true
	})
	if len(seen) != 3 {
		t.Fatalf("visited %d days, want 3", len(seen))
	}
	if seen[len(seen)-1].Equal(end) {
		t.Fatal("end date must be excluded")
	}

	var count int
	EachDay(start, end, func(time.Time) bool {
		count++
		return false
	})
	if count != 1 {
		t.Fatalf("early stop visited %d days, want 1", count)
	}
}

func TestDateOnlyNormalizesToUTCMidnight(t *testing.T) {
	loc := time.FixedZone("ACST", 9*3600+1800)
	in := time.Date(2025, 6, 9, 23, 45, 0, 0, loc)
	got := DateOnly(in)
	if got.Hour() != 0 || got.Minute() != 0 || got.Location() != time.UTC {
		t.Fatalf("DateOnly = %s", got)
	}
	if got.Day() != 9 {
		t.Fatalf("DateOnly must keep the wall-clock date, got %s", got)
	}
}
