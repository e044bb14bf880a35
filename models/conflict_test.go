package models

import (
	"testing"
	"time"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func uptr(v uint) *uint { return &v }

func bookedDays(bookingId uint, from, toExclusive string) map[time.Time]DailyScheduleEntry {
	out := map[time.Time]DailyScheduleEntry{}
	for d := day(from); d.Before(day(toExclusive)); d = d.AddDate(0, 0, 1) {
		out[d] = DailyScheduleEntry{UnitID: 1, Date: d, Status: DayStatusBooked, BookingID: uptr(bookingId)}
	}
	return out
}

func TestDetectConflictsOverlapIsHalfOpen(t *testing.T) {
	// Existing booking occupies the nights of Jun 10 and 11. A request for
	// Jun 9-11 overlaps only on the night of Jun 10; checkout day is free.
	byDate := bookedDays(7, "2025-06-10", "2025-06-12")

	res := detectConflicts(byDate, 1, day("2025-06-09"), day("2025-06-11"), nil)
	if res.IsAvailable {
		t.Fatal("expected a conflict")
	}
	if len(res.Conflicts) != 1 {
		t.Fatalf("expected 1 conflicting period, got %d", len(res.Conflicts))
	}
	c := res.Conflicts[0]
	if !c.Start.Equal(day("2025-06-10")) || !c.End.Equal(day("2025-06-11")) {
		t.Fatalf("conflict = [%s, %s), want [2025-06-10, 2025-06-11)",
			c.Start.Format("2006-01-02"), c.End.Format("2006-01-02"))
	}
	if c.Status != DayStatusBooked || c.BookingID == nil || *c.BookingID != 7 {
		t.Fatalf("conflict cause = %+v", c)
	}
}

func TestDetectConflictsBackToBackStays(t *testing.T) {
	// New stay starting on the previous guest's checkout day does not conflict.
	byDate := bookedDays(7, "2025-06-10", "2025-06-12")

	res := detectConflicts(byDate, 1, day("2025-06-12"), day("2025-06-14"), nil)
	if !res.IsAvailable {
		t.Fatalf("expected no conflict, got %+v", res.Conflicts)
	}
}

func TestDetectConflictsExcludesOwnBooking(t *testing.T) {
	byDate := bookedDays(7, "2025-06-10", "2025-06-12")

	res := detectConflicts(byDate, 1, day("2025-06-10"), day("2025-06-12"), uptr(7))
	if !res.IsAvailable {
		t.Fatalf("own booking days must not conflict during edit: %+v", res.Conflicts)
	}

	res = detectConflicts(byDate, 1, day("2025-06-10"), day("2025-06-12"), uptr(8))
	if res.IsAvailable {
		t.Fatal("another booking's days must still conflict")
	}
}

func TestDetectConflictsFoldsRunsByCause(t *testing.T) {
	byDate := bookedDays(7, "2025-06-10", "2025-06-12")
	for d := day("2025-06-12"); d.Before(day("2025-06-14")); d = d.AddDate(0, 0, 1) {
		byDate[d] = DailyScheduleEntry{UnitID: 1, Date: d, Status: DayStatusBlocked, Reason: "maintenance"}
	}

	res := detectConflicts(byDate, 1, day("2025-06-09"), day("2025-06-15"), nil)
	if len(res.Conflicts) != 2 {
		t.Fatalf("expected 2 periods (booked run, blocked run), got %d: %+v", len(res.Conflicts), res.Conflicts)
	}
	if res.Conflicts[0].Status != DayStatusBooked || res.Conflicts[1].Status != DayStatusBlocked {
		t.Fatalf("unexpected fold: %+v", res.Conflicts)
	}
	if res.Conflicts[1].Reason != "maintenance" {
		t.Fatalf("reason lost in fold: %+v", res.Conflicts[1])
	}
}

func TestAlternativeWindowsOrderedByDistance(t *testing.T) {
	// Preferred window Jun 10-12 is booked. Horizon Jun 5 .. Jun 17.
	byDate := bookedDays(7, "2025-06-10", "2025-06-12")

	alts := alternativeWindows(byDate, day("2025-06-10"), day("2025-06-12"),
		day("2025-06-05"), day("2025-06-17"))
	if len(alts) == 0 {
		t.Fatal("expected alternatives")
	}
	for i := 1; i < len(alts); i++ {
		prev, cur := alts[i-1], alts[i]
		if cur.DistanceDays < prev.DistanceDays {
			t.Fatalf("alternatives not sorted by distance: %+v before %+v", prev, cur)
		}
		if cur.DistanceDays == prev.DistanceDays && cur.Start.Before(prev.Start) {
			t.Fatalf("distance ties must break toward the earlier start: %+v before %+v", prev, cur)
		}
	}
	// Nearest windows are one day off: Jun 8-10 (before) and Jun 12-14 (after),
	// equidistant, earlier one first. Jun 9-11 and Jun 11-13 overlap the booking.
	if !alts[0].Start.Equal(day("2025-06-08")) || alts[0].DistanceDays != 2 {
		t.Fatalf("nearest alternative = %+v, want start 2025-06-08 distance 2", alts[0])
	}
	if !alts[1].Start.Equal(day("2025-06-12")) || alts[1].DistanceDays != 2 {
		t.Fatalf("second alternative = %+v, want start 2025-06-12 distance 2", alts[1])
	}
	for _, a := range alts {
		if a.End.Sub(a.Start) != 48*time.Hour {
			t.Fatalf("alternative window length changed: %+v", a)
		}
	}
}

func TestAlternativeWindowsNoneWhenHorizonFull(t *testing.T) {
	byDate := bookedDays(7, "2025-06-01", "2025-07-01")

	alts := alternativeWindows(byDate, day("2025-06-10"), day("2025-06-12"),
		day("2025-06-05"), day("2025-06-20"))
	if len(alts) != 0 {
		t.Fatalf("expected no alternatives in a fully booked horizon, got %+v", alts)
	}
}

func TestResolveOptionsZeroHorizonIsNotDefaulted(t *testing.T) {
	before, after := ResolveOptions{}.horizon()
	if before != 30 || after != 30 {
		t.Fatalf("unset horizon = (%d, %d), want (30, 30)", before, after)
	}

	zero := 0
	before, after = ResolveOptions{MaxDaysBefore: &zero}.horizon()
	if before != 0 {
		t.Fatalf("explicit zero before-horizon widened to %d", before)
	}
	if after != 30 {
		t.Fatalf("after-horizon = %d, want the 30 default", after)
	}

	ten := 10
	before, after = ResolveOptions{MaxDaysBefore: &ten, MaxDaysAfter: &zero}.horizon()
	if before != 10 || after != 0 {
		t.Fatalf("horizon = (%d, %d), want (10, 0)", before, after)
	}
}
