package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func override(unitId uint, d time.Time, price string) DailyScheduleEntry {
	p := dec(price)
	return DailyScheduleEntry{UnitID: unitId, Date: d, Status: DayStatusAvailable, PriceOverride: &p}
}

func TestPriceFromScheduleMixesOverridesAndBase(t *testing.T) {
	// Two-night stay, base 100, one night overridden to 150.
	byDate := map[time.Time]DailyScheduleEntry{
		day("2025-07-01"): override(1, day("2025-07-01"), "150"),
	}

	res := priceFromSchedule(byDate, 1, day("2025-07-01"), day("2025-07-03"), dec("100"))
	if res.TotalDays != 2 {
		t.Fatalf("TotalDays = %d, want 2", res.TotalDays)
	}
	if !res.TotalPrice.Equal(dec("250")) {
		t.Fatalf("TotalPrice = %s, want 250", res.TotalPrice)
	}
	if !res.AveragePerDay.Equal(dec("125")) {
		t.Fatalf("AveragePerDay = %s, want 125", res.AveragePerDay)
	}
	if res.DaysWithCustomPricing != 1 || res.DaysWithBasePrice != 1 {
		t.Fatalf("custom/base split = %d/%d, want 1/1", res.DaysWithCustomPricing, res.DaysWithBasePrice)
	}
	if len(res.PerDayBreakdown) != 2 {
		t.Fatalf("breakdown has %d days, want 2", len(res.PerDayBreakdown))
	}
	if !res.PerDayBreakdown[0].Custom || !res.PerDayBreakdown[0].Price.Equal(dec("150")) {
		t.Fatalf("first night = %+v, want custom 150", res.PerDayBreakdown[0])
	}
	if res.PerDayBreakdown[1].Custom || !res.PerDayBreakdown[1].Price.Equal(dec("100")) {
		t.Fatalf("second night = %+v, want base 100", res.PerDayBreakdown[1])
	}
}

func TestPriceFromScheduleExcludesCheckoutDay(t *testing.T) {
	// An override on the checkout day must not be charged.
	byDate := map[time.Time]DailyScheduleEntry{
		day("2025-07-03"): override(1, day("2025-07-03"), "999"),
	}

	res := priceFromSchedule(byDate, 1, day("2025-07-01"), day("2025-07-03"), dec("100"))
	if !res.TotalPrice.Equal(dec("200")) {
		t.Fatalf("TotalPrice = %s, want 200", res.TotalPrice)
	}
}

func TestCheapestNightSkipsTakenDays(t *testing.T) {
	cheap := dec("80")
	byDate := map[time.Time]DailyScheduleEntry{
		// Cheapest override sits on a booked day and must not count.
		day("2025-07-01"): {UnitID: 1, Date: day("2025-07-01"), Status: DayStatusBooked, PriceOverride: &cheap, BookingID: uptr(3)},
		day("2025-07-02"): override(1, day("2025-07-02"), "90"),
	}

	got := CheapestNight(byDate, day("2025-07-01"), day("2025-07-05"), dec("100"))
	if !got.Equal(dec("90")) {
		t.Fatalf("CheapestNight = %s, want 90", got)
	}
}

func TestCheapestNightFallsBackWhenFullyTaken(t *testing.T) {
	byDate := bookedDays(3, "2025-07-01", "2025-07-05")

	got := CheapestNight(byDate, day("2025-07-01"), day("2025-07-05"), dec("100"))
	if !got.Equal(dec("100")) {
		t.Fatalf("CheapestNight = %s, want base 100", got)
	}
}
