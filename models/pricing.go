package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/akarakonline-arch/hggzk-sub012/utils"
)

// DayPrice is one night in a pricing breakdown.
type DayPrice struct {
	Date   time.Time       `json:"date"`
	Price  decimal.Decimal `json:"price"`
	Custom bool            `json:"custom"`
}

type PricingResult struct {
	UnitID                uint            `json:"unitID"`
	Start                 time.Time       `json:"start"`
	End                   time.Time       `json:"end"`
	Currency              string          `json:"currency"`
	TotalDays             int             `json:"totalDays"`
	DaysWithCustomPricing int             `json:"daysWithCustomPricing"`
	DaysWithBasePrice     int             `json:"daysWithBasePrice"`
	TotalPrice            decimal.Decimal `json:"totalPrice"`
	AveragePerDay         decimal.Decimal `json:"averagePerDay"`
	PerDayBreakdown       []DayPrice      `json:"perDayBreakdown"`
}

// CalculatePriceForPeriod resolves the price of a half-open [start, end) stay
// from the daily schedule, falling back to basePrice for days without an
// override. The unit must exist: a missing unit is NotFound, never "free".
func CalculatePriceForPeriod(ctx context.Context, db *gorm.DB, unitId uint, start, endExclusive time.Time, basePrice decimal.Decimal, currency string) (*PricingResult, error) {
	if !utils.DateOnly(start).Before(utils.DateOnly(endExclusive)) {
		return nil, utils.NewValidationError("range", "start must be before end")
	}
	if _, err := GetUnit(db.WithContext(ctx), unitId); err != nil {
		return nil, err
	}
	byDate, err := scheduleRange(db.WithContext(ctx), unitId, start, endExclusive)
	if err != nil {
		return nil, err
	}
	res := priceFromSchedule(byDate, unitId, start, endExclusive, basePrice)
	res.Currency = currency
	return res, nil
}

// priceFromSchedule is the pure pricing core over an in-memory day grid.
func priceFromSchedule(byDate map[time.Time]DailyScheduleEntry, unitId uint, start, endExclusive time.Time, basePrice decimal.Decimal) *PricingResult {
	res := &PricingResult{
		UnitID:     unitId,
		Start:      utils.DateOnly(start),
		End:        utils.DateOnly(endExclusive),
		TotalPrice: decimal.Zero,
	}
	utils.EachDay(start, endExclusive, func(day time.Time) bool {
		price := basePrice
		custom := false
		if e, ok := byDate[day]; ok && e.PriceOverride != nil {
			price = *e.PriceOverride
			custom = true
		}
		if custom {
			res.DaysWithCustomPricing++
		} else {
			res.DaysWithBasePrice++
		}
		res.TotalDays++
		res.TotalPrice = res.TotalPrice.Add(price)
		res.PerDayBreakdown = append(res.PerDayBreakdown, DayPrice{Date: day, Price: price, Custom: custom})
		return true
	})
	if res.TotalDays > 0 {
		res.AveragePerDay = res.TotalPrice.Div(decimal.NewFromInt(int64(res.TotalDays)))
	}
	return res
}

// CheapestNight returns the lowest resolvable nightly price over
// [start, endExclusive), counting only days not Blocked or Booked. Used by
// the indexer for the effective-price window. Returns basePrice when every
// day is taken.
func CheapestNight(byDate map[time.Time]DailyScheduleEntry, start, endExclusive time.Time, basePrice decimal.Decimal) decimal.Decimal {
	cheapest := decimal.Decimal{}
	found := false
	utils.EachDay(start, endExclusive, func(day time.Time) bool {
		price := basePrice
		if e, ok := byDate[day]; ok {
			if e.Status != DayStatusAvailable {
				return true
			}
			if e.PriceOverride != nil {
				price = *e.PriceOverride
			}
		}
		if !found || price.LessThan(cheapest) {
			cheapest = price
			found = true
		}
		return true
	})
	if !found {
		return basePrice
	}
	return cheapest
}
