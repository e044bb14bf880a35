package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/akarakonline-arch/hggzk-sub012/utils"
)

// DailyScheduleEntry is the authoritative per-day availability/price record.
//
// Grain: (unit_id, date), enforced by a unique index. Rows are created lazily
// when a booking or manual block is applied; removing the owning booking or
// block deletes the row, which reads as Available. A row referenced by an
// active booking is never deleted directly.
type DailyScheduleEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	UnitID uint      `gorm:"not null;uniqueIndex:idx_unit_date,priority:1" json:"unitID"`
	Date   time.Time `gorm:"not null;uniqueIndex:idx_unit_date,priority:2" json:"date"`

	Status        DayStatus        `gorm:"size:16;not null;default:'Available'" json:"status"`
	PriceOverride *decimal.Decimal `gorm:"type:decimal(20,4)" json:"priceOverride,omitempty"`
	BookingID     *uint            `gorm:"index" json:"bookingID,omitempty"`
	Reason        string           `gorm:"size:255" json:"reason,omitempty"`
}

// AvailabilityPeriod is a contiguous run of dates sharing one status. Derived
// from DailyScheduleEntry, never stored. End is exclusive.
type AvailabilityPeriod struct {
	UnitID    uint      `json:"unitID"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Status    DayStatus `json:"status"`
	BookingID *uint     `json:"bookingID,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

func (p AvailabilityPeriod) Nights() int {
	return utils.DaysBetween(p.Start, p.End)
}

// scheduleRange loads all entries for [start, endExclusive) keyed by date.
func scheduleRange(db *gorm.DB, unitId uint, start, endExclusive time.Time) (map[time.Time]DailyScheduleEntry, error) {
	var entries []DailyScheduleEntry
	err := db.
		Where("unit_id = ? AND date >= ? AND date < ?", unitId, utils.DateOnly(start), utils.DateOnly(endExclusive)).
		Order("date ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	byDate := make(map[time.Time]DailyScheduleEntry, len(entries))
	for _, e := range entries {
		byDate[utils.DateOnly(e.Date)] = e
	}
	return byDate, nil
}

// GetScheduleRange exposes the day grid of [start, endExclusive) keyed by
// date. The indexer uses it to derive the availability summary.
func GetScheduleRange(db *gorm.DB, unitId uint, start, endExclusive time.Time) (map[time.Time]DailyScheduleEntry, error) {
	return scheduleRange(db, unitId, start, endExclusive)
}

// DerivePeriods collapses the day grid of [from, toExclusive) into contiguous
// runs. Days without a row are Available.
func DerivePeriods(db *gorm.DB, unitId uint, from, toExclusive time.Time) ([]AvailabilityPeriod, error) {
	if !utils.DateOnly(from).Before(utils.DateOnly(toExclusive)) {
		return nil, utils.NewValidationError("range", "from must be before to")
	}
	byDate, err := scheduleRange(db, unitId, from, toExclusive)
	if err != nil {
		return nil, err
	}

	var periods []AvailabilityPeriod
	var cur *AvailabilityPeriod
	utils.EachDay(from, toExclusive, func(day time.Time) bool {
		status := DayStatusAvailable
		var bookingId *uint
		reason := ""
		if e, ok := byDate[day]; ok {
			status = e.Status
			bookingId = e.BookingID
			reason = e.Reason
		}

		sameRun := cur != nil && cur.Status == status && cur.Reason == reason &&
			uintPtrEq(cur.BookingID, bookingId)
		if sameRun {
			cur.End = day.AddDate(0, 0, 1)
			return true
		}
		if cur != nil {
			periods = append(periods, *cur)
		}
		cur = &AvailabilityPeriod{
			UnitID:    unitId,
			Start:     day,
			End:       day.AddDate(0, 0, 1),
			Status:    status,
			BookingID: bookingId,
			Reason:    reason,
		}
		return true
	})
	if cur != nil {
		periods = append(periods, *cur)
	}
	return periods, nil
}

func uintPtrEq(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
