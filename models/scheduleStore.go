package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/akarakonline-arch/hggzk-sub012/utils"
)

// AcquireUnitScheduleLock serializes schedule mutations per unit across
// instances using MySQL advisory locks. Two concurrent booking attempts for
// the same unit must not both pass the availability check.
// NOTE: GET_LOCK is connection-scoped; acquire and release must run on the
// same pinned connection.
func AcquireUnitScheduleLock(conn *gorm.DB, unitId uint) error {
	lockName := fmt.Sprintf("unitsched:%d", unitId)
	var ok int
	if err := conn.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire schedule lock for unit_id=%d", unitId)
	}
	return nil
}

func ReleaseUnitScheduleLock(conn *gorm.DB, unitId uint) {
	lockName := fmt.Sprintf("unitsched:%d", unitId)
	var _ok int
	_ = conn.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

// withUnitScheduleLock pins one connection, takes the unit lock on it, and
// runs fn in a transaction on that same connection. The lock is released only
// after the transaction commits: the next holder's availability check must
// observe this writer's rows, never a pre-commit snapshot.
func withUnitScheduleLock(ctx context.Context, db *gorm.DB, unitId uint, fn func(tx *gorm.DB) error) error {
	return db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := AcquireUnitScheduleLock(conn, unitId); err != nil {
			return err
		}
		defer ReleaseUnitScheduleLock(conn, unitId)
		return conn.Transaction(fn)
	})
}

// ApplyBooking marks every night of [start, endExclusive) as Booked for
// bookingId. The availability re-check runs inside the transaction and the
// unit lock is held until that transaction commits, so the no-double-booking
// invariant holds under concurrency. On conflict, nothing is written and the
// ConflictResult is returned for the caller to surface or resolve.
func ApplyBooking(ctx context.Context, db *gorm.DB, unitId uint, bookingId uint, start, endExclusive time.Time) (*ConflictResult, error) {
	if !utils.DateOnly(start).Before(utils.DateOnly(endExclusive)) {
		return nil, utils.NewValidationError("range", "start must be before end")
	}

	var conflict *ConflictResult
	err := withUnitScheduleLock(ctx, db, unitId, func(tx *gorm.DB) error {
		res, err := CheckAvailability(ctx, tx, unitId, start, endExclusive, &bookingId)
		if err != nil {
			return err
		}
		conflict = res
		if !res.IsAvailable {
			return nil
		}

		var upserts []DailyScheduleEntry
		utils.EachDay(start, endExclusive, func(day time.Time) bool {
			upserts = append(upserts, DailyScheduleEntry{
				UnitID:    unitId,
				Date:      day,
				Status:    DayStatusBooked,
				BookingID: &bookingId,
			})
			return true
		})
		// Lazily created rows may already exist carrying a price override.
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "unit_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "booking_id", "updated_at"}),
		}).Create(&upserts).Error
	})
	if err != nil {
		return nil, err
	}
	return conflict, nil
}

// ReleaseBooking reverts the nights owned by bookingId to Available. Rows
// holding a price override are kept (status cleared); bare rows are deleted.
func ReleaseBooking(ctx context.Context, db *gorm.DB, unitId uint, bookingId uint) error {
	return withUnitScheduleLock(ctx, db, unitId, func(tx *gorm.DB) error {
		if err := tx.Model(&DailyScheduleEntry{}).
			Where("unit_id = ? AND booking_id = ? AND price_override IS NOT NULL", unitId, bookingId).
			Updates(map[string]interface{}{"status": DayStatusAvailable, "booking_id": nil}).Error; err != nil {
			return err
		}
		return tx.
			Where("unit_id = ? AND booking_id = ? AND price_override IS NULL", unitId, bookingId).
			Delete(&DailyScheduleEntry{}).Error
	})
}

// ApplyBlock marks [start, endExclusive) as Blocked with a reason. Nights
// already Booked are left untouched and reported back as conflicts.
func ApplyBlock(ctx context.Context, db *gorm.DB, unitId uint, start, endExclusive time.Time, reason string) (*ConflictResult, error) {
	if !utils.DateOnly(start).Before(utils.DateOnly(endExclusive)) {
		return nil, utils.NewValidationError("range", "start must be before end")
	}

	var conflict *ConflictResult
	err := withUnitScheduleLock(ctx, db, unitId, func(tx *gorm.DB) error {
		res, err := CheckAvailability(ctx, tx, unitId, start, endExclusive, nil)
		if err != nil {
			return err
		}
		conflict = res
		for _, c := range res.Conflicts {
			if c.Status == DayStatusBooked {
				// Blocks never displace bookings.
				return nil
			}
		}

		var upserts []DailyScheduleEntry
		utils.EachDay(start, endExclusive, func(day time.Time) bool {
			upserts = append(upserts, DailyScheduleEntry{
				UnitID: unitId,
				Date:   day,
				Status: DayStatusBlocked,
				Reason: reason,
			})
			return true
		})
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "unit_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "reason", "updated_at"}),
		}).Create(&upserts).Error
	})
	if err != nil {
		return nil, err
	}
	return conflict, nil
}

// RemoveBlock reverts Blocked nights in [start, endExclusive) to Available.
func RemoveBlock(ctx context.Context, db *gorm.DB, unitId uint, start, endExclusive time.Time) error {
	return withUnitScheduleLock(ctx, db, unitId, func(tx *gorm.DB) error {
		return clearBlocksTx(tx, unitId, start, endExclusive)
	})
}

func clearBlocks(ctx context.Context, db *gorm.DB, unitId uint, start, endExclusive time.Time) error {
	return withUnitScheduleLock(ctx, db, unitId, func(tx *gorm.DB) error {
		return clearBlocksTx(tx, unitId, start, endExclusive)
	})
}

func clearBlocksTx(tx *gorm.DB, unitId uint, start, endExclusive time.Time) error {
	if err := tx.Model(&DailyScheduleEntry{}).
		Where("unit_id = ? AND date >= ? AND date < ? AND status = ? AND price_override IS NOT NULL",
			unitId, utils.DateOnly(start), utils.DateOnly(endExclusive), DayStatusBlocked).
		Updates(map[string]interface{}{"status": DayStatusAvailable, "reason": ""}).Error; err != nil {
		return err
	}
	return tx.
		Where("unit_id = ? AND date >= ? AND date < ? AND status = ? AND price_override IS NULL",
			unitId, utils.DateOnly(start), utils.DateOnly(endExclusive), DayStatusBlocked).
		Delete(&DailyScheduleEntry{}).Error
}

// SetPriceOverride creates or updates the lazily created row for one night.
// A nil price removes the override; a row left Available with no override is
// deleted so the grid stays sparse.
func SetPriceOverride(ctx context.Context, db *gorm.DB, unitId uint, date time.Time, price *decimal.Decimal) error {
	day := utils.DateOnly(date)
	return withUnitScheduleLock(ctx, db, unitId, func(tx *gorm.DB) error {
		var entry DailyScheduleEntry
		err := tx.Where("unit_id = ? AND date = ?", unitId, day).First(&entry).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if price == nil {
				return nil
			}
			return tx.Create(&DailyScheduleEntry{
				UnitID:        unitId,
				Date:          day,
				Status:        DayStatusAvailable,
				PriceOverride: price,
			}).Error
		case err != nil:
			return err
		}

		if price == nil && entry.Status == DayStatusAvailable {
			return tx.Delete(&entry).Error
		}
		return tx.Model(&entry).Update("price_override", price).Error
	})
}

// GetAvailabilityPeriods is the exposed wrapper over DerivePeriods.
func GetAvailabilityPeriods(ctx context.Context, db *gorm.DB, unitId uint, from, toExclusive time.Time) ([]AvailabilityPeriod, error) {
	if _, err := GetUnit(db.WithContext(ctx), unitId); err != nil {
		return nil, err
	}
	return DerivePeriods(db.WithContext(ctx), unitId, from, toExclusive)
}
