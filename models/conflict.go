package models

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/akarakonline-arch/hggzk-sub012/utils"
)

// ConflictingPeriod is a contiguous sub-range of a requested stay that is
// Blocked or Booked. End is exclusive.
type ConflictingPeriod struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Status    DayStatus `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	BookingID *uint     `json:"bookingID,omitempty"`
}

// PropertyFilterMismatch annotates a search result that misses a soft filter.
type PropertyFilterMismatch struct {
	FilterType string           `json:"filterType"`
	Requested  string           `json:"requested"`
	Actual     string           `json:"actual"`
	Severity   MismatchSeverity `json:"severity"`
}

type ConflictResult struct {
	UnitID      uint                     `json:"unitID"`
	Start       time.Time                `json:"start"`
	End         time.Time                `json:"end"`
	IsAvailable bool                     `json:"isAvailable"`
	Conflicts   []ConflictingPeriod      `json:"conflicts,omitempty"`
	Mismatches  []PropertyFilterMismatch `json:"mismatches,omitempty"`
}

// AvailablePeriod is a fully available candidate window, ranked by its
// distance in days from the preferred start.
type AvailablePeriod struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	DistanceDays int       `json:"distanceDays"`
}

type ConflictResolutionResult struct {
	UnitID       uint                 `json:"unitID"`
	Strategy     ResolutionStrategy   `json:"strategy"`
	Resolved     bool                 `json:"resolved"`
	Message      string               `json:"message,omitempty"`
	Conflict     *ConflictResult      `json:"conflict,omitempty"`
	ShiftedTo    *AvailablePeriod     `json:"shiftedTo,omitempty"`
	Segments     []AvailabilityPeriod `json:"segments,omitempty"`
	Alternatives []AvailablePeriod    `json:"alternatives,omitempty"`
}

// CheckAvailability detects overlaps between [start, endExclusive) and
// existing Booked/Blocked days. A conflict is a result value, not an error.
// excludeBookingId lets a booking re-check its own dates during edits.
func CheckAvailability(ctx context.Context, db *gorm.DB, unitId uint, start, endExclusive time.Time, excludeBookingId *uint) (*ConflictResult, error) {
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
	return detectConflicts(byDate, unitId, start, endExclusive, excludeBookingId), nil
}

// detectConflicts is the pure overlap core: it walks the half-open day range
// and folds consecutive conflicting days with identical cause into one period.
func detectConflicts(byDate map[time.Time]DailyScheduleEntry, unitId uint, start, endExclusive time.Time, excludeBookingId *uint) *ConflictResult {
	res := &ConflictResult{
		UnitID:      unitId,
		Start:       utils.DateOnly(start),
		End:         utils.DateOnly(endExclusive),
		IsAvailable: true,
	}
	var cur *ConflictingPeriod
	utils.EachDay(start, endExclusive, func(day time.Time) bool {
		e, ok := byDate[day]
		conflicting := ok && e.Status != DayStatusAvailable
		if conflicting && excludeBookingId != nil && e.BookingID != nil && *e.BookingID == *excludeBookingId {
			conflicting = false
		}
		if !conflicting {
			if cur != nil {
				res.Conflicts = append(res.Conflicts, *cur)
				cur = nil
			}
			return true
		}

		res.IsAvailable = false
		sameRun := cur != nil && cur.Status == e.Status && cur.Reason == e.Reason &&
			uintPtrEq(cur.BookingID, e.BookingID)
		if sameRun {
			cur.End = day.AddDate(0, 0, 1)
			return true
		}
		if cur != nil {
			res.Conflicts = append(res.Conflicts, *cur)
		}
		cur = &ConflictingPeriod{
			Start:     day,
			End:       day.AddDate(0, 0, 1),
			Status:    e.Status,
			Reason:    e.Reason,
			BookingID: e.BookingID,
		}
		return true
	})
	if cur != nil {
		res.Conflicts = append(res.Conflicts, *cur)
	}
	return res
}

// GetAlternativePeriods returns every fully available window of the requested
// length inside [preferredStart-maxDaysBefore, preferredEnd+maxDaysAfter),
// ordered by absolute day distance from the preferred start, ties broken by
// the earlier date. The horizon bounds are a hard input contract: this is a
// bounded linear scan, not a global search.
func GetAlternativePeriods(ctx context.Context, db *gorm.DB, unitId uint, preferredStart, preferredEnd time.Time, maxDaysBefore, maxDaysAfter int) ([]AvailablePeriod, error) {
	if !utils.DateOnly(preferredStart).Before(utils.DateOnly(preferredEnd)) {
		return nil, utils.NewValidationError("range", "start must be before end")
	}
	if maxDaysBefore < 0 || maxDaysAfter < 0 {
		return nil, utils.NewValidationError("horizon", "maxDaysBefore/maxDaysAfter must be >= 0")
	}
	if _, err := GetUnit(db.WithContext(ctx), unitId); err != nil {
		return nil, err
	}

	horizonStart := utils.DateOnly(preferredStart).AddDate(0, 0, -maxDaysBefore)
	horizonEnd := utils.DateOnly(preferredEnd).AddDate(0, 0, maxDaysAfter)
	byDate, err := scheduleRange(db.WithContext(ctx), unitId, horizonStart, horizonEnd)
	if err != nil {
		return nil, err
	}
	return alternativeWindows(byDate, preferredStart, preferredEnd, horizonStart, horizonEnd), nil
}

func alternativeWindows(byDate map[time.Time]DailyScheduleEntry, preferredStart, preferredEnd, horizonStart, horizonEnd time.Time) []AvailablePeriod {
	nights := utils.DaysBetween(preferredStart, preferredEnd)
	prefStart := utils.DateOnly(preferredStart)

	var out []AvailablePeriod
	for s := horizonStart; !s.AddDate(0, 0, nights).After(horizonEnd); s = s.AddDate(0, 0, 1) {
		e := s.AddDate(0, 0, nights)
		free := true
		utils.EachDay(s, e, func(day time.Time) bool {
			if entry, ok := byDate[day]; ok && entry.Status != DayStatusAvailable {
				free = false
				return false
			}
			return true
		})
		if free {
			out = append(out, AvailablePeriod{
				Start:        s,
				End:          e,
				DistanceDays: utils.AbsDays(s, prefStart),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceDays != out[j].DistanceDays {
			return out[i].DistanceDays < out[j].DistanceDays
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// ResolveOptions bounds the alternative-window scan. Nil means the 30-day
// default; zero is a valid one-sided horizon.
type ResolveOptions struct {
	MaxDaysBefore *int
	MaxDaysAfter  *int
}

func (o ResolveOptions) horizon() (before, after int) {
	before, after = 30, 30
	if o.MaxDaysBefore != nil {
		before = *o.MaxDaysBefore
	}
	if o.MaxDaysAfter != nil {
		after = *o.MaxDaysAfter
	}
	return before, after
}

// ResolveConflicts applies a resolution strategy to a conflicting request.
// Only OverrideBlock mutates state; the other strategies are advisory and
// return what the caller would have to book instead.
func ResolveConflicts(ctx context.Context, db *gorm.DB, unitId uint, start, endExclusive time.Time, strategy ResolutionStrategy, currentBookingId *uint, opts ResolveOptions) (*ConflictResolutionResult, error) {
	maxBefore, maxAfter := opts.horizon()

	conflict, err := CheckAvailability(ctx, db, unitId, start, endExclusive, currentBookingId)
	if err != nil {
		return nil, err
	}
	res := &ConflictResolutionResult{UnitID: unitId, Strategy: strategy, Conflict: conflict}
	if conflict.IsAvailable {
		res.Resolved = true
		res.Message = "no conflict detected"
		return res, nil
	}

	switch strategy {
	case ResolutionRejectOnAny:
		res.Message = "conflicting periods present; rejected by strategy"
		alts, err := GetAlternativePeriods(ctx, db, unitId, start, endExclusive, maxBefore, maxAfter)
		if err != nil {
			return nil, err
		}
		res.Alternatives = alts
		return res, nil

	case ResolutionShiftToNearestAvailable:
		alts, err := GetAlternativePeriods(ctx, db, unitId, start, endExclusive, maxBefore, maxAfter)
		if err != nil {
			return nil, err
		}
		if len(alts) == 0 {
			res.Message = "no available window of the requested length within the horizon"
			return res, nil
		}
		res.Resolved = true
		res.ShiftedTo = &alts[0]
		res.Alternatives = alts
		return res, nil

	case ResolutionSplitIfPossible:
		unit, err := GetUnit(db.WithContext(ctx), unitId)
		if err != nil {
			return nil, err
		}
		if !unit.UnitType.AllowsSplitStays() {
			res.Message = "unit type does not allow multi-segment stays"
			return res, nil
		}
		periods, err := DerivePeriods(db.WithContext(ctx), unitId, start, endExclusive)
		if err != nil {
			return nil, err
		}
		for _, p := range periods {
			if p.Status == DayStatusAvailable {
				res.Segments = append(res.Segments, p)
			}
		}
		if len(res.Segments) == 0 {
			res.Message = "no available segments within the requested range"
			return res, nil
		}
		res.Resolved = true
		return res, nil

	case ResolutionOverrideBlock:
		if !utils.IsPrivilegedContext(ctx) {
			res.Message = "override requires a privileged caller"
			return res, nil
		}
		for _, c := range conflict.Conflicts {
			if c.Status == DayStatusBooked {
				res.Message = "cannot override a booked period"
				return res, nil
			}
		}
		if err := clearBlocks(ctx, db, unitId, start, endExclusive); err != nil {
			return nil, err
		}
		res.Resolved = true
		res.Message = "manual blocks cleared"
		return res, nil
	}

	return nil, utils.NewValidationError("strategy", "unknown resolution strategy")
}
