package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

// DayStatus is the availability state of one unit-day.
type DayStatus string

const (
	DayStatusAvailable DayStatus = "Available"
	DayStatusBlocked   DayStatus = "Blocked"
	DayStatusBooked    DayStatus = "Booked"
)

func (s DayStatus) Value() (driver.Value, error) {
	return string(s), nil
}

func (s *DayStatus) Scan(value interface{}) error {
	switch v := value.(type) {
	case string:
		*s = DayStatus(v)
	case []byte:
		*s = DayStatus(v)
	default:
		return fmt.Errorf("cannot scan %T into DayStatus", value)
	}
	return nil
}

// SyncStatus drives the per-unit index synchronizer state machine.
type SyncStatus string

const (
	SyncStatusPending    SyncStatus = "Pending"
	SyncStatusIndexed    SyncStatus = "Indexed"
	SyncStatusStale      SyncStatus = "Stale"
	SyncStatusRebuilding SyncStatus = "Rebuilding"
)

// ResolutionStrategy selects how ResolveConflicts reacts to a detected
// conflict.
type ResolutionStrategy string

const (
	ResolutionRejectOnAny             ResolutionStrategy = "RejectOnAny"
	ResolutionShiftToNearestAvailable ResolutionStrategy = "ShiftToNearestAvailable"
	ResolutionSplitIfPossible         ResolutionStrategy = "SplitIfPossible"
	ResolutionOverrideBlock           ResolutionStrategy = "OverrideBlock"
)

func ParseResolutionStrategy(s string) (ResolutionStrategy, error) {
	switch ResolutionStrategy(s) {
	case ResolutionRejectOnAny, ResolutionShiftToNearestAvailable,
		ResolutionSplitIfPossible, ResolutionOverrideBlock:
		return ResolutionStrategy(s), nil
	}
	return "", errors.New("invalid resolution strategy")
}

// MismatchSeverity grades a soft-filter mismatch. Soft filters narrow ranking
// instead of excluding a result outright.
type MismatchSeverity string

const (
	MismatchMinor    MismatchSeverity = "Minor"
	MismatchModerate MismatchSeverity = "Moderate"
	MismatchMajor    MismatchSeverity = "Major"
)

// Weight is additive across mismatches and breaks ties in search ordering.
func (s MismatchSeverity) Weight() int {
	switch s {
	case MismatchMinor:
		return 1
	case MismatchModerate:
		return 3
	case MismatchMajor:
		return 7
	}
	return 0
}

// Promote raises a severity one step. Used for primary dynamic fields.
func (s MismatchSeverity) Promote() MismatchSeverity {
	switch s {
	case MismatchMinor:
		return MismatchModerate
	case MismatchModerate:
		return MismatchMajor
	}
	return MismatchMajor
}

// UnitType controls which resolution strategies apply. Multi-segment stays
// (SplitIfPossible) are only allowed for whole units.
type UnitType string

const (
	UnitTypeEntirePlace UnitType = "entire_place"
	UnitTypePrivateRoom UnitType = "private_room"
	UnitTypeSharedRoom  UnitType = "shared_room"
)

func (t UnitType) AllowsSplitStays() bool {
	return t == UnitTypeEntirePlace
}

// BookingStatus for the minimal booking projection this subsystem reads.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)
