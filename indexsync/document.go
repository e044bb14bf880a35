package indexsync

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/akarakonline-arch/hggzk-sub012/models"
	"github.com/akarakonline-arch/hggzk-sub012/utils"
)

// EffectivePriceWindowDays is the lookahead window used to resolve the
// cheapest bookable nightly price at indexing time.
const EffectivePriceWindowDays = 30

// UnitSearchDocument is the denormalized projection served by search. It is
// owned exclusively by the synchronizer; search reads it, nothing else writes
// it. Version increases monotonically per unit and the store rejects writes
// that would regress it.
type UnitSearchDocument struct {
	UnitID       uint            `json:"unit_id"`
	PropertyID   uint            `json:"property_id"`
	UnitName     string          `json:"unit_name"`
	PropertyName string          `json:"property_name"`
	City         string          `json:"city"`
	Country      string          `json:"country"`
	Lat          float64         `json:"lat"`
	Lng          float64         `json:"lng"`
	UnitType     models.UnitType `json:"unit_type"`
	MaxGuests    int             `json:"max_guests"`
	Rating       float64         `json:"rating"`

	BasePrice      decimal.Decimal `json:"base_price"`
	EffectivePrice decimal.Decimal `json:"effective_price"`
	Currency       string          `json:"currency"`

	AmenityIds    []uint                 `json:"amenity_ids,omitempty"`
	DynamicFields map[string]interface{} `json:"dynamic_fields,omitempty"`

	NextAvailableDate *time.Time `json:"next_available_date,omitempty"`
	BlockedDayCount   int        `json:"blocked_day_count"`

	Version       int64     `json:"version"`
	LastIndexedAt time.Time `json:"last_indexed_at"`
}

// CanonicalBytes serializes the document without its write metadata. Two
// recomputations from identical authoritative state produce identical bytes,
// which is what makes event redelivery harmless.
func (d *UnitSearchDocument) CanonicalBytes() ([]byte, error) {
	c := *d
	c.Version = 0
	c.LastIndexedAt = time.Time{}
	return json.Marshal(&c)
}

// BuildUnitDocument recomputes the full document from the authoritative
// store. It is a pure function of current state, never of an event payload.
// A missing, soft-deleted or inactive unit (or property) returns
// utils.ErrorRecordNotFound so the caller removes the document instead.
func BuildUnitDocument(db *gorm.DB, unitId uint, now time.Time) (*UnitSearchDocument, error) {
	unit, err := models.GetUnit(db, unitId)
	if err != nil {
		return nil, err
	}
	if unit.IsActive != nil && !*unit.IsActive {
		return nil, utils.ErrorRecordNotFound
	}
	property, err := models.GetProperty(db, unit.PropertyID)
	if err != nil {
		return nil, err
	}
	if property.IsActive != nil && !*property.IsActive {
		return nil, utils.ErrorRecordNotFound
	}

	today := utils.DateOnly(now)
	windowEnd := today.AddDate(0, 0, EffectivePriceWindowDays)
	byDate, err := models.GetScheduleRange(db, unitId, today, windowEnd)
	if err != nil {
		return nil, err
	}

	var nextAvailable *time.Time
	blockedDays := 0
	utils.EachDay(today, windowEnd, func(day time.Time) bool {
		e, ok := byDate[day]
		if !ok || e.Status == models.DayStatusAvailable {
			if nextAvailable == nil {
				d := day
				nextAvailable = &d
			}
			return true
		}
		if e.Status == models.DayStatusBlocked {
			blockedDays++
		}
		return true
	})

	doc := &UnitSearchDocument{
		UnitID:            unit.ID,
		PropertyID:        property.ID,
		UnitName:          unit.Name,
		PropertyName:      property.Name,
		City:              property.City,
		Country:           property.Country,
		Lat:               property.Lat,
		Lng:               property.Lng,
		UnitType:          unit.UnitType,
		MaxGuests:         unit.MaxGuests,
		Rating:            property.Rating,
		BasePrice:         unit.BasePrice,
		EffectivePrice:    models.CheapestNight(byDate, today, windowEnd, unit.BasePrice),
		Currency:          unit.Currency,
		AmenityIds:        unit.AmenityIdList(),
		DynamicFields:     unit.DynamicFields,
		NextAvailableDate: nextAvailable,
		BlockedDayCount:   blockedDays,
	}
	return doc, nil
}
