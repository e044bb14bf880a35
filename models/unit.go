package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/akarakonline-arch/hggzk-sub012/utils"
)

// Unit is a single bookable inventory item belonging to a Property.
type Unit struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	PropertyID uint     `gorm:"not null;index" json:"propertyID"`
	Name       string   `gorm:"size:255;not null" json:"name"`
	UnitType   UnitType `gorm:"size:32;default:'entire_place'" json:"unitType"`

	BasePrice decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"basePrice"`
	Currency  string          `gorm:"size:8;default:'YER'" json:"currency"`

	MaxGuests int `gorm:"default:2" json:"maxGuests"`

	// AmenityIds is a JSON array of amenity/service ids.
	AmenityIds datatypes.JSON `gorm:"type:json" json:"amenityIds"`

	// DynamicFields holds searchable field values keyed by field name. Only
	// fields marked searchable upstream are written here; the index copies
	// them verbatim.
	DynamicFields datatypes.JSONMap `gorm:"type:json" json:"dynamicFields"`

	IsActive *bool `gorm:"default:true" json:"isActive"`

	Property Property `gorm:"foreignKey:PropertyID" json:"property,omitempty"`
}

func GetUnit(db *gorm.DB, id uint) (*Unit, error) {
	var u Unit
	if err := db.First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &u, nil
}

func GetPropertyUnitIds(db *gorm.DB, propertyId uint) ([]uint, error) {
	var ids []uint
	err := db.Model(&Unit{}).Where("property_id = ?", propertyId).Pluck("id", &ids).Error
	return ids, err
}

// AmenityIdList decodes the JSON amenity array. A malformed column yields an
// empty list rather than an error; the index never fails on one bad unit.
func (u *Unit) AmenityIdList() []uint {
	if len(u.AmenityIds) == 0 {
		return nil
	}
	var ids []uint
	if err := json.Unmarshal(u.AmenityIds, &ids); err != nil {
		return nil
	}
	return ids
}
