package models

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/akarakonline-arch/hggzk-sub012/utils"
)

// Property is the authoritative record for a bookable location. Entity CRUD
// lives with external collaborators; this subsystem only reads properties to
// build index documents and to serve the search fallback path.
type Property struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name    string  `gorm:"size:255;not null" json:"name"`
	City    string  `gorm:"size:128;index" json:"city"`
	Country string  `gorm:"size:128;index" json:"country"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Rating  float64 `gorm:"default:0" json:"rating"`

	IsActive *bool `gorm:"default:true" json:"isActive"`

	Units []Unit `json:"units,omitempty"`
}

func GetProperty(db *gorm.DB, id uint) (*Property, error) {
	var p Property
	if err := db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &p, nil
}
