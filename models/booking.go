package models

import (
	"time"

	"gorm.io/gorm"
)

// Booking is the minimal projection of the booking table this subsystem
// reads. Check-in/check-out are half-open: the check-out night is free.
type Booking struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	UnitID   uint          `gorm:"not null;index" json:"unitID"`
	CheckIn  time.Time     `gorm:"not null" json:"checkIn"`
	CheckOut time.Time     `gorm:"not null" json:"checkOut"`
	Status   BookingStatus `gorm:"size:16;default:'pending';index" json:"status"`
}

func (b *Booking) IsActive() bool {
	return b.Status != BookingStatusCancelled
}
