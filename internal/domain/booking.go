package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BookingStatus string

const (
	BookingPending    BookingStatus = "pending"
	BookingConfirmed  BookingStatus = "confirmed"
	BookingInProgress BookingStatus = "in_progress"
	BookingCompleted  BookingStatus = "completed"
	BookingCancelled  BookingStatus = "cancelled"
)

// Booking is a scheduled session owned by the booking calendar. This service
// only reads it: an in-progress booking keeps the designer busy.
type Booking struct {
	ID          uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	DesignerID  uuid.UUID     `gorm:"type:uuid;not null;index:idx_booking_designer_status" json:"designerId"`
	CustomerID  uuid.UUID     `gorm:"type:uuid;not null" json:"customerId"`
	Status      BookingStatus `gorm:"type:varchar(20);not null;index:idx_booking_designer_status" json:"status"`
	ScheduledAt time.Time     `gorm:"not null" json:"scheduledAt"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

func (Booking) TableName() string {
	return "bookings"
}

func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
