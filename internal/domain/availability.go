package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrInvalidTimeOfDay = errors.New("time of day must be HH:MM")

// AvailabilityWindow is a designer's recurring weekly working window.
// DayOfWeek follows time.Weekday: 0 = Sunday.
type AvailabilityWindow struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DesignerID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_window_designer_day" json:"designerId"`
	DayOfWeek   int       `gorm:"not null;uniqueIndex:idx_window_designer_day" json:"dayOfWeek"`
	StartTime   string    `gorm:"type:varchar(5);not null" json:"startTime"`
	EndTime     string    `gorm:"type:varchar(5);not null" json:"endTime"`
	IsAvailable bool      `gorm:"not null" json:"isAvailable"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (AvailabilityWindow) TableName() string {
	return "availability_windows"
}

func (w *AvailabilityWindow) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

// SpecialDayOverride replaces the weekly window for a single calendar date.
type SpecialDayOverride struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DesignerID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_override_designer_date" json:"designerId"`
	Date        string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_override_designer_date" json:"date"`
	IsAvailable bool      `gorm:"not null" json:"isAvailable"`
	StartTime   *string   `gorm:"type:varchar(5)" json:"startTime,omitempty"`
	EndTime     *string   `gorm:"type:varchar(5)" json:"endTime,omitempty"`
	Reason      *string   `gorm:"type:varchar(255)" json:"reason,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (SpecialDayOverride) TableName() string {
	return "special_day_overrides"
}

func (o *SpecialDayOverride) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// AvailabilitySettings carries per-designer defaults. The default working
// window applies to any weekday that has no AvailabilityWindow row.
type AvailabilitySettings struct {
	DesignerID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"designerId"`
	AutoAcceptBookings bool      `gorm:"not null;default:false" json:"autoAcceptBookings"`
	BufferTimeMinutes  int       `gorm:"not null;default:0" json:"bufferTimeMinutes"`
	DefaultStartTime   string    `gorm:"type:varchar(5);not null" json:"defaultStartTime"`
	DefaultEndTime     string    `gorm:"type:varchar(5);not null" json:"defaultEndTime"`
	DefaultAvailable   bool      `gorm:"not null" json:"defaultAvailable"`
	Timezone           string    `gorm:"type:varchar(64);not null" json:"timezone"`
	MaxSessionMinutes  int       `gorm:"not null;default:0" json:"maxSessionMinutes"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func (AvailabilitySettings) TableName() string {
	return "availability_settings"
}

// EndOfDay is the "24:00" bound, letting a window run up to midnight.
const EndOfDay = "24:00"

// ParseTimeOfDay converts "HH:MM" into minutes after midnight. "24:00" is
// accepted as 1440.
func ParseTimeOfDay(s string) (int, error) {
	if s == EndOfDay {
		return 24 * 60, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// DTOs
type SetWeeklyWindowRequest struct {
	DayOfWeek   *int   `json:"dayOfWeek" binding:"required,min=0,max=6"`
	StartTime   string `json:"startTime" binding:"required"`
	EndTime     string `json:"endTime" binding:"required"`
	IsAvailable bool   `json:"isAvailable"`
}

type SetOverrideRequest struct {
	Date        string  `json:"date" binding:"required"`
	IsAvailable bool    `json:"isAvailable"`
	StartTime   *string `json:"startTime"`
	EndTime     *string `json:"endTime"`
	Reason      *string `json:"reason"`
}

type UpdateSettingsRequest struct {
	AutoAcceptBookings *bool   `json:"autoAcceptBookings"`
	BufferTimeMinutes  *int    `json:"bufferTimeMinutes" binding:"omitempty,min=0"`
	DefaultStartTime   *string `json:"defaultStartTime"`
	DefaultEndTime     *string `json:"defaultEndTime"`
	DefaultAvailable   *bool   `json:"defaultAvailable"`
	Timezone           *string `json:"timezone"`
	MaxSessionMinutes  *int    `json:"maxSessionMinutes" binding:"omitempty,min=0"`
}

// ScheduleResponse is a designer's full availability configuration.
type ScheduleResponse struct {
	Settings  AvailabilitySettings `json:"settings"`
	Windows   []AvailabilityWindow `json:"windows"`
	Overrides []SpecialDayOverride `json:"overrides"`
}

// BookabilityResponse is the outcome of an availability check.
type BookabilityResponse struct {
	DesignerID string `json:"designerId"`
	Available  bool   `json:"available"`
	Reason     string `json:"reason,omitempty"`
	InSchedule bool   `json:"inSchedule"`
	IsOnline   bool   `json:"isOnline"`
}
