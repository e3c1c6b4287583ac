package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"live-session-service/internal/domain"
)

// BookingRepository only reads bookings; the calendar service owns them.
type BookingRepository interface {
	HasInProgress(ctx context.Context, designerID uuid.UUID) (bool, error)
}

type bookingRepositoryImpl struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) BookingRepository {
	return &bookingRepositoryImpl{db: db}
}

func (r *bookingRepositoryImpl) HasInProgress(ctx context.Context, designerID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("designer_id = ? AND status = ?", designerID, domain.BookingInProgress).
		Count(&count).Error
	return count > 0, err
}
