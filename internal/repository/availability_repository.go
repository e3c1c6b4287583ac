package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"live-session-service/internal/domain"
)

// AvailabilityRepository reads and writes a designer's schedule. Finders
// return nil, nil when no row exists.
type AvailabilityRepository interface {
	FindSettings(ctx context.Context, designerID uuid.UUID) (*domain.AvailabilitySettings, error)
	UpsertSettings(ctx context.Context, settings *domain.AvailabilitySettings) error
	FindWindow(ctx context.Context, designerID uuid.UUID, dayOfWeek int) (*domain.AvailabilityWindow, error)
	FindWindows(ctx context.Context, designerID uuid.UUID) ([]domain.AvailabilityWindow, error)
	UpsertWindow(ctx context.Context, window *domain.AvailabilityWindow) (*domain.AvailabilityWindow, error)
	FindOverride(ctx context.Context, designerID uuid.UUID, date string) (*domain.SpecialDayOverride, error)
	FindOverrides(ctx context.Context, designerID uuid.UUID) ([]domain.SpecialDayOverride, error)
	UpsertOverride(ctx context.Context, override *domain.SpecialDayOverride) (*domain.SpecialDayOverride, error)
}

type availabilityRepositoryImpl struct {
	db *gorm.DB
}

func NewAvailabilityRepository(db *gorm.DB) AvailabilityRepository {
	return &availabilityRepositoryImpl{db: db}
}

func (r *availabilityRepositoryImpl) FindSettings(ctx context.Context, designerID uuid.UUID) (*domain.AvailabilitySettings, error) {
	var settings domain.AvailabilitySettings
	err := r.db.WithContext(ctx).Where("designer_id = ?", designerID).First(&settings).Error
	return nilIfNotFound(&settings, err)
}

func (r *availabilityRepositoryImpl) UpsertSettings(ctx context.Context, settings *domain.AvailabilitySettings) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "designer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"auto_accept_bookings", "buffer_time_minutes", "default_start_time", "default_end_time",
			"default_available", "timezone", "max_session_minutes", "updated_at",
		}),
	}).Create(settings).Error
}

func (r *availabilityRepositoryImpl) FindWindow(ctx context.Context, designerID uuid.UUID, dayOfWeek int) (*domain.AvailabilityWindow, error) {
	var window domain.AvailabilityWindow
	err := r.db.WithContext(ctx).
		Where("designer_id = ? AND day_of_week = ?", designerID, dayOfWeek).
		First(&window).Error
	return nilIfNotFound(&window, err)
}

func (r *availabilityRepositoryImpl) FindWindows(ctx context.Context, designerID uuid.UUID) ([]domain.AvailabilityWindow, error) {
	var windows []domain.AvailabilityWindow
	err := r.db.WithContext(ctx).
		Where("designer_id = ?", designerID).
		Order("day_of_week ASC").
		Find(&windows).Error
	return windows, err
}

func (r *availabilityRepositoryImpl) UpsertWindow(ctx context.Context, window *domain.AvailabilityWindow) (*domain.AvailabilityWindow, error) {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "designer_id"}, {Name: "day_of_week"}},
		DoUpdates: clause.AssignmentColumns([]string{"start_time", "end_time", "is_available", "updated_at"}),
	}).Create(window).Error
	if err != nil {
		return nil, err
	}
	return r.FindWindow(ctx, window.DesignerID, window.DayOfWeek)
}

func (r *availabilityRepositoryImpl) FindOverride(ctx context.Context, designerID uuid.UUID, date string) (*domain.SpecialDayOverride, error) {
	var override domain.SpecialDayOverride
	err := r.db.WithContext(ctx).
		Where("designer_id = ? AND date = ?", designerID, date).
		First(&override).Error
	return nilIfNotFound(&override, err)
}

func (r *availabilityRepositoryImpl) FindOverrides(ctx context.Context, designerID uuid.UUID) ([]domain.SpecialDayOverride, error) {
	var overrides []domain.SpecialDayOverride
	err := r.db.WithContext(ctx).
		Where("designer_id = ?", designerID).
		Order("date ASC").
		Find(&overrides).Error
	return overrides, err
}

func (r *availabilityRepositoryImpl) UpsertOverride(ctx context.Context, override *domain.SpecialDayOverride) (*domain.SpecialDayOverride, error) {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "designer_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_available", "start_time", "end_time", "reason", "updated_at"}),
	}).Create(override).Error
	if err != nil {
		return nil, err
	}
	return r.FindOverride(ctx, override.DesignerID, override.Date)
}

func nilIfNotFound[T any](row *T, err error) (*T, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}
