package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"live-session-service/internal/domain"
)

type PresenceRepository interface {
	Find(ctx context.Context, designerID uuid.UUID) (*domain.PresenceRecord, error)
	Upsert(ctx context.Context, record *domain.PresenceRecord) error
	SetOffline(ctx context.Context, designerID uuid.UUID, at time.Time) error
}

type presenceRepositoryImpl struct {
	db *gorm.DB
}

func NewPresenceRepository(db *gorm.DB) PresenceRepository {
	return &presenceRepositoryImpl{db: db}
}

func (r *presenceRepositoryImpl) Find(ctx context.Context, designerID uuid.UUID) (*domain.PresenceRecord, error) {
	var record domain.PresenceRecord
	err := r.db.WithContext(ctx).Where("designer_id = ?", designerID).First(&record).Error
	return nilIfNotFound(&record, err)
}

func (r *presenceRepositoryImpl) Upsert(ctx context.Context, record *domain.PresenceRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "designer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_online", "activity_status", "last_seen", "updated_at"}),
	}).Create(record).Error
}

func (r *presenceRepositoryImpl) SetOffline(ctx context.Context, designerID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.PresenceRecord{}).
		Where("designer_id = ?", designerID).
		Updates(map[string]interface{}{
			"is_online":       false,
			"activity_status": domain.ActivityOffline,
			"last_seen":       at.UTC(),
		}).Error
}
