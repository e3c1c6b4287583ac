package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"live-session-service/internal/domain"
)

// ChangeRepository reads the session change log
type ChangeRepository interface {
	FindAfter(ctx context.Context, afterRevision int64, limit int) ([]domain.SessionChange, error)
	LatestRevision(ctx context.Context) (int64, error)
}

type changeRepositoryImpl struct {
	db *gorm.DB
}

func NewChangeRepository(db *gorm.DB) ChangeRepository {
	return &changeRepositoryImpl{db: db}
}

func (r *changeRepositoryImpl) FindAfter(ctx context.Context, afterRevision int64, limit int) ([]domain.SessionChange, error) {
	var changes []domain.SessionChange
	if err := r.db.WithContext(ctx).
		Where("revision > ?", afterRevision).
		Order("revision ASC").
		Limit(limit).
		Find(&changes).Error; err != nil {
		return nil, err
	}
	return changes, nil
}

func (r *changeRepositoryImpl) LatestRevision(ctx context.Context) (int64, error) {
	var latest int64
	row := r.db.WithContext(ctx).
		Model(&domain.SessionChange{}).
		Select("COALESCE(MAX(revision), 0)").
		Row()
	if err := row.Scan(&latest); err != nil {
		return 0, err
	}
	return latest, nil
}

// appendChange records a row change inside the caller's transaction.
func appendChange(tx *gorm.DB, entityType domain.EntityType, entityID, eventType string, designerID, customerID uuid.UUID, entity interface{}) (*domain.SessionChange, error) {
	payload, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("marshal change payload: %w", err)
	}
	change := &domain.SessionChange{
		EntityType: entityType,
		EntityID:   entityID,
		EventType:  eventType,
		DesignerID: designerID,
		CustomerID: customerID,
		Payload:    datatypes.JSON(payload),
	}
	if err := tx.Create(change).Error; err != nil {
		return nil, err
	}
	return change, nil
}
