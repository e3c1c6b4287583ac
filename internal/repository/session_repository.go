package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"live-session-service/internal/domain"
)

// SessionRepository defines data access for active sessions
type SessionRepository interface {
	Create(ctx context.Context, session *domain.ActiveSession) error
	FindByID(ctx context.Context, sessionID string) (*domain.ActiveSession, error)
	// FindActiveByDesigner returns active rows oldest first; ties break on session_id.
	FindActiveByDesigner(ctx context.Context, designerID uuid.UUID) ([]domain.ActiveSession, error)
	FindDesignersWithMultipleActive(ctx context.Context) ([]uuid.UUID, error)
	FindActiveIdleSince(ctx context.Context, before time.Time) ([]domain.ActiveSession, error)
	// End moves an active row to ended and logs session_ended. A nil change
	// means the row was already ended.
	End(ctx context.Context, sessionID, reason string, at time.Time) (*domain.ActiveSession, *domain.SessionChange, error)
	// Evict ends a row without logging a change. Used when a freshly written
	// row loses the compare-after-write check and was never announced.
	Evict(ctx context.Context, sessionID, reason string, at time.Time) error
	Touch(ctx context.Context, sessionID string, at time.Time) (bool, error)
}

type sessionRepositoryImpl struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepositoryImpl{db: db}
}

func (r *sessionRepositoryImpl) Create(ctx context.Context, session *domain.ActiveSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *sessionRepositoryImpl) FindByID(ctx context.Context, sessionID string) (*domain.ActiveSession, error) {
	var session domain.ActiveSession
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepositoryImpl) FindActiveByDesigner(ctx context.Context, designerID uuid.UUID) ([]domain.ActiveSession, error) {
	var sessions []domain.ActiveSession
	err := r.db.WithContext(ctx).
		Where("designer_id = ? AND status = ?", designerID, domain.SessionStatusActive).
		Order("created_at ASC, session_id ASC").
		Find(&sessions).Error
	return sessions, err
}

func (r *sessionRepositoryImpl) FindDesignersWithMultipleActive(ctx context.Context) ([]uuid.UUID, error) {
	var designers []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&domain.ActiveSession{}).
		Where("status = ?", domain.SessionStatusActive).
		Group("designer_id").
		Having("COUNT(*) > 1").
		Pluck("designer_id", &designers).Error
	return designers, err
}

func (r *sessionRepositoryImpl) FindActiveIdleSince(ctx context.Context, before time.Time) ([]domain.ActiveSession, error) {
	var sessions []domain.ActiveSession
	err := r.db.WithContext(ctx).
		Where("status = ? AND last_activity_at < ?", domain.SessionStatusActive, before.UTC()).
		Order("created_at ASC").
		Find(&sessions).Error
	return sessions, err
}

func (r *sessionRepositoryImpl) End(ctx context.Context, sessionID, reason string, at time.Time) (*domain.ActiveSession, *domain.SessionChange, error) {
	var (
		stored domain.ActiveSession
		change *domain.SessionChange
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := endWhereActive(tx, sessionID, reason, at)
		if result.Error != nil {
			return result.Error
		}
		if err := tx.Where("session_id = ?", sessionID).First(&stored).Error; err != nil {
			return err
		}
		if result.RowsAffected == 0 {
			return nil
		}
		var err error
		change, err = appendChange(tx, domain.EntityActiveSession, sessionID, domain.EventSessionEnded,
			stored.DesignerID, stored.CustomerID, &stored)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return &stored, change, nil
}

func (r *sessionRepositoryImpl) Evict(ctx context.Context, sessionID, reason string, at time.Time) error {
	return endWhereActive(r.db.WithContext(ctx), sessionID, reason, at).Error
}

func (r *sessionRepositoryImpl) Touch(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.ActiveSession{}).
		Where("session_id = ? AND status = ?", sessionID, domain.SessionStatusActive).
		Update("last_activity_at", at.UTC())
	return result.RowsAffected > 0, result.Error
}

func endWhereActive(db *gorm.DB, sessionID, reason string, at time.Time) *gorm.DB {
	return db.Model(&domain.ActiveSession{}).
		Where("session_id = ? AND status = ?", sessionID, domain.SessionStatusActive).
		Updates(map[string]interface{}{
			"status":     domain.SessionStatusEnded,
			"ended_at":   at.UTC(),
			"end_reason": reason,
		})
}
