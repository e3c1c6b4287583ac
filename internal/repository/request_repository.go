package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"live-session-service/internal/domain"
)

// RequestTransition describes a pending → terminal change.
type RequestTransition struct {
	To              domain.RequestStatus
	RejectionReason *string
	SessionID       *string
	At              time.Time
}

// RequestRepository defines data access for session requests. Every mutation
// writes its SessionChange in the same transaction.
type RequestRepository interface {
	Create(ctx context.Context, req *domain.SessionRequest) (*domain.SessionChange, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.SessionRequest, error)
	FindPending(ctx context.Context, customerID, designerID uuid.UUID) (*domain.SessionRequest, error)
	FindPendingByDesigner(ctx context.Context, designerID uuid.UUID) ([]domain.SessionRequest, error)
	FindByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]domain.SessionRequest, error)
	FindPendingCreatedBefore(ctx context.Context, before time.Time) ([]domain.SessionRequest, error)
	// Transition applies t only if the request is still pending. It returns
	// the row as stored afterwards and a nil change when nothing was updated.
	Transition(ctx context.Context, id uuid.UUID, t RequestTransition) (*domain.SessionRequest, *domain.SessionChange, error)
}

type requestRepositoryImpl struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepositoryImpl{db: db}
}

func (r *requestRepositoryImpl) Create(ctx context.Context, req *domain.SessionRequest) (*domain.SessionChange, error) {
	var change *domain.SessionChange
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(req).Error; err != nil {
			return err
		}
		var err error
		change, err = appendChange(tx, domain.EntitySessionRequest, req.ID.String(),
			domain.EventRequestCreated, req.DesignerID, req.CustomerID, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

func (r *requestRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*domain.SessionRequest, error) {
	var req domain.SessionRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// FindPending returns nil when the customer has no open request to the designer.
func (r *requestRepositoryImpl) FindPending(ctx context.Context, customerID, designerID uuid.UUID) (*domain.SessionRequest, error) {
	var req domain.SessionRequest
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND designer_id = ? AND status = ?", customerID, designerID, domain.RequestStatusPending).
		Order("created_at DESC").
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepositoryImpl) FindPendingByDesigner(ctx context.Context, designerID uuid.UUID) ([]domain.SessionRequest, error) {
	var reqs []domain.SessionRequest
	err := r.db.WithContext(ctx).
		Where("designer_id = ? AND status = ?", designerID, domain.RequestStatusPending).
		Order("created_at ASC").
		Find(&reqs).Error
	return reqs, err
}

func (r *requestRepositoryImpl) FindByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]domain.SessionRequest, error) {
	var reqs []domain.SessionRequest
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&reqs).Error
	return reqs, err
}

func (r *requestRepositoryImpl) FindPendingCreatedBefore(ctx context.Context, before time.Time) ([]domain.SessionRequest, error) {
	var reqs []domain.SessionRequest
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", domain.RequestStatusPending, before.UTC()).
		Order("created_at ASC").
		Find(&reqs).Error
	return reqs, err
}

func (r *requestRepositoryImpl) Transition(ctx context.Context, id uuid.UUID, t RequestTransition) (*domain.SessionRequest, *domain.SessionChange, error) {
	var (
		stored domain.SessionRequest
		change *domain.SessionChange
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":       t.To,
			"responded_at": t.At.UTC(),
		}
		if t.RejectionReason != nil {
			updates["rejection_reason"] = *t.RejectionReason
		}
		if t.SessionID != nil {
			updates["session_id"] = *t.SessionID
		}

		result := tx.Model(&domain.SessionRequest{}).
			Where("id = ? AND status = ?", id, domain.RequestStatusPending).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}

		if err := tx.Where("id = ?", id).First(&stored).Error; err != nil {
			return err
		}
		if result.RowsAffected == 0 {
			return nil
		}

		event := domain.EventRequestAccepted
		if t.To == domain.RequestStatusRejected {
			event = domain.EventRequestRejected
		}
		var err error
		change, err = appendChange(tx, domain.EntitySessionRequest, id.String(), event,
			stored.DesignerID, stored.CustomerID, &stored)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return &stored, change, nil
}
