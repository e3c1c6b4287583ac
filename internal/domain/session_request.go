package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusAccepted RequestStatus = "accepted"
	RequestStatusRejected RequestStatus = "rejected"
)

// IsTerminal reports whether no further transition is allowed.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusAccepted || s == RequestStatusRejected
}

type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// SessionRequest is a customer's ask for an immediate live session.
type SessionRequest struct {
	ID              uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	CustomerID      uuid.UUID     `gorm:"type:uuid;not null;index" json:"customerId"`
	DesignerID      uuid.UUID     `gorm:"type:uuid;not null;index:idx_request_designer_status" json:"designerId"`
	Status          RequestStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_request_designer_status" json:"status"`
	Message         string        `gorm:"type:text" json:"message"`
	RejectionReason *string       `gorm:"type:varchar(255)" json:"rejectionReason,omitempty"`
	SessionID       *string       `gorm:"type:varchar(64)" json:"sessionId,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
	RespondedAt     *time.Time    `json:"respondedAt,omitempty"`
}

func (SessionRequest) TableName() string {
	return "session_requests"
}

func (r *SessionRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = RequestStatusPending
	}
	return nil
}

// DTOs
type CreateSessionRequestRequest struct {
	DesignerID string `json:"designerId" binding:"required,uuid"`
	Message    string `json:"message" binding:"max=2000"`
}

type RespondToRequestRequest struct {
	Decision Decision `json:"decision" binding:"required,oneof=accept reject"`
	Reason   *string  `json:"reason"`
}

type BusyStateResponse struct {
	DesignerID string `json:"designerId"`
	Busy       bool   `json:"busy"`
	Reason     string `json:"reason,omitempty"`
}
