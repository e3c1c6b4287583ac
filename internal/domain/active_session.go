package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusEnded  SessionStatus = "ended"
)

const SessionTypeLive = "live"

// End reasons recorded on ActiveSession.EndReason.
const (
	EndReasonCompleted    = "completed"
	EndReasonRejected     = "designer rejected request"
	EndReasonStale        = "stale cleanup"
	EndReasonInconsistent = "inconsistent state"
	EndReasonRaceLost     = "acquire race lost"
	EndReasonSuperseded   = "request already decided"
)

// ActiveSession is the exclusive occupancy of a designer by one live session.
// At most one row per designer may be active; the partial unique index created
// by the database package enforces it in the store.
type ActiveSession struct {
	SessionID               string        `gorm:"type:varchar(64);primaryKey" json:"sessionId"`
	DesignerID              uuid.UUID     `gorm:"type:uuid;not null;index:idx_session_designer_status" json:"designerId"`
	CustomerID              uuid.UUID     `gorm:"type:uuid;not null;index" json:"customerId"`
	RequestID               *uuid.UUID    `gorm:"type:uuid" json:"requestId,omitempty"`
	SessionType             string        `gorm:"type:varchar(32);not null" json:"sessionType"`
	Status                  SessionStatus `gorm:"type:varchar(20);not null;index:idx_session_designer_status" json:"status"`
	ExpectedDurationMinutes int           `gorm:"not null;default:0" json:"expectedDurationMinutes"`
	LastActivityAt          time.Time     `gorm:"not null" json:"lastActivityAt"`
	EndReason               *string       `gorm:"type:varchar(255)" json:"endReason,omitempty"`
	CreatedAt               time.Time     `json:"createdAt"`
	UpdatedAt               time.Time     `json:"updatedAt"`
	EndedAt                 *time.Time    `json:"endedAt,omitempty"`
}

func (ActiveSession) TableName() string {
	return "active_sessions"
}

func (s *ActiveSession) BeforeCreate(tx *gorm.DB) error {
	if s.SessionID == "" {
		s.SessionID = NewSessionID()
	}
	if s.Status == "" {
		s.Status = SessionStatusActive
	}
	if s.LastActivityAt.IsZero() {
		s.LastActivityAt = time.Now().UTC()
	}
	return nil
}

// NewSessionID mints the opaque token handed to the media collaborator.
func NewSessionID() string {
	return "ls_" + uuid.NewString()
}

// IsStale reports whether the session outlived its bound without recent activity.
// A zero ExpectedDurationMinutes falls back to maxDuration.
func (s *ActiveSession) IsStale(now time.Time, maxDuration, grace time.Duration) bool {
	bound := maxDuration
	if s.ExpectedDurationMinutes > 0 {
		bound = time.Duration(s.ExpectedDurationMinutes) * time.Minute
	}
	return now.Sub(s.CreatedAt) > bound && now.Sub(s.LastActivityAt) > grace
}

type ReleaseSessionRequest struct {
	Reason string `json:"reason" binding:"max=255"`
}

// JoinTokenResponse is what a participant needs to enter the media room.
type JoinTokenResponse struct {
	SessionID string `json:"sessionId"`
	Token     string `json:"token"`
	WSUrl     string `json:"wsUrl"`
}
