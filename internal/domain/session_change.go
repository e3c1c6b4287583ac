package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type EntityType string

const (
	EntitySessionRequest EntityType = "session_request"
	EntityActiveSession  EntityType = "active_session"
)

// Event names delivered to UI collaborators.
const (
	EventRequestCreated    = "session_request_created"
	EventRequestAccepted   = "session_request_accepted"
	EventRequestRejected   = "session_request_rejected"
	EventNavigateToSession = "navigate_to_session"
	EventSessionStarted    = "session_started"
	EventSessionEnded      = "session_ended"
	EventPresenceChanged   = "presence_changed"
)

// SessionChange is one committed row change, written in the same transaction
// as the change itself. Revision is allocated at insert and can commit out
// of order; readers must not treat it as a commit sequence.
type SessionChange struct {
	Revision   int64          `gorm:"primaryKey;autoIncrement" json:"revision"`
	EntityType EntityType     `gorm:"type:varchar(32);not null" json:"entityType"`
	EntityID   string         `gorm:"type:varchar(64);not null;index" json:"entityId"`
	EventType  string         `gorm:"type:varchar(64);not null" json:"eventType"`
	DesignerID uuid.UUID      `gorm:"type:uuid;not null;index" json:"designerId"`
	CustomerID uuid.UUID      `gorm:"type:uuid;not null;index" json:"customerId"`
	Payload    datatypes.JSON `json:"payload"`
	CreatedAt  time.Time      `json:"createdAt"`
}

func (SessionChange) TableName() string {
	return "session_changes"
}
