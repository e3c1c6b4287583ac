package domain

import (
	"time"

	"github.com/google/uuid"
)

type ActivityStatus string

const (
	ActivityAvailable ActivityStatus = "available"
	ActivityActive    ActivityStatus = "active"
	ActivityIdle      ActivityStatus = "idle"
	ActivityOffline   ActivityStatus = "offline"
)

func (a ActivityStatus) Valid() bool {
	switch a {
	case ActivityAvailable, ActivityActive, ActivityIdle, ActivityOffline:
		return true
	}
	return false
}

// PresenceRecord is the last heartbeat seen from a designer.
type PresenceRecord struct {
	DesignerID     uuid.UUID      `gorm:"type:uuid;primaryKey" json:"designerId"`
	IsOnline       bool           `gorm:"not null" json:"isOnline"`
	ActivityStatus ActivityStatus `gorm:"type:varchar(20);not null" json:"activityStatus"`
	LastSeen       time.Time      `gorm:"not null" json:"lastSeen"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

func (PresenceRecord) TableName() string {
	return "presence_records"
}

// OnlineAt reports whether the record still counts as online at now.
func (p *PresenceRecord) OnlineAt(now time.Time, timeout time.Duration) bool {
	if p == nil || !p.IsOnline || p.ActivityStatus == ActivityOffline {
		return false
	}
	return now.Sub(p.LastSeen) <= timeout
}

type HeartbeatRequest struct {
	ActivityStatus ActivityStatus `json:"activityStatus"`
}
