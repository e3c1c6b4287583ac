package domain

import "github.com/google/uuid"

type SweepKind string

const (
	SweepInconsistentState SweepKind = "inconsistent_state"
	SweepStaleSession      SweepKind = "stale_session"
	SweepExpiredRequest    SweepKind = "expired_request"
)

type SweepDetail struct {
	Kind       SweepKind `json:"kind"`
	EntityID   string    `json:"entityId"`
	DesignerID uuid.UUID `json:"designerId"`
	Reason     string    `json:"reason"`
}

// SweepResult lists every row a reaper pass cleaned.
type SweepResult struct {
	CleanedCount int           `json:"cleanedCount"`
	Details      []SweepDetail `json:"details"`
}

func (r *SweepResult) Add(d SweepDetail) {
	r.Details = append(r.Details, d)
	r.CleanedCount++
}
