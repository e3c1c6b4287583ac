package metrics

import "time"

// Request outcomes for SessionRequestsTotal.
const (
	OutcomeCreated  = "created"
	OutcomeRefused  = "refused"
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeConflict = "conflict"
	OutcomeExpired  = "expired"
)

func (m *Metrics) RecordRequestOutcome(outcome string) {
	m.safeExecute("RecordRequestOutcome", func() {
		m.SessionRequestsTotal.WithLabelValues(outcome).Inc()
	})
}

func (m *Metrics) IncrementAcquireConflict() {
	m.safeExecute("IncrementAcquireConflict", func() {
		m.AcquireConflictsTotal.Inc()
	})
}

// RecordReaperCleanup adds n cleaned rows of the given kind.
func (m *Metrics) RecordReaperCleanup(kind string, n int) {
	if n <= 0 {
		return
	}
	m.safeExecute("RecordReaperCleanup", func() {
		m.ReaperCleanedTotal.WithLabelValues(kind).Add(float64(n))
	})
}

func (m *Metrics) RecordNotification(path string) {
	m.safeExecute("RecordNotification", func() {
		m.NotificationsTotal.WithLabelValues(path).Inc()
	})
}

func (m *Metrics) IncrementDuplicateDropped() {
	m.safeExecute("IncrementDuplicateDropped", func() {
		m.DuplicatesDropped.Inc()
	})
}

func (m *Metrics) SetActiveSessions(count int64) {
	m.safeExecute("SetActiveSessions", func() {
		m.ActiveSessions.Set(float64(count))
	})
}

func (m *Metrics) SetPendingRequests(count int64) {
	m.safeExecute("SetPendingRequests", func() {
		m.PendingRequests.Set(float64(count))
	})
}

// RecordExternalCall records a call to the media server or relay.
func (m *Metrics) RecordExternalCall(target, operation string, duration time.Duration, err error) {
	m.safeExecute("RecordExternalCall", func() {
		m.ExternalCallDuration.WithLabelValues(target, operation).Observe(duration.Seconds())
		if err != nil {
			m.ExternalCallErrors.WithLabelValues(target, operation).Inc()
		}
	})
}
