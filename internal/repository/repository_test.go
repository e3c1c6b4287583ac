package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-session-service/internal/database/dbtest"
	"live-session-service/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestRequestRepository_CreateWritesChange(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRequestRepository(db)
	changes := NewChangeRepository(db)
	ctx := context.Background()

	req := &domain.SessionRequest{CustomerID: uuid.New(), DesignerID: uuid.New(), Message: "logo review"}
	change, err := repo.Create(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, change)

	assert.Equal(t, domain.RequestStatusPending, req.Status)
	assert.Equal(t, domain.EventRequestCreated, change.EventType)
	assert.Equal(t, req.ID.String(), change.EntityID)
	assert.Positive(t, change.Revision)

	latest, err := changes.LatestRevision(ctx)
	require.NoError(t, err)
	assert.Equal(t, change.Revision, latest)
}

func TestRequestRepository_TransitionOnlyFromPending(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRequestRepository(db)
	ctx := context.Background()

	req := &domain.SessionRequest{CustomerID: uuid.New(), DesignerID: uuid.New()}
	_, err := repo.Create(ctx, req)
	require.NoError(t, err)

	now := time.Now().UTC()
	stored, change, err := repo.Transition(ctx, req.ID, RequestTransition{
		To:        domain.RequestStatusAccepted,
		SessionID: strPtr("ls_abc"),
		At:        now,
	})
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, domain.RequestStatusAccepted, stored.Status)
	assert.Equal(t, "ls_abc", *stored.SessionID)
	assert.Equal(t, domain.EventRequestAccepted, change.EventType)

	// 이미 종결된 요청은 변경되지 않는다
	again, change, err := repo.Transition(ctx, req.ID, RequestTransition{
		To:              domain.RequestStatusRejected,
		RejectionReason: strPtr("too late"),
		At:              now,
	})
	require.NoError(t, err)
	assert.Nil(t, change)
	assert.Equal(t, domain.RequestStatusAccepted, again.Status)
	assert.Nil(t, again.RejectionReason)
}

func TestRequestRepository_FindPendingCreatedBefore(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRequestRepository(db)
	ctx := context.Background()

	old := &domain.SessionRequest{CustomerID: uuid.New(), DesignerID: uuid.New(), CreatedAt: time.Now().UTC().Add(-time.Hour)}
	fresh := &domain.SessionRequest{CustomerID: uuid.New(), DesignerID: uuid.New()}
	_, err := repo.Create(ctx, old)
	require.NoError(t, err)
	_, err = repo.Create(ctx, fresh)
	require.NoError(t, err)

	expired, err := repo.FindPendingCreatedBefore(ctx, time.Now().UTC().Add(-15*time.Minute))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, old.ID, expired[0].ID)

	pending, err := repo.FindPending(ctx, fresh.CustomerID, fresh.DesignerID)
	require.NoError(t, err)
	require.NotNil(t, pending)

	none, err := repo.FindPending(ctx, uuid.New(), fresh.DesignerID)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSessionRepository_EndIsIdempotent(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	session := &domain.ActiveSession{DesignerID: uuid.New(), CustomerID: uuid.New(), SessionType: domain.SessionTypeLive}
	require.NoError(t, repo.Create(ctx, session))
	assert.NotEmpty(t, session.SessionID)

	ended, change, err := repo.End(ctx, session.SessionID, domain.EndReasonCompleted, time.Now())
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, domain.SessionStatusEnded, ended.Status)
	require.NotNil(t, ended.EndedAt)
	assert.Equal(t, domain.EndReasonCompleted, *ended.EndReason)

	_, change, err = repo.End(ctx, session.SessionID, "again", time.Now())
	require.NoError(t, err)
	assert.Nil(t, change)
}

func TestSessionRepository_FindDesignersWithMultipleActive(t *testing.T) {
	db := dbtest.OpenWithoutIndexes(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	doubled := uuid.New()
	single := uuid.New()
	for _, d := range []uuid.UUID{doubled, doubled, single} {
		require.NoError(t, repo.Create(ctx, &domain.ActiveSession{DesignerID: d, CustomerID: uuid.New(), SessionType: domain.SessionTypeLive}))
	}

	designers, err := repo.FindDesignersWithMultipleActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{doubled}, designers)

	active, err := repo.FindActiveByDesigner(ctx, doubled)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestSessionRepository_TouchAndIdle(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	longAgo := time.Now().UTC().Add(-3 * time.Hour)
	session := &domain.ActiveSession{
		DesignerID: uuid.New(), CustomerID: uuid.New(), SessionType: domain.SessionTypeLive,
		CreatedAt: longAgo, LastActivityAt: longAgo,
	}
	require.NoError(t, repo.Create(ctx, session))

	idle, err := repo.FindActiveIdleSince(ctx, time.Now().UTC().Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Len(t, idle, 1)

	touched, err := repo.Touch(ctx, session.SessionID, time.Now())
	require.NoError(t, err)
	assert.True(t, touched)

	idle, err = repo.FindActiveIdleSince(ctx, time.Now().UTC().Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, idle)
}

func TestAvailabilityRepository_Upserts(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewAvailabilityRepository(db)
	ctx := context.Background()
	designer := uuid.New()

	_, err := repo.UpsertWindow(ctx, &domain.AvailabilityWindow{DesignerID: designer, DayOfWeek: 1, StartTime: "09:00", EndTime: "17:00", IsAvailable: true})
	require.NoError(t, err)
	updated, err := repo.UpsertWindow(ctx, &domain.AvailabilityWindow{DesignerID: designer, DayOfWeek: 1, StartTime: "10:00", EndTime: "18:00", IsAvailable: true})
	require.NoError(t, err)
	assert.Equal(t, "10:00", updated.StartTime)

	windows, err := repo.FindWindows(ctx, designer)
	require.NoError(t, err)
	assert.Len(t, windows, 1)

	missing, err := repo.FindWindow(ctx, designer, 2)
	require.NoError(t, err)
	assert.Nil(t, missing)

	override, err := repo.UpsertOverride(ctx, &domain.SpecialDayOverride{DesignerID: designer, Date: "2026-03-02", IsAvailable: false, Reason: strPtr("holiday")})
	require.NoError(t, err)
	assert.Equal(t, "holiday", *override.Reason)

	settings := &domain.AvailabilitySettings{DesignerID: designer, DefaultStartTime: "09:00", DefaultEndTime: "17:00", DefaultAvailable: true, Timezone: "UTC"}
	require.NoError(t, repo.UpsertSettings(ctx, settings))
	settings.BufferTimeMinutes = 15
	require.NoError(t, repo.UpsertSettings(ctx, settings))

	found, err := repo.FindSettings(ctx, designer)
	require.NoError(t, err)
	assert.Equal(t, 15, found.BufferTimeMinutes)
}

func TestPresenceAndBookingRepositories(t *testing.T) {
	db := dbtest.Open(t)
	presence := NewPresenceRepository(db)
	bookings := NewBookingRepository(db)
	ctx := context.Background()
	designer := uuid.New()

	require.NoError(t, presence.Upsert(ctx, &domain.PresenceRecord{DesignerID: designer, IsOnline: true, ActivityStatus: domain.ActivityAvailable, LastSeen: time.Now().UTC()}))
	require.NoError(t, presence.SetOffline(ctx, designer, time.Now()))
	record, err := presence.Find(ctx, designer)
	require.NoError(t, err)
	assert.False(t, record.IsOnline)
	assert.Equal(t, domain.ActivityOffline, record.ActivityStatus)

	busy, err := bookings.HasInProgress(ctx, designer)
	require.NoError(t, err)
	assert.False(t, busy)

	require.NoError(t, db.Create(&domain.Booking{DesignerID: designer, CustomerID: uuid.New(), Status: domain.BookingInProgress, ScheduledAt: time.Now().UTC()}).Error)
	busy, err = bookings.HasInProgress(ctx, designer)
	require.NoError(t, err)
	assert.True(t, busy)
}
