package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-session-service/internal/domain"
	"live-session-service/internal/notification"
	"live-session-service/internal/response"
)

func TestPresence_HeartbeatAndTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	designer := uuid.New()

	online, err := f.presence.IsOnline(ctx, designer)
	require.NoError(t, err)
	assert.False(t, online, "never seen means offline")

	record, err := f.presence.Heartbeat(ctx, designer, domain.ActivityActive)
	require.NoError(t, err)
	assert.True(t, record.IsOnline)

	online, err = f.presence.IsOnline(ctx, designer)
	require.NoError(t, err)
	assert.True(t, online)

	f.presence.now = func() time.Time { return mondayMorning.Add(f.cfg.HeartbeatTimeout + time.Second) }
	got, err := f.presence.Get(ctx, designer)
	require.NoError(t, err)
	assert.False(t, got.IsOnline)
	assert.Equal(t, domain.ActivityOffline, got.ActivityStatus)
}

func TestPresence_MarkOffline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	designer := uuid.New()
	f.online(t, designer)

	require.NoError(t, f.presence.MarkOffline(ctx, designer))

	online, err := f.presence.IsOnline(ctx, designer)
	require.NoError(t, err)
	assert.False(t, online)
}

func TestPresence_OfflineHeartbeatMarksOffline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	designer := uuid.New()
	f.online(t, designer)

	record, err := f.presence.Heartbeat(ctx, designer, domain.ActivityOffline)
	require.NoError(t, err)
	assert.False(t, record.IsOnline)
}

func TestPresence_InvalidStatus(t *testing.T) {
	f := newFixture(t)

	_, err := f.presence.Heartbeat(context.Background(), uuid.New(), domain.ActivityStatus("busy"))
	assert.Equal(t, response.ErrCodeValidation, response.CodeOf(err))
}

func TestPresence_BroadcastsOnlyOnFlip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	designer := uuid.New()

	log := &eventLog{}
	sub := f.bus.Subscribe(log.add, notification.PresenceChannel(designer))
	defer sub.Close()

	clock := mondayMorning
	f.presence.now = func() time.Time { return clock }

	f.online(t, designer)
	clock = clock.Add(10 * time.Second)
	f.online(t, designer)
	clock = clock.Add(10 * time.Second)
	require.NoError(t, f.presence.MarkOffline(ctx, designer))
	clock = clock.Add(10 * time.Second)
	require.NoError(t, f.presence.MarkOffline(ctx, designer))

	assert.Equal(t, []string{domain.EventPresenceChanged, domain.EventPresenceChanged}, log.names())
}
