package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"go.uber.org/zap"

	"live-session-service/internal/config"
	"live-session-service/internal/metrics"
)

var ErrMediaNotConfigured = errors.New("media server credentials not configured")

// MediaClient hands a confirmed SessionId to the media server. The session id
// is used verbatim as the room name.
type MediaClient interface {
	PrepareRoom(ctx context.Context, sessionID string, maxDuration time.Duration) error
	CloseRoom(ctx context.Context, sessionID string) error
	JoinToken(sessionID string, identity uuid.UUID, validFor time.Duration) (string, error)
	WSUrl() string
}

type liveKitClient struct {
	rooms   *lksdk.RoomServiceClient
	cfg     config.LiveKitConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewMediaClient returns a LiveKit-backed client, or a no-op one when
// LiveKit is not configured.
func NewMediaClient(cfg config.LiveKitConfig, logger *zap.Logger, m *metrics.Metrics) MediaClient {
	if !cfg.Enabled() {
		logger.Warn("LiveKit not configured, media handoff disabled")
		return noopMediaClient{wsURL: cfg.WSUrl}
	}
	return &liveKitClient{
		rooms:   lksdk.NewRoomServiceClient(cfg.Host, cfg.APIKey, cfg.APISecret),
		cfg:     cfg,
		logger:  logger,
		metrics: m,
	}
}

func (c *liveKitClient) PrepareRoom(ctx context.Context, sessionID string, maxDuration time.Duration) error {
	start := time.Now()
	_, err := c.rooms.CreateRoom(ctx, &livekit.CreateRoomRequest{
		Name:            sessionID,
		EmptyTimeout:    300, // 5 minutes
		MaxParticipants: 2,
		Metadata:        fmt.Sprintf(`{"maxDurationSeconds":%d}`, int(maxDuration.Seconds())),
	})
	c.record("create_room", start, err)
	if err != nil {
		c.logger.Error("Failed to create LiveKit room", zap.String("session_id", sessionID), zap.Error(err))
	}
	return err
}

func (c *liveKitClient) CloseRoom(ctx context.Context, sessionID string) error {
	start := time.Now()
	_, err := c.rooms.DeleteRoom(ctx, &livekit.DeleteRoomRequest{Room: sessionID})
	c.record("delete_room", start, err)
	return err
}

func (c *liveKitClient) JoinToken(sessionID string, identity uuid.UUID, validFor time.Duration) (string, error) {
	at := auth.NewAccessToken(c.cfg.APIKey, c.cfg.APISecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     sessionID,
	}
	at.AddGrant(grant).
		SetIdentity(identity.String()).
		SetValidFor(validFor)

	return at.ToJWT()
}

func (c *liveKitClient) WSUrl() string {
	return c.cfg.WSUrl
}

func (c *liveKitClient) record(operation string, start time.Time, err error) {
	if c.metrics != nil {
		c.metrics.RecordExternalCall("livekit", operation, time.Since(start), err)
	}
}

type noopMediaClient struct {
	wsURL string
}

func (noopMediaClient) PrepareRoom(context.Context, string, time.Duration) error { return nil }
func (noopMediaClient) CloseRoom(context.Context, string) error { return nil }

func (noopMediaClient) JoinToken(string, uuid.UUID, time.Duration) (string, error) {
	return "", ErrMediaNotConfigured
}

func (n noopMediaClient) WSUrl() string { return n.wsURL }
