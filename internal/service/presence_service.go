package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"live-session-service/internal/domain"
	"live-session-service/internal/notification"
	"live-session-service/internal/repository"
	"live-session-service/internal/response"
)

// PresenceService records designer heartbeats. The rest of the core only
// reads presence through Get and IsOnline.
type PresenceService interface {
	Heartbeat(ctx context.Context, designerID uuid.UUID, status domain.ActivityStatus) (*domain.PresenceRecord, error)
	MarkOffline(ctx context.Context, designerID uuid.UUID) error
	Get(ctx context.Context, designerID uuid.UUID) (*domain.PresenceRecord, error)
	IsOnline(ctx context.Context, designerID uuid.UUID) (bool, error)
}

type presenceService struct {
	repo     repository.PresenceRepository
	redis    *redis.Client
	notifier notification.Notifier
	timeout  time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewPresenceService builds the tracker. redis may be nil, in which case the
// store alone decides who is online.
func NewPresenceService(
	repo repository.PresenceRepository,
	redisClient *redis.Client,
	notifier notification.Notifier,
	heartbeatTimeout time.Duration,
	logger *zap.Logger,
) PresenceService {
	return &presenceService{
		repo:     repo,
		redis:    redisClient,
		notifier: notifier,
		timeout:  heartbeatTimeout,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

func presenceKey(designerID uuid.UUID) string {
	return fmt.Sprintf("presence:designer:%s", designerID)
}

func (s *presenceService) Heartbeat(ctx context.Context, designerID uuid.UUID, status domain.ActivityStatus) (*domain.PresenceRecord, error) {
	if status == "" {
		status = domain.ActivityAvailable
	}
	if !status.Valid() {
		return nil, response.NewValidationError("Invalid activity status", string(status))
	}
	if status == domain.ActivityOffline {
		if err := s.MarkOffline(ctx, designerID); err != nil {
			return nil, err
		}
		return s.Get(ctx, designerID)
	}

	now := s.now()
	previous, err := s.repo.Find(ctx, designerID)
	if err != nil {
		return nil, storeErr("load presence", err)
	}
	wasOnline := previous.OnlineAt(now, s.timeout)

	record := &domain.PresenceRecord{
		DesignerID:     designerID,
		IsOnline:       true,
		ActivityStatus: status,
		LastSeen:       now,
	}
	if err := s.repo.Upsert(ctx, record); err != nil {
		return nil, storeErr("save presence", err)
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, presenceKey(designerID), string(status), s.timeout).Err(); err != nil {
			s.logger.Warn("Failed to cache presence", zap.String("designer_id", designerID.String()), zap.Error(err))
		}
	}

	if !wasOnline {
		s.broadcast(ctx, record)
	}
	return record, nil
}

func (s *presenceService) MarkOffline(ctx context.Context, designerID uuid.UUID) error {
	now := s.now()
	previous, err := s.repo.Find(ctx, designerID)
	if err != nil {
		return storeErr("load presence", err)
	}
	if err := s.repo.SetOffline(ctx, designerID, now); err != nil {
		return storeErr("save presence", err)
	}
	if s.redis != nil {
		if err := s.redis.Del(ctx, presenceKey(designerID)).Err(); err != nil {
			s.logger.Warn("Failed to clear cached presence", zap.String("designer_id", designerID.String()), zap.Error(err))
		}
	}

	if previous.OnlineAt(now, s.timeout) {
		s.broadcast(ctx, &domain.PresenceRecord{
			DesignerID:     designerID,
			ActivityStatus: domain.ActivityOffline,
			LastSeen:       now,
		})
	}
	return nil
}

// Get returns the effective record. A designer never seen, or whose last
// heartbeat is older than the timeout, is reported offline.
func (s *presenceService) Get(ctx context.Context, designerID uuid.UUID) (*domain.PresenceRecord, error) {
	record, err := s.repo.Find(ctx, designerID)
	if err != nil {
		return nil, storeErr("load presence", err)
	}
	if record == nil {
		return &domain.PresenceRecord{DesignerID: designerID, ActivityStatus: domain.ActivityOffline}, nil
	}
	if !record.OnlineAt(s.now(), s.timeout) {
		record.IsOnline = false
		record.ActivityStatus = domain.ActivityOffline
	}
	return record, nil
}

func (s *presenceService) IsOnline(ctx context.Context, designerID uuid.UUID) (bool, error) {
	if s.redis != nil {
		n, err := s.redis.Exists(ctx, presenceKey(designerID)).Result()
		if err == nil && n > 0 {
			return true, nil
		}
	}
	record, err := s.Get(ctx, designerID)
	if err != nil {
		return false, err
	}
	return record.IsOnline, nil
}

func (s *presenceService) broadcast(ctx context.Context, record *domain.PresenceRecord) {
	if s.notifier == nil {
		return
	}
	data, err := json.Marshal(record)
	if err != nil {
		s.logger.Error("Failed to marshal presence for broadcast", zap.Error(err))
		return
	}
	s.notifier.NotifyEvent(ctx, notification.Event{
		Channel:    notification.PresenceChannel(record.DesignerID),
		EntityType: "presence",
		EntityID:   record.DesignerID.String(),
		Event:      domain.EventPresenceChanged,
		Revision:   record.LastSeen.UnixNano(),
		Data:       data,
	})
}
