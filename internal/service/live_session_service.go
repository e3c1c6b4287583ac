package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"live-session-service/internal/client"
	"live-session-service/internal/domain"
	"live-session-service/internal/response"
)

const ReasonSessionEnded = "session has ended"

// LiveSessionService is what the two participants of a session may do with it.
type LiveSessionService interface {
	Release(ctx context.Context, actorID uuid.UUID, sessionID, reason string) (*domain.ActiveSession, error)
	RecordActivity(ctx context.Context, actorID uuid.UUID, sessionID string) error
	JoinToken(ctx context.Context, actorID uuid.UUID, sessionID string) (*domain.JoinTokenResponse, error)
}

type liveSessionService struct {
	registry SessionRegistry
	media    client.MediaClient
	tokenTTL time.Duration
	logger   *zap.Logger
}

func NewLiveSessionService(registry SessionRegistry, media client.MediaClient, tokenTTL time.Duration, logger *zap.Logger) LiveSessionService {
	return &liveSessionService{
		registry: registry,
		media:    media,
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

func (s *liveSessionService) participantSession(ctx context.Context, actorID uuid.UUID, sessionID string) (*domain.ActiveSession, error) {
	session, err := s.registry.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if actorID != session.DesignerID && actorID != session.CustomerID {
		return nil, ErrNotParticipant
	}
	return session, nil
}

func (s *liveSessionService) Release(ctx context.Context, actorID uuid.UUID, sessionID, reason string) (*domain.ActiveSession, error) {
	if _, err := s.participantSession(ctx, actorID, sessionID); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = domain.EndReasonCompleted
	}
	return s.registry.Release(ctx, sessionID, reason)
}

func (s *liveSessionService) RecordActivity(ctx context.Context, actorID uuid.UUID, sessionID string) error {
	session, err := s.participantSession(ctx, actorID, sessionID)
	if err != nil {
		return err
	}
	if session.Status != domain.SessionStatusActive {
		return response.NewRefusalError(ReasonSessionEnded)
	}
	return s.registry.Touch(ctx, sessionID)
}

// JoinToken only issues tokens for a confirmed, still-active session.
func (s *liveSessionService) JoinToken(ctx context.Context, actorID uuid.UUID, sessionID string) (*domain.JoinTokenResponse, error) {
	session, err := s.participantSession(ctx, actorID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.SessionStatusActive {
		return nil, response.NewRefusalError(ReasonSessionEnded)
	}

	token, err := s.media.JoinToken(sessionID, actorID, s.tokenTTL)
	if err != nil {
		if errors.Is(err, client.ErrMediaNotConfigured) {
			return nil, response.NewRefusalError("media server is not configured")
		}
		s.logger.Error("Failed to mint join token", zap.String("session_id", sessionID), zap.Error(err))
		return nil, response.NewTransportError("mint join token", err)
	}

	return &domain.JoinTokenResponse{
		SessionID: sessionID,
		Token:     token,
		WSUrl:     s.media.WSUrl(),
	}, nil
}
