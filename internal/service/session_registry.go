package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"live-session-service/internal/client"
	"live-session-service/internal/domain"
	"live-session-service/internal/metrics"
	"live-session-service/internal/notification"
	"live-session-service/internal/repository"
	"live-session-service/internal/response"
)

// Busy reasons.
const (
	ReasonInLiveSession      = "designer is in a live session"
	ReasonInScheduledSession = "designer is in a scheduled session"
)

// raceSettleDelay is how long the oldest of several rows waits for newer
// rivals to evict themselves before deciding whether to keep.
const raceSettleDelay = 50 * time.Millisecond

type AcquireParams struct {
	DesignerID              uuid.UUID
	CustomerID              uuid.UUID
	SessionType             string
	RequestID               *uuid.UUID
	ExpectedDurationMinutes int
}

// SessionRegistry owns the one-active-session-per-designer rule.
type SessionRegistry interface {
	// TryAcquire returns the new active session, or an error matching ErrBusy
	// when the designer is already occupied.
	TryAcquire(ctx context.Context, params AcquireParams) (*domain.ActiveSession, error)
	Release(ctx context.Context, sessionID, reason string) (*domain.ActiveSession, error)
	ReleaseAllForDesigner(ctx context.Context, designerID uuid.UUID, reason string) (int, error)
	IsBusy(ctx context.Context, designerID uuid.UUID) (bool, string, error)
	Touch(ctx context.Context, sessionID string) error
	Get(ctx context.Context, sessionID string) (*domain.ActiveSession, error)
	Close()
}

type sessionRegistry struct {
	sessions repository.SessionRepository
	bookings repository.BookingRepository
	notifier notification.Notifier
	media    client.MediaClient
	retry    RetryPolicy
	actors   *actorPool
	now      func() time.Time
	settle   func(ctx context.Context) error
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewSessionRegistry(
	sessions repository.SessionRepository,
	bookings repository.BookingRepository,
	notifier notification.Notifier,
	media client.MediaClient,
	retry RetryPolicy,
	actorIdleTimeout time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) SessionRegistry {
	return &sessionRegistry{
		sessions: sessions,
		bookings: bookings,
		notifier: notifier,
		media:    media,
		retry:    retry,
		actors:   newActorPool(actorIdleTimeout),
		now:      func() time.Time { return time.Now().UTC() },
		settle:   waitFor(raceSettleDelay),
		metrics:  m,
		logger:   logger,
	}
}

func (r *sessionRegistry) TryAcquire(ctx context.Context, params AcquireParams) (*domain.ActiveSession, error) {
	var (
		session *domain.ActiveSession
		err     error
	)
	if runErr := r.actors.do(ctx, params.DesignerID, func() {
		session, err = r.acquire(ctx, params)
	}); runErr != nil {
		return nil, runErr
	}

	if errors.Is(err, ErrBusy) && r.metrics != nil {
		r.metrics.IncrementAcquireConflict()
	}
	return session, err
}

// acquire writes first and compares after. The partial unique index rejects
// a second writer outright where the store supports it; otherwise the
// re-query finds both rows and the later one evicts itself.
func (r *sessionRegistry) acquire(ctx context.Context, params AcquireParams) (*domain.ActiveSession, error) {
	busy, reason, err := r.IsBusy(ctx, params.DesignerID)
	if err != nil {
		return nil, err
	}
	if busy {
		return nil, response.NewConflictError(reason)
	}

	sessionType := params.SessionType
	if sessionType == "" {
		sessionType = domain.SessionTypeLive
	}
	session := &domain.ActiveSession{
		DesignerID:              params.DesignerID,
		CustomerID:              params.CustomerID,
		RequestID:               params.RequestID,
		SessionType:             sessionType,
		Status:                  domain.SessionStatusActive,
		ExpectedDurationMinutes: params.ExpectedDurationMinutes,
		LastActivityAt:          r.now(),
	}
	if err := r.sessions.Create(ctx, session); err != nil {
		if isDuplicate(err) {
			return nil, response.NewConflictError(ReasonInLiveSession)
		}
		return nil, storeErr("create active session", err)
	}

	var active []domain.ActiveSession
	err = r.retry.Do(ctx, func(ctx context.Context) error {
		var findErr error
		active, findErr = r.sessions.FindActiveByDesigner(ctx, params.DesignerID)
		return storeErr("verify active session", findErr)
	})
	if err != nil {
		// The row exists but could not be verified; take it back rather than
		// hand out an unconfirmed session.
		r.evict(ctx, session.SessionID)
		return nil, err
	}

	if len(active) > 1 && active[0].SessionID != session.SessionID {
		r.logger.Warn("Lost acquire race, evicting own row",
			zap.String("designer_id", params.DesignerID.String()),
			zap.String("session_id", session.SessionID),
			zap.String("winner_session_id", active[0].SessionID),
		)
		r.evict(ctx, session.SessionID)
		return nil, response.NewConflictError(ReasonInLiveSession)
	}

	if len(active) > 1 {
		// This row sorts first, but a newer rival may have verified alone
		// before this row committed. Keep only if every rival has gone.
		if err := r.settleRace(ctx, session); err != nil {
			return nil, err
		}
	}

	r.logger.Info("Session acquired",
		zap.String("designer_id", params.DesignerID.String()),
		zap.String("customer_id", params.CustomerID.String()),
		zap.String("session_id", session.SessionID),
	)
	return session, nil
}

func (r *sessionRegistry) settleRace(ctx context.Context, session *domain.ActiveSession) error {
	if err := r.settle(ctx); err != nil {
		r.evict(context.WithoutCancel(ctx), session.SessionID)
		return response.NewTransportError("settle acquire race", err)
	}

	var active []domain.ActiveSession
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		var findErr error
		active, findErr = r.sessions.FindActiveByDesigner(ctx, session.DesignerID)
		return storeErr("re-verify active session", findErr)
	})
	if err != nil {
		r.evict(context.WithoutCancel(ctx), session.SessionID)
		return err
	}

	for _, other := range active {
		if other.SessionID == session.SessionID {
			continue
		}
		r.logger.Warn("Rival kept its session, evicting own row",
			zap.String("designer_id", session.DesignerID.String()),
			zap.String("session_id", session.SessionID),
			zap.String("rival_session_id", other.SessionID),
		)
		r.evict(ctx, session.SessionID)
		return response.NewConflictError(ReasonInLiveSession)
	}
	return nil
}

func waitFor(d time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
}

func (r *sessionRegistry) evict(ctx context.Context, sessionID string) {
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		return storeErr("evict session", r.sessions.Evict(ctx, sessionID, domain.EndReasonRaceLost, r.now()))
	})
	if err != nil {
		r.logger.Error("Failed to evict session, reaper will clean it",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

func (r *sessionRegistry) Get(ctx context.Context, sessionID string) (*domain.ActiveSession, error) {
	session, err := r.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, storeErr("load session", err)
	}
	return session, nil
}

// Release ends the session and tells both parties. Releasing an ended
// session returns it unchanged.
func (r *sessionRegistry) Release(ctx context.Context, sessionID, reason string) (*domain.ActiveSession, error) {
	session, err := r.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.SessionStatusEnded {
		return session, nil
	}

	var (
		ended  *domain.ActiveSession
		relErr error
	)
	if runErr := r.actors.do(ctx, session.DesignerID, func() {
		ended, relErr = r.end(ctx, sessionID, reason)
	}); runErr != nil {
		return nil, runErr
	}
	return ended, relErr
}

func (r *sessionRegistry) ReleaseAllForDesigner(ctx context.Context, designerID uuid.UUID, reason string) (int, error) {
	var (
		count  int
		relErr error
	)
	if runErr := r.actors.do(ctx, designerID, func() {
		var active []domain.ActiveSession
		relErr = r.retry.Do(ctx, func(ctx context.Context) error {
			var err error
			active, err = r.sessions.FindActiveByDesigner(ctx, designerID)
			return storeErr("load active sessions", err)
		})
		if relErr != nil {
			return
		}
		for _, s := range active {
			if _, relErr = r.end(ctx, s.SessionID, reason); relErr != nil {
				return
			}
			count++
		}
	}); runErr != nil {
		return 0, runErr
	}
	return count, relErr
}

// end must run on the designer's actor.
func (r *sessionRegistry) end(ctx context.Context, sessionID, reason string) (*domain.ActiveSession, error) {
	var (
		ended  *domain.ActiveSession
		change *domain.SessionChange
	)
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		ended, change, err = r.sessions.End(ctx, sessionID, reason, r.now())
		return storeErr("end session", err)
	})
	if err != nil {
		return nil, err
	}
	if change == nil {
		return ended, nil
	}

	r.notifier.NotifyChange(ctx, change)
	if err := r.media.CloseRoom(ctx, sessionID); err != nil {
		r.logger.Debug("Media room not closed", zap.String("session_id", sessionID), zap.Error(err))
	}

	r.logger.Info("Session released",
		zap.String("designer_id", ended.DesignerID.String()),
		zap.String("session_id", sessionID),
		zap.String("reason", reason),
	)
	return ended, nil
}

// IsBusy is true while the designer holds an active live session or a
// scheduled booking is in progress.
func (r *sessionRegistry) IsBusy(ctx context.Context, designerID uuid.UUID) (bool, string, error) {
	var (
		active     []domain.ActiveSession
		inProgress bool
	)
	err := r.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		active, err = r.sessions.FindActiveByDesigner(ctx, designerID)
		if err != nil {
			return storeErr("load active sessions", err)
		}
		inProgress, err = r.bookings.HasInProgress(ctx, designerID)
		return storeErr("load bookings", err)
	})
	if err != nil {
		return false, "", err
	}

	switch {
	case len(active) > 0:
		return true, ReasonInLiveSession, nil
	case inProgress:
		return true, ReasonInScheduledSession, nil
	}
	return false, "", nil
}

func (r *sessionRegistry) Touch(ctx context.Context, sessionID string) error {
	touched, err := r.sessions.Touch(ctx, sessionID, r.now())
	if err != nil {
		return storeErr("record session activity", err)
	}
	if !touched {
		return ErrSessionNotFound
	}
	return nil
}

func (r *sessionRegistry) Close() {
	r.actors.close()
}
