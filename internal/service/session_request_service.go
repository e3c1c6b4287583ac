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

const (
	ReasonDuplicateRequest = "a request to this designer is already pending"
	ReasonSelfRequest      = "cannot request a session with yourself"

	customerHistoryLimit = 50
)

// Sweeper clears stale state so a Busy caller can retry once.
type Sweeper interface {
	Sweep(ctx context.Context) (*domain.SweepResult, error)
}

// SessionRequestService drives the pending → accepted | rejected workflow.
type SessionRequestService interface {
	RequestSession(ctx context.Context, customerID, designerID uuid.UUID, message string) (*domain.SessionRequest, error)
	RespondToRequest(ctx context.Context, actorID, requestID uuid.UUID, decision domain.Decision, reason *string) (*domain.SessionRequest, error)
	GetBusyState(ctx context.Context, designerID uuid.UUID) (*domain.BusyStateResponse, error)
	GetRequest(ctx context.Context, actorID, requestID uuid.UUID) (*domain.SessionRequest, error)
	ListPendingForDesigner(ctx context.Context, designerID uuid.UUID) ([]domain.SessionRequest, error)
	ListForCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.SessionRequest, error)
}

type sessionRequestService struct {
	requests     repository.RequestRepository
	registry     SessionRegistry
	availability AvailabilityService
	notifier     notification.Notifier
	media        client.MediaClient
	sweeper      Sweeper
	maxDuration  time.Duration
	now          func() time.Time
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewSessionRequestService wires the workflow. sweeper may be nil, in which
// case a Busy outcome is final.
func NewSessionRequestService(
	requests repository.RequestRepository,
	registry SessionRegistry,
	availability AvailabilityService,
	notifier notification.Notifier,
	media client.MediaClient,
	sweeper Sweeper,
	maxDuration time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) SessionRequestService {
	return &sessionRequestService{
		requests:     requests,
		registry:     registry,
		availability: availability,
		notifier:     notifier,
		media:        media,
		sweeper:      sweeper,
		maxDuration:  maxDuration,
		now:          func() time.Time { return time.Now().UTC() },
		metrics:      m,
		logger:       logger,
	}
}

func (s *sessionRequestService) RequestSession(ctx context.Context, customerID, designerID uuid.UUID, message string) (*domain.SessionRequest, error) {
	if customerID == designerID {
		return nil, response.NewValidationError(ReasonSelfRequest, "")
	}

	bookable, err := s.availability.IsBookable(ctx, designerID, s.now())
	if err != nil {
		return nil, err
	}
	if !bookable.Available {
		s.recordOutcome(metrics.OutcomeRefused)
		return nil, response.NewRefusalError(bookable.Reason)
	}

	busy, reason, err := s.busyAfterSweep(ctx, designerID)
	if err != nil {
		return nil, err
	}
	if busy {
		s.recordOutcome(metrics.OutcomeRefused)
		return nil, response.NewRefusalError(reason)
	}

	existing, err := s.requests.FindPending(ctx, customerID, designerID)
	if err != nil {
		return nil, storeErr("load pending request", err)
	}
	if existing != nil {
		s.recordOutcome(metrics.OutcomeRefused)
		return nil, response.NewRefusalError(ReasonDuplicateRequest)
	}

	req := &domain.SessionRequest{
		CustomerID: customerID,
		DesignerID: designerID,
		Status:     domain.RequestStatusPending,
		Message:    message,
	}
	change, err := s.requests.Create(ctx, req)
	if err != nil {
		return nil, storeErr("create session request", err)
	}
	s.notifier.NotifyChange(ctx, change)
	s.recordOutcome(metrics.OutcomeCreated)

	s.logger.Info("Session request created",
		zap.String("request_id", req.ID.String()),
		zap.String("designer_id", designerID.String()),
		zap.String("customer_id", customerID.String()),
	)

	settings, err := s.availability.SettingsFor(ctx, designerID)
	if err != nil {
		s.logger.Warn("Could not load settings for auto-accept", zap.String("request_id", req.ID.String()), zap.Error(err))
		return req, nil
	}
	if !settings.AutoAcceptBookings {
		return req, nil
	}

	accepted, err := s.accept(ctx, req, settings.MaxSessionMinutes)
	if err != nil {
		// Busy and transport failures leave the request pending for the designer.
		s.logger.Info("Auto-accept skipped",
			zap.String("request_id", req.ID.String()),
			zap.Error(err),
		)
		return req, nil
	}
	return accepted, nil
}

func (s *sessionRequestService) RespondToRequest(ctx context.Context, actorID, requestID uuid.UUID, decision domain.Decision, reason *string) (*domain.SessionRequest, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.DesignerID != actorID {
		return nil, ErrNotAddressee
	}
	if req.Status.IsTerminal() {
		return req, nil
	}

	switch decision {
	case domain.DecisionAccept:
		maxMinutes := 0
		if settings, err := s.availability.SettingsFor(ctx, req.DesignerID); err == nil {
			maxMinutes = settings.MaxSessionMinutes
		}
		return s.accept(ctx, req, maxMinutes)
	case domain.DecisionReject:
		return s.reject(ctx, req, reason)
	}
	return nil, response.NewValidationError("Invalid decision", "decision must be accept or reject")
}

func (s *sessionRequestService) accept(ctx context.Context, req *domain.SessionRequest, maxMinutes int) (*domain.SessionRequest, error) {
	requestID := req.ID
	params := AcquireParams{
		DesignerID:              req.DesignerID,
		CustomerID:              req.CustomerID,
		SessionType:             domain.SessionTypeLive,
		RequestID:               &requestID,
		ExpectedDurationMinutes: maxMinutes,
	}

	session, err := s.registry.TryAcquire(ctx, params)
	if errors.Is(err, ErrBusy) && s.sweeper != nil {
		s.sweep(ctx)
		session, err = s.registry.TryAcquire(ctx, params)
	}
	if err != nil {
		if errors.Is(err, ErrBusy) {
			// A concurrent accept of this same request wins the session; report its result.
			if current, loadErr := s.loadRequest(ctx, req.ID); loadErr == nil && current.Status.IsTerminal() {
				return current, nil
			}
			s.recordOutcome(metrics.OutcomeConflict)
		}
		return nil, err
	}

	sessionID := session.SessionID
	stored, change, err := s.requests.Transition(ctx, req.ID, repository.RequestTransition{
		To:        domain.RequestStatusAccepted,
		SessionID: &sessionID,
		At:        s.now(),
	})
	if err != nil {
		s.releaseQuietly(ctx, sessionID, domain.EndReasonSuperseded)
		return nil, storeErr("accept session request", err)
	}
	if change == nil {
		s.releaseQuietly(ctx, sessionID, domain.EndReasonSuperseded)
		return stored, nil
	}

	s.notifier.NotifyChange(ctx, change)
	s.recordOutcome(metrics.OutcomeAccepted)

	duration := s.maxDuration
	if maxMinutes > 0 {
		duration = time.Duration(maxMinutes) * time.Minute
	}
	if err := s.media.PrepareRoom(ctx, sessionID, duration); err != nil {
		s.logger.Warn("Media room not prepared", zap.String("session_id", sessionID), zap.Error(err))
	}

	s.logger.Info("Session request accepted",
		zap.String("request_id", req.ID.String()),
		zap.String("designer_id", req.DesignerID.String()),
		zap.String("session_id", sessionID),
	)
	return stored, nil
}

// reject also stands the designer down from any session they hold.
func (s *sessionRequestService) reject(ctx context.Context, req *domain.SessionRequest, reason *string) (*domain.SessionRequest, error) {
	stored, change, err := s.requests.Transition(ctx, req.ID, repository.RequestTransition{
		To:              domain.RequestStatusRejected,
		RejectionReason: reason,
		At:              s.now(),
	})
	if err != nil {
		return nil, storeErr("reject session request", err)
	}
	if change == nil {
		return stored, nil
	}
	s.notifier.NotifyChange(ctx, change)
	s.recordOutcome(metrics.OutcomeRejected)

	released, err := s.registry.ReleaseAllForDesigner(ctx, req.DesignerID, domain.EndReasonRejected)
	if err != nil {
		s.logger.Error("Failed to release designer sessions after reject",
			zap.String("designer_id", req.DesignerID.String()),
			zap.Error(err),
		)
	}

	s.logger.Info("Session request rejected",
		zap.String("request_id", req.ID.String()),
		zap.String("designer_id", req.DesignerID.String()),
		zap.Int("released_sessions", released),
	)
	return stored, nil
}

func (s *sessionRequestService) GetBusyState(ctx context.Context, designerID uuid.UUID) (*domain.BusyStateResponse, error) {
	busy, reason, err := s.registry.IsBusy(ctx, designerID)
	if err != nil {
		return nil, err
	}
	return &domain.BusyStateResponse{
		DesignerID: designerID.String(),
		Busy:       busy,
		Reason:     reason,
	}, nil
}

// GetRequest is visible to its customer and its designer only.
func (s *sessionRequestService) GetRequest(ctx context.Context, actorID, requestID uuid.UUID) (*domain.SessionRequest, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if actorID != req.CustomerID && actorID != req.DesignerID {
		return nil, ErrRequestNotFound
	}
	return req, nil
}

func (s *sessionRequestService) ListPendingForDesigner(ctx context.Context, designerID uuid.UUID) ([]domain.SessionRequest, error) {
	reqs, err := s.requests.FindPendingByDesigner(ctx, designerID)
	if err != nil {
		return nil, storeErr("list pending requests", err)
	}
	return reqs, nil
}

func (s *sessionRequestService) ListForCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.SessionRequest, error) {
	reqs, err := s.requests.FindByCustomer(ctx, customerID, customerHistoryLimit)
	if err != nil {
		return nil, storeErr("list customer requests", err)
	}
	return reqs, nil
}

func (s *sessionRequestService) loadRequest(ctx context.Context, requestID uuid.UUID) (*domain.SessionRequest, error) {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, storeErr("load session request", err)
	}
	return req, nil
}

func (s *sessionRequestService) busyAfterSweep(ctx context.Context, designerID uuid.UUID) (bool, string, error) {
	busy, reason, err := s.registry.IsBusy(ctx, designerID)
	if err != nil || !busy || s.sweeper == nil {
		return busy, reason, err
	}
	s.sweep(ctx)
	return s.registry.IsBusy(ctx, designerID)
}

func (s *sessionRequestService) sweep(ctx context.Context) {
	result, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.logger.Warn("Opportunistic sweep failed", zap.Error(err))
		return
	}
	if result.CleanedCount > 0 {
		s.logger.Info("Opportunistic sweep cleaned stale state", zap.Int("cleaned", result.CleanedCount))
	}
}

func (s *sessionRequestService) releaseQuietly(ctx context.Context, sessionID, reason string) {
	if _, err := s.registry.Release(ctx, sessionID, reason); err != nil {
		s.logger.Error("Failed to release superseded session, reaper will clean it",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

func (s *sessionRequestService) recordOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordRequestOutcome(outcome)
	}
}
