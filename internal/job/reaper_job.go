package job

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"live-session-service/internal/config"
	"live-session-service/internal/domain"
	"live-session-service/internal/metrics"
	"live-session-service/internal/notification"
	"live-session-service/internal/repository"
	"live-session-service/internal/response"
	"live-session-service/internal/service"
)

const ReasonRequestExpired = "request expired"

// Reaper ends sessions and requests that nobody will finish.
type Reaper struct {
	sessions repository.SessionRepository
	requests repository.RequestRepository
	registry service.SessionRegistry
	notifier notification.Notifier
	cfg      config.SessionConfig
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time

	// mu keeps on-demand and scheduled sweeps from overlapping.
	mu sync.Mutex
}

func NewReaper(
	sessions repository.SessionRepository,
	requests repository.RequestRepository,
	registry service.SessionRegistry,
	notifier notification.Notifier,
	cfg config.SessionConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Reaper {
	return &Reaper{
		sessions: sessions,
		requests: requests,
		registry: registry,
		notifier: notifier,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Sweep runs every pass once. A failing pass is logged and the remaining
// passes still run; the first error is returned with the partial result.
func (r *Reaper) Sweep(ctx context.Context) (*domain.SweepResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := &domain.SweepResult{Details: []domain.SweepDetail{}}
	var firstErr error
	for _, pass := range []struct {
		kind domain.SweepKind
		run  func(context.Context, *domain.SweepResult) error
	}{
		{domain.SweepInconsistentState, r.sweepInconsistent},
		{domain.SweepStaleSession, r.sweepStale},
		{domain.SweepExpiredRequest, r.sweepExpiredRequests},
	} {
		before := result.CleanedCount
		if err := pass.run(ctx, result); err != nil {
			r.logger.Error("Reaper pass failed", zap.String("kind", string(pass.kind)), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
		if cleaned := result.CleanedCount - before; cleaned > 0 && r.metrics != nil {
			r.metrics.RecordReaperCleanup(string(pass.kind), cleaned)
		}
	}
	return result, firstErr
}

// sweepInconsistent keeps the most recently created active row per designer.
func (r *Reaper) sweepInconsistent(ctx context.Context, result *domain.SweepResult) error {
	designers, err := r.sessions.FindDesignersWithMultipleActive(ctx)
	if err != nil {
		return response.NewTransportError("find duplicate active sessions", err)
	}

	for _, designerID := range designers {
		active, err := r.sessions.FindActiveByDesigner(ctx, designerID)
		if err != nil {
			return response.NewTransportError("load active sessions", err)
		}
		if len(active) < 2 {
			continue
		}

		anomaly := response.NewInconsistentStateError(
			"designer has more than one active session",
			designerID.String(),
		)
		r.logger.Warn("Inconsistent session state",
			zap.String("designer_id", designerID.String()),
			zap.Int("active_sessions", len(active)),
			zap.Error(anomaly),
		)

		// Ordered oldest first; the last row survives.
		for _, s := range active[:len(active)-1] {
			if _, err := r.registry.Release(ctx, s.SessionID, domain.EndReasonInconsistent); err != nil {
				r.logger.Error("Failed to end duplicate session",
					zap.String("session_id", s.SessionID),
					zap.Error(err),
				)
				continue
			}
			result.Add(domain.SweepDetail{
				Kind:       domain.SweepInconsistentState,
				EntityID:   s.SessionID,
				DesignerID: designerID,
				Reason:     domain.EndReasonInconsistent,
			})
		}
	}
	return nil
}

func (r *Reaper) sweepStale(ctx context.Context, result *domain.SweepResult) error {
	now := r.now()
	candidates, err := r.sessions.FindActiveIdleSince(ctx, now.Add(-r.cfg.ActivityGrace))
	if err != nil {
		return response.NewTransportError("find idle sessions", err)
	}

	for i := range candidates {
		s := &candidates[i]
		if !s.IsStale(now, r.cfg.MaxSessionDuration, r.cfg.ActivityGrace) {
			continue
		}
		if _, err := r.registry.Release(ctx, s.SessionID, domain.EndReasonStale); err != nil {
			r.logger.Error("Failed to end stale session",
				zap.String("session_id", s.SessionID),
				zap.Error(err),
			)
			continue
		}
		result.Add(domain.SweepDetail{
			Kind:       domain.SweepStaleSession,
			EntityID:   s.SessionID,
			DesignerID: s.DesignerID,
			Reason:     domain.EndReasonStale,
		})
	}
	return nil
}

func (r *Reaper) sweepExpiredRequests(ctx context.Context, result *domain.SweepResult) error {
	now := r.now()
	expired, err := r.requests.FindPendingCreatedBefore(ctx, now.Add(-r.cfg.RequestTTL))
	if err != nil {
		return response.NewTransportError("find expired requests", err)
	}

	reason := ReasonRequestExpired
	for _, req := range expired {
		_, change, err := r.requests.Transition(ctx, req.ID, repository.RequestTransition{
			To:              domain.RequestStatusRejected,
			RejectionReason: &reason,
			At:              now,
		})
		if err != nil {
			r.logger.Error("Failed to expire session request",
				zap.String("request_id", req.ID.String()),
				zap.Error(err),
			)
			continue
		}
		// Decided between the query and the update.
		if change == nil {
			continue
		}
		r.notifier.NotifyChange(ctx, change)
		if r.metrics != nil {
			r.metrics.RecordRequestOutcome(metrics.OutcomeExpired)
		}
		result.Add(domain.SweepDetail{
			Kind:       domain.SweepExpiredRequest,
			EntityID:   req.ID.String(),
			DesignerID: req.DesignerID,
			Reason:     reason,
		})
	}
	return nil
}

// Run executes one scheduled sweep.
func (r *Reaper) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	r.logger.Debug("Starting reaper sweep")

	result, err := r.Sweep(ctx)
	if err != nil {
		r.logger.Error("Reaper sweep finished with errors",
			zap.Int("cleaned", result.CleanedCount),
			zap.Error(err),
		)
		return
	}
	if result.CleanedCount == 0 {
		r.logger.Debug("Reaper sweep found nothing to clean")
		return
	}

	counts := make(map[domain.SweepKind]int)
	for _, d := range result.Details {
		counts[d.Kind]++
	}
	r.logger.Info("Reaper sweep completed",
		zap.Int("cleaned", result.CleanedCount),
		zap.Int("inconsistent_state", counts[domain.SweepInconsistentState]),
		zap.Int("stale_session", counts[domain.SweepStaleSession]),
		zap.Int("expired_request", counts[domain.SweepExpiredRequest]),
	)
}

// Schedule registers Run on the cron spec and starts the scheduler. Stop the
// returned scheduler on shutdown.
func (r *Reaper) Schedule(spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddJob(spec, r); err != nil {
		return nil, err
	}
	c.Start()
	r.logger.Info("Reaper scheduled", zap.String("schedule", spec))
	return c, nil
}
