package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"live-session-service/internal/config"
	"live-session-service/internal/database/dbtest"
	"live-session-service/internal/domain"
	"live-session-service/internal/metrics"
	"live-session-service/internal/notification"
	"live-session-service/internal/repository"
)

// Monday 10:00 UTC, inside the default 09:00-17:00 working window.
var mondayMorning = time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)

type MockMediaClient struct {
	mock.Mock
}

func (m *MockMediaClient) PrepareRoom(ctx context.Context, sessionID string, maxDuration time.Duration) error {
	return m.Called(ctx, sessionID, maxDuration).Error(0)
}

func (m *MockMediaClient) CloseRoom(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

func (m *MockMediaClient) JoinToken(sessionID string, identity uuid.UUID, validFor time.Duration) (string, error) {
	args := m.Called(sessionID, identity, validFor)
	return args.String(0), args.Error(1)
}

func (m *MockMediaClient) WSUrl() string {
	return "ws://media.test"
}

func newMockMedia() *MockMediaClient {
	media := &MockMediaClient{}
	media.On("PrepareRoom", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	media.On("CloseRoom", mock.Anything, mock.Anything).Return(nil).Maybe()
	return media
}

type eventLog struct {
	mu     sync.Mutex
	events []notification.Event
}

func (l *eventLog) add(e notification.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, 0, len(l.events))
	for _, e := range l.events {
		names = append(names, e.Event)
	}
	return names
}

type stubSweeper struct {
	calls int
	fn    func(ctx context.Context) (*domain.SweepResult, error)
}

func (s *stubSweeper) Sweep(ctx context.Context) (*domain.SweepResult, error) {
	s.calls++
	if s.fn != nil {
		return s.fn(ctx)
	}
	return &domain.SweepResult{}, nil
}

type fixture struct {
	db           *gorm.DB
	cfg          config.SessionConfig
	bus          *notification.Bus
	media        *MockMediaClient
	metrics      *metrics.Metrics
	sessionRepo  repository.SessionRepository
	requestRepo  repository.RequestRepository
	availRepo    repository.AvailabilityRepository
	presence     *presenceService
	availability *availabilityService
	registry     *sessionRegistry
	requests     *sessionRequestService
	sweeper      *stubSweeper
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithDB(t, dbtest.Open(t))
}

func newFixtureWithDB(t *testing.T, db *gorm.DB) *fixture {
	t.Helper()

	cfg := config.Default().Session
	cfg.RetryBackoff = time.Millisecond
	logger := zap.NewNop()
	m := metrics.NewWithRegistry(prometheus.NewRegistry(), nil)
	bus := notification.NewBus(1024, time.Minute, logger, m)
	notifier := notification.NewNotifier(notification.NewLocalPublisher(bus), logger)
	media := newMockMedia()

	f := &fixture{
		db:          db,
		cfg:         cfg,
		bus:         bus,
		media:       media,
		metrics:     m,
		sessionRepo: repository.NewSessionRepository(db),
		requestRepo: repository.NewRequestRepository(db),
		availRepo:   repository.NewAvailabilityRepository(db),
		sweeper:     &stubSweeper{},
	}

	f.presence = NewPresenceService(repository.NewPresenceRepository(db), nil, notifier, cfg.HeartbeatTimeout, logger).(*presenceService)
	f.presence.now = func() time.Time { return mondayMorning }
	f.availability = NewAvailabilityService(f.availRepo, f.presence, cfg, logger).(*availabilityService)
	f.registry = NewSessionRegistry(f.sessionRepo, repository.NewBookingRepository(db), notifier, media,
		RetryPolicy{Attempts: cfg.RetryAttempts, Backoff: cfg.RetryBackoff}, cfg.ActorIdleTimeout, m, logger).(*sessionRegistry)
	t.Cleanup(f.registry.Close)
	f.requests = NewSessionRequestService(f.requestRepo, f.registry, f.availability, notifier, media,
		f.sweeper, cfg.MaxSessionDuration, m, logger).(*sessionRequestService)
	f.requests.now = func() time.Time { return mondayMorning }
	return f
}

func (f *fixture) online(t *testing.T, designerID uuid.UUID) {
	t.Helper()
	_, err := f.presence.Heartbeat(context.Background(), designerID, domain.ActivityAvailable)
	require.NoError(t, err)
}

func (f *fixture) subscribe(t *testing.T, userID uuid.UUID) *eventLog {
	t.Helper()
	log := &eventLog{}
	sub := f.bus.OnSessionStateChange(userID, log.add)
	t.Cleanup(sub.Close)
	return log
}

func (f *fixture) activeCount(t *testing.T, designerID uuid.UUID) int {
	t.Helper()
	active, err := f.sessionRepo.FindActiveByDesigner(context.Background(), designerID)
	require.NoError(t, err)
	return len(active)
}
