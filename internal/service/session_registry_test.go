package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"live-session-service/internal/database/dbtest"
	"live-session-service/internal/domain"
	"live-session-service/internal/metrics"
	"live-session-service/internal/notification"
	"live-session-service/internal/repository"
	"live-session-service/internal/response"
)

func acquireParams(designer uuid.UUID) AcquireParams {
	return AcquireParams{DesignerID: designer, CustomerID: uuid.New(), SessionType: domain.SessionTypeLive}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestTryAcquire_SecondCallerIsBusy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	designer := uuid.New()

	session, err := f.registry.TryAcquire(ctx, acquireParams(designer))
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusActive, session.Status)
	assert.Contains(t, session.SessionID, "ls_")

	_, err = f.registry.TryAcquire(ctx, acquireParams(designer))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBusy))
	assert.Equal(t, 1, f.activeCount(t, designer))
	assert.Equal(t, float64(1), counterValue(t, f.metrics.AcquireConflictsTotal))

	other, err := f.registry.TryAcquire(ctx, acquireParams(uuid.New()))
	require.NoError(t, err, "designers are independent")
	assert.NotEqual(t, session.SessionID, other.SessionID)
}

func TestRelease_NotifiesOnceAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	designer := uuid.New()
	params := acquireParams(designer)
	designerLog := f.subscribe(t, designer)
	customerLog := f.subscribe(t, params.CustomerID)

	session, err := f.registry.TryAcquire(ctx, params)
	require.NoError(t, err)

	ended, err := f.registry.Release(ctx, session.SessionID, domain.EndReasonCompleted)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusEnded, ended.Status)
	require.NotNil(t, ended.EndReason)
	assert.Equal(t, domain.EndReasonCompleted, *ended.EndReason)
	assert.NotNil(t, ended.EndedAt)

	again, err := f.registry.Release(ctx, session.SessionID, "something else")
	require.NoError(t, err)
	assert.Equal(t, domain.EndReasonCompleted, *again.EndReason)

	assert.Equal(t, []string{domain.EventSessionEnded}, designerLog.names())
	assert.Equal(t, []string{domain.EventSessionEnded}, customerLog.names())
	f.media.AssertNumberOfCalls(t, "CloseRoom", 1)

	_, err = f.registry.TryAcquire(ctx, acquireParams(designer))
	assert.NoError(t, err, "released designer can be acquired again")
}

func TestRelease_UnknownSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.registry.Release(context.Background(), "ls_missing", domain.EndReasonCompleted)
	assert.Equal(t, response.ErrCodeNotFound, response.CodeOf(err))
}

func TestReleaseAllForDesigner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	designer := uuid.New()

	_, err := f.registry.TryAcquire(ctx, acquireParams(designer))
	require.NoError(t, err)

	n, err := f.registry.ReleaseAllForDesigner(ctx, designer, domain.EndReasonRejected)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, f.activeCount(t, designer))

	n, err = f.registry.ReleaseAllForDesigner(ctx, designer, domain.EndReasonRejected)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIsBusy_InProgressBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	designer := uuid.New()

	busy, _, err := f.registry.IsBusy(ctx, designer)
	require.NoError(t, err)
	assert.False(t, busy)

	require.NoError(t, f.db.Create(&domain.Booking{
		DesignerID: designer, CustomerID: uuid.New(), Status: domain.BookingInProgress, ScheduledAt: time.Now().UTC(),
	}).Error)

	busy, reason, err := f.registry.IsBusy(ctx, designer)
	require.NoError(t, err)
	assert.True(t, busy)
	assert.Equal(t, ReasonInScheduledSession, reason)

	_, err = f.registry.TryAcquire(ctx, acquireParams(designer))
	assert.True(t, errors.Is(err, ErrBusy))
}

func TestTouch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.registry.TryAcquire(ctx, acquireParams(uuid.New()))
	require.NoError(t, err)

	later := session.LastActivityAt.Add(time.Minute)
	f.registry.now = func() time.Time { return later }
	require.NoError(t, f.registry.Touch(ctx, session.SessionID))

	stored, err := f.registry.Get(ctx, session.SessionID)
	require.NoError(t, err)
	assert.WithinDuration(t, later, stored.LastActivityAt, time.Millisecond)

	assert.Equal(t, response.ErrCodeNotFound, response.CodeOf(f.registry.Touch(ctx, "ls_missing")))
}

func TestTryAcquire_ConcurrentCallersExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	designer := uuid.New()

	const callers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		busy      int
		start     = make(chan struct{})
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.registry.TryAcquire(context.Background(), acquireParams(designer))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrBusy):
				busy++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, busy)
	assert.Equal(t, 1, f.activeCount(t, designer))
}

// Two registries model two service instances sharing one store that lacks
// the partial unique index.
func TestTryAcquire_TwoInstancesWithoutUniqueIndex(t *testing.T) {
	db := dbtest.OpenWithoutIndexes(t)
	first := newFixtureWithDB(t, db)
	second := newFixtureWithDB(t, db)
	designer := uuid.New()

	var (
		wg      sync.WaitGroup
		results = make([]error, 2)
		start   = make(chan struct{})
	)
	for i, reg := range []SessionRegistry{first.registry, second.registry} {
		wg.Add(1)
		go func(i int, reg SessionRegistry) {
			defer wg.Done()
			<-start
			_, results[i] = reg.TryAcquire(context.Background(), acquireParams(designer))
		}(i, reg)
	}
	close(start)
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else {
			assert.True(t, errors.Is(err, ErrBusy), "unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, first.activeCount(t, designer))
}

// racingSessionRepo slips an older active row in right after our insert.
type racingSessionRepo struct {
	repository.SessionRepository
	rival *domain.ActiveSession
}

func (r *racingSessionRepo) Create(ctx context.Context, session *domain.ActiveSession) error {
	if err := r.SessionRepository.Create(ctx, session); err != nil {
		return err
	}
	r.rival = &domain.ActiveSession{
		DesignerID:  session.DesignerID,
		CustomerID:  uuid.New(),
		SessionType: domain.SessionTypeLive,
		CreatedAt:   session.CreatedAt.Add(-time.Second),
	}
	return r.SessionRepository.Create(ctx, r.rival)
}

func TestTryAcquire_LaterRowEvictsItself(t *testing.T) {
	db := dbtest.OpenWithoutIndexes(t)
	f := newFixtureWithDB(t, db)
	racing := &racingSessionRepo{SessionRepository: f.sessionRepo}
	f.registry.sessions = racing
	designer := uuid.New()

	_, err := f.registry.TryAcquire(context.Background(), acquireParams(designer))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBusy))

	active, err := f.sessionRepo.FindActiveByDesigner(context.Background(), designer)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, racing.rival.SessionID, active[0].SessionID)

	var evicted []domain.ActiveSession
	require.NoError(t, db.Where("designer_id = ? AND status = ?", designer, domain.SessionStatusEnded).Find(&evicted).Error)
	require.Len(t, evicted, 1)
	assert.Equal(t, domain.EndReasonRaceLost, *evicted[0].EndReason)
}

// confirmedRivalRepo commits a newer-stamped rival right after our insert,
// as if that rival had verified alone before our row became visible.
type confirmedRivalRepo struct {
	repository.SessionRepository
	rival *domain.ActiveSession
}

func (r *confirmedRivalRepo) Create(ctx context.Context, session *domain.ActiveSession) error {
	if err := r.SessionRepository.Create(ctx, session); err != nil {
		return err
	}
	r.rival = &domain.ActiveSession{
		DesignerID:  session.DesignerID,
		CustomerID:  uuid.New(),
		SessionType: domain.SessionTypeLive,
		CreatedAt:   session.CreatedAt.Add(time.Second),
	}
	return r.SessionRepository.Create(ctx, r.rival)
}

func TestTryAcquire_OlderRowYieldsToRivalThatKept(t *testing.T) {
	db := dbtest.OpenWithoutIndexes(t)
	f := newFixtureWithDB(t, db)
	rivals := &confirmedRivalRepo{SessionRepository: f.sessionRepo}
	f.registry.sessions = rivals
	settled := 0
	f.registry.settle = func(context.Context) error {
		settled++
		return nil
	}
	designer := uuid.New()

	_, err := f.registry.TryAcquire(context.Background(), acquireParams(designer))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBusy))
	assert.Equal(t, 1, settled)

	active, err := f.sessionRepo.FindActiveByDesigner(context.Background(), designer)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, rivals.rival.SessionID, active[0].SessionID)
}

func TestTryAcquire_OlderRowKeepsWhenRivalEvictsItself(t *testing.T) {
	db := dbtest.OpenWithoutIndexes(t)
	f := newFixtureWithDB(t, db)
	rivals := &confirmedRivalRepo{SessionRepository: f.sessionRepo}
	f.registry.sessions = rivals
	f.registry.settle = func(ctx context.Context) error {
		return f.sessionRepo.Evict(ctx, rivals.rival.SessionID, domain.EndReasonRaceLost, time.Now().UTC())
	}
	designer := uuid.New()

	session, err := f.registry.TryAcquire(context.Background(), acquireParams(designer))
	require.NoError(t, err)

	active, err := f.sessionRepo.FindActiveByDesigner(context.Background(), designer)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, session.SessionID, active[0].SessionID)
}

// Property: whatever sequence of acquires and releases runs, no designer
// ever holds more than one active session.
func TestRegistry_AtMostOneActiveProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)

	designers := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	properties.Property("count(active) <= 1 per designer", prop.ForAll(
		func(ops []int) bool {
			db := dbtest.Open(t)
			sessions := repository.NewSessionRepository(db)
			registry := NewSessionRegistry(sessions, repository.NewBookingRepository(db),
				notification.NewNotifier(notification.NewLocalPublisher(notification.NewBus(64, time.Minute, zap.NewNop(), nil)), zap.NewNop()),
				newMockMedia(), RetryPolicy{Attempts: 1}, time.Second,
				metrics.NewWithRegistry(prometheus.NewRegistry(), nil), zap.NewNop())
			defer registry.Close()

			ctx := context.Background()
			var held []string
			for _, op := range ops {
				designer := designers[op%len(designers)]
				if op >= 10 && len(held) > 0 {
					if _, err := registry.Release(ctx, held[0], domain.EndReasonCompleted); err != nil {
						return false
					}
					held = held[1:]
				} else {
					s, err := registry.TryAcquire(ctx, acquireParams(designer))
					if err == nil {
						held = append(held, s.SessionID)
					} else if !errors.Is(err, ErrBusy) {
						return false
					}
				}
				for _, d := range designers {
					active, err := sessions.FindActiveByDesigner(ctx, d)
					if err != nil || len(active) > 1 {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOfN(20, gen.IntRange(0, 19)),
	))

	properties.TestingRun(t)
}
