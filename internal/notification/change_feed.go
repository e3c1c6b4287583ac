package notification

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"live-session-service/internal/repository"
)

// ChangeFeed tails the session change log and ingests every committed change
// into the Bus.
//
// Revisions are allocated at insert, so a lower revision can commit after a
// higher one. The cursor therefore only moves across contiguous revisions.
// A hole is held open for gapGrace; rows above it are delivered as they
// appear and remembered in pending so they are not ingested twice. A hole
// still empty after gapGrace is treated as a rolled-back insert and skipped.
type ChangeFeed struct {
	changes  repository.ChangeRepository
	bus      *Bus
	interval time.Duration
	batch    int
	gapGrace time.Duration
	logger   *zap.Logger
	now      func() time.Time

	cursor   int64
	pending  map[int64]struct{}
	gapSince time.Time
}

func NewChangeFeed(changes repository.ChangeRepository, bus *Bus, interval time.Duration, batch int, gapGrace time.Duration, logger *zap.Logger) *ChangeFeed {
	if batch <= 0 {
		batch = 200
	}
	if gapGrace <= 0 {
		gapGrace = 30 * time.Second
	}
	return &ChangeFeed{
		changes:  changes,
		bus:      bus,
		interval: interval,
		batch:    batch,
		gapGrace: gapGrace,
		logger:   logger,
		now:      time.Now,
		pending:  make(map[int64]struct{}),
	}
}

// Start positions the cursor at the newest revision so only changes committed
// from now on are delivered.
func (f *ChangeFeed) Start(ctx context.Context) error {
	latest, err := f.changes.LatestRevision(ctx)
	if err != nil {
		return err
	}
	f.cursor = latest
	f.pending = make(map[int64]struct{})
	f.gapSince = time.Time{}
	return nil
}

// Poll ingests every change after the cursor that has not been delivered yet
// and returns how many it ingested.
func (f *ChangeFeed) Poll(ctx context.Context) (int, error) {
	ingested := 0
	after := f.cursor
	for {
		changes, err := f.changes.FindAfter(ctx, after, f.batch)
		if err != nil {
			f.advance()
			return ingested, err
		}
		for i := range changes {
			rev := changes[i].Revision
			after = rev
			if _, seen := f.pending[rev]; seen {
				continue
			}
			for _, e := range EventsFor(&changes[i]) {
				f.bus.Ingest(e, PathFeed)
			}
			f.pending[rev] = struct{}{}
			ingested++
		}
		if len(changes) < f.batch {
			f.advance()
			return ingested, nil
		}
	}
}

// advance moves the cursor over contiguous delivered revisions and past holes
// older than gapGrace.
func (f *ChangeFeed) advance() {
	for len(f.pending) > 0 {
		next := f.cursor + 1
		if _, ok := f.pending[next]; ok {
			delete(f.pending, next)
			f.cursor = next
			f.gapSince = time.Time{}
			continue
		}

		now := f.now()
		if f.gapSince.IsZero() {
			f.gapSince = now
			return
		}
		if now.Sub(f.gapSince) < f.gapGrace {
			return
		}

		lowest := f.lowestPending()
		f.logger.Debug("Skipping empty revision range",
			zap.Int64("from", next),
			zap.Int64("to", lowest-1))
		f.cursor = lowest - 1
		f.gapSince = time.Time{}
	}
}

func (f *ChangeFeed) lowestPending() int64 {
	revs := make([]int64, 0, len(f.pending))
	for rev := range f.pending {
		revs = append(revs, rev)
	}
	sort.Slice(revs, func(i, j int) bool { return revs[i] < revs[j] })
	return revs[0]
}

// Run polls on the configured interval until ctx is cancelled.
func (f *ChangeFeed) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := f.Poll(ctx); err != nil && ctx.Err() == nil {
				f.logger.Warn("Change feed poll failed", zap.Int64("cursor", f.cursor), zap.Error(err))
			}
		}
	}
}

// Cursor is the highest revision below which every change has been delivered.
func (f *ChangeFeed) Cursor() int64 {
	return f.cursor
}
