package notification

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"live-session-service/internal/metrics"
)

// Callback receives each logical event at most once per subscription.
type Callback func(Event)

// Bus is the in-process fan-out point. The relay subscriber and the change
// feed both call Ingest; whichever arrives first is delivered and the other
// is dropped as a duplicate.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	seen   *expirable.LRU[string, struct{}]
	seenMu sync.Mutex

	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewBus(dedupSize int, dedupTTL time.Duration, logger *zap.Logger, m *metrics.Metrics) *Bus {
	if dedupSize <= 0 {
		dedupSize = 4096
	}
	return &Bus{
		subs:    make(map[string]map[*Subscription]struct{}),
		seen:    expirable.NewLRU[string, struct{}](dedupSize, nil, dedupTTL),
		logger:  logger,
		metrics: m,
	}
}

// Subscription is a handle returned by Subscribe. Close stops delivery.
type Subscription struct {
	bus      *Bus
	channels []string
	callback Callback
	once     sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		for _, ch := range s.channels {
			if set, ok := s.bus.subs[ch]; ok {
				delete(set, s)
				if len(set) == 0 {
					delete(s.bus.subs, ch)
				}
			}
		}
	})
}

// Subscribe registers callback for every event on the given channels.
func (b *Bus) Subscribe(callback Callback, channels ...string) *Subscription {
	sub := &Subscription{bus: b, channels: channels, callback: callback}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range channels {
		if b.subs[ch] == nil {
			b.subs[ch] = make(map[*Subscription]struct{})
		}
		b.subs[ch][sub] = struct{}{}
	}
	return sub
}

// OnSessionStateChange subscribes to everything addressed to recipientID in
// either role.
func (b *Bus) OnSessionStateChange(recipientID uuid.UUID, callback Callback) *Subscription {
	return b.Subscribe(callback, DesignerChannel(recipientID), CustomerChannel(recipientID))
}

// Ingest delivers e unless it was already delivered. It reports whether the
// event was new.
func (b *Bus) Ingest(e Event, path string) bool {
	if b.metrics != nil {
		b.metrics.RecordNotification(path)
	}

	b.seenMu.Lock()
	if b.seen.Contains(e.Key()) {
		b.seenMu.Unlock()
		if b.metrics != nil {
			b.metrics.IncrementDuplicateDropped()
		}
		return false
	}
	b.seen.Add(e.Key(), struct{}{})
	b.seenMu.Unlock()

	b.mu.RLock()
	targets := make([]*Subscription, 0, len(b.subs[e.Channel]))
	for sub := range b.subs[e.Channel] {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		b.deliver(sub, e)
	}
	return true
}

func (b *Bus) deliver(sub *Subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Panic in notification callback",
				zap.String("channel", e.Channel),
				zap.String("event", e.Event),
				zap.Any("panic", r),
			)
		}
	}()
	sub.callback(e)
}
