package notification

import (
	"context"

	"go.uber.org/zap"

	"live-session-service/internal/domain"
)

// Publisher sends events on the best-effort broadcast path.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// Notifier is what services call after a change commits.
type Notifier interface {
	NotifyChange(ctx context.Context, change *domain.SessionChange)
	NotifyEvent(ctx context.Context, event Event)
}

type notifier struct {
	publisher Publisher
	logger    *zap.Logger
}

// NewNotifier wraps a Publisher. Publish failures are logged only: the change
// feed redelivers anything committed.
func NewNotifier(publisher Publisher, logger *zap.Logger) Notifier {
	return &notifier{publisher: publisher, logger: logger}
}

func (n *notifier) NotifyChange(ctx context.Context, change *domain.SessionChange) {
	if change == nil {
		return
	}
	if err := n.publisher.Publish(ctx, EventsFor(change)...); err != nil {
		n.logger.Warn("Broadcast failed, relying on change feed",
			zap.String("entity_id", change.EntityID),
			zap.String("event", change.EventType),
			zap.Int64("revision", change.Revision),
			zap.Error(err),
		)
	}
}

func (n *notifier) NotifyEvent(ctx context.Context, event Event) {
	if err := n.publisher.Publish(ctx, event); err != nil {
		n.logger.Warn("Broadcast failed",
			zap.String("channel", event.Channel),
			zap.String("event", event.Event),
			zap.Error(err),
		)
	}
}

// LocalPublisher hands events straight to an in-process Bus. It is used when
// no relay is configured.
type LocalPublisher struct {
	bus *Bus
}

func NewLocalPublisher(bus *Bus) *LocalPublisher {
	return &LocalPublisher{bus: bus}
}

func (p *LocalPublisher) Publish(ctx context.Context, events ...Event) error {
	for _, e := range events {
		p.bus.Ingest(e, PathBroadcast)
	}
	return nil
}
