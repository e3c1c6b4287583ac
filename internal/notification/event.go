package notification

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"live-session-service/internal/domain"
)

// Ingress paths. Both feed the same Bus.
const (
	PathBroadcast = "broadcast"
	PathFeed      = "feed"
)

const envelopeType = "broadcast"

// Event is one notification for one recipient channel.
type Event struct {
	Channel    string          `json:"channel"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Event      string          `json:"event"`
	Revision   int64           `json:"revision"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Key identifies the logical event for one recipient. The same change
// arriving through both ingress paths yields the same key.
func (e Event) Key() string {
	return e.Channel + "|" + e.EntityID + "|" + e.Event + "|" + strconv.FormatInt(e.Revision, 10)
}

// Envelope is the wire format on the relay and the WebSocket.
type Envelope struct {
	Type    string `json:"type"`
	Event   string `json:"event"`
	Payload Event  `json:"payload"`
}

func NewEnvelope(e Event) Envelope {
	return Envelope{Type: envelopeType, Event: e.Event, Payload: e}
}

func DesignerChannel(id uuid.UUID) string {
	return fmt.Sprintf("designer:%s", id)
}

func CustomerChannel(id uuid.UUID) string {
	return fmt.Sprintf("customer:%s", id)
}

func PresenceChannel(designerID uuid.UUID) string {
	return fmt.Sprintf("presence:%s", designerID)
}

// EventsFor expands a committed change into per-recipient events. Both the
// broadcast publisher and the change feed use it, so they agree on keys.
func EventsFor(change *domain.SessionChange) []Event {
	if change == nil {
		return nil
	}
	designer := DesignerChannel(change.DesignerID)
	customer := CustomerChannel(change.CustomerID)

	var targets []struct{ channel, event string }
	add := func(channel, event string) {
		targets = append(targets, struct{ channel, event string }{channel, event})
	}

	switch change.EventType {
	case domain.EventRequestCreated:
		add(designer, domain.EventRequestCreated)
	case domain.EventRequestAccepted:
		add(designer, domain.EventRequestAccepted)
		add(customer, domain.EventRequestAccepted)
		add(designer, domain.EventNavigateToSession)
		add(customer, domain.EventNavigateToSession)
	case domain.EventRequestRejected:
		add(customer, domain.EventRequestRejected)
	case domain.EventSessionEnded:
		add(designer, domain.EventSessionEnded)
		add(customer, domain.EventSessionEnded)
	default:
		add(designer, change.EventType)
		add(customer, change.EventType)
	}

	events := make([]Event, 0, len(targets))
	for _, t := range targets {
		events = append(events, Event{
			Channel:    t.channel,
			EntityType: string(change.EntityType),
			EntityID:   change.EntityID,
			Event:      t.event,
			Revision:   change.Revision,
			Data:       json.RawMessage(change.Payload),
		})
	}
	return events
}
