// Package fanout carries room-scoped and global events from the broadcast
// router to every connection that should receive them, either inside the
// process or across instances.
package fanout

import (
	"context"
	"encoding/json"

	"roomrelay/backend/internal/hub"
)

// Envelope is one event addressed to a room, or to everyone when RoomID is nil.
type Envelope struct {
	RoomID *uint     `json:"roomId,omitempty"`
	Event  hub.Event `json:"event"`
}

// Publisher delivers envelopes to their audience.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Room addresses an event to the members of roomID.
func Room(roomID uint, eventType string, payload any) Envelope {
	return Envelope{RoomID: &roomID, Event: hub.Event{Type: eventType, Payload: payload}}
}

// Global addresses an event to every connection.
func Global(eventType string, payload any) Envelope {
	return Envelope{Event: hub.Event{Type: eventType, Payload: payload}}
}

// deliver hands an envelope to the connections of a local hub.
func deliver(h *hub.Hub, env Envelope) {
	if env.RoomID != nil {
		h.DeliverRoom(*env.RoomID, env.Event)
		return
	}
	h.DeliverAll(env.Event)
}

// Local delivers straight into the hub of this process.
type Local struct {
	hub *hub.Hub
}

func NewLocal(h *hub.Hub) *Local {
	return &Local{hub: h}
}

func (l *Local) Publish(_ context.Context, env Envelope) error {
	deliver(l.hub, env)
	return nil
}

// wireEnvelope keeps the payload undecoded so it is forwarded byte for byte.
type wireEnvelope struct {
	RoomID *uint `json:"roomId,omitempty"`
	Event  struct {
		Type    string          `json:"event"`
		Payload json.RawMessage `json:"data"`
	} `json:"event"`
}

func (w wireEnvelope) toEnvelope() Envelope {
	return Envelope{
		RoomID: w.RoomID,
		Event:  hub.Event{Type: w.Event.Type, Payload: w.Event.Payload},
	}
}
