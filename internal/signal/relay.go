package signal

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/carebridge/telehealth-signaling/internal/errs"
	"github.com/carebridge/telehealth-signaling/internal/room"
)

// Outlet is the write side of one connection. Send must not block; it
// reports false when the message was dropped (full buffer, closed peer).
type Outlet interface {
	Send(data []byte) bool
}

// Relay fans room-scoped messages out to the other registered connections
// of a room. Delivery is best-effort and unpersisted; same-sender ordering
// is preserved because each connection has a single reader goroutine.
type Relay struct {
	rooms *room.Registry

	mu      sync.RWMutex
	outlets map[string]Outlet
}

func NewRelay(rooms *room.Registry) *Relay {
	return &Relay{
		rooms:   rooms,
		outlets: make(map[string]Outlet),
	}
}

// Attach registers a connection's outlet under its connection ID.
func (r *Relay) Attach(connectionID string, out Outlet) {
	r.mu.Lock()
	r.outlets[connectionID] = out
	r.mu.Unlock()
}

// Detach removes the outlet. Messages to a detached connection are dropped.
func (r *Relay) Detach(connectionID string) {
	r.mu.Lock()
	delete(r.outlets, connectionID)
	r.mu.Unlock()
}

// Relay broadcasts a connection-originated message to every other
// participant of the sender's room. Messages from a sender that is not a
// currently registered participant are silently dropped on the wire; the
// returned error exists for observability only. The sender never receives
// its own message.
func (r *Relay) Relay(appointmentID, senderConnectionID string, msg Message) error {
	snap, ok := r.rooms.Get(appointmentID)
	if !ok {
		return errs.ErrRoomNotFound
	}
	if !snap.HasConnection(senderConnectionID) {
		log.Debug().Str("module", "signal.relay").
			Str("appointment", appointmentID).
			Str("conn", senderConnectionID).
			Str("kind", string(msg.Kind)).
			Msg("dropped message from unregistered sender")
		return errs.ErrNotInRoom
	}
	msg.AppointmentID = appointmentID
	msg.From = senderConnectionID
	r.fanOut(snap.OtherConnections(senderConnectionID), msg)
	return nil
}

// Deliver broadcasts a server-originated message to every registered
// connection of the room, minus excludeConnectionID when non-empty. Used
// for join/leave notices, call-ended and chat fan-out, where the origin is
// the server (or a REST caller with no live connection).
func (r *Relay) Deliver(appointmentID, excludeConnectionID string, msg Message) {
	snap, ok := r.rooms.Get(appointmentID)
	if !ok {
		return
	}
	msg.AppointmentID = appointmentID
	r.fanOut(snap.OtherConnections(excludeConnectionID), msg)
}

// DeliverTo sends directly to one connection (join confirmations, errors).
func (r *Relay) DeliverTo(connectionID string, msg Message) {
	r.fanOut([]string{connectionID}, msg)
}

func (r *Relay) fanOut(connectionIDs []string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "signal.relay").Msg("failed to marshal message")
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, connID := range connectionIDs {
		out, ok := r.outlets[connID]
		if !ok {
			continue
		}
		if !out.Send(data) {
			log.Warn().Str("module", "signal.relay").
				Str("conn", connID).
				Str("kind", string(msg.Kind)).
				Msg("failed to send message, buffer full")
		}
	}
}
