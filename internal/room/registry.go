package room

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/carebridge/telehealth-signaling/internal/errs"
)

// maxParties is the hard participant cap: one patient, one doctor.
const maxParties = 2

type liveRoom struct {
	appointmentID string

	mu           sync.Mutex
	participants map[string]*Participant // keyed by connectionID
	status       Status
	offerSeen    bool
	answerSeen   bool
	closed       bool
	createdAt    time.Time
	lastActivity time.Time
}

func (r *liveRoom) snapshotLocked() Snapshot {
	snap := Snapshot{
		AppointmentID:  r.appointmentID,
		Status:         r.status,
		Participants:   make([]Participant, 0, len(r.participants)),
		CreatedAt:      r.createdAt,
		LastActivityAt: r.lastActivity,
	}
	for _, p := range r.participants {
		snap.Participants = append(snap.Participants, *p)
	}
	return snap
}

// Registry owns every live room. Map access is serialized by the registry
// mutex; room mutation by each room's own mutex, so operations on distinct
// appointments never contend. No lock is held across an external call.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*liveRoom
	conns map[string]string // connectionID -> appointmentID
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*liveRoom),
		conns: make(map[string]string),
	}
}

func (reg *Registry) getOrCreate(appointmentID string) *liveRoom {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[appointmentID]
	if !ok {
		now := time.Now()
		r = &liveRoom{
			appointmentID: appointmentID,
			participants:  make(map[string]*Participant),
			status:        StatusWaiting,
			createdAt:     now,
			lastActivity:  now,
		}
		reg.rooms[appointmentID] = r
		log.Debug().Str("module", "room.registry").Str("appointment", appointmentID).Msg("room created")
	}
	return r
}

// drop removes r from the map if it is still the current entry.
func (reg *Registry) drop(r *liveRoom) {
	reg.mu.Lock()
	if cur, ok := reg.rooms[r.appointmentID]; ok && cur == r {
		delete(reg.rooms, r.appointmentID)
	}
	reg.mu.Unlock()
	log.Debug().Str("module", "room.registry").Str("appointment", r.appointmentID).Msg("room removed")
}

// Join registers a participant, lazily creating the room. A third distinct
// userID is rejected with ErrRoomFull. A rejoin by an already-present
// userID from a new connection evicts the stale connection (last writer
// wins) and the eviction is returned so the transport can close it.
func (reg *Registry) Join(appointmentID string, p Participant) (Snapshot, *Eviction, error) {
	// A connection belongs to at most one room; an un-left previous join
	// is resolved as an implicit leave.
	reg.mu.RLock()
	prev, bound := reg.conns[p.ConnectionID]
	reg.mu.RUnlock()
	if bound && prev != appointmentID {
		reg.Leave(prev, p.ConnectionID)
	}

	for {
		r := reg.getOrCreate(appointmentID)
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			continue
		}

		var evicted *Eviction
		stale := ""
		for connID, existing := range r.participants {
			if existing.UserID == p.UserID && connID != p.ConnectionID {
				stale = connID
				evicted = &Eviction{ConnectionID: connID, UserID: existing.UserID}
			}
		}
		if stale != "" {
			delete(r.participants, stale)
			// The handshake belonged to the displaced connection; the new
			// pairing must renegotiate from scratch.
			if r.status == StatusWaiting {
				r.offerSeen = false
				r.answerSeen = false
			}
		} else if _, ok := r.participants[p.ConnectionID]; !ok && len(r.participants) >= maxParties {
			r.mu.Unlock()
			return Snapshot{}, nil, errs.ErrRoomFull
		}

		cp := p
		if cp.JoinedAt.IsZero() {
			cp.JoinedAt = time.Now()
		}
		r.participants[p.ConnectionID] = &cp
		r.lastActivity = time.Now()
		snap := r.snapshotLocked()
		r.mu.Unlock()

		reg.mu.Lock()
		reg.conns[p.ConnectionID] = appointmentID
		if evicted != nil && reg.conns[evicted.ConnectionID] == appointmentID {
			delete(reg.conns, evicted.ConnectionID)
		}
		reg.mu.Unlock()

		log.Info().Str("module", "room.registry").
			Str("appointment", appointmentID).
			Str("user", p.UserID).
			Str("conn", p.ConnectionID).
			Int("participants", len(snap.Participants)).
			Msg("participant joined")
		return snap, evicted, nil
	}
}

// Leave removes a connection from its room. When the last participant
// leaves the room is completed and removed; closed reports that.
func (reg *Registry) Leave(appointmentID, connectionID string) (Snapshot, bool) {
	reg.mu.RLock()
	r, ok := reg.rooms[appointmentID]
	reg.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}

	r.mu.Lock()
	if _, present := r.participants[connectionID]; !present {
		snap := r.snapshotLocked()
		r.mu.Unlock()
		return snap, false
	}
	delete(r.participants, connectionID)
	r.lastActivity = time.Now()
	// A waiting room's partial handshake dies with the departed party; a
	// later lone offer or answer must not activate the next pairing.
	if r.status == StatusWaiting {
		r.offerSeen = false
		r.answerSeen = false
	}
	closed := len(r.participants) == 0
	if closed {
		r.status = StatusCompleted
		r.closed = true
	}
	snap := r.snapshotLocked()
	r.mu.Unlock()

	reg.mu.Lock()
	if reg.conns[connectionID] == appointmentID {
		delete(reg.conns, connectionID)
	}
	reg.mu.Unlock()

	if closed {
		reg.drop(r)
	}
	log.Info().Str("module", "room.registry").
		Str("appointment", appointmentID).
		Str("conn", connectionID).
		Bool("closed", closed).
		Msg("participant left")
	return snap, closed
}

// End completes the room immediately (explicit end-call) and removes it.
// The returned snapshot still lists the participants so the caller can
// notify them.
func (reg *Registry) End(appointmentID string) (Snapshot, bool) {
	reg.mu.RLock()
	r, ok := reg.rooms[appointmentID]
	reg.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}

	r.mu.Lock()
	if r.closed {
		snap := r.snapshotLocked()
		r.mu.Unlock()
		return snap, false
	}
	r.status = StatusCompleted
	r.closed = true
	r.lastActivity = time.Now()
	snap := r.snapshotLocked()
	conns := make([]string, 0, len(r.participants))
	for connID := range r.participants {
		conns = append(conns, connID)
	}
	r.participants = make(map[string]*Participant)
	r.mu.Unlock()

	reg.mu.Lock()
	for _, connID := range conns {
		if reg.conns[connID] == appointmentID {
			delete(reg.conns, connID)
		}
	}
	reg.mu.Unlock()

	reg.drop(r)
	log.Info().Str("module", "room.registry").Str("appointment", appointmentID).Msg("room ended")
	return snap, true
}

// Get returns a snapshot of the room, if it exists.
func (reg *Registry) Get(appointmentID string) (Snapshot, bool) {
	reg.mu.RLock()
	r, ok := reg.rooms[appointmentID]
	reg.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	r.mu.Lock()
	snap := r.snapshotLocked()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return Snapshot{}, false
	}
	return snap, true
}

// RoomOf returns the appointment a connection is currently joined to.
func (reg *Registry) RoomOf(connectionID string) (string, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	appt, ok := reg.conns[connectionID]
	return appt, ok
}

// NoteOffer records that an offer was relayed in the room.
func (reg *Registry) NoteOffer(appointmentID string) Snapshot {
	return reg.noteHandshake(appointmentID, true, false)
}

// NoteAnswer records that an answer was relayed. Once both an offer and an
// answer have passed through while both participants are present, the room
// flips waiting -> active.
func (reg *Registry) NoteAnswer(appointmentID string) Snapshot {
	return reg.noteHandshake(appointmentID, false, true)
}

func (reg *Registry) noteHandshake(appointmentID string, offer, answer bool) Snapshot {
	reg.mu.RLock()
	r, ok := reg.rooms[appointmentID]
	reg.mu.RUnlock()
	if !ok {
		return Snapshot{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return r.snapshotLocked()
	}
	if offer {
		r.offerSeen = true
	}
	if answer {
		r.answerSeen = true
	}
	r.lastActivity = time.Now()
	if r.status == StatusWaiting && r.offerSeen && r.answerSeen && len(r.participants) == maxParties {
		r.status = StatusActive
		log.Info().Str("module", "room.registry").Str("appointment", appointmentID).Msg("room active")
	}
	return r.snapshotLocked()
}

// SetMediaState updates a participant's mute/camera state.
func (reg *Registry) SetMediaState(appointmentID, connectionID string, media MediaState) (Snapshot, bool) {
	reg.mu.RLock()
	r, ok := reg.rooms[appointmentID]
	reg.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, present := r.participants[connectionID]
	if !present {
		return r.snapshotLocked(), false
	}
	p.Media = media
	r.lastActivity = time.Now()
	return r.snapshotLocked(), true
}
