// Package room holds the session registry: the authoritative map of
// appointmentId to live room state. It is the only cross-connection shared
// mutable state in the server.
package room

import (
	"time"

	"github.com/carebridge/telehealth-signaling/internal/auth"
)

// Status is the lifecycle state of a room.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// MediaState tracks a participant's local mute/camera toggles.
type MediaState struct {
	Muted   bool `json:"muted"`
	VideoOn bool `json:"videoOn"`
}

// Participant is one connected party of an appointment room.
type Participant struct {
	ConnectionID string     `json:"connectionId"`
	UserID       string     `json:"userId"`
	Role         auth.Role  `json:"role"`
	Media        MediaState `json:"mediaState"`
	JoinedAt     time.Time  `json:"joinedAt"`
}

// Snapshot is an immutable copy of room state returned to callers.
type Snapshot struct {
	AppointmentID  string        `json:"appointmentId"`
	Status         Status        `json:"status"`
	Participants   []Participant `json:"participants"`
	CreatedAt      time.Time     `json:"createdAt"`
	LastActivityAt time.Time     `json:"lastActivityAt"`
}

// HasConnection reports whether connID is a registered participant.
func (s Snapshot) HasConnection(connID string) bool {
	for _, p := range s.Participants {
		if p.ConnectionID == connID {
			return true
		}
	}
	return false
}

// OtherConnections returns every participant connection except exclude.
func (s Snapshot) OtherConnections(exclude string) []string {
	out := make([]string, 0, len(s.Participants))
	for _, p := range s.Participants {
		if p.ConnectionID != exclude {
			out = append(out, p.ConnectionID)
		}
	}
	return out
}

// Eviction identifies a stale connection displaced by a rejoin.
type Eviction struct {
	ConnectionID string
	UserID       string
}
