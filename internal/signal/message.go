// Package signal implements the room-scoped multiplexer shared by WebRTC
// signaling and chat presence traffic.
package signal

import "encoding/json"

// Kind is the wire-level event name of a room-scoped message.
type Kind string

const (
	// Client -> server requests.
	KindJoinAppointment   Kind = "join-appointment"
	KindSendMessage       Kind = "send-message"
	KindMediaState        Kind = "media-state"
	KindAppointmentUpdate Kind = "appointment-update"

	// Peer negotiation signaling, relayed verbatim within the room.
	KindOffer     Kind = "video-offer"
	KindAnswer    Kind = "video-answer"
	KindCandidate Kind = "ice-candidate"
	KindEndCall   Kind = "end-call"

	// Chat presence, routed over the same room multiplexer but kept as
	// distinct kinds so it cannot be confused with negotiation signaling.
	KindTypingStart Kind = "typing-start"
	KindTypingStop  Kind = "typing-stop"

	// Server -> client notifications.
	KindJoined             Kind = "joined"
	KindParticipantJoined  Kind = "participant-joined"
	KindParticipantLeft    Kind = "participant-left"
	KindReceiveMessage     Kind = "receive-message"
	KindCallEnded          Kind = "call-ended"
	KindAppointmentUpdated Kind = "appointment-updated"
	KindError              Kind = "error"
)

// IsSignaling reports whether the kind belongs to the peer negotiation
// control plane.
func (k Kind) IsSignaling() bool {
	switch k {
	case KindOffer, KindAnswer, KindCandidate, KindEndCall:
		return true
	}
	return false
}

// Message is the envelope carried over the room multiplexer. Payload is an
// opaque blob: SDP and ICE bodies are relayed untouched.
type Message struct {
	Kind          Kind            `json:"type"`
	AppointmentID string          `json:"appointmentId,omitempty"`
	From          string          `json:"from,omitempty"`
	FromUserID    string          `json:"fromUserId,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// TypingPayload is the body of typing-start/typing-stop events.
type TypingPayload struct {
	AppointmentID string `json:"appointmentId"`
	UserID        string `json:"userId"`
	UserName      string `json:"userName"`
}
