// Package peer implements the client-side negotiation state machine that
// drives local media acquisition, SDP offer/answer exchange and ICE
// candidate handling over the signaling relay.
package peer

// State is the negotiation phase of a call.
type State int

const (
	// StateIdle means no call is in progress.
	StateIdle State = iota
	// StateAcquiringMedia means a local media permission request is pending.
	StateAcquiringMedia
	// StateOffering means a local offer has been sent and an answer is awaited.
	StateOffering
	// StateAnsweringOffer means a remote offer was applied and a local
	// answer has been sent.
	StateAnsweringOffer
	// StateConnected means the peer connection reports connectivity.
	StateConnected
	// StateEnded means the call finished normally.
	StateEnded
	// StateMediaDenied is terminal: the user rejected the permission
	// request. No retry.
	StateMediaDenied
	// StatePeerUnavailable is terminal: the runtime lacks real-time media
	// capability. Media acquisition is never attempted; only chat remains.
	StatePeerUnavailable
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiringMedia:
		return "acquiring-media"
	case StateOffering:
		return "offering"
	case StateAnsweringOffer:
		return "answering-offer"
	case StateConnected:
		return "connected"
	case StateEnded:
		return "ended"
	case StateMediaDenied:
		return "media-denied"
	case StatePeerUnavailable:
		return "peer-unavailable"
	}
	return "unknown"
}

// Terminal reports whether no further negotiation can happen from s.
func (s State) Terminal() bool {
	return s == StateMediaDenied || s == StatePeerUnavailable
}
