package peer

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/carebridge/telehealth-signaling/internal/errs"
)

// Signaler carries outbound signaling to the relay.
type Signaler interface {
	SendOffer(sdp string) error
	SendAnswer(sdp string) error
	SendCandidate(candidate string) error
	SendEndCall() error
}

// MediaSource acquires local capture devices. Acquire blocks until the
// permission request resolves; errs.ErrPermissionDenied means the user
// rejected it.
type MediaSource interface {
	Acquire(ctx context.Context) error
	Release()
}

// PeerConnection abstracts the underlying RTC engine. SDP and candidate
// payloads are opaque strings.
type PeerConnection interface {
	// CreateOffer creates and applies the local offer, returning its SDP.
	CreateOffer() (string, error)
	// CreateAnswer creates and applies the local answer, returning its SDP.
	CreateAnswer() (string, error)
	SetRemoteOffer(sdp string) error
	SetRemoteAnswer(sdp string) error
	AddICECandidate(candidate string) error
	// OnICECandidate registers the callback for locally discovered
	// candidates. The engine only produces them once the local
	// description is set.
	OnICECandidate(fn func(candidate string))
	// OnConnectionState reports transitions of the underlying transport.
	OnConnectionState(fn func(connected bool))
	Close() error
}

// Factory builds a PeerConnection, or returns errs.ErrPeerUnavailable when
// the runtime has no real-time media capability.
type Factory func() (PeerConnection, error)

// StateListener observes state transitions, e.g. to update the UI.
type StateListener func(from, to State)

// Negotiator is the per-call state machine. All transitions are serialized
// by its mutex; media acquisition and signaling sends happen outside it.
type Negotiator struct {
	factory  Factory
	media    MediaSource
	sig      Signaler
	onChange StateListener

	mu            sync.Mutex
	state         State
	pc            PeerConnection
	epoch         uint64 // bumped on every reset so stale callbacks are ignored
	remoteSet     bool
	pendingRemote []string // remote candidates buffered until the remote description exists

	audioOn bool
	videoOn bool
}

func NewNegotiator(factory Factory, media MediaSource, sig Signaler, onChange StateListener) *Negotiator {
	return &Negotiator{
		factory:  factory,
		media:    media,
		sig:      sig,
		onChange: onChange,
		state:    StateIdle,
		audioOn:  true,
		videoOn:  true,
	}
}

// State returns the current negotiation state.
func (n *Negotiator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *Negotiator) setStateLocked(to State) {
	from := n.state
	if from == to {
		return
	}
	n.state = to
	log.Debug().Str("module", "peer").Str("from", from.String()).Str("to", to.String()).Msg("state change")
	if n.onChange != nil {
		go n.onChange(from, to)
	}
}

// StartCall begins negotiation as the offering side: acquire media, create
// and send the offer.
func (n *Negotiator) StartCall(ctx context.Context) error {
	if err := n.beginAcquire(); err != nil {
		return err
	}
	return n.afterMedia(ctx, true, "")
}

// HandleOffer reacts to a remote offer. While idle it acquires media,
// applies the remote description and answers. An offer in any other
// non-terminal state is out of order and restarts negotiation.
func (n *Negotiator) HandleOffer(ctx context.Context, sdp string) error {
	n.mu.Lock()
	switch n.state {
	case StatePeerUnavailable, StateMediaDenied:
		n.mu.Unlock()
		return nil // chat-only session, signaling ignored
	case StateIdle, StateEnded:
		n.setStateLocked(StateAcquiringMedia)
		n.mu.Unlock()
	default:
		n.resetLocked(StateIdle)
		n.mu.Unlock()
		return &errs.NegotiationError{Stage: "offer", Err: errors.New("offer received out of order")}
	}
	return n.afterMedia(ctx, false, sdp)
}

func (n *Negotiator) beginAcquire() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch n.state {
	case StatePeerUnavailable:
		return errs.ErrPeerUnavailable
	case StateMediaDenied:
		return errs.ErrPermissionDenied
	case StateIdle, StateEnded:
		n.setStateLocked(StateAcquiringMedia)
		return nil
	}
	return &errs.NegotiationError{Stage: "start", Err: errors.New("call already in progress")}
}

// afterMedia runs the blocking part of negotiation: media acquisition,
// peer connection setup, offer/answer creation. No lock is held while
// acquiring media or sending signaling.
func (n *Negotiator) afterMedia(ctx context.Context, offering bool, remoteOffer string) error {
	pc, err := n.factory()
	if err != nil {
		n.mu.Lock()
		n.setStateLocked(StatePeerUnavailable)
		n.mu.Unlock()
		return errs.ErrPeerUnavailable
	}

	if err := n.media.Acquire(ctx); err != nil {
		pc.Close()
		n.mu.Lock()
		if errors.Is(err, errs.ErrPermissionDenied) {
			n.setStateLocked(StateMediaDenied)
		} else {
			n.resetLocked(StateIdle)
		}
		n.mu.Unlock()
		return err
	}

	n.mu.Lock()
	if n.state != StateAcquiringMedia {
		// Reset raced the permission prompt; negotiation restarts from
		// scratch on the next attempt.
		n.mu.Unlock()
		pc.Close()
		n.media.Release()
		return &errs.NegotiationError{Stage: "media", Err: errors.New("negotiation reset while acquiring media")}
	}
	n.pc = pc
	epoch := n.epoch
	n.mu.Unlock()

	pc.OnICECandidate(func(candidate string) {
		n.mu.Lock()
		stale := n.epoch != epoch
		n.mu.Unlock()
		if stale {
			return
		}
		if err := n.sig.SendCandidate(candidate); err != nil {
			log.Warn().Err(err).Str("module", "peer").Msg("failed to send candidate")
		}
	})
	pc.OnConnectionState(func(connected bool) {
		n.handleConnectionState(epoch, connected)
	})

	if offering {
		sdp, err := pc.CreateOffer()
		if err != nil {
			return n.fail("create-offer", err)
		}
		n.mu.Lock()
		n.setStateLocked(StateOffering)
		n.mu.Unlock()
		if err := n.sig.SendOffer(sdp); err != nil {
			return n.fail("send-offer", err)
		}
		return nil
	}

	if err := pc.SetRemoteOffer(remoteOffer); err != nil {
		return n.fail("set-remote-offer", err)
	}
	n.markRemoteSetAndFlush(pc, epoch)

	sdp, err := pc.CreateAnswer()
	if err != nil {
		return n.fail("create-answer", err)
	}
	n.mu.Lock()
	n.setStateLocked(StateAnsweringOffer)
	n.mu.Unlock()
	if err := n.sig.SendAnswer(sdp); err != nil {
		return n.fail("send-answer", err)
	}
	return nil
}

// HandleAnswer applies the remote answer while offering.
func (n *Negotiator) HandleAnswer(sdp string) error {
	n.mu.Lock()
	if n.state != StateOffering {
		if n.state.Terminal() {
			n.mu.Unlock()
			return nil
		}
		n.resetLocked(StateIdle)
		n.mu.Unlock()
		return &errs.NegotiationError{Stage: "answer", Err: errors.New("answer received out of order")}
	}
	pc := n.pc
	epoch := n.epoch
	n.mu.Unlock()

	if err := pc.SetRemoteAnswer(sdp); err != nil {
		return n.fail("set-remote-answer", err)
	}
	n.markRemoteSetAndFlush(pc, epoch)
	return nil
}

// HandleCandidate applies a remote ICE candidate. Candidates arriving
// before the remote description exists are buffered and flushed in their
// original receipt order once it is applied; none are dropped.
func (n *Negotiator) HandleCandidate(candidate string) error {
	n.mu.Lock()
	if n.state.Terminal() || n.state == StateIdle || n.state == StateEnded {
		n.mu.Unlock()
		return nil
	}
	if !n.remoteSet || n.pc == nil {
		n.pendingRemote = append(n.pendingRemote, candidate)
		n.mu.Unlock()
		return nil
	}
	pc := n.pc
	n.mu.Unlock()

	if err := pc.AddICECandidate(candidate); err != nil {
		return n.fail("add-candidate", err)
	}
	return nil
}

// markRemoteSetAndFlush flushes any buffered candidates in receipt order.
// A reset may race the unlocked SetRemote call; the epoch guard keeps the
// stale negotiation from marking the fresh one's remote description set.
func (n *Negotiator) markRemoteSetAndFlush(pc PeerConnection, epoch uint64) {
	n.mu.Lock()
	if n.epoch != epoch {
		n.mu.Unlock()
		return
	}
	n.remoteSet = true
	pending := n.pendingRemote
	n.pendingRemote = nil
	n.mu.Unlock()

	for _, candidate := range pending {
		if err := pc.AddICECandidate(candidate); err != nil {
			log.Warn().Err(err).Str("module", "peer").Msg("failed to apply buffered candidate")
		}
	}
}

func (n *Negotiator) handleConnectionState(epoch uint64, connected bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.epoch != epoch {
		return
	}
	if connected {
		if n.state == StateOffering || n.state == StateAnsweringOffer {
			n.setStateLocked(StateConnected)
		}
		return
	}
	switch n.state {
	case StateConnected:
		n.resetLocked(StateEnded)
	case StateOffering, StateAnsweringOffer:
		// The transport failed before the call was ever up; return to
		// Idle so negotiation can restart without user action.
		n.resetLocked(StateIdle)
	}
}

// HandleEndCall reacts to a remote end-call.
func (n *Negotiator) HandleEndCall() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state.Terminal() {
		return
	}
	n.resetLocked(StateEnded)
}

// HangUp ends the call locally and notifies the peer. Idempotent.
func (n *Negotiator) HangUp() {
	n.mu.Lock()
	if n.state.Terminal() || n.state == StateIdle || n.state == StateEnded {
		n.mu.Unlock()
		return
	}
	n.resetLocked(StateEnded)
	n.mu.Unlock()

	if err := n.sig.SendEndCall(); err != nil {
		log.Warn().Err(err).Str("module", "peer").Msg("failed to send end-call")
	}
}

// HandleDisconnect resets to Idle when the relay connection drops. The
// peer connection is discarded; reconnection restarts negotiation from
// scratch rather than patching a stale connection.
func (n *Negotiator) HandleDisconnect() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state.Terminal() {
		return
	}
	n.resetLocked(StateIdle)
}

// ToggleAudio flips the local audio track. Returns true when muted.
func (n *Negotiator) ToggleAudio() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.audioOn = !n.audioOn
	return !n.audioOn
}

// ToggleVideo flips the local video track. Returns true when disabled.
func (n *Negotiator) ToggleVideo() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.videoOn = !n.videoOn
	return !n.videoOn
}

// fail restarts negotiation after a malformed or out-of-order exchange.
func (n *Negotiator) fail(stage string, err error) error {
	log.Warn().Err(err).Str("module", "peer").Str("stage", stage).Msg("negotiation failed, restarting")
	n.mu.Lock()
	n.resetLocked(StateIdle)
	n.mu.Unlock()
	return &errs.NegotiationError{Stage: stage, Err: err}
}

// resetLocked discards all per-call state and returns to the given state.
func (n *Negotiator) resetLocked(to State) {
	n.resetInternalsLocked()
	n.setStateLocked(to)
}

func (n *Negotiator) resetInternalsLocked() {
	n.epoch++
	if n.pc != nil {
		n.pc.Close()
		n.pc = nil
	}
	n.media.Release()
	n.remoteSet = false
	n.pendingRemote = nil
}
